package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OrderEventsHandler streams pipeline stage events for one order as SSE.
// GET /v1/orders/{id}/events
func (s *Server) OrderEventsHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/orders/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "events" || r.Method != http.MethodGet {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	orderRef := parts[0]
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(orderRef)
	defer s.Broker.Unsubscribe(orderRef, ch)

	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"orderRef\":%q,\"ts\":%q}\n\n", orderRef, time.Now().Format(time.RFC3339))
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			b, _ := json.Marshal(evt)
			fmt.Fprintf(w, "event: stage\n")
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"orderRef\":%q,\"ts\":%q}\n\n", orderRef, time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}
