package main

import (
	"bufio"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loyaltylink/internal/api"
	"loyaltylink/internal/config"
	"loyaltylink/internal/metrics"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	metrics.RegisterDefault()

	srvDeps, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	mux := http.NewServeMux()

	// Webhook intake
	mux.HandleFunc("/webhook/orders-create", srvDeps.RateLimited(srvDeps.WebhookHandler))

	// Admin
	mux.HandleFunc("/v1/admin/codes", srvDeps.AdminCodesHandler)
	mux.HandleFunc("/v1/admin/annotations", srvDeps.AdminAnnotationsHandler)
	mux.HandleFunc("/v1/admin/annotations/", srvDeps.AdminAnnotationsHandler)
	mux.HandleFunc("/v1/admin/orders/lookup", srvDeps.AdminOrderLookupHandler)

	// Event streams
	mux.HandleFunc("/v1/orders/", srvDeps.OrderEventsHandler) // /v1/orders/{id}/events
	mux.HandleFunc("/v1/events/ws", srvDeps.EventsWSHandler)

	// Health and introspection
	mux.HandleFunc("/health", srvDeps.HealthHandler)
	mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
	mux.HandleFunc("/v1/debug", srvDeps.DebugJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	worker := srvDeps.NewAnnotationWorker()
	worker.Start()

	log.Printf("API listening on %s", cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush and Hijack pass through so SSE and websocket upgrades keep working
// behind the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		log.Printf("%s %s %s %d %v", r.RemoteAddr, r.Method, r.URL.Path, rec.status, dur)
	})
}
