package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"loyaltylink/internal/buildinfo"
	"loyaltylink/internal/metrics"
	"loyaltylink/internal/model"
	"loyaltylink/internal/store"
	"loyaltylink/internal/webhook"
)

const hmacHeader = "X-Shopify-Hmac-Sha256"

// WebhookHandler handles POST /webhook/orders-create. The signature is
// verified over the raw request bytes before any decoding; a bad signature is
// rejected without reading the payload's content.
func (s *Server) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Read failed", err.Error(), r.URL.Path)
		return
	}
	if secret := s.Cfg.Shopify.WebhookSecret; secret != "" {
		if !webhook.Verify(secret, body, r.Header.Get(hmacHeader)) {
			metrics.WebhooksReceived.WithLabelValues("unverified").Inc()
			writeProblem(w, http.StatusUnauthorized, "Invalid signature", "webhook signature verification failed", r.URL.Path)
			return
		}
	}
	var order model.OrderWebhook
	if err := json.Unmarshal(body, &order); err != nil {
		metrics.WebhooksReceived.WithLabelValues("malformed").Inc()
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if order.ID == 0 {
		metrics.WebhooksReceived.WithLabelValues("malformed").Inc()
		writeProblem(w, http.StatusBadRequest, "Invalid order", "missing order id", r.URL.Path)
		return
	}
	metrics.WebhooksReceived.WithLabelValues("accepted").Inc()

	if s.Cfg.PipelineSync {
		res := s.Pipeline.Process(r.Context(), order)
		if res.Err != nil {
			writeProblem(w, http.StatusInternalServerError, "Processing failed", res.Err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, resultBody(res))
		return
	}
	// Acknowledge immediately; Shopify redelivers on slow responses. The run
	// is detached from the request context on purpose.
	go func(order model.OrderWebhook) {
		res := s.Pipeline.Process(context.Background(), order)
		if res.Err != nil {
			log.Printf("pipeline order=%s stage=%s: %v", res.OrderRef, res.Stage, res.Err)
		}
	}(order)
	writeJSON(w, http.StatusOK, map[string]any{"status": "accepted", "orderId": order.ID})
}

func resultBody(res model.Result) map[string]any {
	body := map[string]any{"orderRef": res.OrderRef, "stage": res.Stage, "skipped": res.Skipped}
	if res.Code != "" {
		body["code"] = res.Code
	}
	if res.Err != nil {
		body["error"] = res.Err.Error()
	}
	return body
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler reports readiness; not ready while the store is unreachable.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// AdminCodesHandler handles GET /v1/admin/codes. With ?order= it returns the
// single record for that order; otherwise a cursor-paginated listing.
func (s *Server) AdminCodesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if orderRef := r.URL.Query().Get("order"); orderRef != "" {
		rec, err := s.Store.GetCodeByOrder(r.Context(), orderRef)
		if err == store.ErrNotFound {
			writeProblem(w, http.StatusNotFound, "Not Found", "no code issued for order", r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Lookup failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListCodes(r.Context(), cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List codes failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// AdminAnnotationsHandler handles /v1/admin/annotations and
// /v1/admin/annotations/{id}/retry.
func (s *Server) AdminAnnotationsHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/annotations")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		status := r.URL.Query().Get("status")
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListAnnotations(r.Context(), status, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List annotations failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
		return
	}
	parts := strings.Split(rest, "/")
	if len(parts) == 2 && parts[1] == "retry" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := s.Store.RetryAnnotation(r.Context(), parts[0]); err != nil {
			if err == store.ErrNotFound {
				writeProblem(w, http.StatusNotFound, "Not Found", "unknown annotation job", r.URL.Path)
				return
			}
			writeProblem(w, http.StatusInternalServerError, "Retry failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": parts[0], "status": "pending"})
		return
	}
	writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
}

// AdminOrderLookupHandler handles GET /v1/admin/orders/lookup?name=%231001
// and pairs the Shopify order with its issued code, if any.
func (s *Server) AdminOrderLookupHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.Shopify == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Shopify unavailable", "shopify client not configured", r.URL.Path)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		writeProblem(w, http.StatusBadRequest, "Missing name", "query parameter name is required", r.URL.Path)
		return
	}
	ord, err := s.Shopify.GetOrderByName(r.Context(), name)
	if err != nil {
		writeProblem(w, http.StatusBadGateway, "Order lookup failed", err.Error(), r.URL.Path)
		return
	}
	out := map[string]any{"order": ord}
	if rec, err := s.Store.GetCodeByOrder(r.Context(), fmt.Sprint(ord.ID)); err == nil {
		out["code"] = rec
	}
	writeJSON(w, http.StatusOK, out)
}

// DebugJSON exposes build info and a redacted view of the effective config.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"listen":             s.Cfg.Listen,
			"shopDomain":         s.Cfg.Shopify.ShopDomain,
			"apiVersion":         s.Cfg.Shopify.APIVersion,
			"partnerBaseUrl":     s.Cfg.Partner.BaseURL,
			"qualifyingProducts": len(s.Cfg.QualifyingProducts),
			"skipTestOrders":     s.Cfg.SkipTestOrders,
			"pipelineSync":       s.Cfg.PipelineSync,
			"hasWebhookSecret":   s.Cfg.Shopify.WebhookSecret != "",
			"hasAdminToken":      s.Cfg.Shopify.AdminToken != "",
			"hasDatabaseUrl":     s.Cfg.DatabaseURL != "",
			"hasRedisUrl":        s.Cfg.RedisURL != "",
		},
	}
	writeJSON(w, http.StatusOK, info)
}
