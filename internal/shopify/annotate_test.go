package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient("example.myshopify.com", "tok_test", "2024-01")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.BaseURL = srv.URL
	c.HTTP = srv.Client()
	return c, srv
}

func TestNewClientRequiresConfig(t *testing.T) {
	if _, err := NewClient("", "tok", ""); err == nil {
		t.Fatal("missing domain should fail")
	}
	if _, err := NewClient("shop.myshopify.com", "", ""); err == nil {
		t.Fatal("missing token should fail")
	}
}

func TestAnnotateOrderSuccess(t *testing.T) {
	var gotToken, gotPath string
	var gotVars map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		gotPath = r.URL.Path
		var req graphqlRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotVars = req.Variables
		input := req.Variables["input"].(map[string]any)
		fmt.Fprintf(w, `{"data":{"orderUpdate":{"order":{"id":%q,"note":%q},"userErrors":[]}}}`,
			input["id"], input["note"])
	})

	note, err := c.AnnotateOrder(context.Background(), "450789469", "Verification Code: A12345678")
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	if note != "Verification Code: A12345678" {
		t.Fatalf("echoed note = %q", note)
	}
	if gotToken != "tok_test" {
		t.Fatalf("access token header = %q", gotToken)
	}
	if gotPath != "/admin/api/2024-01/graphql.json" {
		t.Fatalf("path = %q", gotPath)
	}
	input := gotVars["input"].(map[string]any)
	if input["id"] != "gid://shopify/Order/450789469" {
		t.Fatalf("order gid = %v", input["id"])
	}
}

func TestAnnotateOrderMissingNoteIsFailure(t *testing.T) {
	// HTTP 200 with no echoed note still rejects.
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"orderUpdate":{"order":null,"userErrors":[]}}}`))
	})
	if _, err := c.AnnotateOrder(context.Background(), "1", "note"); err == nil {
		t.Fatal("missing note must be treated as failure")
	}
}

func TestAnnotateOrderUserErrors(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"orderUpdate":{"order":null,"userErrors":[{"field":["id"],"message":"Order does not exist"}]}}}`))
	})
	_, err := c.AnnotateOrder(context.Background(), "1", "note")
	if err == nil || !strings.Contains(err.Error(), "Order does not exist") {
		t.Fatalf("expected user error surfaced, got %v", err)
	}
}

func TestAnnotateOrderBadJSON(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})
	if _, err := c.AnnotateOrder(context.Background(), "1", "note"); err == nil {
		t.Fatal("parse error must reject")
	}
}

func TestGetOrderByName(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "any" || r.URL.Query().Get("name") != "#1001" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"orders":[{"id":450789469,"name":"#1001","note":""}]}`))
	})
	ord, err := c.GetOrderByName(context.Background(), "#1001")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ord.ID != 450789469 || ord.Name != "#1001" {
		t.Fatalf("order = %+v", ord)
	}
}
