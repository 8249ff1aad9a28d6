package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Order is the subset of the REST order resource this service reads.
type Order struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Note string `json:"note"`
}

// GetOrderByName resolves an order by its display name token (e.g. "#1001")
// via the REST orders listing with status=any.
func (c *Client) GetOrderByName(ctx context.Context, name string) (Order, error) {
	u := c.restURL("orders.json") + "?status=any&name=" + url.QueryEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Order{}, err
	}
	req.Header.Set("X-Shopify-Access-Token", c.Token)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Order{}, fmt.Errorf("order lookup request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Order{}, fmt.Errorf("order lookup status %d", resp.StatusCode)
	}
	var out struct {
		Orders []Order `json:"orders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Order{}, fmt.Errorf("order lookup decode: %w", err)
	}
	if len(out.Orders) == 0 {
		return Order{}, fmt.Errorf("order %q not found", name)
	}
	return out.Orders[0], nil
}
