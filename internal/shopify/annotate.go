package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const orderUpdateMutation = `mutation orderNote($input: OrderInput!) {
  orderUpdate(input: $input) {
    order { id note }
    userErrors { field message }
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type orderUpdateResponse struct {
	Data struct {
		OrderUpdate struct {
			Order *struct {
				ID   string `json:"id"`
				Note string `json:"note"`
			} `json:"order"`
			UserErrors []struct {
				Field   []string `json:"field"`
				Message string   `json:"message"`
			} `json:"userErrors"`
		} `json:"orderUpdate"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// AnnotateOrder sets the order note via the orderUpdate mutation and returns
// the note echoed by the API. Success is strictly a non-empty echoed note:
// a 200 with userErrors, top-level errors, or a missing note field all reject.
func (c *Client) AnnotateOrder(ctx context.Context, orderRef, note string) (string, error) {
	body, _ := json.Marshal(graphqlRequest{
		Query: orderUpdateMutation,
		Variables: map[string]any{
			"input": map[string]any{"id": OrderGID(orderRef), "note": note},
		},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.Token)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("order update request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("order update response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("order update status %d", resp.StatusCode)
	}
	var out orderUpdateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("order update decode: %w", err)
	}
	if len(out.Errors) > 0 {
		return "", fmt.Errorf("order update errors: %s", out.Errors[0].Message)
	}
	if ue := out.Data.OrderUpdate.UserErrors; len(ue) > 0 {
		return "", fmt.Errorf("order update user error on %s: %s", strings.Join(ue[0].Field, "."), ue[0].Message)
	}
	ord := out.Data.OrderUpdate.Order
	if ord == nil || ord.Note == "" {
		return "", fmt.Errorf("order update returned no note for %s", orderRef)
	}
	return ord.Note, nil
}
