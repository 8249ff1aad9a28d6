// Package shopify is a minimal admin-API client covering the two calls this
// service makes: the orderUpdate note mutation and an order lookup by name.
package shopify

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const defaultAPIVersion = "2024-01"

type Client struct {
	ShopDomain string // e.g. example.myshopify.com
	Token      string
	APIVersion string
	HTTP       *http.Client
	// BaseURL overrides "https://<ShopDomain>"; used by tests.
	BaseURL string
}

// NewClient fails when shop domain or admin token are missing so that the
// caller can leave the annotator uninitialized and keep serving unrelated
// routes.
func NewClient(shopDomain, token, apiVersion string) (*Client, error) {
	if shopDomain == "" {
		return nil, errors.New("shopify: shop domain not configured")
	}
	if token == "" {
		return nil, errors.New("shopify: admin access token not configured")
	}
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	return &Client{
		ShopDomain: shopDomain,
		Token:      token,
		APIVersion: apiVersion,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://" + c.ShopDomain
}

func (c *Client) graphqlURL() string {
	return fmt.Sprintf("%s/admin/api/%s/graphql.json", c.base(), c.APIVersion)
}

func (c *Client) restURL(path string) string {
	return fmt.Sprintf("%s/admin/api/%s/%s", c.base(), c.APIVersion, path)
}

// OrderGID returns the global id string the admin GraphQL API expects.
func OrderGID(orderRef string) string {
	return "gid://shopify/Order/" + orderRef
}
