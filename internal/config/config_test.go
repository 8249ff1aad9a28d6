package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseQualifyingProducts(t *testing.T) {
	m, err := ParseQualifyingProducts("7339952373935:A, 7339952406703:B")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m[7339952373935] != "A" || m[7339952406703] != "B" {
		t.Fatalf("map = %v", m)
	}
}

func TestParseQualifyingProductsRejectsBadPrefix(t *testing.T) {
	if _, err := ParseQualifyingProducts("1:ab"); err == nil {
		t.Fatal("multi-letter prefix must be rejected")
	}
	if _, err := ParseQualifyingProducts("x:A"); err == nil {
		t.Fatal("non-numeric product id must be rejected")
	}
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
listen: ":9090"
shopify:
  shop_domain: file.myshopify.com
  admin_token: tok_file
partner:
  base_url: https://partner.example.com
qualifying_products:
  7339952373935: "A"
skip_test_orders: true
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SHOPIFY_SHOP_DOMAIN", "env.myshopify.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Fatalf("listen = %q", cfg.Listen)
	}
	if cfg.Shopify.ShopDomain != "env.myshopify.com" {
		t.Fatalf("env should override file, got %q", cfg.Shopify.ShopDomain)
	}
	if cfg.Shopify.AdminToken != "tok_file" {
		t.Fatalf("token = %q", cfg.Shopify.AdminToken)
	}
	if cfg.QualifyingProducts[7339952373935] != "A" {
		t.Fatalf("qualifying products = %v", cfg.QualifyingProducts)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Fatalf("default listen = %q", cfg.Listen)
	}
	if !cfg.SkipTestOrders {
		t.Fatal("test orders should be skipped by default")
	}
}
