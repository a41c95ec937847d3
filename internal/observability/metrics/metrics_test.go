package metrics

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("supplier_id", "123"),
		attribute.String("supplier_name", "Nakuru Farms"),
		attribute.String("product_code", "coffee-arabica"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "supplier_id" && attrs[1].Key != "supplier_id" {
		t.Fatalf("expected supplier_id to be retained")
	}
	if attrs[0].Key != "product_code" && attrs[1].Key != "product_code" {
		t.Fatalf("expected product_code to be retained")
	}
}
