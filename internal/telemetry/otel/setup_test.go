package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		providers, err := NewProviders(ctx, Options{Endpoint: endpoint, ServiceName: "test-service"})
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
			t.Errorf("NewProviders(%q) returned nil providers", endpoint)
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("shutdown should be no-op for empty endpoint, got error: %v", err)
		}
	}
}

func TestNewProviders_InvalidURL(t *testing.T) {
	testCases := []struct {
		name     string
		endpoint string
	}{
		{"invalid characters", "://invalid"},
		{"malformed URL", "http://[invalid"},
		{"missing host", "http://"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewProviders(context.Background(), Options{Endpoint: tc.endpoint}); err == nil {
				t.Errorf("NewProviders(%q) should return error", tc.endpoint)
			}
		})
	}
}

func TestParseEndpoint(t *testing.T) {
	testCases := []struct {
		endpoint     string
		wantTarget   string
		wantInsecure bool
	}{
		{"localhost:4317", "localhost:4317", true},
		{"http://localhost:4317", "localhost:4317", true},
		{"https://collector:4317", "collector:4317", false},
		{"http://localhost:4317/v1/traces", "localhost:4317", true},
	}
	for _, tc := range testCases {
		target, insecure, err := parseEndpoint(tc.endpoint)
		if err != nil {
			t.Errorf("parseEndpoint(%q): %v", tc.endpoint, err)
			continue
		}
		if target != tc.wantTarget || insecure != tc.wantInsecure {
			t.Errorf("parseEndpoint(%q) = (%q, %v), want (%q, %v)", tc.endpoint, target, insecure, tc.wantTarget, tc.wantInsecure)
		}
	}
}

func TestNewResource(t *testing.T) {
	res, err := newResource("print-relay", "production")
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}
	found := map[string]string{}
	for _, kv := range res.Attributes() {
		found[string(kv.Key)] = kv.Value.Emit()
	}
	if found["service.name"] != "print-relay" {
		t.Errorf("service.name = %q", found["service.name"])
	}
	if found["deployment.environment.name"] != "production" {
		t.Errorf("deployment.environment.name = %q", found["deployment.environment.name"])
	}
}

func TestSetGlobal_WithProviders(t *testing.T) {
	providers, err := NewProviders(context.Background(), Options{ServiceName: "test-service"})
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	oldTracerProvider := otel.GetTracerProvider()
	oldMeterProvider := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(oldTracerProvider)
		otel.SetMeterProvider(oldMeterProvider)
	})

	providers.SetGlobal()

	if otel.GetTracerProvider() == oldTracerProvider {
		t.Error("TracerProvider should be updated")
	}
	if otel.GetMeterProvider() == oldMeterProvider {
		t.Error("MeterProvider should be updated")
	}
}
