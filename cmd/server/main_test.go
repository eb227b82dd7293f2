package main

import (
	"net/http"
	"testing"

	"print-relay/internal/config"
	"print-relay/internal/telemetry/loki"
)

func TestSMSRoute(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	testCases := []struct {
		name    string
		cfg     config.Config
		mounted bool
	}{
		{"no credentials", config.Config{}, false},
		{"partial credentials", config.Config{SignalWireProjectID: "p", SignalWireToken: "t"}, false},
		{"configured", config.Config{
			SignalWireProjectID:  "p",
			SignalWireToken:      "t",
			SignalWireSpaceURL:   "example.signalwire.com",
			SignalWireFromNumber: "+15550000000",
		}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := smsRoute(&tc.cfg, h)
			if (got != nil) != tc.mounted {
				t.Errorf("mounted = %v, want %v", got != nil, tc.mounted)
			}
		})
	}
}

func TestNilSink(t *testing.T) {
	if nilSink(nil) != nil {
		t.Error("nil client should yield a nil Sink")
	}
	if nilSink(loki.NewClient("http://loki:3100")) == nil {
		t.Error("configured client should yield a Sink")
	}
}
