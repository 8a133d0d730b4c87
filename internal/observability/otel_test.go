package observability

import (
	"context"
	"testing"
)

func TestParseRatioClamps(t *testing.T) {
	cases := map[string]float64{"0.25": 0.25, "-1": 0, "7": 1}
	for in, want := range cases {
		got, err := parseRatio(in)
		if err != nil || got != want {
			t.Fatalf("parseRatio(%q)=%v err=%v want %v", in, got, err, want)
		}
	}
	if _, err := parseRatio("half"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseHeaders(t *testing.T) {
	h := parseHeaders("authorization=Bearer x, broken ,tenant=mm,=empty")
	if len(h) != 2 || h["authorization"] != "Bearer x" || h["tenant"] != "mm" {
		t.Fatalf("headers=%v", h)
	}
	if parseHeaders("") != nil {
		t.Fatalf("empty input should give nil")
	}
}

func TestInitOTelDisabledIsNoop(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	shutdown := InitOTel(context.Background(), nil, OtelConfig{})
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
