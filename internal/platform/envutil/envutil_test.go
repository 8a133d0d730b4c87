package envutil

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"750ms": 750 * time.Millisecond,
		"12":    12 * time.Second,
		"later": time.Minute,
		"":      time.Minute,
	}
	for in, want := range cases {
		t.Setenv("MM_TEST_DURATION", in)
		if got := Duration("MM_TEST_DURATION", time.Minute); got != want {
			t.Fatalf("Duration(%q)=%v want %v", in, got, want)
		}
	}
}

func TestIntAndBool(t *testing.T) {
	t.Setenv("MM_TEST_INT", "x")
	if got := Int("MM_TEST_INT", 3); got != 3 {
		t.Fatalf("Int=%d", got)
	}
	t.Setenv("MM_TEST_INT", " 7 ")
	if got := Int("MM_TEST_INT", 3); got != 7 {
		t.Fatalf("Int=%d", got)
	}
	t.Setenv("MM_TEST_BOOL", "on")
	if !Bool("MM_TEST_BOOL", false) {
		t.Fatalf("Bool(on)=false")
	}
	t.Setenv("MM_TEST_BOOL", "maybe")
	if !Bool("MM_TEST_BOOL", true) {
		t.Fatalf("Bool(maybe) should keep default")
	}
}
