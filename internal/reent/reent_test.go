package reent

import (
	"context"
	"testing"
)

func TestInit(t *testing.T) {
	s := New()
	s.Errno = 5
	s.Init()
	if s.Errno != 0 || s.Locale != "C" || s.RandNext != 1 {
		t.Errorf("Unexpected state after Init: %+v", *s)
	}
}

func TestCurrent(t *testing.T) {
	if Current(context.Background()) != nil {
		t.Error("Expected nil state in a bare context")
	}
	s := New()
	if Current(With(context.Background(), s)) != s {
		t.Error("With/Current did not round-trip")
	}
}
