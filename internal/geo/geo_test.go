package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestLookupDisabled(t *testing.T) {
	c := NewClient("")
	if got := c.Lookup(context.Background(), "203.0.113.9"); got != Unknown {
		t.Errorf("got %q, want unknown with no endpoint configured", got)
	}
}

func TestLookupEmptyIP(t *testing.T) {
	c := NewClient("http://geo.invalid")
	if got := c.Lookup(context.Background(), ""); got != Unknown {
		t.Errorf("got %q, want unknown for empty IP", got)
	}
}

func TestLookupFormatsHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/203.0.113.9":
			w.Write([]byte(`{"country":"US","region":"CA"}`))
		case "/203.0.113.10":
			w.Write([]byte(`{"country":"DE"}`))
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if got := c.Lookup(context.Background(), "203.0.113.9"); got != "US/CA" {
		t.Errorf("got %q, want US/CA", got)
	}
	if got := c.Lookup(context.Background(), "203.0.113.10"); got != "DE" {
		t.Errorf("got %q, want DE", got)
	}
	if got := c.Lookup(context.Background(), "203.0.113.11"); got != Unknown {
		t.Errorf("got %q, want unknown for empty response", got)
	}
}

func TestLookupDegradesOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if got := c.Lookup(context.Background(), "203.0.113.9"); got != Unknown {
		t.Errorf("got %q, want unknown on upstream error", got)
	}

	// A dead endpoint degrades the same way.
	dead := NewClient("http://127.0.0.1:1")
	if got := dead.Lookup(context.Background(), "203.0.113.9"); got != Unknown {
		t.Errorf("got %q, want unknown on connection failure", got)
	}
}

func TestLookupCaches(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"country":"US","region":"NY"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	for i := 0; i < 3; i++ {
		if got := c.Lookup(context.Background(), "203.0.113.9"); got != "US/NY" {
			t.Fatalf("lookup %d: got %q", i, got)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("upstream called %d times, want 1", n)
	}
}
