package topic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPLookup_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/issues/PROJ-42" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"key":"PROJ-42","summary":"Add checkout","detail":"Cart flow","url":"https://issues.example.com/PROJ-42"}`))
	}))
	defer srv.Close()

	l := NewHTTPLookup(srv.URL)
	got, err := l.Fetch(context.Background(), "PROJ-42")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got.Title != "Add checkout" || got.ExternalKey != "PROJ-42" {
		t.Errorf("Fetch() = %+v", got)
	}
	if got.Description != "Cart flow" || got.ExternalURL != "https://issues.example.com/PROJ-42" {
		t.Errorf("Fetch() = %+v", got)
	}
}

func TestHTTPLookup_Fetch_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	l := NewHTTPLookup(srv.URL)
	if _, err := l.Fetch(context.Background(), "MISSING-1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Fetch() error = %v, want ErrUnavailable", err)
	}
}

func TestHTTPLookup_Fetch_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	l := NewHTTPLookup(srv.URL)
	if _, err := l.Fetch(context.Background(), "PROJ-1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Fetch() error = %v, want ErrUnavailable", err)
	}
}
