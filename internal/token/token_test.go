package token

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/playbuddy/playbuddy-notify/internal/kv"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegister(t *testing.T) {
	var gotMethod string
	var gotPayload tokenPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	ctx := context.Background()
	store := kv.NewMemory()
	c := NewClient(srv.URL, store, testLogger())

	registered, err := c.Register(ctx, "tok-1", "ios")
	if err != nil {
		t.Fatal(err)
	}
	if registered != "tok-1" {
		t.Errorf("registered = %q, want tok-1", registered)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotPayload.Token != "tok-1" || gotPayload.Platform != "ios" {
		t.Errorf("payload = %+v", gotPayload)
	}
	if stored, ok, _ := store.Get(ctx, storedTokenKey); !ok || stored != "tok-1" {
		t.Errorf("stored token = %q ok=%v, want tok-1", stored, ok)
	}
}

func TestRegisterShortCircuitsStoredToken(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	store := kv.NewMemory()
	c := NewClient(srv.URL, store, testLogger())

	if _, err := c.Register(ctx, "tok-1", "ios"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Register(ctx, "tok-1", "ios"); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("backend calls = %d, want 1 (second register short-circuits)", calls)
	}

	// A different token registers again.
	if _, err := c.Register(ctx, "tok-2", "ios"); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("backend calls = %d, want 2", calls)
	}
}

func TestRegisterBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx := context.Background()
	store := kv.NewMemory()
	c := NewClient(srv.URL, store, testLogger())

	if _, err := c.Register(ctx, "tok-1", "ios"); err == nil {
		t.Fatal("Register = nil error, want failure on 500")
	}
	if _, ok, _ := store.Get(ctx, storedTokenKey); ok {
		t.Error("token stored despite backend failure")
	}
}

func TestRegisterNoops(t *testing.T) {
	ctx := context.Background()
	c := NewClient("", kv.NewMemory(), testLogger())
	if registered, err := c.Register(ctx, "tok-1", "ios"); err != nil || registered != "" {
		t.Errorf("Register with no base URL = %q, %v; want no-op", registered, err)
	}

	c = NewClient("http://backend.invalid", kv.NewMemory(), testLogger())
	if registered, err := c.Register(ctx, "", "ios"); err != nil || registered != "" {
		t.Errorf("Register with empty token = %q, %v; want no-op", registered, err)
	}
}

func TestUnregister(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	store := kv.NewMemory()
	if err := store.Set(ctx, storedTokenKey, "tok-1"); err != nil {
		t.Fatal(err)
	}
	c := NewClient(srv.URL, store, testLogger())

	c.Unregister(ctx)

	if gotMethod != http.MethodDelete {
		t.Errorf("method = %q, want DELETE", gotMethod)
	}
	if _, ok, _ := store.Get(ctx, storedTokenKey); ok {
		t.Error("stored token survived Unregister")
	}
}

func TestUnregisterClearsLocalOnBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx := context.Background()
	store := kv.NewMemory()
	if err := store.Set(ctx, storedTokenKey, "tok-1"); err != nil {
		t.Fatal(err)
	}
	c := NewClient(srv.URL, store, testLogger())

	c.Unregister(ctx)

	if _, ok, _ := store.Get(ctx, storedTokenKey); ok {
		t.Error("local token should be cleared even when the backend call fails")
	}
}
