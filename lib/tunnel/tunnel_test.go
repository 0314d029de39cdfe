// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenSession(t *testing.T) {
	t.Parallel()

	var received SessionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sessions" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer broker-token" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Session{
			ID:        "sess-1",
			URL:       "wss://debug.example.com/sess-1",
			ExpiresAt: "2026-08-25T12:00:00Z",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "broker-token")
	session, err := client.OpenSession(context.Background(), SessionRequest{
		Pipeline:   "release-build",
		Instance:   "build/linux",
		FailedStep: "unit-tests",
	})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	if session.URL != "wss://debug.example.com/sess-1" {
		t.Errorf("URL = %q", session.URL)
	}
	if received.Instance != "build/linux" {
		t.Errorf("request instance = %q", received.Instance)
	}
	if received.TTLSeconds != int(DefaultTTL.Seconds()) {
		t.Errorf("default TTL not applied: %d", received.TTLSeconds)
	}
}

func TestOpenSessionBrokerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, "broker-token")
	_, err := client.OpenSession(context.Background(), SessionRequest{Pipeline: "p", Instance: "a/b"})
	if err == nil {
		t.Fatal("expected broker error")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error does not carry broker detail: %v", err)
	}
}

func TestOpenSessionMissingURL(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Session{ID: "sess-2"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "broker-token")
	_, err := client.OpenSession(context.Background(), SessionRequest{Pipeline: "p", Instance: "a/b"})
	if err == nil {
		t.Fatal("session without URL must be rejected")
	}
}
