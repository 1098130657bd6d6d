// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

//go:build integration

package testinfra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Capture is one request received by a Subscriber.
type Capture struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

// Subscriber is a downstream webhook endpoint that records every request.
type Subscriber struct {
	Server *httptest.Server

	mu       sync.Mutex
	captures []Capture
	status   int
	notify   chan struct{}
}

// NewSubscriber starts a subscriber answering 200.
func NewSubscriber(t *testing.T) *Subscriber {
	t.Helper()
	s := &Subscriber{status: http.StatusOK, notify: make(chan struct{}, 1024)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Server.Close)
	return s
}

func (s *Subscriber) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()

	s.mu.Lock()
	s.captures = append(s.captures, Capture{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: r.Header.Clone(),
		Body:    body,
	})
	status := s.status
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	w.WriteHeader(status)
}

// URL returns the subscriber endpoint.
func (s *Subscriber) URL() string {
	return s.Server.URL + "/hook"
}

// SetStatus changes the status returned to later requests.
func (s *Subscriber) SetStatus(code int) {
	s.mu.Lock()
	s.status = code
	s.mu.Unlock()
}

// Captures returns a copy of the received requests.
func (s *Subscriber) Captures() []Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Capture, len(s.captures))
	copy(out, s.captures)
	return out
}

// Received signals once per request.
func (s *Subscriber) Received() <-chan struct{} {
	return s.notify
}
