// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/whrelay/internal/config"
	"github.com/tomtom215/whrelay/internal/logging"
	"github.com/tomtom215/whrelay/internal/metrics"
	"github.com/tomtom215/whrelay/internal/stats"
)

const (
	// maxBackoff caps the delay between two attempts.
	maxBackoff = 2 * time.Minute

	// responseDrainLimit bounds how much of a response body is read so the
	// connection can be reused.
	responseDrainLimit = 64 << 10

	breakerFailures = 5
	breakerTimeout  = 30 * time.Second

	defaultUserAgent = "whrelay"
)

// endpoint is one subscriber URL with its own breaker, limiter and
// delivery slots. Endpoints never share slots.
type endpoint struct {
	url     string
	label   string
	breaker *gobreaker.CircuitBreaker[struct{}]
	limiter *rate.Limiter

	// admitted bounds frames in flight or waiting; inflight bounds the
	// concurrent POSTs.
	admitted chan struct{}
	inflight chan struct{}
}

// admit reserves a place for one frame, or reports that the endpoint is
// saturated.
func (ep *endpoint) admit() bool {
	select {
	case ep.admitted <- struct{}{}:
		return true
	default:
		return false
	}
}

// Sender POSTs frames to every configured webhook endpoint. It implements
// Sink.
type Sender struct {
	client    *http.Client
	endpoints []*endpoint
	retries   int
	backoff   float64
	userAgent string
	wg        sync.WaitGroup

	archiver Archiver
	stats    stats.Recorder
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewSender creates a sender for cfg.URLs. archiver and rec may be nil.
// Every endpoint gets cfg.Concurrency in-flight POSTs plus
// cfg.EndpointBacklog waiting frames of its own.
func NewSender(cfg config.WebhookConfig, archiver Archiver, rec stats.Recorder) *Sender {
	concurrency := max(cfg.Concurrency, 1)
	backlog := max(cfg.EndpointBacklog, 0)
	if rec == nil {
		rec = stats.Discard
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        concurrency * max(len(cfg.URLs), 1),
		MaxIdleConnsPerHost: concurrency,
		IdleConnTimeout:     90 * time.Second,
	}

	s := &Sender{
		client:    &http.Client{Transport: transport, Timeout: cfg.Timeout},
		retries:   cfg.Retries,
		backoff:   cfg.BackoffFactor,
		userAgent: userAgent,
		archiver:  archiver,
		stats:     rec,
		logger:    logging.WithComponent("sender"),
		sleep:     sleepContext,
	}
	for _, u := range cfg.URLs {
		ep := &endpoint{
			url:      u,
			label:    endpointLabel(u),
			admitted: make(chan struct{}, concurrency+backlog),
			inflight: make(chan struct{}, concurrency),
		}
		if cfg.Breaker {
			ep.breaker = newBreaker(ep.label, s.logger)
		}
		if cfg.RateLimit > 0 {
			ep.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(int(math.Ceil(cfg.RateLimit)), 1))
		}
		s.endpoints = append(s.endpoints, ep)
	}
	return s
}

// endpointLabel keeps credentials and query strings out of logs and
// metric labels.
func endpointLabel(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host + u.Path
}

func newBreaker(name string, logger zerolog.Logger) *gobreaker.CircuitBreaker[struct{}] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info().Str("endpoint", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Name implements Sink.
func (s *Sender) Name() string { return "webhook" }

// Endpoints returns the number of configured endpoints.
func (s *Sender) Endpoints() int { return len(s.endpoints) }

// Publish encodes frame once and starts one delivery per endpoint. It
// returns without waiting for any response. Deliveries outlive ctx so a
// frame flushed during shutdown still goes out; use Wait to drain them.
// An endpoint whose slots and backlog are full drops the frame into the
// archive; the other endpoints are unaffected.
func (s *Sender) Publish(ctx context.Context, frame Frame) error {
	if len(s.endpoints) == 0 || len(frame) == 0 {
		return nil
	}
	body, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	deliverCtx := context.WithoutCancel(ctx)
	for _, ep := range s.endpoints {
		if !ep.admit() {
			s.overflow(deliverCtx, ep, frame)
			continue
		}
		s.wg.Add(1)
		go func(ep *endpoint) {
			defer s.wg.Done()
			defer func() { <-ep.admitted }()
			ep.inflight <- struct{}{}
			defer func() { <-ep.inflight }()
			s.deliver(deliverCtx, ep, body, frame)
		}(ep)
	}
	return nil
}

func (s *Sender) overflow(ctx context.Context, ep *endpoint, frame Frame) {
	metrics.RecordDeliveryFrame(ep.label, "overflow", 0)
	s.stats.Record(stats.Inc(stats.Failed))
	s.logger.Warn().Str("endpoint", ep.label).Int("entries", len(frame)).Msg("Endpoint backlog full, frame dropped")
	s.archive(ctx, ep, ErrEndpointSaturated, frame)
}

// Wait blocks until every started delivery has finished.
func (s *Sender) Wait() {
	s.wg.Wait()
}

func (s *Sender) deliver(ctx context.Context, ep *endpoint, body []byte, frame Frame) {
	start := time.Now()

	var err error
	if ep.breaker != nil {
		_, err = ep.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, s.send(ctx, ep, body)
		})
	} else {
		err = s.send(ctx, ep, body)
	}

	outcome := "ok"
	switch {
	case err == nil:
		s.logger.Trace().Str("endpoint", ep.label).Int("entries", len(frame)).Dur("took", time.Since(start)).Msg("Frame delivered")
	case ctx.Err() != nil:
		metrics.RecordDeliveryFrame(ep.label, "canceled", time.Since(start))
		return
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "breaker_open"
		s.logger.Debug().Str("endpoint", ep.label).Int("entries", len(frame)).Msg("Circuit open, frame skipped")
	default:
		outcome = "failed"
		s.logger.Error().Err(err).Str("endpoint", ep.label).Int("entries", len(frame)).Msg("Webhook delivery failed")
	}
	metrics.RecordDeliveryFrame(ep.label, outcome, time.Since(start))

	if err != nil {
		s.stats.Record(stats.Inc(stats.Failed))
		s.archive(ctx, ep, err, frame)
	}
}

// send performs the attempts for one endpoint.
func (s *Sender) send(ctx context.Context, ep *endpoint, body []byte) error {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, backoffDelay(s.backoff, attempt)); err != nil {
				return err
			}
		}
		if ep.limiter != nil {
			if err := ep.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		status, err := s.post(ctx, ep.url, body)
		if err == nil && status >= 200 && status < 300 {
			return nil
		}
		if err == nil && !isRetryableStatus(status) {
			return fmt.Errorf("%w: status %d", ErrRejected, status)
		}
		if err == nil {
			err = fmt.Errorf("status %d", status)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= s.retries {
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt+1, err)
		}
		s.logger.Debug().Err(err).Str("endpoint", ep.label).Int("attempt", attempt+1).Msg("Retrying webhook delivery")
	}
}

func (s *Sender) post(ctx context.Context, target string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, responseDrainLimit))
	return resp.StatusCode, nil
}

func (s *Sender) archive(ctx context.Context, ep *endpoint, cause error, frame Frame) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.Archive(ctx, "delivery", ep.url, cause.Error(), frame); err != nil {
		s.logger.Warn().Err(err).Str("endpoint", ep.label).Msg("Failed to archive frame")
	}
}

// backoffDelay returns the sleep before retry n (1-based): nothing before
// the first retry, then factor * 2^(n-1), capped at maxBackoff.
func backoffDelay(factor float64, n int) time.Duration {
	if n <= 1 || factor <= 0 {
		return 0
	}
	d := time.Duration(factor * math.Pow(2, float64(n-1)) * float64(time.Second))
	if d > maxBackoff || d < 0 {
		return maxBackoff
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
