// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tomtom215/whrelay/internal/config"
	"github.com/tomtom215/whrelay/internal/delivery"
	"github.com/tomtom215/whrelay/internal/logging"
	"github.com/tomtom215/whrelay/internal/metrics"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("eventbus: publisher closed")

const (
	maxReconnects   = -1
	reconnectWait   = 2 * time.Second
	reconnectBuffer = 8 << 20
)

// Bus publishes frame entries to NATS. It implements delivery.Sink.
type Bus struct {
	publisher message.Publisher
	prefix    string
	codec     Codec
	logger    zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// New connects a watermill NATS publisher to url with JetStream disabled.
func New(cfg config.NATSConfig, url string) (*Bus, error) {
	codec, err := NewCodec(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	adapter := logging.NewWatermillAdapter()

	natsOpts := []natsgo.Option{
		natsgo.Name("whrelay"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(maxReconnects),
		natsgo.ReconnectWait(reconnectWait),
		natsgo.ReconnectBufSize(reconnectBuffer),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				adapter.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			adapter.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, adapter)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return newBus(pub, cfg.SubjectPrefix, codec), nil
}

func newBus(pub message.Publisher, prefix string, codec Codec) *Bus {
	return &Bus{
		publisher: pub,
		prefix:    prefix,
		codec:     codec,
		logger:    logging.WithComponent("eventbus"),
	}
}

// Name implements delivery.Sink.
func (b *Bus) Name() string { return "eventbus" }

// Subject returns the subject entries of kind are published to.
func (b *Bus) Subject(kind string) string {
	return b.prefix + "." + kind
}

// Publish sends every entry of frame as its own message. Entries that
// fail are counted and skipped; the error reports how many failed.
func (b *Bus) Publish(_ context.Context, frame delivery.Frame) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	var (
		failed int
		first  error
	)
	for _, entry := range frame {
		kind := string(entry.Type)
		if err := b.publish(entry); err != nil {
			failed++
			if first == nil {
				first = err
			}
			metrics.EventBusMessages.WithLabelValues(kind, "failed").Inc()
			continue
		}
		metrics.EventBusMessages.WithLabelValues(kind, "ok").Inc()
	}
	if failed > 0 {
		return fmt.Errorf("eventbus: %d of %d entries failed: %w", failed, len(frame), first)
	}
	return nil
}

func (b *Bus) publish(entry delivery.FrameEntry) error {
	payload, err := b.codec.Encode(entry)
	if err != nil {
		return fmt.Errorf("encode %s: %w", entry.Type, err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	msg.Metadata.Set("kind", string(entry.Type))
	msg.Metadata.Set("content_type", b.codec.ContentType())
	return b.publisher.Publish(b.Subject(string(entry.Type)), msg)
}

// Close shuts the publisher down. It is safe to call more than once.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.logger.Debug().Str("prefix", b.prefix).Msg("Closing event bus publisher")
	return b.publisher.Close()
}
