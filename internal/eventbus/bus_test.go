// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package eventbus

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tomtom215/whrelay/internal/config"
	"github.com/tomtom215/whrelay/internal/delivery"
	"github.com/tomtom215/whrelay/internal/records"
)

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
	msgs   []*message.Message
	fail   map[string]bool
	closed int
}

func (f *fakePublisher) Publish(topic string, msgs ...*message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[topic] {
		return errors.New("publish refused")
	}
	for _, m := range msgs {
		f.topics = append(f.topics, topic)
		f.msgs = append(f.msgs, m)
	}
	return nil
}

func (f *fakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func testFrame() delivery.Frame {
	return delivery.Frame{
		{Type: records.KindPokemon, Message: records.Record{"encounter_id": json.Number("9223372036854775807"), "cp": json.Number("512")}},
		{Type: records.KindWeather, Message: records.Record{"s2_cell_id": "abc", "condition": json.Number("3")}},
	}
}

func TestBusPublishesPerKindSubject(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	codec, _ := NewCodec(EncodingJSON)
	bus := newBus(pub, "whrelay", codec)

	if err := bus.Publish(context.Background(), testFrame()); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	want := []string{"whrelay.pokemon", "whrelay.weather"}
	if len(pub.topics) != len(want) {
		t.Fatalf("topics = %v, want %v", pub.topics, want)
	}
	for i := range want {
		if pub.topics[i] != want[i] {
			t.Errorf("topic %d = %q, want %q", i, pub.topics[i], want[i])
		}
	}

	msg := pub.msgs[0]
	if got := msg.Metadata.Get(natsgo.MsgIdHdr); got == "" || got != msg.UUID {
		t.Errorf("Nats-Msg-Id = %q, want message UUID %q", got, msg.UUID)
	}
	if msg.Metadata.Get("kind") != "pokemon" {
		t.Errorf("kind metadata = %q", msg.Metadata.Get("kind"))
	}
	if pub.msgs[0].UUID == pub.msgs[1].UUID {
		t.Error("messages share a UUID")
	}

	var entry struct {
		Type    string         `json:"type"`
		Message map[string]any `json:"message"`
	}
	dec := json.NewDecoder(bytes.NewReader(msg.Payload))
	dec.UseNumber()
	if err := dec.Decode(&entry); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if entry.Type != "pokemon" || entry.Message["encounter_id"] != json.Number("9223372036854775807") {
		t.Errorf("payload = %s", msg.Payload)
	}
}

func TestBusCountsFailures(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{fail: map[string]bool{"p.weather": true}}
	codec, _ := NewCodec(EncodingJSON)
	bus := newBus(pub, "p", codec)

	err := bus.Publish(context.Background(), testFrame())
	if err == nil {
		t.Fatal("Publish succeeded with a refused subject")
	}
	if len(pub.msgs) != 1 {
		t.Errorf("published = %d, want the one good entry", len(pub.msgs))
	}
}

func TestBusClose(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	codec, _ := NewCodec("")
	bus := newBus(pub, "p", codec)

	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if pub.closed != 1 {
		t.Errorf("publisher closed %d times, want 1", pub.closed)
	}
	if err := bus.Publish(context.Background(), testFrame()); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
}

func TestMsgpackCodecWritesNumbers(t *testing.T) {
	t.Parallel()

	codec, err := NewCodec(EncodingMsgpack)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	data, err := codec.Encode(delivery.FrameEntry{
		Type: records.KindGymDetails,
		Message: records.Record{
			"id":      "g1",
			"big":     json.Number("9223372036854775807"),
			"lat":     json.Number("51.5"),
			"pokemon": []any{map[string]any{"cp": json.Number("100")}},
		},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var got struct {
		Type    string         `msgpack:"type"`
		Message map[string]any `msgpack:"message"`
	}
	if err := msgpack.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Type != "gym_details" {
		t.Errorf("type = %q", got.Type)
	}
	if v, ok := got.Message["big"].(int64); !ok || v != 9223372036854775807 {
		t.Errorf("big = %#v, want int64", got.Message["big"])
	}
	if v, ok := got.Message["lat"].(float64); !ok || v != 51.5 {
		t.Errorf("lat = %#v, want float64", got.Message["lat"])
	}
	members, ok := got.Message["pokemon"].([]any)
	if !ok || len(members) != 1 {
		t.Fatalf("pokemon = %#v", got.Message["pokemon"])
	}
	member, ok := members[0].(map[string]any)
	if !ok {
		t.Fatalf("member = %#v", members[0])
	}
	if _, isString := member["cp"].(string); isString {
		t.Error("nested number encoded as string")
	}
}

func TestNewCodecRejectsUnknown(t *testing.T) {
	t.Parallel()

	if _, err := NewCodec("xml"); err == nil {
		t.Error("NewCodec(xml) succeeded")
	}
}

func TestEmbeddedRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a NATS server")
	}

	srv, err := StartEmbedded("127.0.0.1", -1)
	if err != nil {
		t.Fatalf("StartEmbedded: %v", err)
	}
	defer srv.Shutdown()

	nc, err := natsgo.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	received := make(chan *natsgo.Msg, 4)
	sub, err := nc.ChanSubscribe("relay.>", received)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	bus, err := New(config.NATSConfig{SubjectPrefix: "relay", Encoding: EncodingJSON}, srv.ClientURL())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = bus.Close() }()

	if err := bus.Publish(context.Background(), testFrame()); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	subjects := map[string]bool{}
	for range 2 {
		select {
		case m := <-received:
			subjects[m.Subject] = true
			if m.Header.Get(natsgo.MsgIdHdr) == "" {
				t.Errorf("message on %s has no Nats-Msg-Id", m.Subject)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("received %v before timeout", subjects)
		}
	}
	if !subjects["relay.pokemon"] || !subjects["relay.weather"] {
		t.Errorf("subjects = %v", subjects)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := srv.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v", err)
	}
	if srv.Running() {
		t.Error("server still running after Serve returned")
	}
}
