package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	b.Publish("panel.created", map[string]any{"noteId": "note-1", "panelId": "b1"})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: panel.created") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"panelId":"b1"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestNoteFilter(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	mine := b.Subscribe("note-1")
	other := b.Subscribe("note-2")
	all := b.Subscribe("")
	defer b.Unsubscribe(mine)
	defer b.Unsubscribe(other)
	defer b.Unsubscribe(all)

	b.Publish("camera.updated", map[string]any{"noteId": "note-1"})

	select {
	case <-mine:
	case <-time.After(time.Second):
		t.Fatal("matching subscriber did not receive the event")
	}
	select {
	case <-all:
	case <-time.After(time.Second):
		t.Fatal("unfiltered subscriber did not receive the event")
	}
	select {
	case msg := <-other:
		t.Fatalf("foreign-note subscriber received %q", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventWithoutNoteReachesEveryone(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	filtered := b.Subscribe("note-1")
	defer b.Unsubscribe(filtered)

	b.Publish("server.shutdown", map[string]any{"reason": "restart"})

	select {
	case <-filtered:
	case <-time.After(time.Second):
		t.Fatal("broadcast event should reach filtered subscribers")
	}
}

func TestCloseUnblocksClients(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("")

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()

	b.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("client channel not closed on broker Close")
	}

	// Operations after Close are safe no-ops.
	b.Publish("x", nil)
	if n := b.ClientCount(); n != 0 {
		t.Errorf("ClientCount after Close = %d", n)
	}
	b.Close()
}

func TestServeHTTPStreamsEvents(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?noteId=note-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// Wait for the subscription to land before publishing.
	deadline := time.Now().Add(time.Second)
	for b.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	b.Publish("canvas.hydrated", map[string]any{"noteId": "note-1", "outcome": "fresh"})

	buf := make([]byte, 256)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if got := string(buf[:n]); !strings.Contains(got, "event: canvas.hydrated") {
		t.Errorf("stream = %q", got)
	}
}
