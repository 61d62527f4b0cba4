package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	xerrors "IntentLane/internal/errors"
)

type stubNotifier struct {
	channel Channel
	err     error
	seen    []Event
}

func (n *stubNotifier) Channel() Channel { return n.channel }
func (n *stubNotifier) Notify(_ context.Context, event Event) error {
	n.seen = append(n.seen, event)
	return n.err
}

func sampleEvent() Event {
	return Event{
		Code:       "SETTLEMENT_FUNDS_STRANDED",
		Message:    "execution failed after settle",
		Severity:   xerrors.SeverityCritical,
		IntentID:   "0x01",
		JobID:      "fill-1",
		Attempts:   2,
		MaxRetries: 3,
		OccurredAt: time.Now(),
	}
}

func TestFanoutNotifiesAllChannels(t *testing.T) {
	healthy := &stubNotifier{channel: ChannelSlack}
	broken := &stubNotifier{channel: ChannelDingTalk, err: errors.New("webhook down")}

	dispatcher := NewFanout(broken, nil, healthy)
	err := dispatcher.Notify(context.Background(), sampleEvent())
	if err == nil {
		t.Fatal("expected aggregate error from the broken channel")
	}
	if len(healthy.seen) != 1 {
		t.Fatalf("healthy channel skipped: %d events", len(healthy.seen))
	}
	if len(broken.seen) != 1 {
		t.Fatalf("broken channel not attempted: %d events", len(broken.seen))
	}
}

func TestAuditNotifierNeverFails(t *testing.T) {
	if err := (AuditNotifier{}).Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("audit notify: %v", err)
	}
	if got := (AuditNotifier{}).Channel(); got != ChannelAudit {
		t.Fatalf("channel = %s", got)
	}
}

func TestDingTalkWebhookPayload(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Fatalf("content type: %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
	}))
	defer srv.Close()

	notifier := &DingTalkNotifier{Sender: NewDingTalkWebhook(srv.URL)}
	if err := notifier.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if payload["msgtype"] != "text" {
		t.Fatalf("msgtype = %v", payload["msgtype"])
	}
	text, ok := payload["text"].(map[string]any)
	if !ok || !strings.Contains(text["content"].(string), "SETTLEMENT_FUNDS_STRANDED") {
		t.Fatalf("alert code missing from payload: %v", payload)
	}
}

func TestSlackWebhookCarriesChannel(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
	}))
	defer srv.Close()

	notifier := &SlackNotifier{Sender: NewSlackWebhook(srv.URL), ChannelID: "#settlement-ops"}
	if err := notifier.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if payload["channel"] != "#settlement-ops" {
		t.Fatalf("channel = %q", payload["channel"])
	}
	if !strings.Contains(payload["text"], "0x01") {
		t.Fatalf("intent id missing from payload: %q", payload["text"])
	}
}

func TestWebhookRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewDingTalkWebhook(srv.URL).Send(context.Background(), "alert"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
