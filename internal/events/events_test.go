package events

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type failingPublisher struct {
	err    error
	closed bool
}

func (f *failingPublisher) Publish(context.Context, Event) error { return f.err }
func (f *failingPublisher) Close() error {
	f.closed = true
	return nil
}

func TestNewEventAssignsIdentity(t *testing.T) {
	intentID := common.HexToHash("0x01")
	event := NewEvent(intentID, StageSettled, "committed")
	if event.ID == "" {
		t.Fatal("event id missing")
	}
	if event.OccurredAt.IsZero() {
		t.Fatal("timestamp missing")
	}
	if event.IntentID != intentID || event.Stage != StageSettled || event.Outcome != "committed" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if NewEvent(intentID, StageSettled, "committed").ID == event.ID {
		t.Fatal("event ids collide")
	}
}

func TestFanoutDeliversPastFailures(t *testing.T) {
	broken := &failingPublisher{err: errors.New("sink down")}
	sink := NewMemoryPublisher(8)

	fanout := NewFanout(broken, nil, sink)
	event := NewEvent(common.HexToHash("0x02"), StageExecuted, "committed")

	err := fanout.Publish(context.Background(), event)
	if err == nil {
		t.Fatal("expected aggregate publish error")
	}
	recent := sink.Recent(0)
	if len(recent) != 1 || recent[0].ID != event.ID {
		t.Fatalf("healthy sink skipped: %+v", recent)
	}

	if err := fanout.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !broken.closed {
		t.Fatal("downstream publisher not closed")
	}
}

func TestMemoryPublisherRetainsMostRecent(t *testing.T) {
	publisher := NewMemoryPublisher(3)
	for i := 0; i < 5; i++ {
		event := NewEvent(common.HexToHash(fmt.Sprintf("0x%02d", i)), StageSettled, "committed")
		if err := publisher.Publish(context.Background(), event); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	recent := publisher.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("expected 3 retained events, got %d", len(recent))
	}
	if recent[0].IntentID != common.HexToHash("0x02") {
		t.Fatalf("oldest retained event wrong: %s", recent[0].IntentID.Hex())
	}
	if recent[2].IntentID != common.HexToHash("0x04") {
		t.Fatalf("newest retained event wrong: %s", recent[2].IntentID.Hex())
	}

	limited := publisher.Recent(1)
	if len(limited) != 1 || limited[0].IntentID != common.HexToHash("0x04") {
		t.Fatalf("limit should return the newest event: %+v", limited)
	}
}
