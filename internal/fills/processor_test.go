package fills

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "IntentLane/internal/errors"
	"IntentLane/internal/settler"
)

type fakeSettlement struct {
	processed atomic.Int32
	latency   time.Duration
	fail      func(attempt int32) error
}

func (f *fakeSettlement) Fill(ctx context.Context, req settler.FillRequest) (*settler.Outcome, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	attempt := f.processed.Add(1)
	if f.fail != nil {
		if err := f.fail(attempt); err != nil {
			return nil, err
		}
	}
	return &settler.Outcome{IntentID: req.IntentID, Filler: req.Filler, Settled: true}, nil
}

func submitJobs(t *testing.T, service *Service, total int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < total; i++ {
		req := SubmitRequest{
			IntentID: common.HexToHash(fmt.Sprintf("0x%064x", i+1)),
			Encoded:  []byte(`{"intent":{}}`),
			Filler:   common.HexToAddress("0xf1"),
		}
		if _, err := service.Submit(ctx, req); err != nil {
			t.Fatalf("submit job %d: %v", i, err)
		}
	}
}

func TestProcessorHandlesConcurrentJobs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	settlement := &fakeSettlement{latency: 5 * time.Millisecond}

	service := NewService(store, queue, 3)
	processor := NewProcessor(settlement, store, queue, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 100
	submitJobs(t, service, total)

	deadline := time.After(5 * time.Second)
	for {
		if int(settlement.processed.Load()) >= total {
			cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatalf("作业未能及时处理，已完成 %d", settlement.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorRetriesRetryableFailures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	settlement := &fakeSettlement{
		fail: func(attempt int32) error {
			if attempt < 3 {
				return xerrors.New(xerrors.CodeStorageFailure, "transient storage outage")
			}
			return nil
		},
	}

	service := NewService(store, queue, 5)
	processor := NewProcessor(settlement, store, queue, queue, WithWorkerCount(1))

	go func() { _ = processor.Start(ctx) }()

	job, err := service.Submit(ctx, SubmitRequest{
		IntentID: common.HexToHash("0x01"),
		Encoded:  []byte(`{"intent":{}}`),
		Filler:   common.HexToAddress("0xf1"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final, err := service.WaitUntilSettled(ctx, job.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Status != StatusSettled {
		t.Fatalf("final status = %s, want settled (last error %q)", final.Status, final.LastError)
	}
	if final.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", final.Attempts)
	}
}

func TestProcessorStopsOnNonRetryableFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	settlement := &fakeSettlement{
		fail: func(int32) error {
			return settler.ErrAlreadyFilled
		},
	}

	service := NewService(store, queue, 5)
	processor := NewProcessor(settlement, store, queue, queue, WithWorkerCount(1))

	go func() { _ = processor.Start(ctx) }()

	job, err := service.Submit(ctx, SubmitRequest{
		IntentID: common.HexToHash("0x02"),
		Encoded:  []byte(`{"intent":{}}`),
		Filler:   common.HexToAddress("0xf1"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final, err := service.WaitUntilSettled(ctx, job.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Status != StatusFailed {
		t.Fatalf("final status = %s, want failed", final.Status)
	}
	if final.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (non-retryable error must not requeue)", final.Attempts)
	}
	if final.ErrorCode != string(settler.CodeAlreadyFilled) {
		t.Fatalf("error code = %s, want %s", final.ErrorCode, settler.CodeAlreadyFilled)
	}
}

func TestServiceSubmitIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	service := NewService(store, queue, 3)
	ctx := context.Background()

	req := SubmitRequest{
		ID:       "job-1",
		IntentID: common.HexToHash("0x03"),
		Encoded:  []byte(`{"intent":{}}`),
		Filler:   common.HexToAddress("0xf1"),
	}
	first, err := service.Submit(ctx, req)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := service.Submit(ctx, req)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("ids differ: %s vs %s", first.ID, second.ID)
	}

	jobs, err := service.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job after duplicate submit, got %d", len(jobs))
	}
}
