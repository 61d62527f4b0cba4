package intentlane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSubmitFillSendsAPIKey(t *testing.T) {
	submitted := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/fills" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if got := r.Header.Get("X-API-Key"); got != "filler-key" {
			t.Fatalf("expected api key header, got %q", got)
		}
		var submission FillSubmission
		if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
			t.Fatalf("decode submission: %v", err)
		}
		submitted = true
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(Fill{ID: "fill-1", Status: StatusPending, IntentID: submission.IntentID})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetAPIKey("filler-key")

	fill, err := client.SubmitFill(context.Background(), FillSubmission{
		IntentID: "0x01",
		Encoded:  "0xdeadbeef",
		Filler:   "0x00000000000000000000000000000000000000f1",
	})
	if err != nil {
		t.Fatalf("submit fill: %v", err)
	}
	if !submitted {
		t.Fatal("fill was not submitted")
	}
	if fill.ID != "fill-1" || fill.Status != StatusPending {
		t.Fatalf("unexpected fill: %+v", fill)
	}
}

func TestGetFillError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		// A StatusCode key in the body must not override the HTTP status.
		_, _ = w.Write([]byte(`{"code":"FILL_JOB_NOT_FOUND","message":"missing","StatusCode":500}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.GetFill(context.Background(), "fill-404")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "FILL_JOB_NOT_FOUND" || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestListFillsEncodesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if got := query.Get("status"); got != "pending,failed" {
			t.Fatalf("unexpected status filter: %q", got)
		}
		if got := query.Get("limit"); got != "5" {
			t.Fatalf("unexpected limit: %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"fills": []Fill{{ID: "fill-1"}, {ID: "fill-2"}},
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	listed, err := client.ListFills(context.Background(), ListQuery{
		Statuses: []string{"pending", "failed"},
		Limit:    5,
	})
	if err != nil {
		t.Fatalf("list fills: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("unexpected fills: %+v", listed)
	}
}

func TestWaitUntilSettledPollsTerminalStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		status := StatusRunning
		if calls >= 3 {
			status = StatusSettled
		}
		_ = json.NewEncoder(w).Encode(Fill{ID: "fill-wait", Status: status})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fill, err := client.WaitUntilSettled(ctx, "fill-wait", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait until settled: %v", err)
	}
	if fill.Status != StatusSettled {
		t.Fatalf("unexpected status: %s", fill.Status)
	}
	if calls < 3 {
		t.Fatalf("expected at least 3 polls, got %d", calls)
	}
}
