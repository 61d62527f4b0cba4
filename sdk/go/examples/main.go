package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"IntentLane/sdk/go/intentlane"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/fills", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(intentlane.Fill{
				ID:       "fill-demo",
				IntentID: "0x6f3a000000000000000000000000000000000000000000000000000000000001",
				Status:   intentlane.StatusPending,
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/fills/fill-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(intentlane.Fill{
			ID:       "fill-demo",
			IntentID: "0x6f3a000000000000000000000000000000000000000000000000000000000001",
			Status:   intentlane.StatusSettled,
			Outcome: &intentlane.Outcome{
				Settled: true,
				Execution: &intentlane.ExecutionOutcome{
					Status: "committed",
				},
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := intentlane.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}
	client.SetAPIKey("demo-key")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fill, err := client.SubmitFill(ctx, intentlane.FillSubmission{
		IntentID: "0x6f3a000000000000000000000000000000000000000000000000000000000001",
		Encoded:  "0xdeadbeef",
		Filler:   "0x00000000000000000000000000000000000000f1",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted fill %s (status=%s)\n", fill.ID, fill.Status)

	settled, err := client.WaitUntilSettled(ctx, fill.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("fill %s settled=%v execution=%v\n", settled.ID, settled.Outcome.Settled, settled.Outcome.Execution.Status)
}
