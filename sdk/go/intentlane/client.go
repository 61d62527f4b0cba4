package intentlane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the IntentLane settlement REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string
}

// FillSubmission is the payload required to submit a fill job. Encoded and
// FillerData carry 0x-prefixed hex strings.
type FillSubmission struct {
	ID         string `json:"id,omitempty"`
	IntentID   string `json:"intent_id"`
	Encoded    string `json:"encoded"`
	Filler     string `json:"filler"`
	FillerData string `json:"filler_data,omitempty"`
}

// Fill mirrors the server-side view of a fill job.
type Fill struct {
	ID         string   `json:"id"`
	IntentID   string   `json:"intent_id"`
	Encoded    string   `json:"encoded"`
	Filler     string   `json:"filler"`
	FillerData string   `json:"filler_data,omitempty"`
	Status     string   `json:"status"`
	Attempts   int      `json:"attempts"`
	MaxRetries int      `json:"max_retries"`
	LastError  string   `json:"last_error,omitempty"`
	ErrorCode  string   `json:"error_code,omitempty"`
	Outcome    *Outcome `json:"outcome,omitempty"`
	CreatedAt  int64    `json:"created_at"`
	UpdatedAt  int64    `json:"updated_at"`
}

// Fill job statuses as reported by the server.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusSettled = "settled"
	StatusFailed  = "failed"
)

// Outcome describes the settlement result attached to a settled fill.
type Outcome struct {
	IntentID       string            `json:"intent_id"`
	Filler         string            `json:"filler"`
	User           string            `json:"user"`
	Token          string            `json:"token"`
	Amount         *big.Int          `json:"amount"`
	Settled        bool              `json:"settled"`
	Execution      *ExecutionOutcome `json:"execution,omitempty"`
	ExecutionError string            `json:"execution_error,omitempty"`
	Stranded       bool              `json:"stranded"`
}

// ExecutionOutcome reports how the execution proxy disposed of the intent.
type ExecutionOutcome struct {
	IntentID   string `json:"intent_id"`
	Status     string `json:"status"`
	FailedCall int    `json:"failed_call,omitempty"`
}

// Stats aggregates fill job counts by status.
type Stats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Settled         int   `json:"settled"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// ListQuery filters the fills returned by ListFills.
type ListQuery struct {
	Statuses []string
	Limit    int
	Offset   int
	Query    string
	Order    string
}

// APIError represents server side validation or internal errors. StatusCode
// comes from the HTTP response, never from the decoded body.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("intentlane api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("intentlane api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the IntentLane API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAPIKey stores the filler credential sent with every request.
func (c *Client) SetAPIKey(key string) {
	c.apiKey = key
}

// SubmitFill submits a fill job for asynchronous settlement.
func (c *Client) SubmitFill(ctx context.Context, submission FillSubmission) (Fill, error) {
	var fill Fill
	if err := c.post(ctx, "/api/v1/fills", submission, &fill); err != nil {
		return Fill{}, err
	}
	return fill, nil
}

// GetFill fetches a fill job by identifier.
func (c *Client) GetFill(ctx context.Context, id string) (Fill, error) {
	if strings.TrimSpace(id) == "" {
		return Fill{}, errors.New("intentlane: fill id is empty")
	}
	var fill Fill
	if err := c.get(ctx, "/api/v1/fills/"+url.PathEscape(id), &fill); err != nil {
		return Fill{}, err
	}
	return fill, nil
}

// ListFills returns fills matching the query.
func (c *Client) ListFills(ctx context.Context, query ListQuery) ([]Fill, error) {
	endpoint := "/api/v1/fills"
	if encoded := query.encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var payload struct {
		Fills []Fill `json:"fills"`
	}
	if err := c.get(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Fills, nil
}

// Stats returns aggregate fill job statistics.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := c.get(ctx, "/api/v1/stats", &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// WaitUntilSettled polls the fill until it reaches a terminal status or the
// context is cancelled.
func (c *Client) WaitUntilSettled(ctx context.Context, id string, interval time.Duration) (Fill, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fill, err := c.GetFill(ctx, id)
		if err != nil {
			return Fill{}, err
		}
		if fill.Status == StatusSettled || fill.Status == StatusFailed {
			return fill, nil
		}
		select {
		case <-ctx.Done():
			return Fill{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q ListQuery) encode() string {
	values := url.Values{}
	if len(q.Statuses) > 0 {
		values.Set("status", strings.Join(q.Statuses, ","))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		values.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Query != "" {
		values.Set("q", q.Query)
	}
	if q.Order != "" {
		values.Set("order", q.Order)
	}
	return values.Encode()
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	target := endpoint
	var rawQuery string
	if idx := strings.IndexByte(endpoint, '?'); idx >= 0 {
		target = endpoint[:idx]
		rawQuery = endpoint[idx+1:]
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, target), RawQuery: rawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
