package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const webhookTimeout = 10 * time.Second

// DingTalkWebhook 通过钉钉机器人回调地址发送文本消息，实现 DingTalkSender。
type DingTalkWebhook struct {
	URL        string
	HTTPClient *http.Client
}

// NewDingTalkWebhook 创建钉钉 webhook 发送器。
func NewDingTalkWebhook(url string) *DingTalkWebhook {
	return &DingTalkWebhook{URL: url, HTTPClient: &http.Client{Timeout: webhookTimeout}}
}

// Send 实现 DingTalkSender。
func (c *DingTalkWebhook) Send(ctx context.Context, content string) error {
	return postJSON(ctx, c.HTTPClient, c.URL, map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": content},
	})
}

// SlackWebhook 通过 Slack incoming webhook 发送消息，实现 SlackSender。
type SlackWebhook struct {
	URL        string
	HTTPClient *http.Client
}

// NewSlackWebhook 创建 Slack webhook 发送器。
func NewSlackWebhook(url string) *SlackWebhook {
	return &SlackWebhook{URL: url, HTTPClient: &http.Client{Timeout: webhookTimeout}}
}

// Send 实现 SlackSender。
func (c *SlackWebhook) Send(ctx context.Context, channel, content string) error {
	return postJSON(ctx, c.HTTPClient, c.URL, map[string]string{
		"channel": channel,
		"text":    content,
	})
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	if url == "" {
		return fmt.Errorf("webhook url is empty")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if client == nil {
		client = &http.Client{Timeout: webhookTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return nil
}

var (
	_ DingTalkSender = (*DingTalkWebhook)(nil)
	_ SlackSender    = (*SlackWebhook)(nil)
)
