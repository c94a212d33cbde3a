// Package notify delivers run summaries to operators.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arc-research/arc-pipeline/internal/platform/env"
)

type IdeaLine struct {
	Ticker    string  `json:"ticker"`
	Version   int     `json:"version"`
	Style     string  `json:"style"`
	Headline  string  `json:"headline"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
}

type Message struct {
	RunID    string         `json:"run_id"`
	RunType  string         `json:"run_type"`
	Status   string         `json:"status"`
	AsOf     time.Time      `json:"as_of"`
	Title    string         `json:"title"`
	Ideas    []IdeaLine     `json:"ideas,omitempty"`
	Packets  []string       `json:"packets,omitempty"`
	Counts   map[string]int `json:"counts,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Text renders the message for chat-style webhooks.
func (m Message) Text() string {
	var b strings.Builder
	b.WriteString(m.Title)
	for _, idea := range m.Ideas {
		fmt.Fprintf(&b, "\n- %s v%d [%s] %.1f/%.1f %s", idea.Ticker, idea.Version, idea.Style, idea.Score, idea.Threshold, idea.Headline)
	}
	if len(m.Packets) > 0 {
		fmt.Fprintf(&b, "\nresearch packets: %s", strings.Join(m.Packets, ", "))
	}
	for _, w := range m.Warnings {
		fmt.Fprintf(&b, "\nwarning: %s", w)
	}
	return b.String()
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

type WebhookError struct {
	StatusCode int
	Body       string
}

func (e *WebhookError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook status %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook status %d: %s", e.StatusCode, e.Body)
}

// Webhook posts the message as JSON, with the rendered text under "text".
type Webhook struct {
	url  string
	http *http.Client
}

func NewWebhook(url string, httpClient *http.Client) (*Webhook, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("webhook url is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{url: url, http: httpClient}, nil
}

func (w *Webhook) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(struct {
		Text string `json:"text"`
		Message
	}{Text: msg.Text(), Message: msg})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &WebhookError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	return nil
}

// Log writes the message to the structured log.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, msg Message) error {
	tickers := make([]string, 0, len(msg.Ideas))
	for _, idea := range msg.Ideas {
		tickers = append(tickers, idea.Ticker)
	}
	l.logger.InfoContext(ctx, "run notification",
		"run_id", msg.RunID,
		"run_type", msg.RunType,
		"status", msg.Status,
		"title", msg.Title,
		"ideas", tickers,
		"packets", msg.Packets,
	)
	return nil
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Config struct {
	WebhookURL string
	Timeout    time.Duration
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("ARC_NOTIFY_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		WebhookURL: env.String("ARC_NOTIFY_WEBHOOK_URL", ""),
		Timeout:    timeout,
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("ARC_NOTIFY_TIMEOUT must be positive")
	}
	if c.WebhookURL != "" && !strings.HasPrefix(c.WebhookURL, "http://") && !strings.HasPrefix(c.WebhookURL, "https://") {
		return errors.New("ARC_NOTIFY_WEBHOOK_URL must be an http(s) url")
	}
	return nil
}

// Build always logs and also posts to the webhook when one is configured.
func Build(logger *slog.Logger, cfg Config) (Notifier, error) {
	out := Fanout{NewLog(logger)}
	if cfg.WebhookURL != "" {
		wh, err := NewWebhook(cfg.WebhookURL, &http.Client{Timeout: cfg.Timeout})
		if err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	return out, nil
}
