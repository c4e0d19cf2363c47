// Package sms is the outbound gateway client. The wire format follows the
// CPSMS v2 send API; the rest of the system only sees Send succeed or fail.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/soaringjerry/Procus/internal/logger"
)

// Options configures the gateway client.
type Options struct {
	URL         string
	Token       string // basic auth token expected by the gateway
	Timeout     time.Duration
	MaxFailures uint32 // consecutive failures before the breaker opens
}

// Client sends SMS messages through the HTTP gateway, behind a circuit
// breaker so a dead gateway fails fast instead of stalling every scheduler
// pass on timeouts.
type Client struct {
	url     string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *logger.Logger
}

func NewClient(opts Options, log *logger.Logger) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	maxFailures := opts.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	return &Client{
		url:   opts.URL,
		token: opts.Token,
		http:  &http.Client{Timeout: opts.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "sms-gateway",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
		}),
		log: log,
	}
}

type sendPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// Send delivers one message. Any error (transport, non-2xx status, open
// breaker) means the message must be treated as not sent.
func (c *Client) Send(ctx context.Context, to, body string) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.post(ctx, to, body)
	})
	if err != nil {
		return err
	}
	c.log.Info("sms sent", "to", to)
	return nil
}

func (c *Client) post(ctx context.Context, to, body string) error {
	data, err := json.Marshal(sendPayload{To: to, Message: body})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway POST: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
