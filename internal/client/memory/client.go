// Package memory contains an in-memory progress client for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/workdone-progress/internal/protocol"
)

// Client records every outbound message. Create requests stay unanswered until
// Ack is called, unless the client was built with NewAutoAck.
type Client struct {
	mu        sync.Mutex
	autoAck   bool
	pending   map[string]chan error
	creates   []string
	progress  []protocol.ProgressParams
	reports   []protocol.ProgressReport
	statuses  []protocol.StatusReport
	notifyErr error
}

// New returns a Client whose create requests wait for Ack.
func New() *Client {
	return &Client{pending: make(map[string]chan error)}
}

// NewAutoAck returns a Client that acknowledges every create immediately.
func NewAutoAck() *Client {
	c := New()
	c.autoAck = true
	return c
}

// CreateProgress records the request and returns its outcome channel.
func (c *Client) CreateProgress(_ context.Context, params protocol.WorkDoneProgressCreateParams) <-chan error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan error, 1)
	c.creates = append(c.creates, params.Token)
	if c.autoAck {
		ch <- nil
		return ch
	}
	c.pending[params.Token] = ch
	return ch
}

// Ack resolves the pending create for token. It returns false when no create
// is pending.
func (c *Client) Ack(token string, err error) bool {
	c.mu.Lock()
	ch, ok := c.pending[token]
	delete(c.pending, token)
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- err
	return true
}

// NotifyProgress records a $/progress notification.
func (c *Client) NotifyProgress(_ context.Context, params protocol.ProgressParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = append(c.progress, params)
	return c.notifyErr
}

// SendProgressReport records a language/progressReport notification.
func (c *Client) SendProgressReport(_ context.Context, report protocol.ProgressReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, report)
	return c.notifyErr
}

// SendStatusReport records a language/status notification.
func (c *Client) SendStatusReport(_ context.Context, report protocol.StatusReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses = append(c.statuses, report)
	return c.notifyErr
}

// FailNotifications makes every later notification return err after being
// recorded.
func (c *Client) FailNotifications(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifyErr = err
}

// Creates returns the tokens of all create requests, in order.
func (c *Client) Creates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.creates...)
}

// Progress returns every recorded $/progress notification.
func (c *Client) Progress() []protocol.ProgressParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.ProgressParams(nil), c.progress...)
}

// ProgressFor returns the payloads sent for token, in order.
func (c *Client) ProgressFor(token string) []protocol.WorkDoneProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.WorkDoneProgress
	for _, p := range c.progress {
		if p.Token == token {
			out = append(out, p.Value)
		}
	}
	return out
}

// ProgressReports returns every recorded legacy progress report.
func (c *Client) ProgressReports() []protocol.ProgressReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.ProgressReport(nil), c.reports...)
}

// StatusReports returns every recorded legacy status report.
func (c *Client) StatusReports() []protocol.StatusReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.StatusReport(nil), c.statuses...)
}
