// Package nodeapi is a thin client for the HTTP surface the harness
// consumes from running nodes: the system shutdown endpoint and the
// explorer endpoints used for readiness and commit polling. The
// response schemas belong to the node; we only peek at individual
// fields, so responses are read with gjson paths instead of structs.
package nodeapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

var (
	// ErrTimeout is returned when a polling budget is exhausted.
	ErrTimeout = errors.New("nodeapi: polling budget exhausted")
	// ErrNotCommitted is returned when a transaction never reached
	// committed status within the polling budget.
	ErrNotCommitted = errors.New("nodeapi: transaction not committed")
)

// Client talks to one or more nodes' HTTP APIs. Addresses are
// host:port strings; which node a call targets is the caller's
// bookkeeping.
type Client struct {
	http *http.Client

	// PollInterval and PollAttempts bound every Wait* call.
	PollInterval time.Duration
	PollAttempts int
}

// New creates a client with the default polling budget.
func New() *Client {
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		PollInterval: 500 * time.Millisecond,
		PollAttempts: 60,
	}
}

// Shutdown fires the node's shutdown endpoint. The node expects the
// literal body `null`. No response body is required; any HTTP-level
// answer counts as delivered.
func (c *Client) Shutdown(ctx context.Context, hostport string) error {
	url := fmt.Sprintf("http://%s/api/system/v1/shutdown", hostport)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte("null")))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("shutdown %s: %w", hostport, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	slog.Debug("shutdown request delivered", "node", hostport, "status", resp.StatusCode)
	return nil
}

// BlockHeight returns the node's current blockchain height.
func (c *Client) BlockHeight(ctx context.Context, hostport string) (uint64, error) {
	body, err := c.get(ctx, fmt.Sprintf("http://%s/api/explorer/v1/blocks?count=1", hostport))
	if err != nil {
		return 0, err
	}

	height := gjson.GetBytes(body, "blocks.0.height")
	if !height.Exists() {
		return 0, fmt.Errorf("no blocks in response from %s", hostport)
	}
	return height.Uint(), nil
}

// TxCommitted reports whether the node considers the transaction
// committed.
func (c *Client) TxCommitted(ctx context.Context, hostport, hash string) (bool, error) {
	body, err := c.get(ctx, fmt.Sprintf("http://%s/api/explorer/v1/transactions?hash=%s", hostport, hash))
	if err != nil {
		return false, err
	}
	return gjson.GetBytes(body, "type").String() == "committed", nil
}

// WaitForHeight polls until the node's height reaches h or the
// polling budget runs out.
func (c *Client) WaitForHeight(ctx context.Context, hostport string, h uint64) error {
	ok := c.eventually(ctx, func() bool {
		height, err := c.BlockHeight(ctx, hostport)
		return err == nil && height >= h
	})
	if !ok {
		return fmt.Errorf("waiting for height %d on %s: %w", h, hostport, ErrTimeout)
	}
	return nil
}

// WaitForTx polls until the node reports the transaction committed.
// Exhausting the budget means the harness has no trusted view of the
// transaction and the caller must treat the bench point as failed.
func (c *Client) WaitForTx(ctx context.Context, hostport, hash string) error {
	ok := c.eventually(ctx, func() bool {
		committed, err := c.TxCommitted(ctx, hostport, hash)
		return err == nil && committed
	})
	if !ok {
		return fmt.Errorf("transaction %s on %s: %w", hash, hostport, ErrNotCommitted)
	}
	return nil
}

// eventually retries the condition with a fixed delay up to the
// bounded attempt count.
func (c *Client) eventually(ctx context.Context, condition func() bool) bool {
	for attempt := 0; attempt < c.PollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.PollInterval):
			if condition() {
				return true
			}
		}
	}
	return false
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return body, nil
}
