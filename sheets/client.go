// Package sheets is the Tabular Store adapter: a thin wrapper over the
// Google Sheets values API with bounded retry. The rest of the codebase
// only sees Read / Write / Clear on A1-style ranges, so a transactional
// store could be swapped in later without touching the repositories.
package sheets

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/config"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	sheetsapi "google.golang.org/api/sheets/v4"
)

const (
	maxRetries   = 3
	maxBackoff   = 30 * time.Second
	initialDelay = time.Second
)

// API is the minimal surface the adapter needs from the Sheets service.
// Tests substitute an in-memory implementation.
type API interface {
	Get(ctx context.Context, spreadsheetId, readRange string) ([][]string, error)
	Update(ctx context.Context, spreadsheetId, writeRange string, values [][]string) error
	Clear(ctx context.Context, spreadsheetId, clearRange string) error
}

type Client struct {
	spreadsheetId string
	api           API

	mu          sync.Mutex
	errorCounts map[string]int
}

// NewClient builds a client backed by the real Sheets service.
func NewClient(ctx context.Context) (*Client, error) {
	svc, err := config.GetSheetsService(ctx)
	if err != nil {
		return nil, err
	}
	return NewClientWithAPI(config.GetSpreadsheetId(), &googleAPI{svc: svc}), nil
}

// NewClientWithAPI is the injection point for tests.
func NewClientWithAPI(spreadsheetId string, api API) *Client {
	return &Client{
		spreadsheetId: spreadsheetId,
		api:           api,
		errorCounts:   map[string]int{},
	}
}

func (c *Client) Read(ctx context.Context, rangeSpec string) ([][]string, error) {
	var rows [][]string
	err := c.executeWithRetry(ctx, "Read", rangeSpec, func() error {
		var err error
		rows, err = c.api.Get(ctx, c.spreadsheetId, rangeSpec)
		return err
	})
	return rows, err
}

func (c *Client) Write(ctx context.Context, rangeSpec string, rows [][]string) error {
	return c.executeWithRetry(ctx, "Write", rangeSpec, func() error {
		return c.api.Update(ctx, c.spreadsheetId, rangeSpec, rows)
	})
}

func (c *Client) Clear(ctx context.Context, rangeSpec string) error {
	return c.executeWithRetry(ctx, "Clear", rangeSpec, func() error {
		return c.api.Clear(ctx, c.spreadsheetId, rangeSpec)
	})
}

// ErrorStats returns a copy of the per-kind error counters.
func (c *Client) ErrorStats() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.errorCounts))
	for k, v := range c.errorCounts {
		out[k] = v
	}
	return out
}

func (c *Client) executeWithRetry(ctx context.Context, op, rangeSpec string, fn func() error) error {
	logger := config.GetLogger()
	delay := initialDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		kind, retryable := classifyError(err)
		c.recordError(kind)
		logger.WithFields(logrus.Fields{
			"module":  "sheets",
			"op":      op,
			"range":   rangeSpec,
			"attempt": attempt,
			"kind":    kind,
		}).Warn("sheets request failed: " + err.Error())
		if !retryable || attempt == maxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
}

func classifyError(err error) (kind string, retryable bool) {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return "http_error", true
		}
		return "http_error", false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return "io_error", true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "io_error", true
	}
	return "unexpected_error", false
}

func (c *Client) recordError(kind string) {
	c.mu.Lock()
	c.errorCounts[kind]++
	c.mu.Unlock()
}

// googleAPI adapts the generated Sheets service to the string-cell shape
// the repositories work with.
type googleAPI struct {
	svc *sheetsapi.Service
}

func (g *googleAPI) Get(ctx context.Context, spreadsheetId, readRange string) ([][]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(spreadsheetId, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			if s, ok := cell.(string); ok {
				row[i] = s
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (g *googleAPI) Update(ctx context.Context, spreadsheetId, writeRange string, values [][]string) error {
	body := &sheetsapi.ValueRange{Values: make([][]interface{}, len(values))}
	for i, row := range values {
		cells := make([]interface{}, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		body.Values[i] = cells
	}
	_, err := g.svc.Spreadsheets.Values.Update(spreadsheetId, writeRange, body).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (g *googleAPI) Clear(ctx context.Context, spreadsheetId, clearRange string) error {
	_, err := g.svc.Spreadsheets.Values.Clear(spreadsheetId, clearRange, &sheetsapi.ClearValuesRequest{}).
		Context(ctx).Do()
	return err
}
