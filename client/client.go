package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reldiff/internal/errors"
	"reldiff/shared/types"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Minute * 5,
		},
	}
}

// CreateDiff asks the service to compute and archive a release diff.
func (c *Client) CreateDiff(ctx context.Context, in types.DiffRequest) (*types.DiffReport, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	var report types.DiffReport
	if err := c.do(ctx, http.MethodPost, "/api/diffs", bytes.NewReader(data), http.StatusCreated, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) ListDiffs(ctx context.Context) ([]types.DiffSummary, error) {
	var summaries []types.DiffSummary
	if err := c.do(ctx, http.MethodGet, "/api/diffs", nil, http.StatusOK, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (c *Client) GetDiff(ctx context.Context, id string) (*types.DiffReport, error) {
	var report types.DiffReport
	if err := c.do(ctx, http.MethodGet, "/api/diffs/"+id, nil, http.StatusOK, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// decodeError turns an error response back into an *errors.Error so
// callers can classify it.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var e errors.Error
	if err := json.Unmarshal(data, &e); err == nil && e.Type != "" {
		e.Code = resp.StatusCode
		return &e
	}
	return fmt.Errorf("unexpected status: %s", resp.Status)
}
