// Package api is the HTTP client for the Tag-Flow REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmcdole/tagflow/internal/domain"
)

const (
	defaultTimeout = 15 * time.Second
	maxRetries     = 3
	baseRetryDelay = 500 * time.Millisecond
)

var errMissingFields = errors.New("response is missing items or has_more")

// Client implements domain.VideoRepository over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewClient creates a new Tag-Flow API client
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:     logger,
		retryDelay: baseRetryDelay,
	}
}

// doRequest performs an HTTP request against the backend.
// Idempotent GETs are retried with exponential backoff on 5xx responses;
// mutations are sent once.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL = reqURL + "?" + query.Encode()
	}

	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	retries := 0
	if method == http.MethodGet {
		retries = maxRetries
	}
	requestID := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if ctx.Err() != nil {
			return nil, domain.NetworkError(ctx.Err())
		}

		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1)) // 500ms, 1s, 2s
			c.logger.Debug("retrying request", "attempt", attempt, "delay", delay, "url", reqURL)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, domain.NetworkError(ctx.Err())
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", requestID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		c.logger.Debug("tagflow request", "method", method, "url", reqURL, "attempt", attempt, "request_id", requestID)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Error("tagflow request failed", "error", err, "url", reqURL)
			if ctx.Err() != nil {
				return nil, domain.NetworkError(ctx.Err())
			}
			return nil, domain.NetworkError(fmt.Errorf("%w: %v", domain.ErrServerOffline, err))
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, domain.NetworkError(fmt.Errorf("failed to read response: %w", err))
		}

		if resp.StatusCode >= 500 && resp.StatusCode < 600 {
			lastErr = domain.ServerError(resp.StatusCode, string(respBody))
			c.logger.Warn("tagflow server error",
				"status", resp.StatusCode,
				"body", string(respBody),
				"attempt", attempt,
				"maxRetries", retries,
				"path", path,
			)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			return nil, &domain.FetchError{Kind: domain.KindServer, Status: resp.StatusCode, Body: string(respBody), Err: domain.ErrVideoNotFound}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.logger.Error("tagflow request error", "status", resp.StatusCode, "body", string(respBody))
			return nil, domain.ServerError(resp.StatusCode, string(respBody))
		}

		return respBody, nil
	}

	c.logger.Error("tagflow request failed after retries", "error", lastErr, "url", reqURL)
	return nil, lastErr
}

// ListVideos fetches one cursor page for a scope and filter set
func (c *Client) ListVideos(ctx context.Context, req domain.PageRequest) (*domain.Page, error) {
	query := req.Filters.Query()
	for k, v := range req.Scope.Query() {
		query[k] = v
	}
	if req.Cursor != "" {
		query.Set("cursor", req.Cursor)
	}
	if req.Limit > 0 {
		query.Set("limit", strconv.Itoa(req.Limit))
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/api/cursor/videos", query, nil)
	if err != nil {
		return nil, err
	}

	var resp cursorPageResponse
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	return resp.toPage()
}

// UpdateVideo applies changes to one video and returns the server copy when provided
func (c *Client) UpdateVideo(ctx context.Context, id domain.VideoID, changes domain.VideoChanges) (*domain.Video, error) {
	ack, err := c.mutate(ctx, fmt.Sprintf("/api/videos/%s/update", url.PathEscape(string(id))), changes)
	if err != nil {
		return nil, err
	}
	if !ack.Success {
		return nil, fmt.Errorf("update video %s: %s", id, ack.errorText())
	}
	return ack.Video, nil
}

// BulkUpdate applies the same changes to several videos
func (c *Client) BulkUpdate(ctx context.Context, ids []domain.VideoID, changes domain.VideoChanges) (domain.BulkResult, error) {
	ack, err := c.mutate(ctx, "/api/videos/bulk-update", bulkUpdateRequest{VideoIDs: ids, Updates: changes})
	if err != nil {
		return domain.BulkResult{}, err
	}
	return ack.toBulkResult(ids), nil
}

// DeleteVideo moves one video to the trash
func (c *Client) DeleteVideo(ctx context.Context, id domain.VideoID) error {
	ack, err := c.mutate(ctx, fmt.Sprintf("/api/videos/%s/delete", url.PathEscape(string(id))), nil)
	if err != nil {
		return err
	}
	if !ack.Success {
		return fmt.Errorf("delete video %s: %s", id, ack.errorText())
	}
	return nil
}

// BulkDelete moves several videos to the trash
func (c *Client) BulkDelete(ctx context.Context, ids []domain.VideoID) (domain.BulkResult, error) {
	ack, err := c.mutate(ctx, "/api/videos/bulk-delete", bulkDeleteRequest{VideoIDs: ids})
	if err != nil {
		return domain.BulkResult{}, err
	}
	return ack.toBulkResult(ids), nil
}

// RestoreVideo brings a video back from the trash
func (c *Client) RestoreVideo(ctx context.Context, id domain.VideoID) error {
	ack, err := c.mutate(ctx, fmt.Sprintf("/api/videos/%s/restore", url.PathEscape(string(id))), nil)
	if err != nil {
		return err
	}
	if !ack.Success {
		return fmt.Errorf("restore video %s: %s", id, ack.errorText())
	}
	return nil
}

// Stats returns catalog counters
func (c *Client) Stats(ctx context.Context) (domain.Stats, error) {
	return c.stats(ctx, "/api/stats")
}

// TrashStats returns trash counters
func (c *Client) TrashStats(ctx context.Context) (domain.Stats, error) {
	return c.stats(ctx, "/api/trash/stats")
}

func (c *Client) stats(ctx context.Context, path string) (domain.Stats, error) {
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var stats domain.Stats
	if err := decode(body, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (c *Client) mutate(ctx context.Context, path string, payload any) (*ackResponse, error) {
	if payload == nil {
		payload = struct{}{}
	}
	body, err := c.doRequest(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return nil, err
	}
	var ack ackResponse
	if err := decode(body, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Ensure Client implements the repository interface
var _ domain.VideoRepository = (*Client)(nil)
