package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const probeTimeout = 10 * time.Second

// Probe checks that serverURL answers like a Tag-Flow backend by reading
// /api/stats, which needs no parameters. It returns the decoded counters
// so the caller can log catalog size at startup.
func Probe(ctx context.Context, serverURL string) (map[string]any, error) {
	serverURL = strings.TrimRight(serverURL, "/")

	client := &http.Client{
		Timeout: probeTimeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/api/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var stats map[string]any
	if err := decode(body, &stats); err != nil {
		return nil, fmt.Errorf("not a Tag-Flow server: %w", err)
	}
	return stats, nil
}
