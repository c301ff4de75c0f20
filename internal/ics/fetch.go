package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	appLog "icsnotes/internal/log"
)

// Source identifies a single feed subscription for fetching and logging.
type Source struct {
	// ID is the internal identifier (config feed ID).
	ID string
	// URL is the ICS endpoint.
	URL string
}

// Fetcher performs single-shot HTTP retrievals of feed bodies.
//
// Failure semantics are deliberately flat: anything other than a 200
// response with a readable body is one error, and the caller treats "no
// data" uniformly regardless of cause. No retries, no caching.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher with a bounded request timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Fetch retrieves the feed body for one source. Success is strictly
// HTTP 200.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]byte, error) {
	if src.URL == "" {
		return nil, errors.New("source URL is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, err
	}

	appLog.Debug("feed fetch start", "id", src.ID, "url", redactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		appLog.Error("feed fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		appLog.Error("feed fetch non-OK", err, "id", src.ID, "url", redactURL(src.URL), "status", resp.StatusCode)
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		appLog.Error("feed body read failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	appLog.Info("feed fetch success", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
	return body, nil
}

// redactURL hides sensitive parts of a feed URL for logging purposes.
// Private ICS URLs routinely embed tokens in the path or query.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
