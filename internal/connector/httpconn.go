package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rockmrack/crownsafe/internal/config"
	"github.com/rockmrack/crownsafe/internal/recall"
)

// Response bodies across agency feeds are either a bare JSON array or
// an object wrapping the list under one of these keys.
var itemListKeys = []string{"results", "items", "records", "data"}

// HTTPConnector is the generic agency feed client. One instance per
// configured source; instances never share state.
type HTTPConnector struct {
	agency         string
	baseURL        string
	path           string
	apiKey         string
	pageLimit      int
	maxRetries     int
	initialBackoff time.Duration
	client         *http.Client
}

func NewHTTPConnector(cc config.ConnectorConfig, ingest config.IngestConfig) *HTTPConnector {
	timeout := config.Duration(cc.Timeout, config.Duration(ingest.SourceTimeout, 30*time.Second))
	limit := cc.PageLimit
	if limit <= 0 {
		limit = 200
	}
	return &HTTPConnector{
		agency:         cc.Agency,
		baseURL:        strings.TrimRight(cc.BaseURL, "/"),
		path:           cc.Path,
		apiKey:         cc.APIKey,
		pageLimit:      limit,
		maxRetries:     ingest.MaxRetries,
		initialBackoff: config.Duration(ingest.RetryInitialBackoff, 250*time.Millisecond),
		client:         &http.Client{Timeout: timeout},
	}
}

func (c *HTTPConnector) Agency() string {
	return c.agency
}

func (c *HTTPConnector) Fetch(ctx context.Context, since time.Time, limit int) ([]recall.RawRecord, error) {
	if limit <= 0 || limit > c.pageLimit {
		limit = c.pageLimit
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.initialBackoff

	records, err := backoff.Retry(ctx, func() ([]recall.RawRecord, error) {
		return c.fetchOnce(ctx, since, limit)
	},
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
	)
	if err != nil {
		return nil, &FetchError{Agency: c.agency, Err: err}
	}
	return records, nil
}

func (c *HTTPConnector) fetchOnce(ctx context.Context, since time.Time, limit int) ([]recall.RawRecord, error) {
	u, err := url.Parse(c.baseURL + c.path)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("invalid source url: %w", err))
	}
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("source status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		// Client errors will not heal on retry.
		return nil, backoff.Permanent(fmt.Errorf("source status %d", resp.StatusCode))
	}

	records, err := decodeItems(body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return records, nil
}

func decodeItems(body []byte) ([]recall.RawRecord, error) {
	var asList []any
	if err := json.Unmarshal(body, &asList); err == nil {
		return toRawRecords(asList), nil
	}

	var asObject map[string]any
	if err := json.Unmarshal(body, &asObject); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}
	for _, key := range itemListKeys {
		if list, ok := asObject[key].([]any); ok {
			return toRawRecords(list), nil
		}
	}
	return nil, fmt.Errorf("malformed payload: no item list found")
}

func toRawRecords(items []any) []recall.RawRecord {
	out := make([]recall.RawRecord, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, recall.RawRecord(m))
		}
	}
	return out
}
