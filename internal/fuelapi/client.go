package fuelapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"fuelwatch-backend/config"
	"fuelwatch-backend/internal/auth"
	"fuelwatch-backend/internal/normalize"
)

// FetchError reports a failed batch request mid-pagination. It is fatal to
// the fetch phase of the sync that issued it.
type FetchError struct {
	Batch      int
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("batch %d request failed with status %d", e.Batch, e.StatusCode)
}

// Client walks the upstream API's batch-number paginated endpoints.
type Client struct {
	baseURL    string
	batchSize  int
	maxBatches int
	tokens     *auth.TokenProvider
	client     *http.Client
}

// NewClient creates a client for the upstream fuel-price API.
func NewClient(cfg *config.FuelAPIConfig, tokens *auth.TokenProvider) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		batchSize:  cfg.BatchSize,
		maxBatches: cfg.MaxBatches,
		tokens:     tokens,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// FetchStations fetches every station-metadata batch.
func (c *Client) FetchStations(ctx context.Context) ([]normalize.Record, error) {
	return c.fetchAll(ctx, "/stations", nil)
}

// FetchPrices fetches every price batch, optionally filtered server-side by
// a since timestamp.
func (c *Client) FetchPrices(ctx context.Context, since *time.Time) ([]normalize.Record, error) {
	params := url.Values{}
	if since != nil {
		params.Set("since", since.UTC().Format(time.RFC3339))
	}
	return c.fetchAll(ctx, "/prices", params)
}

// fetchAll walks batch numbers starting at 1 and concatenates the batches in
// order. It stops on an empty batch or a batch strictly smaller than the
// page size; a dataset whose size is an exact multiple of the page size
// therefore costs one extra request that returns an empty batch. maxBatches
// bounds the walk against a misbehaving upstream.
//
// On a mid-walk failure the records accumulated from earlier batches are
// returned alongside the error; the caller decides whether partial data is
// usable. Station sync proceeds with it, price sync discards it.
func (c *Client) fetchAll(ctx context.Context, path string, params url.Values) ([]normalize.Record, error) {
	var all []normalize.Record
	for batch := 1; batch <= c.maxBatches; batch++ {
		records, err := c.fetchBatch(ctx, path, params, batch)
		if err != nil {
			return all, err
		}
		all = append(all, records...)
		log.Printf("Fetched batch %d of %s (%d records, %d total)", batch, path, len(records), len(all))
		if len(records) < c.batchSize {
			return all, nil
		}
	}
	log.Printf("Warning: reached max batch count (%d) for %s; upstream may have more data", c.maxBatches, path)
	return all, nil
}

// fetchBatch requests a single batch. A 401 invalidates the cached token and
// the request is retried once with a fresh one.
func (c *Client) fetchBatch(ctx context.Context, path string, params url.Values, batch int) ([]normalize.Record, error) {
	records, status, err := c.doBatch(ctx, path, params, batch)
	if status == http.StatusUnauthorized {
		c.tokens.Invalidate()
		records, status, err = c.doBatch(ctx, path, params, batch)
	}
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &FetchError{Batch: batch, StatusCode: status}
	}
	return records, nil
}

func (c *Client) doBatch(ctx context.Context, path string, params url.Values, batch int) ([]normalize.Record, int, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, 0, err
	}

	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("batch-number", strconv.Itoa(batch))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("batch %d request failed: %w", batch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read batch %d response: %w", batch, err)
	}

	records, err := decodeRecords(body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("batch %d: %w", batch, err)
	}
	return records, resp.StatusCode, nil
}

// decodeRecords accepts the three wrapper shapes the upstream has been seen
// returning: {"data":[...]}, {"stations":[...]} / {"prices":[...]}, or a
// bare array.
func decodeRecords(body []byte) ([]normalize.Record, error) {
	var bare []normalize.Record
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("unrecognized response shape: %w", err)
	}
	for _, key := range []string{"data", "stations", "prices"} {
		raw, ok := wrapper[key]
		if !ok {
			continue
		}
		var records []normalize.Record
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("field %q is not a record array: %w", key, err)
		}
		return records, nil
	}
	return nil, fmt.Errorf("response contained no record array")
}
