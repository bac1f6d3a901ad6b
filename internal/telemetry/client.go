// Package telemetry pulls sensor snapshots from the upstream realtime database
// and keeps the reading caches and the database in step with it.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrUpstream wraps every failure to obtain data from the upstream database.
var ErrUpstream = errors.New("telemetry upstream unavailable")

// Record is one child of an upstream collection in upstream order.
type Record struct {
	ID     string
	Fields map[string]any
}

// Fetcher reads snapshots from the upstream database.
type Fetcher interface {
	SensorHistory(ctx context.Context, partition string) ([]Record, error)
	AllSensors(ctx context.Context) ([]Record, error)
}

// Client talks to the REST face of the realtime database: every path is
// readable as <path>.json.
type Client struct {
	http          *resty.Client
	historyPath   string
	aggregatePath string
	auth          string
}

// NewClient creates a Client for baseURL.
func NewClient(baseURL, historyPath, aggregatePath, auth string, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		http:          httpClient,
		historyPath:   strings.Trim(historyPath, "/"),
		aggregatePath: strings.Trim(aggregatePath, "/"),
		auth:          auth,
	}
}

// SensorHistory fetches the full history partition of one sensor.
func (c *Client) SensorHistory(ctx context.Context, partition string) ([]Record, error) {
	return c.fetch(ctx, path.Join(c.historyPath, url.PathEscape(partition))+".json")
}

// AllSensors fetches the flat all-sensors collection.
func (c *Client) AllSensors(ctx context.Context) ([]Record, error) {
	return c.fetch(ctx, c.aggregatePath+".json")
}

func (c *Client) fetch(ctx context.Context, p string) ([]Record, error) {
	req := c.http.R().SetContext(ctx)
	if c.auth != "" {
		req.SetQueryParam("auth", c.auth)
	}

	resp, err := req.Get("/" + p)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrUpstream, p, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrUpstream, p, resp.StatusCode())
	}

	records, err := DecodeRecords(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrUpstream, p, err)
	}
	return records, nil
}

// DecodeRecords reads a collection encoded either as an object keyed by record id
// or as an array. Object key order is preserved; null children are skipped and
// scalar children become {"value": v}.
func DecodeRecords(body []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode collection: %w", err)
	}

	var records []Record
	switch tok {
	case nil:
		return nil, nil
	case json.Delim('{'):
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("failed to decode record id: %w", err)
			}
			id, _ := keyTok.(string)
			var v any
			if err := dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("failed to decode record %q: %w", id, err)
			}
			if rec, ok := toRecord(id, v); ok {
				records = append(records, rec)
			}
		}
	case json.Delim('['):
		for i := 0; dec.More(); i++ {
			var v any
			if err := dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("failed to decode record %d: %w", i, err)
			}
			if rec, ok := toRecord(strconv.Itoa(i), v); ok {
				records = append(records, rec)
			}
		}
	default:
		return nil, fmt.Errorf("unexpected collection token %v", tok)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to decode collection end: %w", err)
	}
	return records, nil
}

func toRecord(id string, v any) (Record, bool) {
	switch t := v.(type) {
	case nil:
		return Record{}, false
	case map[string]any:
		return Record{ID: id, Fields: t}, true
	default:
		return Record{ID: id, Fields: map[string]any{"value": t}}, true
	}
}
