// Package inference reads disease information from the prediction service and
// falls back to a built-in table when the service is unavailable.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Answer sources.
const (
	MethodAPI    = "ai_api"
	MethodStatic = "static"
)

// ErrUnknownDisease is returned when neither source knows the disease.
var ErrUnknownDisease = errors.New("disease not found")

// Catalog is the answer of the disease list.
type Catalog struct {
	Method   string                     `json:"method"`
	Diseases map[string]json.RawMessage `json:"diseases"`
}

// Detail is the answer for one disease.
type Detail struct {
	Method            string          `json:"method"`
	Disease           string          `json:"disease"`
	Solution          json.RawMessage `json:"solution"`
	TreatmentSchedule json.RawMessage `json:"treatment_schedule,omitempty"`
	CostEstimation    json.RawMessage `json:"cost_estimation,omitempty"`
}

// Client queries the prediction service. A Client without a base URL only
// serves the static table.
type Client struct {
	http   *resty.Client
	table  Table
	logger *zap.Logger
}

// NewClient creates a Client. baseURL may be empty.
func NewClient(baseURL string, timeout time.Duration, table Table, logger *zap.Logger) *Client {
	c := &Client{table: table, logger: logger}
	if baseURL != "" {
		c.http = resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetRetryCount(1).
			SetRetryWaitTime(200 * time.Millisecond).
			SetHeader("Accept", "application/json")
	}
	return c
}

// Diseases lists every known disease.
func (c *Client) Diseases(ctx context.Context) (*Catalog, error) {
	if c.http != nil {
		var body struct {
			Diseases map[string]json.RawMessage `json:"diseases"`
		}
		resp, err := c.http.R().SetContext(ctx).SetResult(&body).Get("/diseases")
		switch {
		case err != nil:
			c.logger.Info("inference service unavailable, using static data", zap.Error(err))
		case resp.IsError():
			c.logger.Info("inference service failed, using static data", zap.Int("status", resp.StatusCode()))
		case body.Diseases != nil:
			return &Catalog{Method: MethodAPI, Diseases: body.Diseases}, nil
		}
	}

	diseases := make(map[string]json.RawMessage, len(c.table))
	for _, name := range c.table.Names() {
		raw, err := json.Marshal(c.table[name])
		if err != nil {
			return nil, fmt.Errorf("failed to encode disease %s: %w", name, err)
		}
		diseases[name] = raw
	}
	return &Catalog{Method: MethodStatic, Diseases: diseases}, nil
}

// Disease describes one disease with its treatment schedule and cost estimate.
func (c *Client) Disease(ctx context.Context, name string) (*Detail, error) {
	if c.http != nil {
		var body struct {
			Solution          json.RawMessage `json:"solution"`
			TreatmentSchedule json.RawMessage `json:"treatment_schedule"`
			CostEstimation    json.RawMessage `json:"cost_estimation"`
		}
		resp, err := c.http.R().SetContext(ctx).SetResult(&body).
			Get("/diseases/" + url.PathEscape(name) + "/solution")
		switch {
		case err != nil:
			c.logger.Info("inference service unavailable, using static data", zap.String("disease", name), zap.Error(err))
		case resp.IsError():
			c.logger.Info("inference service failed, using static data", zap.String("disease", name), zap.Int("status", resp.StatusCode()))
		case len(body.Solution) > 0:
			return &Detail{
				Method:            MethodAPI,
				Disease:           name,
				Solution:          body.Solution,
				TreatmentSchedule: body.TreatmentSchedule,
				CostEstimation:    body.CostEstimation,
			}, nil
		}
	}

	s, ok := c.table[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDisease, name)
	}
	solution, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	schedule, err := json.Marshal(defaultSchedule)
	if err != nil {
		return nil, err
	}
	cost, err := json.Marshal(s.Estimate())
	if err != nil {
		return nil, err
	}
	return &Detail{
		Method:            MethodStatic,
		Disease:           name,
		Solution:          solution,
		TreatmentSchedule: schedule,
		CostEstimation:    cost,
	}, nil
}
