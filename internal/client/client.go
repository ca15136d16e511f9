// Package client is a REST client for a running model server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"insurance-charge/internal/features"
	"insurance-charge/internal/ml"
	"insurance-charge/internal/storage"

	"github.com/go-resty/resty/v2"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("server returned %d (request %s): %s", e.StatusCode, e.RequestID, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	r.SetHeader("Accept", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// Predict asks the server to price rec.
func (c *Client) Predict(ctx context.Context, rec features.RawRecord) (*ml.PredictionResponse, error) {
	out := &ml.PredictionResponse{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(ml.PredictionRequest{RawRecord: rec}).
		SetResult(out).
		SetError(&ml.ErrorResponse{}).
		Post(c.base + "/predict")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return out, nil
}

// Health returns the server's health report. An unhealthy server answers
// 503 with a body, so the report is returned alongside the error.
func (c *Client) Health(ctx context.Context) (*ml.HealthStatus, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		Get(c.base + "/health")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	status := &ml.HealthStatus{}
	if err := json.Unmarshal(resp.Body(), status); err != nil {
		return nil, fmt.Errorf("failed to parse health response (status %d): %w", resp.StatusCode(), err)
	}
	if resp.StatusCode() != http.StatusOK {
		msg := status.SchemaError
		if msg == "" {
			msg = "unhealthy"
		}
		return status, &APIError{StatusCode: resp.StatusCode(), Message: msg}
	}
	return status, nil
}

// ModelInfo returns the served model's metadata.
func (c *Client) ModelInfo(ctx context.Context) (*ml.ModelInfo, error) {
	out := &ml.ModelInfo{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(out).
		SetError(&ml.ErrorResponse{}).
		Get(c.base + "/model/info")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return out, nil
}

// Quotes returns up to limit recorded quotes, newest first.
func (c *Client) Quotes(ctx context.Context, limit int) ([]storage.QuoteRecord, error) {
	var quotes []storage.QuoteRecord
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&quotes).
		SetError(&ml.ErrorResponse{}).
		Get(c.base + "/quotes")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return quotes, nil
}

func apiError(resp *resty.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode(), Message: resp.String()}
	if body, ok := resp.Error().(*ml.ErrorResponse); ok && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.RequestID = body.RequestID
	}
	return apiErr
}
