package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/avatarrelay/limits"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a single HTTP round trip.
const DefaultTimeout = 15 * time.Second

// Client sends JSON requests and classifies failures as *Error.
type Client struct {
	http *http.Client
}

// NewClient wraps hc. A nil hc gets a client with DefaultTimeout.
func NewClient(hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{http: hc}
}

// PostJSON marshals payload, POSTs it to url and returns the response body
// of a 2xx answer. op names the call in errors and logs.
func (c *Client) PostJSON(ctx context.Context, op, url string, headers map[string]string, payload any) ([]byte, error) {
	requestID := uuid.NewString()
	logrus.WithFields(logrus.Fields{
		"function":   "PostJSON",
		"op":         op,
		"url":        url,
		"request_id": requestID,
	}).Debug("Sending HTTP request")

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Op: op, URL: url, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Op: op, URL: url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "PostJSON",
			"op":         op,
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("HTTP request failed")
		return nil, &Error{Op: op, URL: url, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, limits.MaxResponseBody))
	if err != nil {
		return nil, &Error{Op: op, URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logrus.WithFields(logrus.Fields{
			"function":    "PostJSON",
			"op":          op,
			"request_id":  requestID,
			"status_code": resp.StatusCode,
		}).Error("HTTP request returned non-success status")
		return nil, &Error{
			Op:         op,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Err:        ErrUnexpectedStatus,
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":    "PostJSON",
		"op":          op,
		"request_id":  requestID,
		"status_code": resp.StatusCode,
		"body_size":   len(respBody),
	}).Debug("HTTP request succeeded")

	return respBody, nil
}
