// Package esclient builds search engine clients and decodes the engine's
// error responses.
package esclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Config holds connection settings.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	Timeout   time.Duration

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// New creates a client. No request is sent until first use.
func New(cfg Config) (*elasticsearch.Client, error) {
	transport := cfg.Transport
	if transport == nil && cfg.Timeout > 0 {
		transport = &http.Transport{ResponseHeaderTimeout: cfg.Timeout}
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create search client: %w", err)
	}
	return es, nil
}

// Error is an error response from the search engine.
type Error struct {
	Status int
	Type   string
	Reason string
}

func (e *Error) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("search engine returned %d: %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("search engine returned %d: %s: %s", e.Status, e.Type, e.Reason)
}

// IsNotFound reports whether err is a 404 from the search engine.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == http.StatusNotFound
}

// Check returns nil for successful responses and an
// *Error describing the failure otherwise. The body is consumed on error.
func Check(res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}
	return decodeError(res.StatusCode, res.Body)
}

// DecodeError builds an *Error from an error body, such as one failed item
// of a multi-search response.
func DecodeError(status int, body []byte) error {
	return decodeError(status, bytes.NewReader(body))
}

func decodeError(status int, body io.Reader) error {
	e := &Error{Status: status}
	data, err := io.ReadAll(body)
	if err != nil {
		e.Reason = err.Error()
		return e
	}

	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || len(payload.Error) == 0 {
		e.Reason = string(data)
		return e
	}

	var detail struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(payload.Error, &detail); err != nil {
		// Some endpoints answer with a plain string error.
		var s string
		if json.Unmarshal(payload.Error, &s) == nil {
			e.Reason = s
			return e
		}
		e.Reason = string(payload.Error)
		return e
	}
	e.Type = detail.Type
	e.Reason = detail.Reason
	return e
}
