// Package aibridge is the client of the external AI inference service.
package aibridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrUnreachable means the service could not be contacted.
	ErrUnreachable = errors.New("ai service unreachable")
	// ErrBadResponse means the service answered with a non-2xx status or a body
	// that could not be decoded.
	ErrBadResponse = errors.New("ai service bad response")
	// ErrTimeout means no answer arrived within the configured timeout.
	ErrTimeout = errors.New("ai service timeout")
)

// Mode selects how the service treats the request.
type Mode int

const (
	// ModeQuestion answers a single question using the context.
	ModeQuestion Mode = iota
	// ModeAnalysis summarizes the context; the question is empty.
	ModeAnalysis
)

// Config is injected at construction; the bridge never reads globals.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Request is one call to the service.
type Request struct {
	Context  string
	Question string
	Mode     Mode
}

// Attachment is an optional file the service produced alongside the answer.
type Attachment struct {
	URL  string
	Type string
}

// Response is the service's answer.
type Response struct {
	Answer     string
	Attachment *Attachment
}

// Client talks to the service over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a Client. A zero timeout means the caller's context is the only
// deadline.
func New(cfg Config) *Client {
	return &Client{cfg: cfg, http: &http.Client{}}
}

type wireRequest struct {
	History      string `json:"history"`
	Question     string `json:"question"`
	AnalysisMode bool   `json:"analysis_mode"`
}

type wireResponse struct {
	Answer   string `json:"answer"`
	FileURL  string `json:"file_url,omitempty"`
	FileType string `json:"file_type,omitempty"`
}

// Ask performs one request. It never retries.
func (c *Client) Ask(ctx context.Context, req Request) (*Response, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(wireRequest{
		History:      req.Context,
		Question:     req.Question,
		AnalysisMode: req.Mode == ModeAnalysis,
	})
	if err != nil {
		return nil, fmt.Errorf("encode ai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}

	var out wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if ctxErr := transportError(ctx, err); errors.Is(ctxErr, ErrTimeout) {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}

	result := &Response{Answer: out.Answer}
	if out.FileURL != "" {
		result.Attachment = &Attachment{URL: out.FileURL, Type: out.FileType}
	}
	return result, nil
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrUnreachable, err)
}
