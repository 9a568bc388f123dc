// Package store is the HTTP client for the interview session collaborator:
// session init, turn flushing, answer saves, completion, report, and reset.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/voxprep/voxprep/pkg/core"
	"github.com/voxprep/voxprep/pkg/interview"
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 250 * time.Millisecond
)

// Client talks to the collaborator API. Flush, complete and reset are
// idempotent-tolerant on the server, so transient failures there are
// retried with exponential backoff; init and report surface errors
// directly to the caller.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries uint64
	backoff    time.Duration
}

// Options tunes the client. Zero values mean defaults.
type Options struct {
	APIKey     string
	HTTPClient *http.Client
	Logger     *slog.Logger
	MaxRetries int
	Backoff    time.Duration
}

func NewClient(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newDefaultHTTPClient()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := uint64(defaultMaxRetries)
	if opts.MaxRetries > 0 {
		maxRetries = uint64(opts.MaxRetries)
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: httpClient,
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// newDefaultHTTPClient sets transport-level timeouts and leaves overall
// request lifetime to context deadlines.
func newDefaultHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	return &http.Client{Transport: transport}
}

type initRequest struct {
	SessionID string `json:"sessionId"`
}

type flushRequest struct {
	SessionID string                       `json:"sessionId"`
	Turns     []interview.ConversationTurn `json:"turns"`
}

type flushResponse struct {
	SavedCount int `json:"savedCount"`
}

type answerRequest struct {
	SessionID string `json:"sessionId"`
	interview.StructuredAnswer
}

type completeRequest struct {
	SessionID      string                       `json:"sessionId"`
	RemainingTurns []interview.ConversationTurn `json:"remainingTurns"`
	Transcript     []interview.ConversationTurn `json:"transcript"`
}

type reportResponse struct {
	ReportData interview.Report `json:"reportData"`
}

// InitSession fetches the question set, system instructions, tool
// definitions, and a short-lived streaming credential. Must be called
// before any transport connect.
func (c *Client) InitSession(ctx context.Context, sessionID string) (*interview.InitResult, error) {
	var out interview.InitResult
	if err := c.post(ctx, "/v1/session/init", initRequest{SessionID: sessionID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FlushTurns stores one batch of conversation turns. Safe to retry with
// the same batch.
func (c *Client) FlushTurns(ctx context.Context, sessionID string, turns []interview.ConversationTurn) (int, error) {
	var out flushResponse
	err := c.postRetrying(ctx, "/v1/session/flush", flushRequest{SessionID: sessionID, Turns: turns}, &out)
	if err != nil {
		return 0, err
	}
	return out.SavedCount, nil
}

// SaveAnswer stores one structured answer. Not retried here: the bridge
// treats answer saves as best effort.
func (c *Client) SaveAnswer(ctx context.Context, sessionID string, answer interview.StructuredAnswer) error {
	return c.post(ctx, "/v1/session/answer", answerRequest{SessionID: sessionID, StructuredAnswer: answer}, nil)
}

// CompleteSession marks the session finished, carrying the tail batch and
// the full transcript.
func (c *Client) CompleteSession(ctx context.Context, sessionID string, remaining, transcript []interview.ConversationTurn) error {
	return c.postRetrying(ctx, "/v1/session/complete", completeRequest{
		SessionID:      sessionID,
		RemainingTurns: remaining,
		Transcript:     transcript,
	}, nil)
}

// FetchReport retrieves the generated interview report.
func (c *Client) FetchReport(ctx context.Context, sessionID string) (*interview.Report, error) {
	var out reportResponse
	if err := c.post(ctx, "/v1/session/report", initRequest{SessionID: sessionID}, &out); err != nil {
		return nil, err
	}
	return &out.ReportData, nil
}

// ResetSession deletes prior turns, answers, and report so a retake starts
// clean.
func (c *Client) ResetSession(ctx context.Context, sessionID string) error {
	return c.postRetrying(ctx, "/v1/session/reset", initRequest{SessionID: sessionID}, nil)
}

func (c *Client) postRetrying(ctx context.Context, path string, body, out any) error {
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.backoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.post(ctx, path, body, out)
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			c.logger.Warn("collaborator call failed, will retry", "path", path, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

// isRetryable: server-side and network failures are worth retrying on the
// idempotent-tolerant endpoints; 4xx rejections are not.
func isRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	return core.KindOf(err) != core.ErrInvalidRequest && core.KindOf(err) != core.ErrAPI
}

// HTTPError is a non-2xx response from the collaborator.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("collaborator returned %d: %s", e.StatusCode, e.Message)
}

type errorEnvelope struct {
	Error *core.Error `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return core.NewInvalidRequestError("encode request body: " + err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return core.NewInvalidRequestError("build request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &core.Error{Kind: core.ErrPersistence, Op: path, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeHTTPError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.Error{Kind: core.ErrPersistence, Op: path, Message: "decode response", Err: err}
	}
	return nil
}

func decodeHTTPError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
		return &HTTPError{StatusCode: resp.StatusCode, Message: envelope.Error.Message}
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
}
