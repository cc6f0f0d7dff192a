package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/model"
)

// MutateRequest is one index mutation. Token and ExpectedVersion ride along
// as headers so an index that supports conditional writes can enforce them;
// the operation log remains the baseline idempotency guarantee either way.
type MutateRequest struct {
	TenantID        string
	EntityType      string
	EntityID        string
	Kind            model.OperationKind
	Token           string
	ExpectedVersion int64
	Payload         json.RawMessage
}

// Document is a point read of one indexed entity.
type Document struct {
	Version int64           `json:"version"`
	Token   string          `json:"token"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client is the search-index boundary consumed by the writer, the
// reconciler and the verifier.
type Client interface {
	Mutate(ctx context.Context, req MutateRequest) error
	Get(ctx context.Context, tenantID, entityType, entityID string) (*Document, error)
}

// HTTPClient talks to the index service over HTTP with a bounded timeout
// and a circuit breaker shared across writer and reconciler.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	br      *Breaker
}

func NewHTTPClient(baseURL string, timeoutMs, failThreshold, openForMs int) *HTTPClient {
	if timeoutMs <= 0 {
		timeoutMs = 3000
	}

	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:      NewBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

func (c *HTTPClient) docURL(tenantID, entityType, entityID string) string {
	return fmt.Sprintf("%s/v1/%s/%s/%s",
		c.baseURL,
		url.PathEscape(tenantID),
		url.PathEscape(entityType),
		url.PathEscape(entityID),
	)
}

func (c *HTTPClient) Mutate(ctx context.Context, req MutateRequest) error {
	if !c.br.TryAcquire() {
		return ErrBreakerOpen
	}

	err := c.mutate(ctx, req)
	switch {
	case err == nil, err == ErrConflict, IsPermanent(err):
		// The endpoint answered; only transport-level trouble trips the breaker.
		c.br.OnSuccess()
	default:
		c.br.OnFailure()
	}
	return err
}

func (c *HTTPClient) mutate(ctx context.Context, req MutateRequest) error {
	var (
		httpReq *http.Request
		err     error
	)
	u := c.docURL(req.TenantID, req.EntityType, req.EntityID)

	switch req.Kind {
	case model.KindDelete:
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	default:
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(req.Payload))
	}
	if err != nil {
		return &Error{Permanent: true, Err: err}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Idempotency-Token", req.Token)
	if req.ExpectedVersion > 0 {
		httpReq.Header.Set("X-Expected-Version", strconv.FormatInt(req.ExpectedVersion, 10))
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		// timeouts and connection errors are retryable
		return &Error{Permanent: false, Err: err}
	}
	defer res.Body.Close()

	return classifyStatus(res)
}

func classifyStatus(res *http.Response) error {
	switch {
	case res.StatusCode/100 == 2:
		return nil
	case res.StatusCode == http.StatusConflict:
		return ErrConflict
	case res.StatusCode == http.StatusRequestTimeout,
		res.StatusCode == http.StatusTooManyRequests,
		res.StatusCode/100 == 5:
		return &Error{Permanent: false, Status: res.StatusCode, Err: fmt.Errorf("index rejected mutation")}
	default:
		// remaining 4xx: the index will never accept this request as-is
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return &Error{Permanent: true, Status: res.StatusCode, Err: fmt.Errorf("index rejected mutation: %s", body)}
	}
}

// Get shares the breaker with Mutate: during an index outage verifier point
// reads fail fast instead of burning full timeouts.
func (c *HTTPClient) Get(ctx context.Context, tenantID, entityType, entityID string) (*Document, error) {
	if !c.br.TryAcquire() {
		return nil, ErrBreakerOpen
	}

	doc, err := c.get(ctx, tenantID, entityType, entityID)
	switch {
	case err == nil, err == ErrConflict, IsPermanent(err):
		c.br.OnSuccess()
	default:
		c.br.OnFailure()
	}
	return doc, err
}

func (c *HTTPClient) get(ctx context.Context, tenantID, entityType, entityID string) (*Document, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.docURL(tenantID, entityType, entityID), nil)
	if err != nil {
		return nil, &Error{Permanent: true, Err: err}
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Permanent: false, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.StatusCode/100 != 2 {
		return nil, classifyStatus(res)
	}

	var doc Document
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, &Error{Permanent: true, Err: fmt.Errorf("decode document: %w", err)}
	}
	return &doc, nil
}
