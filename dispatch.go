package trialproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Generation defaults substituted when the caller omits the field.
const (
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 4096
)

// DefaultAttemptTimeout bounds a single upstream call so one unresponsive
// provider cannot stall the whole fallback chain.
const DefaultAttemptTimeout = 30 * time.Second

const maxErrorBodyBytes = 2048

// Attempt records the outcome of a single failed provider call.
type Attempt struct {
	Provider string // display name
	Status   int    // HTTP status, 0 for transport failures
	Detail   string
}

func (a Attempt) String() string {
	if a.Status != 0 {
		return fmt.Sprintf("%s: upstream status %d: %s", a.Provider, a.Status, a.Detail)
	}
	return fmt.Sprintf("%s: %s", a.Provider, a.Detail)
}

// Outcome is the terminal result of a successful dispatch.
type Outcome struct {
	Body     []byte    // upstream response body, passed through verbatim
	Provider string    // display name of the provider that served
	Attempts []Attempt // failed attempts preceding the success, registry order
}

// Dispatcher tries active providers in registry order and stops on the
// first success. At most one upstream call is made per provider per
// request; there is no intra-provider retry.
type Dispatcher struct {
	registry *Registry
	client   *http.Client
	meter    Meter
	timeout  time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = c }
}

// WithAttemptTimeout sets the per-provider call timeout. Zero disables it.
func WithAttemptTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = t }
}

// WithMeter sets the meter for attempt and result events.
func WithMeter(m Meter) DispatcherOption {
	return func(d *Dispatcher) { d.meter = m }
}

// NewDispatcher creates a Dispatcher over the given registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		client:   http.DefaultClient,
		meter:    noopMeter{},
		timeout:  DefaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// upstreamRequest is the chat completion wire format sent to providers.
type upstreamRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

func buildPayload(d Descriptor, req ChatRequest) upstreamRequest {
	payload := upstreamRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
	if payload.Model == "" {
		payload.Model = d.DefaultModel
	}
	if req.Temperature != nil {
		payload.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		payload.MaxTokens = *req.MaxTokens
	}
	return payload
}

// Dispatch forwards the request to active providers in registry order.
// Upstream rejections and transport failures are recovered locally and the
// chain continues; only the terminal state is returned. With no active
// providers it fails immediately with ErrNoProviders, a configuration
// error rather than a transient one.
func (d *Dispatcher) Dispatch(ctx context.Context, requestID string, req ChatRequest) (Outcome, error) {
	active := d.registry.Active()
	if len(active) == 0 {
		return Outcome{}, &DispatchError{Err: ErrNoProviders}
	}

	attempts := make([]Attempt, 0, len(active))
	for i, p := range active {
		payload := buildPayload(p.Descriptor, req)

		d.meter.OnAttempt(AttemptEvent{
			RequestID:  requestID,
			Provider:   p.ID,
			Model:      payload.Model,
			AttemptNum: i + 1,
		})

		start := time.Now()
		body, status, err := d.call(ctx, p, payload)
		duration := time.Since(start)

		if err != nil {
			// Transport failure: DNS, connection refused, timeout.
			attempts = append(attempts, Attempt{Provider: p.DisplayName, Detail: err.Error()})
			d.meter.OnResult(ResultEvent{
				RequestID: requestID,
				Provider:  p.ID,
				Model:     payload.Model,
				Duration:  duration,
				Err:       err,
			})
			continue
		}

		if status < 200 || status >= 300 {
			attempts = append(attempts, Attempt{Provider: p.DisplayName, Status: status, Detail: string(body)})
			d.meter.OnResult(ResultEvent{
				RequestID: requestID,
				Provider:  p.ID,
				Model:     payload.Model,
				Status:    status,
				Duration:  duration,
				Err:       fmt.Errorf("trialproxy: upstream status %d", status),
			})
			continue
		}

		d.meter.OnResult(ResultEvent{
			RequestID: requestID,
			Provider:  p.ID,
			Model:     payload.Model,
			Success:   true,
			Status:    status,
			Duration:  duration,
		})
		return Outcome{Body: body, Provider: p.DisplayName, Attempts: attempts}, nil
	}

	return Outcome{}, &DispatchError{Err: ErrAllFailed, Attempts: attempts}
}

// call issues a single HTTP POST to the provider endpoint. A non-nil error
// means a transport-level failure; HTTP-level rejection is reported through
// the returned status code with the (truncated) error body.
func (d *Dispatcher) call(ctx context.Context, p ActiveProvider, payload upstreamRequest) ([]byte, int, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("trialproxy: marshal payload: %w", err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.EndpointURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, 0, fmt.Errorf("trialproxy: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.Credential)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return body, resp.StatusCode, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("trialproxy: read response: %w", err)
	}
	return body, resp.StatusCode, nil
}
