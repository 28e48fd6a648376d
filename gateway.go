package trialproxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Request and response headers.
const (
	HeaderCallerID       = "X-Device-ID"
	HeaderRemainingQuota = "X-Remaining-Quota"
	HeaderProviderUsed   = "X-Provider-Used"
	HeaderRequestID      = "X-Request-ID"
)

// DefaultAnonymousCaller is the shared quota identity for requests that
// carry no caller header. All anonymous callers share one counter.
const DefaultAnonymousCaller = "anonymous"

const maxRequestBodyBytes = 1 << 20

// Gateway is the HTTP-facing shell: method and content validation, CORS,
// quota admission, dispatch and error-to-status mapping.
type Gateway struct {
	ledger     Ledger
	dispatcher *Dispatcher
	meter      Meter
	anonymous  string
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithAnonymousCaller sets the shared identity used when the caller
// header is absent.
func WithAnonymousCaller(id string) GatewayOption {
	return func(g *Gateway) { g.anonymous = id }
}

// WithGatewayMeter sets the meter for request events.
func WithGatewayMeter(m Meter) GatewayOption {
	return func(g *Gateway) { g.meter = m }
}

// NewGateway creates a Gateway over the given ledger and dispatcher.
func NewGateway(ledger Ledger, dispatcher *Dispatcher, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		ledger:     ledger,
		dispatcher: dispatcher,
		meter:      noopMeter{},
		anonymous:  DefaultAnonymousCaller,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type errorBody struct {
	Error string `json:"error"`
}

type quotaExceededBody struct {
	Error     string `json:"error"`
	Remaining int    `json:"remaining"`
}

type unavailableBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ServeHTTP handles the chat completion endpoint.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ev := RequestEvent{RequestID: uuid.New().String()}

	setCORS(w.Header(), "POST, OPTIONS")
	w.Header().Set(HeaderRequestID, ev.RequestID)

	defer func() {
		if rec := recover(); rec != nil {
			ev.Status = http.StatusInternalServerError
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		}
		ev.Duration = time.Since(start)
		g.meter.OnRequest(ev)
	}()

	g.handle(w, r, &ev)
}

func (g *Gateway) handle(w http.ResponseWriter, r *http.Request, ev *RequestEvent) {
	switch r.Method {
	case http.MethodOptions:
		ev.Status = http.StatusNoContent
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		ev.Status = http.StatusMethodNotAllowed
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
		return
	}

	ev.CallerID = g.callerID(r)

	var req ChatRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		ev.Status = http.StatusBadRequest
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request format"})
		return
	}
	if err := req.Validate(); err != nil {
		ev.Status = http.StatusBadRequest
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request format"})
		return
	}

	decision, err := g.ledger.Admit(r.Context(), ev.CallerID)
	if err != nil {
		ev.Status = http.StatusInternalServerError
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		return
	}
	if !decision.Allowed {
		ev.Status = http.StatusTooManyRequests
		writeJSON(w, http.StatusTooManyRequests, quotaExceededBody{
			Error:     "Daily quota exceeded. Try again after 00:00 UTC or configure your own API key.",
			Remaining: 0,
		})
		return
	}

	outcome, err := g.dispatcher.Dispatch(r.Context(), ev.RequestID, req)
	if err != nil {
		var de *DispatchError
		if errors.As(err, &de) {
			ev.Status = http.StatusBadGateway
			resp := unavailableBody{Error: "All upstream providers failed"}
			if errors.Is(err, ErrNoProviders) {
				resp.Error = "No upstream providers available"
			}
			if last, ok := de.LastAttempt(); ok {
				resp.Details = last.String()
			}
			writeJSON(w, http.StatusBadGateway, resp)
			return
		}
		ev.Status = http.StatusInternalServerError
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		return
	}

	// Best-effort: a failed increment must not turn a served response
	// into an error.
	_ = g.ledger.RecordSuccess(r.Context(), ev.CallerID)

	remaining := decision.Remaining - 1
	if snap, err := g.ledger.Snapshot(r.Context(), ev.CallerID); err == nil {
		remaining = snap.Remaining
	}
	if remaining < 0 {
		remaining = 0
	}

	ev.Status = http.StatusOK
	ev.Provider = outcome.Provider
	ev.Remaining = remaining

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderRemainingQuota, strconv.Itoa(remaining))
	w.Header().Set(HeaderProviderUsed, outcome.Provider)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(outcome.Body)
}

// HandleQuota serves the caller's quota snapshot for client display.
func (g *Gateway) HandleQuota(w http.ResponseWriter, r *http.Request) {
	setCORS(w.Header(), "GET, OPTIONS")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
		return
	}

	snap, err := g.ledger.Snapshot(r.Context(), g.callerID(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (g *Gateway) callerID(r *http.Request) string {
	if id := r.Header.Get(HeaderCallerID); id != "" {
		return id
	}
	return g.anonymous
}

func setCORS(h http.Header, methods string) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", methods)
	h.Set("Access-Control-Allow-Headers", "Content-Type, "+HeaderCallerID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
