// Package server exposes the engine over HTTP: evaluate, evaluate-with-trace,
// rule-set validation, health, and a Prometheus /metrics endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rulelattice/engine/internal/compiler"
	"github.com/rulelattice/engine/internal/event"
	"github.com/rulelattice/engine/internal/evaluator"
	"github.com/rulelattice/engine/internal/model"
	"github.com/rulelattice/engine/internal/observability"
	"github.com/rulelattice/engine/pkg/cachecontract"
	"github.com/rulelattice/engine/pkg/ruledef"
)

// Engine is the live, swappable pair of compiled model and evaluator that
// request handlers read on every call. Reload installs a new pair
// atomically so in-flight evaluations always see a consistent model.
type Engine struct {
	current atomic.Pointer[engineState]
	cache   cachecontract.Cache[string, []model.PredicateID]
}

type engineState struct {
	model *model.Model
	eval  *evaluator.Evaluator
}

// NewEngine compiles source into the initial model and wraps it in an
// Engine ready to serve requests.
func NewEngine(source ruledef.Source, cache cachecontract.Cache[string, []model.PredicateID]) (*Engine, error) {
	e := &Engine{cache: cache}
	if err := e.Reload(source); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload compiles source into a new model and swaps it in atomically.
// A compile failure leaves the previously installed model serving traffic.
func (e *Engine) Reload(source ruledef.Source) error {
	m, err := compiler.Compile(source, compiler.Options{EligibleCache: e.cache})
	if err != nil {
		return err
	}
	ev := evaluator.New(m, evaluator.Options{})
	e.current.Store(&engineState{model: m, eval: ev})
	return nil
}

func (e *Engine) state() *engineState {
	return e.current.Load()
}

// Handlers bundles the HTTP handlers bound to a single Engine.
type Handlers struct {
	engine *Engine
}

// NewHandlers constructs request handlers bound to engine.
func NewHandlers(engine *Engine) *Handlers {
	return &Handlers{engine: engine}
}

// Routes registers every endpoint on mux.
func (h *Handlers) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /evaluate", h.handleEvaluate)
	mux.HandleFunc("POST /evaluate/trace", h.handleEvaluateTrace)
	mux.HandleFunc("POST /explain", h.handleExplain)
	mux.HandleFunc("POST /rules/validate", h.handleValidateRules)
	mux.Handle("GET /metrics", observability.PrometheusHandler())
}

type evaluateRequest struct {
	EventID    string                 `json:"event_id"`
	EventType  string                 `json:"event_type"`
	Attributes map[string]interface{} `json:"attributes"`
}

func toEvent(req evaluateRequest) event.Event {
	attrs := make(map[string]event.Value, len(req.Attributes))
	for k, v := range req.Attributes {
		attrs[k] = valueFromJSON(v)
	}
	eventID := req.EventID
	if eventID == "" {
		eventID = uuid.New().String()
	}
	return event.New(eventID, req.EventType, attrs)
}

func valueFromJSON(v interface{}) event.Value {
	switch t := v.(type) {
	case nil:
		return event.Null
	case bool:
		return event.BoolValue(t)
	case float64:
		return event.FloatValue(t)
	case string:
		return event.StringValue(t)
	default:
		return event.StringValue(fmt.Sprintf("%v", t))
	}
}

type matchView struct {
	RuleCode    string `json:"rule_code"`
	Priority    int    `json:"priority"`
	Description string `json:"description,omitempty"`
}

type evaluateResponse struct {
	Matches             []matchView `json:"matches"`
	PredicatesEvaluated int         `json:"predicates_evaluated"`
	EvalNanos           int64       `json:"eval_nanos"`
}

func toMatchViews(matches []evaluator.Match) []matchView {
	views := make([]matchView, len(matches))
	for i, m := range matches {
		views[i] = matchView{RuleCode: m.RuleCode, Priority: m.Priority, Description: m.Description}
	}
	return views
}

func (h *Handlers) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	_, span := observability.StartEvaluateSpan(r.Context(), "")
	defer span.End()

	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	span.SetAttributes(attribute.String("event.id", req.EventID))

	st := h.engine.state()
	start := time.Now()
	result := st.eval.Evaluate(toEvent(req))
	observability.RecordEvaluateResult(span, len(result.Matches), result.PredicatesEvaluated, time.Since(start))

	respondJSON(w, http.StatusOK, evaluateResponse{
		Matches:             toMatchViews(result.Matches),
		PredicatesEvaluated: result.PredicatesEvaluated,
		EvalNanos:           result.EvalNanos,
	})
}

type traceView struct {
	EligibleCombinations []model.CombinationID `json:"eligible_combinations"`
	EligiblePredicates   []model.PredicateID   `json:"eligible_predicates"`
	TruePredicates       []model.PredicateID   `json:"true_predicates"`
	TouchedCombinations  []model.CombinationID `json:"touched_combinations"`
	FromCache            bool                  `json:"from_cache"`
}

type evaluateTraceResponse struct {
	Result evaluateResponse `json:"result"`
	Trace  traceView        `json:"trace"`
}

func (h *Handlers) handleEvaluateTrace(w http.ResponseWriter, r *http.Request) {
	_, span := observability.StartEvaluateSpan(r.Context(), "")
	defer span.End()

	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	span.SetAttributes(attribute.String("event.id", req.EventID))

	st := h.engine.state()
	start := time.Now()
	result, trace := st.eval.EvaluateWithTrace(toEvent(req))
	observability.RecordEvaluateResult(span, len(result.Matches), result.PredicatesEvaluated, time.Since(start))

	respondJSON(w, http.StatusOK, evaluateTraceResponse{
		Result: evaluateResponse{
			Matches:             toMatchViews(result.Matches),
			PredicatesEvaluated: result.PredicatesEvaluated,
			EvalNanos:           result.EvalNanos,
		},
		Trace: traceView{
			EligibleCombinations: trace.EligibleCombinations,
			EligiblePredicates:   trace.EligiblePredicates,
			TruePredicates:       trace.TruePredicates,
			TouchedCombinations:  trace.TouchedCombinations,
			FromCache:            trace.FromCache,
		},
	})
}

type explainRequest struct {
	evaluateRequest
	RuleCode string `json:"rule_code"`
}

func (h *Handlers) handleExplain(w http.ResponseWriter, r *http.Request) {
	_, span := observability.StartExplainSpan(r.Context(), "")
	defer span.End()

	var req explainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	span.SetAttributes(attribute.String("rule.code", req.RuleCode))

	st := h.engine.state()
	result := st.eval.Explain(toEvent(req.evaluateRequest), req.RuleCode)
	observability.RecordExplainResult(span, result.Found, result.Matched)

	if !result.Found {
		respondJSON(w, http.StatusNotFound, result)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type validateRequest struct {
	Rules []ruledef.RuleDefinition `json:"rules"`
}

type validateResponse struct {
	Valid        bool   `json:"valid"`
	Error        string `json:"error,omitempty"`
	Combinations int    `json:"combinations,omitempty"`
	Predicates   int    `json:"predicates,omitempty"`
}

func (h *Handlers) handleValidateRules(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	_, span := observability.StartCompileSpan(r.Context(), len(req.Rules))
	defer span.End()

	start := time.Now()
	m, err := compiler.Compile(ruledef.StaticSource{Defs: req.Rules}, compiler.Options{})
	if err != nil {
		observability.RecordCompileResult(span, err, 0, 0, time.Since(start))
		respondJSON(w, http.StatusOK, validateResponse{Valid: false, Error: err.Error()})
		return
	}

	observability.RecordCompileResult(span, nil, m.NumCombinations(), m.NumPredicates(), time.Since(start))
	respondJSON(w, http.StatusOK, validateResponse{
		Valid:        true,
		Combinations: m.NumCombinations(),
		Predicates:   m.NumPredicates(),
	})
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		observability.Error(context.Background(), "encoding JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, code int, err error) {
	respondJSON(w, code, map[string]string{"error": err.Error()})
}
