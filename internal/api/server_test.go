package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/observeo/remedy-engine/internal/connector"
	"github.com/observeo/remedy-engine/internal/domain"
	"github.com/observeo/remedy-engine/internal/lifecycle"
	"github.com/observeo/remedy-engine/internal/runner"
	"github.com/observeo/remedy-engine/internal/store"
	"github.com/observeo/remedy-engine/internal/timeline"
)

type apiHarness struct {
	srv *Server
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	flags := connector.NewSimulatedFlagService()
	reg := connector.NewRegistry()
	if err := reg.Register(flags); err != nil {
		t.Fatalf("register connector: %v", err)
	}
	exec := connector.NewExecutor(reg, "flags", zap.NewNop())
	exec.Retry = &connector.RetryConfig{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}

	feed := connector.NewSimulatedMetricFeed(map[string]float64{
		"error_rate":        0.5,
		"latency_p95_delta": 10,
		"conversion_rate":   3.4,
	})

	rec := timeline.NewRecorder(nil, zap.NewNop())
	mgr := lifecycle.NewManager(db, rec, &connector.SimulatedDiagnosisProvider{}, exec, zap.NewNop())
	ctrl := runner.NewController(db, rec, mgr.Locks, exec, feed, zap.NewNop())
	ctrl.Starter = mgr

	srv, err := NewServer(mgr, ctrl, zap.NewNop(), ":0")
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return &apiHarness{srv: srv}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echoContentType, echoJSON)
	rr := httptest.NewRecorder()
	h.srv.Echo().ServeHTTP(rr, req)
	return rr
}

const (
	echoContentType = "Content-Type"
	echoJSON        = "application/json"
)

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func intentBody() CreateIntentBody {
	return CreateIntentBody{
		Title:           "Recover mobile checkout conversion",
		GoalMetric:      "conversion_rate",
		GoalTargetDelta: 1.2,
		TimeHorizonDays: 14,
		Authority:       string(domain.RecommendThenExecute),
		BlastRadius:     []float64{1, 5, 25, 100},
		Thresholds:      map[string]float64{"error_rate_max": 1.5},
		Actor:           "User",
	}
}

func (h *apiHarness) createIntent(t *testing.T) domain.Intent {
	t.Helper()
	rr := h.do(t, http.MethodPost, "/api/v1/intents", intentBody())
	if rr.Code != http.StatusCreated {
		t.Fatalf("create intent: status %d, body %s", rr.Code, rr.Body.String())
	}
	return decode[domain.Intent](t, rr)
}

func TestHealth(t *testing.T) {
	h := newAPIHarness(t)
	rr := h.do(t, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health: status %d", rr.Code)
	}
	resp := decode[HealthResponse](t, rr)
	if resp.Status != "ok" {
		t.Errorf("health status = %q, want ok", resp.Status)
	}
}

func TestCreateIntentValidation(t *testing.T) {
	h := newAPIHarness(t)

	body := intentBody()
	body.Title = ""
	rr := h.do(t, http.MethodPost, "/api/v1/intents", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	resp := decode[ErrorResponse](t, rr)
	if resp.Kind != string(domain.KindValidation) {
		t.Errorf("kind = %q, want validation", resp.Kind)
	}
}

func TestGetIntentNotFound(t *testing.T) {
	h := newAPIHarness(t)
	rr := h.do(t, http.MethodGet, "/api/v1/intents/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	resp := decode[ErrorResponse](t, rr)
	if resp.Kind != string(domain.KindNotFound) {
		t.Errorf("kind = %q, want not_found", resp.Kind)
	}
}

func TestIntentLifecycleOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	intent := h.createIntent(t)

	rr := h.do(t, http.MethodPost, "/api/v1/intents/"+intent.ID+"/diagnose", ActorBody{Actor: "User"})
	if rr.Code != http.StatusOK {
		t.Fatalf("diagnose: status %d, body %s", rr.Code, rr.Body.String())
	}
	diag := decode[domain.Diagnosis](t, rr)
	if len(diag.Hypotheses) == 0 {
		t.Fatal("diagnosis has no hypotheses")
	}

	rr = h.do(t, http.MethodPost, "/api/v1/intents/"+intent.ID+"/plans", ActorBody{Actor: "User"})
	if rr.Code != http.StatusOK {
		t.Fatalf("plans: status %d, body %s", rr.Code, rr.Body.String())
	}
	plans := decode[[]domain.FixPlan](t, rr)
	if len(plans) == 0 {
		t.Fatal("no plans generated")
	}

	rr = h.do(t, http.MethodPost, "/api/v1/plans/"+plans[0].ID+"/simulate", ActorBody{Actor: "User"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("simulate: status %d, body %s", rr.Code, rr.Body.String())
	}
	run := decode[domain.Run](t, rr)

	// Three clean evaluations complete the simulation window.
	for i := 0; i < 3; i++ {
		rr = h.do(t, http.MethodPost, "/api/v1/runs/"+run.ID+"/evaluate", nil)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("evaluate %d: status %d, body %s", i, rr.Code, rr.Body.String())
		}
	}

	rr = h.do(t, http.MethodGet, "/api/v1/intents/"+intent.ID, nil)
	got := decode[domain.Intent](t, rr)
	if got.Status != domain.IntentReadyToExecute {
		t.Fatalf("intent status = %s, want %s", got.Status, domain.IntentReadyToExecute)
	}

	rr = h.do(t, http.MethodPost, "/api/v1/plans/"+plans[0].ID+"/execute", ExecuteBody{Mode: string(domain.ModeCanary), Actor: "User"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("execute: status %d, body %s", rr.Code, rr.Body.String())
	}
	liveRun := decode[domain.Run](t, rr)
	if liveRun.Mode != domain.ModeCanary {
		t.Errorf("run mode = %s, want %s", liveRun.Mode, domain.ModeCanary)
	}

	rr = h.do(t, http.MethodGet, "/api/v1/intents/"+intent.ID+"/events", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("events: status %d", rr.Code)
	}
	events := decode[[]domain.TimelineEvent](t, rr)
	if len(events) == 0 {
		t.Fatal("no timeline events")
	}
	for i := 1; i < len(events); i++ {
		if events[i].SeqNo != events[i-1].SeqNo+1 {
			t.Fatalf("event seq gap at %d: %d then %d", i, events[i-1].SeqNo, events[i].SeqNo)
		}
	}

	sinceSeq := events[len(events)-2].SeqNo
	rr = h.do(t, http.MethodGet, "/api/v1/intents/"+intent.ID+"/events?since_seq="+strconv.FormatInt(sinceSeq, 10), nil)
	tail := decode[[]domain.TimelineEvent](t, rr)
	if len(tail) != 1 {
		t.Fatalf("since_seq tail = %d events, want 1", len(tail))
	}
}

func TestPauseRequiresExecuting(t *testing.T) {
	h := newAPIHarness(t)
	intent := h.createIntent(t)

	rr := h.do(t, http.MethodPost, "/api/v1/intents/"+intent.ID+"/pause", ActorBody{Actor: "User"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body %s", rr.Code, rr.Body.String())
	}
	resp := decode[ErrorResponse](t, rr)
	if resp.Kind != string(domain.KindPrecondition) {
		t.Errorf("kind = %q, want precondition", resp.Kind)
	}
}

func TestRejectPlan(t *testing.T) {
	h := newAPIHarness(t)
	intent := h.createIntent(t)

	h.do(t, http.MethodPost, "/api/v1/intents/"+intent.ID+"/diagnose", ActorBody{Actor: "User"})
	rr := h.do(t, http.MethodPost, "/api/v1/intents/"+intent.ID+"/plans", ActorBody{Actor: "User"})
	plans := decode[[]domain.FixPlan](t, rr)

	rr = h.do(t, http.MethodPost, "/api/v1/plans/"+plans[0].ID+"/reject", ReasonBody{Actor: "User", Reason: "too risky"})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("reject: status %d, body %s", rr.Code, rr.Body.String())
	}

	rr = h.do(t, http.MethodGet, "/api/v1/intents/"+intent.ID+"/plans", nil)
	got := decode[[]domain.FixPlan](t, rr)
	for _, p := range got {
		if p.ID == plans[0].ID && p.Status != domain.PlanRejected {
			t.Errorf("plan status = %s, want %s", p.Status, domain.PlanRejected)
		}
	}
}

func TestCompleteRunOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	intent := h.createIntent(t)

	h.do(t, http.MethodPost, "/api/v1/intents/"+intent.ID+"/diagnose", ActorBody{Actor: "User"})
	rr := h.do(t, http.MethodPost, "/api/v1/intents/"+intent.ID+"/plans", ActorBody{Actor: "User"})
	plans := decode[[]domain.FixPlan](t, rr)

	rr = h.do(t, http.MethodPost, "/api/v1/plans/"+plans[0].ID+"/simulate", ActorBody{Actor: "User"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("simulate: status %d, body %s", rr.Code, rr.Body.String())
	}
	run := decode[domain.Run](t, rr)

	rr = h.do(t, http.MethodPost, "/api/v1/runs/"+run.ID+"/complete", CompleteRunBody{
		Passed:         true,
		Confidence:     0.9,
		ObservedDeltas: map[string]float64{"conversion_rate": 0.7},
		Actor:          "User",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("complete: status %d, body %s", rr.Code, rr.Body.String())
	}
	got := decode[domain.Run](t, rr)
	if got.Status != domain.RunPassed {
		t.Errorf("run status = %s, want %s", got.Status, domain.RunPassed)
	}
	if got.Result.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", got.Result.Confidence)
	}

	// Completing a finished run is a precondition failure.
	rr = h.do(t, http.MethodPost, "/api/v1/runs/"+run.ID+"/complete", CompleteRunBody{Passed: false, Actor: "User"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("double complete: status %d, want 422, body %s", rr.Code, rr.Body.String())
	}
	resp := decode[ErrorResponse](t, rr)
	if resp.Kind != string(domain.KindPrecondition) {
		t.Errorf("kind = %q, want precondition", resp.Kind)
	}
}

func TestNextPlanOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	intent := h.createIntent(t)

	// Before plans exist there is nothing to offer.
	rr := h.do(t, http.MethodGet, "/api/v1/intents/"+intent.ID+"/plans/next", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("no plans: status %d, want 404", rr.Code)
	}

	h.do(t, http.MethodPost, "/api/v1/intents/"+intent.ID+"/diagnose", ActorBody{Actor: "User"})
	rr = h.do(t, http.MethodPost, "/api/v1/intents/"+intent.ID+"/plans", ActorBody{Actor: "User"})
	plans := decode[[]domain.FixPlan](t, rr)

	rr = h.do(t, http.MethodGet, "/api/v1/intents/"+intent.ID+"/plans/next", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("next plan: status %d, body %s", rr.Code, rr.Body.String())
	}
	next := decode[domain.FixPlan](t, rr)
	if next.ID != plans[0].ID {
		t.Errorf("next plan = %s, want lowest-risk %s", next.ID, plans[0].ID)
	}
}

func TestAlertsCRUD(t *testing.T) {
	h := newAPIHarness(t)

	rr := h.do(t, http.MethodPost, "/api/v1/alerts", CreateAlertBody{
		Type:          string(domain.AlertMetricDrop),
		MetricName:    "conversion_rate",
		Severity:      string(domain.SeverityHigh),
		CurrentValue:  2.1,
		BaselineValue: 3.4,
		Delta:         -1.3,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create alert: status %d, body %s", rr.Code, rr.Body.String())
	}
	alert := decode[domain.Alert](t, rr)
	if alert.Status != domain.AlertOpen {
		t.Errorf("alert status = %s, want Open", alert.Status)
	}

	rr = h.do(t, http.MethodGet, "/api/v1/alerts?status=Open", nil)
	alerts := decode[[]domain.Alert](t, rr)
	if len(alerts) != 1 {
		t.Fatalf("open alerts = %d, want 1", len(alerts))
	}

	rr = h.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/status", AlertStatusBody{Status: string(domain.AlertAcknowledged)})
	if rr.Code != http.StatusOK {
		t.Fatalf("ack alert: status %d, body %s", rr.Code, rr.Body.String())
	}
	got := decode[domain.Alert](t, rr)
	if got.Status != domain.AlertAcknowledged {
		t.Errorf("alert status = %s, want Acknowledged", got.Status)
	}

	rr = h.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/status", AlertStatusBody{Status: "Bogus"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bogus status: got %d, want 400", rr.Code)
	}

	rr = h.do(t, http.MethodGet, "/api/v1/alerts/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing alert: got %d, want 404", rr.Code)
	}
}

func TestCreateAlertRequiresMetricName(t *testing.T) {
	h := newAPIHarness(t)
	rr := h.do(t, http.MethodPost, "/api/v1/alerts", CreateAlertBody{Type: string(domain.AlertErrorSpike)})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}
