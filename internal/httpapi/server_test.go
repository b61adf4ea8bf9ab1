package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/tokengate/internal/persona"
	"github.com/MarkoPoloResearchLab/tokengate/internal/store/filestore"
	"github.com/MarkoPoloResearchLab/tokengate/pkg/metering"
)

type serverFixture struct {
	server *Server
	router http.Handler
}

func newServerFixture(t *testing.T, cfg Config) *serverFixture {
	t.Helper()
	store, err := filestore.Open(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("filestore: %v", err)
	}
	ledger, err := metering.NewLedger(store, time.Now)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	tracker, err := metering.NewQuotaTracker(store, 2, time.Now)
	if err != nil {
		t.Fatalf("quota tracker: %v", err)
	}
	votes, err := metering.NewVoteMachine(store, ledger, 3000, 12*time.Hour, time.Now)
	if err != nil {
		t.Fatalf("vote machine: %v", err)
	}
	gate, err := metering.NewGate(tracker, ledger)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	personas, err := persona.NewManager(persona.Config{DataDir: t.TempDir()}, zap.NewNop())
	if err != nil {
		t.Fatalf("personas: %v", err)
	}
	server, err := New(cfg, gate, votes, personas, zap.NewNop())
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	return &serverFixture{server: server, router: server.router()}
}

func (fixture *serverFixture) do(t *testing.T, method string, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	fixture.router.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	fixture := newServerFixture(t, Config{})
	recorder := fixture.do(t, http.MethodGet, "/healthz", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestWebhookRejectsBadAuthorization(t *testing.T) {
	t.Parallel()
	fixture := newServerFixture(t, Config{WebhookAuthorization: "secret"})
	recorder := fixture.do(t, http.MethodPost, "/topgg/webhook",
		`{"user":"42","type":"upvote"}`, map[string]string{"Authorization": "wrong"})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestWebhookRejectsInvalidBody(t *testing.T) {
	t.Parallel()
	fixture := newServerFixture(t, Config{})
	if recorder := fixture.do(t, http.MethodPost, "/topgg/webhook", "{not json", nil); recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", recorder.Code)
	}
	if recorder := fixture.do(t, http.MethodPost, "/topgg/webhook", `{"type":"upvote"}`, nil); recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing user, got %d", recorder.Code)
	}
}

func TestWebhookUpvoteGrantsReward(t *testing.T) {
	t.Parallel()
	fixture := newServerFixture(t, Config{WebhookAuthorization: "secret"})
	recorder := fixture.do(t, http.MethodPost, "/topgg/webhook",
		`{"user":"42","type":"upvote","isWeekend":false}`, map[string]string{"Authorization": "secret"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	balanceBody := decodeBody(t, fixture.do(t, http.MethodGet, "/api/users/42/balance", "", nil))
	if balance := balanceBody["balance"].(float64); balance != 3000 {
		t.Fatalf("expected balance 3000 after upvote, got %v", balance)
	}
}

func TestWebhookIgnoresUnknownVoteType(t *testing.T) {
	t.Parallel()
	fixture := newServerFixture(t, Config{})
	recorder := fixture.do(t, http.MethodPost, "/topgg/webhook", `{"user":"42","type":"downvote"}`, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for ignored type, got %d", recorder.Code)
	}
	balanceBody := decodeBody(t, fixture.do(t, http.MethodGet, "/api/users/42/balance", "", nil))
	if balance := balanceBody["balance"].(float64); balance != 0 {
		t.Fatalf("expected no grant for ignored type, got %v", balance)
	}
}

func TestCanSendFlowAcrossQuotaAndCredit(t *testing.T) {
	t.Parallel()
	fixture := newServerFixture(t, Config{})
	userPath := "/api/users/7"

	// Daily limit is 2 in this fixture.
	for i := 0; i < 2; i++ {
		body := decodeBody(t, fixture.do(t, http.MethodPost, userPath+"/cansend", `{"estimated_cost":100}`, nil))
		if body["allow"] != true || body["basis"] != string(metering.BasisFree) {
			t.Fatalf("message %d: expected free allow, got %v", i+1, body)
		}
		fixture.do(t, http.MethodPost, userPath+"/usage", `{"actual_cost":100}`, nil)
	}

	denied := decodeBody(t, fixture.do(t, http.MethodPost, userPath+"/cansend", `{"estimated_cost":100}`, nil))
	if denied["allow"] != false || denied["basis"] != string(metering.BasisDenied) {
		t.Fatalf("expected denial, got %v", denied)
	}

	fixture.do(t, http.MethodPost, "/topgg/webhook", `{"user":"7","type":"test"}`, nil)

	allowed := decodeBody(t, fixture.do(t, http.MethodPost, userPath+"/cansend", `{"estimated_cost":100}`, nil))
	if allowed["allow"] != true || allowed["basis"] != string(metering.BasisCredit) {
		t.Fatalf("expected credit allow after vote, got %v", allowed)
	}

	usage := decodeBody(t, fixture.do(t, http.MethodPost, userPath+"/usage", `{"actual_cost":100}`, nil))
	if balance := usage["balance"].(float64); balance != 2900 {
		t.Fatalf("expected 2900 after credited message, got %v", balance)
	}
}

func TestCanSendEstimatesFromText(t *testing.T) {
	t.Parallel()
	fixture := newServerFixture(t, Config{})
	body := decodeBody(t, fixture.do(t, http.MethodPost, "/api/users/9/cansend",
		fmt.Sprintf(`{"text":%q}`, strings.Repeat("a", 40)), nil))
	if cost := body["estimated_cost"].(float64); cost != 10 {
		t.Fatalf("expected estimated cost 10, got %v", cost)
	}
}

func TestVoteInfoEndpoint(t *testing.T) {
	t.Parallel()
	fixture := newServerFixture(t, Config{})
	fixture.do(t, http.MethodPost, "/topgg/webhook", `{"user":"11","type":"upvote","isWeekend":true}`, nil)

	body := decodeBody(t, fixture.do(t, http.MethodGet, "/api/users/11/vote", "", nil))
	if body["is_voter"] != true || body["active"] != true {
		t.Fatalf("expected active voter, got %v", body)
	}
	if streak := body["voter_streak"].(float64); streak != 1 {
		t.Fatalf("expected streak 1, got %v", streak)
	}
	if body["is_weekend"] != true {
		t.Fatalf("expected weekend flag, got %v", body)
	}
}

func TestPersonaSelectionEndpoint(t *testing.T) {
	t.Parallel()
	fixture := newServerFixture(t, Config{})
	recorder := fixture.do(t, http.MethodPut, "/api/users/5/persona", `{"name":"Ghost"}`, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown persona, got %d", recorder.Code)
	}
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()
	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != defaultListenAddr || cfg.WebhookPath != defaultWebhookPath {
		t.Fatalf("expected defaults applied, got %+v", cfg)
	}
	bad := Config{WebhookPath: "no-slash"}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for path without slash")
	}
}

func TestParseAllowedOrigins(t *testing.T) {
	t.Parallel()
	got := ParseAllowedOrigins(" https://a.example , ,https://b.example ")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", got)
	}
	if got := ParseAllowedOrigins("  "); len(got) != 0 {
		t.Fatalf("expected empty slice, got %v", got)
	}
}
