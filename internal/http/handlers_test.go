package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"vetbox-triage/internal/casestore"
	"vetbox-triage/internal/core"
	"vetbox-triage/internal/metrics"
	"vetbox-triage/internal/rules"
	"vetbox-triage/pkg"
)

// keywordExtractor marks every known symptom named in the answer as present.
type keywordExtractor struct{}

func (keywordExtractor) Extract(_ context.Context, _, answer string, _ *rules.Descriptor) (casestore.Delta, error) {
	d := casestore.Delta{}
	for _, s := range []string{"vomiting", "coughing"} {
		if strings.Contains(strings.ToLower(answer), s) {
			d[s] = true
		}
	}
	if strings.Contains(answer, "daily") {
		d["vomiting"] = map[string]any{"present": true, "frequency": "daily"}
	}
	return d, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	vomit := rules.Rule{RuleCode: "U-VOMIT", Priority: "Urgent", Rationale: "See a vet today.", Conditions: []rules.Condition{
		{Type: rules.ConditionSymptom, Symptom: "vomiting"},
		{Type: rules.ConditionSlot, ParentSymptom: "vomiting", Slot: "frequency", Operator: rules.OpEquals, Value: "daily"},
	}}
	vomit.Normalize()

	reg := prometheus.NewRegistry()
	m := core.NewManager(core.Config{
		Rules:     []rules.Rule{vomit},
		Extractor: keywordExtractor{},
		Metrics:   metrics.New(reg),
	})
	return NewServer(m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil)
}

func do(t *testing.T, h http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestConversationFlow(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/sessions", "", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[pkg.ChatResponse](t, rec)
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, core.OpeningQuestion, created.Reply)
	base := "/api/sessions/" + created.SessionID

	rec = do(t, srv, http.MethodPost, base+"/messages", "application/json", `{"content":"my dog is vomiting"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	turn := decode[map[string]any](t, rec)
	assert.Equal(t, "collecting", turn["state"])
	missing, ok := turn["missing"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "FREQUENCY", missing["slot"])

	form := url.Values{"content": {"it happens daily"}}.Encode()
	rec = do(t, srv, http.MethodPost, base+"/messages", "application/x-www-form-urlencoded", form)
	require.Equal(t, http.StatusOK, rec.Code)
	done := decode[pkg.ChatResponse](t, rec)
	assert.Equal(t, pkg.StateMatched, done.State)
	assert.Equal(t, "U-VOMIT", done.RuleCode)
	assert.Equal(t, "Urgent", done.Priority)
	assert.Contains(t, done.Reply, "See a vet today.")

	rec = do(t, srv, http.MethodGet, base, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[pkg.SessionView](t, rec)
	assert.Equal(t, pkg.StateMatched, view.State)
	assert.Equal(t, 2, view.Turns)
	assert.Contains(t, view.Case, "VOMITING")

	rec = do(t, srv, http.MethodPost, base+"/reset", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pkg.StateCollecting, decode[pkg.ChatResponse](t, rec).State)

	rec = do(t, srv, http.MethodDelete, base, "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, srv, http.MethodGet, base, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostMessage_BadRequests(t *testing.T) {
	srv := newTestServer(t)
	created := decode[pkg.ChatResponse](t, do(t, srv, http.MethodPost, "/api/sessions", "", ""))
	path := "/api/sessions/" + created.SessionID + "/messages"

	rec := do(t, srv, http.MethodPost, path, "application/json", `{"content":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, path, "application/json", `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/sessions/unknown/messages", "application/json", `{"content":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/sessions/unknown/reset", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/api/sessions/unknown", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRulesHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/rules", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]rules.Rule](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "U-VOMIT", got[0].RuleCode)

	rec = do(t, srv, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])

	rec = do(t, srv, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vetbox_rules_loaded 1")
}

func TestWriteJSON_LogsEncodeFailure(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	srv := &Server{logger: zap.New(obs)}

	rec := httptest.NewRecorder()
	srv.writeJSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusOK, rec.Code)
	entries := logs.FilterMessage("write response").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
}
