package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/testutils"
	"github.com/aretw0/espalier/pkg/adapters/httpapi"
	"github.com/aretw0/espalier/pkg/recovery"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	engine, err := espalier.NewWorkflow("api-flow").
		AddAgent("analyzer", testutils.EchoAgent("analyzer")).
		Sequential("analyze", []string{"analyzer"}).
		WithRecovery(recovery.NewSystem(recovery.WithRetryDelay(time.Millisecond))).
		Build()
	require.NoError(t, err)

	srv := httptest.NewServer(httpapi.NewHandler(engine))
	t.Cleanup(srv.Close)
	return srv
}

func TestServer_Execute(t *testing.T) {
	srv := newTestServer(t)

	body := strings.NewReader(`{"input": "draft"}`)
	resp, err := http.Post(srv.URL+"/execute", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		RunID        string         `json:"run_id"`
		AgentOutputs map[string]any `json:"agent_outputs"`
		Summary      struct {
			Success bool `json:"success"`
		} `json:"summary"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))

	assert.NotEmpty(t, payload.RunID)
	assert.True(t, payload.Summary.Success)
	assert.Equal(t, "analyzer(draft)", payload.AgentOutputs["analyzer"])
}

func TestServer_Execute_BadBody(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/execute", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Info(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/info")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info espalier.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "api-flow", info.Name)
	assert.Equal(t, []string{"analyzer"}, info.Agents)
	assert.True(t, info.Validation.Valid)
}

func TestServer_Validate(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/validate")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report espalier.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.True(t, report.Valid)
	assert.Equal(t, 1, report.StepsCount)
}

func TestServer_Errors(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/errors")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary recovery.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Zero(t, summary.TotalErrors)
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "ok", payload["status"])
	assert.NotEmpty(t, payload["version"])
}
