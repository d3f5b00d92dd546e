package api_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unhackeddev/nfury/internal/domain"
	"github.com/unhackeddev/nfury/internal/runner"
	"github.com/unhackeddev/nfury/internal/token"
)

func TestStartAdHocRun(t *testing.T) {
	h, deps := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/load/start",
		domain.RunRequest{URL: "http://localhost:9999/api", Users: 5})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	decodeBody(t, rec, &resp)
	assert.Equal(t, "tok-adhoc", resp["run_token"])
	assert.Equal(t, "running", resp["status"])

	require.Len(t, deps.load.adHoc, 1)
	assert.Equal(t, 5, deps.load.adHoc[0].Users)
}

func TestStartAdHocRunRejectsInvalidRequest(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/load/start", domain.RunRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartRunWhileBusyIsConflict(t *testing.T) {
	h, deps := newTestServer(t)
	deps.load.startErr = domain.ErrRunInProgress

	rec := doJSON(t, h, http.MethodPost, "/api/v1/load/start",
		domain.RunRequest{URL: "http://localhost:9999/api"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "RUN_IN_PROGRESS")
}

func TestStartEndpointRun(t *testing.T) {
	h, deps := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/load/endpoints/3/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	decodeBody(t, rec, &resp)
	assert.Equal(t, "tok-endpoint", resp["run_token"])
	assert.Equal(t, []int64{3}, deps.load.started)
}

func TestStartEndpointRunNotFound(t *testing.T) {
	h, deps := newTestServer(t)
	deps.load.startErr = domain.ErrNotFound

	rec := doJSON(t, h, http.MethodPost, "/api/v1/load/endpoints/99/start", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartEndpointRunRejectsZeroUsers(t *testing.T) {
	h, _ := newTestServer(t)

	zero := 0
	rec := doJSON(t, h, http.MethodPost, "/api/v1/load/endpoints/3/start",
		map[string]*int{"users": &zero})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartRunAuthFailureIsBadGateway(t *testing.T) {
	h, deps := newTestServer(t)
	deps.load.startErr = &runner.AuthError{Err: errors.New("auth request rejected with status 401")}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/load/start",
		domain.RunRequest{URL: "http://localhost:9999/api"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "AUTH_FAILED")
}

func TestStopRun(t *testing.T) {
	h, deps := newTestServer(t)
	deps.load.activeToken = "tok-active"

	rec := doJSON(t, h, http.MethodPost, "/api/v1/load/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeBody(t, rec, &resp)
	assert.Equal(t, true, resp["stopped"])
	assert.Equal(t, "tok-active", resp["run_token"])
	assert.Equal(t, 1, deps.load.stopped)
}

func TestStopRunIdleIsNoOp(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/load/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeBody(t, rec, &resp)
	assert.Equal(t, false, resp["stopped"])
}

func TestLoadStatusIdle(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/load/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeBody(t, rec, &resp)
	assert.Equal(t, false, resp["running"])
}

func TestLoadStatusRunning(t *testing.T) {
	h, deps := newTestServer(t)
	deps.load.running = true
	deps.load.activeToken = "tok-live"
	deps.runs.addRun(domain.Run{ID: 1, Token: "tok-live", Status: domain.RunStatusRunning})

	rec := doJSON(t, h, http.MethodGet, "/api/v1/load/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Running  bool        `json:"running"`
		RunToken string      `json:"run_token"`
		Run      *domain.Run `json:"run"`
	}
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Running)
	assert.Equal(t, "tok-live", resp.RunToken)
	require.NotNil(t, resp.Run)
	assert.Equal(t, domain.RunStatusRunning, resp.Run.Status)
}

func TestAuthTestSuccess(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/load/auth-test", map[string]any{
		"auth": domain.AuthSpec{URL: "http://localhost:9999/login", TokenPath: "token"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeBody(t, rec, &resp)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "tok", resp["token"])
}

func TestAuthTestFailure(t *testing.T) {
	h, deps := newTestServer(t)
	deps.load.authErr = &token.RejectedError{StatusCode: 401}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/load/auth-test", map[string]any{
		"auth": domain.AuthSpec{URL: "http://localhost:9999/login", TokenPath: "token"},
	})
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp map[string]any
	decodeBody(t, rec, &resp)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "401")
}

func TestAuthTestRequiresSpec(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/load/auth-test", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
