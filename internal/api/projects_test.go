package api_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unhackeddev/nfury/internal/api"
	"github.com/unhackeddev/nfury/internal/domain"
)

func TestCreateProject(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/projects",
		api.CreateProjectRequest{Name: "checkout", Description: "checkout service"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var p domain.Project
	decodeBody(t, rec, &p)
	assert.NotZero(t, p.ID)
	assert.Equal(t, "checkout", p.Name)
	assert.Equal(t, "checkout service", p.Description)
}

func TestCreateProjectRequiresName(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/projects", api.CreateProjectRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var apiErr api.APIError
	decodeBody(t, rec, &apiErr)
	assert.Equal(t, "INVALID_ARGUMENT", apiErr.Error.Code)
	assert.Equal(t, api.ErrorTypeValidation, apiErr.Error.Type)
}

func TestListProjects(t *testing.T) {
	h, _ := newTestServer(t)
	seedProject(t, h, "alpha")
	seedProject(t, h, "beta")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Projects []domain.Project `json:"projects"`
		Total    int              `json:"total"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, 2, resp.Total)
	assert.Len(t, resp.Projects, 2)
}

func TestGetProjectNotFound(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/projects/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetProjectInvalidID(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/projects/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateProject(t *testing.T) {
	h, _ := newTestServer(t)
	id := seedProject(t, h, "before")

	rec := doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/v1/projects/%d", id),
		api.CreateProjectRequest{Name: "after", Description: "renamed"})
	require.Equal(t, http.StatusOK, rec.Code)

	var p domain.Project
	decodeBody(t, rec, &p)
	assert.Equal(t, "after", p.Name)
	assert.Equal(t, "renamed", p.Description)
}

func TestUpdateProjectNotFound(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPut, "/api/v1/projects/99",
		api.CreateProjectRequest{Name: "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteProject(t *testing.T) {
	h, _ := newTestServer(t)
	id := seedProject(t, h, "doomed")

	rec := doJSON(t, h, http.MethodDelete, fmt.Sprintf("/api/v1/projects/%d", id), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/v1/projects/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetProjectAuth(t *testing.T) {
	h, _ := newTestServer(t)
	id := seedProject(t, h, "secured")

	spec := domain.AuthSpec{
		URL:          "http://localhost:9999/login",
		Method:       "POST",
		TokenPath:    "data.token",
		HeaderName:   "Authorization",
		HeaderPrefix: "Bearer ",
	}
	rec := doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/v1/projects/%d/auth", id), spec)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/v1/projects/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p domain.Project
	decodeBody(t, rec, &p)
	require.NotNil(t, p.Auth)
	assert.Equal(t, "data.token", p.Auth.TokenPath)
}

func TestSetProjectAuthRejectsIncompleteSpec(t *testing.T) {
	h, _ := newTestServer(t)
	id := seedProject(t, h, "secured")

	rec := doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/v1/projects/%d/auth", id),
		domain.AuthSpec{URL: "http://localhost:9999/login"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetProjectAuthRejectsUnknownMethod(t *testing.T) {
	h, _ := newTestServer(t)
	id := seedProject(t, h, "secured")

	rec := doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/v1/projects/%d/auth", id),
		domain.AuthSpec{URL: "http://localhost:9999/login", TokenPath: "token", Method: "FETCH"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearProjectAuth(t *testing.T) {
	h, _ := newTestServer(t)
	id := seedProject(t, h, "secured")

	spec := domain.AuthSpec{URL: "http://localhost:9999/login", TokenPath: "token"}
	rec := doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/v1/projects/%d/auth", id), spec)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/api/v1/projects/%d/auth", id), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/v1/projects/%d", id), nil)
	var p domain.Project
	decodeBody(t, rec, &p)
	assert.Nil(t, p.Auth)
}
