package api_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unhackeddev/nfury/internal/domain"
)

func sampleExport() *domain.ProjectExport {
	return &domain.ProjectExport{
		Version:    domain.ExportVersion,
		ExportedAt: time.Now().UTC(),
		Project: domain.ExportedProject{
			Project: domain.Project{ID: 1, Name: "checkout"},
			Endpoints: []domain.ExportedEndpoint{
				{
					Endpoint:   domain.Endpoint{ID: 1, ProjectID: 1, Name: "orders", URL: "http://localhost:9999/orders", Method: domain.MethodGet},
					Executions: []domain.Run{{ID: 1, Token: "tok-1", Status: domain.RunStatusCompleted}},
				},
			},
		},
	}
}

func TestExportProject(t *testing.T) {
	h, deps := newTestServer(t)
	deps.transfer.exports[1] = sampleExport()

	rec := doJSON(t, h, http.MethodGet, "/api/v1/projects/1/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "checkout.json")

	var export domain.ProjectExport
	decodeBody(t, rec, &export)
	assert.Equal(t, domain.ExportVersion, export.Version)
	require.Len(t, export.Project.Endpoints, 1)
	assert.Len(t, export.Project.Endpoints[0].Executions, 1)
}

func TestExportProjectWireShape(t *testing.T) {
	h, deps := newTestServer(t)
	deps.transfer.exports[1] = sampleExport()

	rec := doJSON(t, h, http.MethodGet, "/api/v1/projects/1/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Everything nests under "project"; run history lives in "executions".
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Contains(t, raw, "version")
	assert.Contains(t, raw, "exportedAt")
	require.Contains(t, raw, "project")
	assert.NotContains(t, raw, "endpoints")

	var project map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["project"], &project))
	assert.Contains(t, project, "name")
	require.Contains(t, project, "endpoints")

	var endpoints []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(project["endpoints"], &endpoints))
	require.Len(t, endpoints, 1)
	assert.Contains(t, endpoints[0], "url")
	assert.Contains(t, endpoints[0], "executions")
}

func TestExportProjectNotFound(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/projects/99/export", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportProject(t *testing.T) {
	h, deps := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/projects/import", sampleExport())
	require.Equal(t, http.StatusCreated, rec.Code)

	var p domain.Project
	decodeBody(t, rec, &p)
	assert.Equal(t, "checkout (Imported)", p.Name)
	require.Len(t, deps.transfer.imported, 1)
}

func TestImportProjectRejectsUnknownVersion(t *testing.T) {
	h, deps := newTestServer(t)

	payload := sampleExport()
	payload.Version = "2.0"
	rec := doJSON(t, h, http.MethodPost, "/api/v1/projects/import", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, deps.transfer.imported)
}

func TestImportProjectRequiresName(t *testing.T) {
	h, _ := newTestServer(t)

	payload := sampleExport()
	payload.Project.Name = ""
	rec := doJSON(t, h, http.MethodPost, "/api/v1/projects/import", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportProjectStoreFailure(t *testing.T) {
	h, deps := newTestServer(t)
	deps.transfer.importErr = errors.New("constraint violation")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/projects/import", sampleExport())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
