package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/config-api/internal/middleware"
	"github.com/jwalitptl/config-api/internal/repository/memory"
	configService "github.com/jwalitptl/config-api/internal/service/config"
	"github.com/jwalitptl/config-api/pkg/logger"
)

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	svc := configService.NewService(store, store, logger.NewLogger(nil))

	r := gin.New()
	r.Use(middleware.RequestID())
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestCreateAndGetConfig(t *testing.T) {
	r := setupTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/configs", gin.H{
		"key": "site:title", "value": "My Site", "scope": "global",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	env := decodeEnvelope(t, w)
	assert.Equal(t, "success", env.Status)

	var created configService.ConfigResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, "ACTIVE", created.Status)

	w = doJSON(t, r, http.MethodGet, "/api/v1/configs/site:title", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got configService.ConfigResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &got))
	assert.Equal(t, "My Site", got.Value)
}

func TestGetConfigNotFound(t *testing.T) {
	r := setupTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/configs/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "error", decodeEnvelope(t, w).Status)
}

func TestCreateConfigValidation(t *testing.T) {
	r := setupTestRouter(t)

	// Missing required fields fail binding.
	w := doJSON(t, r, http.MethodPost, "/api/v1/configs", gin.H{"key": "k"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown scope string.
	w = doJSON(t, r, http.MethodPost, "/api/v1/configs", gin.H{
		"key": "k", "value": "v", "scope": "regional",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Malformed tenant id.
	w = doJSON(t, r, http.MethodPost, "/api/v1/configs", gin.H{
		"key": "k", "value": "v", "scope": "tenant", "tenant_id": "not-a-uuid",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Scope precondition violations surface as 400 from the service.
	w = doJSON(t, r, http.MethodPost, "/api/v1/configs", gin.H{
		"key": "k", "value": "v", "scope": "tenant",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateDuplicateConflict(t *testing.T) {
	r := setupTestRouter(t)

	body := gin.H{"key": "k", "value": "v", "scope": "global"}
	w := doJSON(t, r, http.MethodPost, "/api/v1/configs", body)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/configs", body)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdateVersionConflictPayload(t *testing.T) {
	r := setupTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/configs", gin.H{
		"key": "k", "value": "v1", "scope": "global",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPut, "/api/v1/configs/k", gin.H{
		"value": "v2", "scope": "global", "expected_version": 1,
	})
	require.Equal(t, http.StatusOK, w.Code)

	// A second writer still holding version 1.
	w = doJSON(t, r, http.MethodPut, "/api/v1/configs/k", gin.H{
		"value": "v3", "scope": "global", "expected_version": 1,
	})
	require.Equal(t, http.StatusConflict, w.Code)

	var payload struct {
		ExpectedVersion int `json:"expected_version"`
		ActualVersion   int `json:"actual_version"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &payload))
	assert.Equal(t, 1, payload.ExpectedVersion)
	assert.Equal(t, 2, payload.ActualVersion)
}

func TestRollbackEndpoint(t *testing.T) {
	r := setupTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/configs", gin.H{
		"key": "k", "value": "v1", "scope": "global",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, r, http.MethodPut, "/api/v1/configs/k", gin.H{
		"value": "v2", "scope": "global",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/configs/k/rollback", gin.H{"version": 1})
	require.Equal(t, http.StatusOK, w.Code)

	var rolled configService.ConfigResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &rolled))
	assert.Equal(t, 3, rolled.Version)
	assert.Equal(t, "v1", rolled.Value)

	// Unknown target version.
	w = doJSON(t, r, http.MethodPost, "/api/v1/configs/k/rollback", gin.H{"version": 42})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Non-positive version fails binding.
	w = doJSON(t, r, http.MethodPost, "/api/v1/configs/k/rollback", gin.H{"version": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetConfigQueryParams(t *testing.T) {
	r := setupTestRouter(t)
	tenantID := uuid.New()

	w := doJSON(t, r, http.MethodPost, "/api/v1/configs", gin.H{
		"key": "k", "value": "g", "scope": "global",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, r, http.MethodPost, "/api/v1/configs", gin.H{
		"key": "k", "value": "t", "scope": "tenant", "tenant_id": tenantID.String(),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/configs/k?tenant_id=%s", tenantID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got configService.ConfigResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &got))
	assert.Equal(t, "t", got.Value)

	// Malformed query identifiers are rejected before hitting the service.
	w = doJSON(t, r, http.MethodGet, "/api/v1/configs/k?tenant_id=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/configs/k?version=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Explicit version read.
	w = doJSON(t, r, http.MethodGet, "/api/v1/configs/k?version=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &got))
	assert.Equal(t, "g", got.Value)
}

func TestHistoryEndpoint(t *testing.T) {
	r := setupTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/configs", gin.H{
		"key": "k", "value": "v1", "scope": "global",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, r, http.MethodPut, "/api/v1/configs/k", gin.H{
		"value": "v2", "scope": "global",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/configs/k/history", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var history []configService.ConfigResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &history))
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].Version)
	assert.Equal(t, 1, history[1].Version)

	w = doJSON(t, r, http.MethodGet, "/api/v1/configs/ghost/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
