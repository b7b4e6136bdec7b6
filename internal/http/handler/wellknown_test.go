package handler_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/meetingintel/server/internal/config"
	httpHandler "github.com/meetingintel/server/internal/http/handler"
)

func metadataHandler() *httpHandler.OAuthHandler {
	cfg := config.Config{PublicBaseURL: "https://meetings.example.com"}
	return httpHandler.NewOAuthHandler(nil, cfg)
}

func TestAuthorizationServerMetadata(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := metadataHandler()

	req := httptest.NewRequest(http.MethodGet, "https://meetings.example.com/.well-known/oauth-authorization-server", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.AuthorizationServerMetadata(c)

	res := w.Result()
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)

	var metadata map[string]any
	require.NoError(t, json.Unmarshal(body, &metadata))
	require.Equal(t, "https://meetings.example.com", metadata["issuer"])
	require.Equal(t, "https://meetings.example.com/oauth/authorize", metadata["authorization_endpoint"])
	require.Equal(t, "https://meetings.example.com/oauth/token", metadata["token_endpoint"])
	require.Equal(t, []any{"S256"}, metadata["code_challenge_methods_supported"])
	require.Equal(t, []any{"code"}, metadata["response_types_supported"])
}

func TestProtectedResourceMetadata(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := metadataHandler()

	req := httptest.NewRequest(http.MethodGet, "https://meetings.example.com/.well-known/oauth-protected-resource", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.ProtectedResourceMetadata(c)

	res := w.Result()
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)

	var metadata map[string]any
	require.NoError(t, json.Unmarshal(body, &metadata))
	require.Equal(t, "https://meetings.example.com", metadata["resource"])
	require.Equal(t, []any{"https://meetings.example.com"}, metadata["authorization_servers"])
}
