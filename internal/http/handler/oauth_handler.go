package handler

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meetingintel/server/internal/config"
	"github.com/meetingintel/server/internal/domain"
	"github.com/meetingintel/server/internal/oauth"
)

// OAuthHandler exposes the authorization server over HTTP.
type OAuthHandler struct {
	Server *oauth.Server
	Cfg    config.Config
}

// NewOAuthHandler creates the OAuth endpoint set.
func NewOAuthHandler(server *oauth.Server, cfg config.Config) *OAuthHandler {
	return &OAuthHandler{Server: server, Cfg: cfg}
}

var consentTemplate = template.Must(template.New("consent").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Authorize {{.ClientName}}</title></head>
<body>
<h1>Authorize {{.ClientName}}</h1>
<p>{{.ClientName}} is requesting access to your meeting data ({{.Scope}}).</p>
<form method="post" action="/oauth/authorize">
  <input type="hidden" name="response_type" value="{{.ResponseType}}">
  <input type="hidden" name="client_id" value="{{.ClientID}}">
  <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
  <input type="hidden" name="scope" value="{{.Scope}}">
  <input type="hidden" name="state" value="{{.State}}">
  <input type="hidden" name="code_challenge" value="{{.CodeChallenge}}">
  <input type="hidden" name="code_challenge_method" value="{{.CodeChallengeMethod}}">
  <label for="token">Paste your access token to approve:</label>
  <input type="password" id="token" name="token" autocomplete="off" required>
  <button type="submit">Approve</button>
</form>
</body>
</html>`))

// Register handles dynamic client registration.
func (h *OAuthHandler) Register(c *gin.Context) {
	var req struct {
		ClientName   string   `json:"client_name"`
		RedirectURIs []string `json:"redirect_uris"`
		Scope        string   `json:"scope"`
		GrantTypes   []string `json:"grant_types"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_client_metadata", "error_description": "Request body must be valid JSON."})
		return
	}

	out, err := h.Server.Register(c.Request.Context(), oauth.RegistrationInput{
		Name:         req.ClientName,
		RedirectURIs: req.RedirectURIs,
		Scope:        req.Scope,
		GrantTypes:   req.GrantTypes,
	})
	if err != nil {
		writeOAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"client_id":                  out.ClientID,
		"client_secret":              out.ClientSecret,
		"client_name":                out.Name,
		"redirect_uris":              out.RedirectURIs,
		"scope":                      out.Scope,
		"grant_types":                out.GrantTypes,
		"token_endpoint_auth_method": "client_secret_post",
	})
}

// Authorize validates the request and renders the consent page.
func (h *OAuthHandler) Authorize(c *gin.Context) {
	req := authorizeRequestFromQuery(c)
	client, err := h.Server.Authorize(c.Request.Context(), req)
	if err != nil {
		writeOAuthError(c, err)
		return
	}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	_ = consentTemplate.Execute(c.Writer, gin.H{
		"ClientName":          client.Name,
		"ClientID":            req.ClientID,
		"RedirectURI":         req.RedirectURI,
		"ResponseType":        req.ResponseType,
		"Scope":               req.Scope,
		"State":               req.State,
		"CodeChallenge":       req.CodeChallenge,
		"CodeChallengeMethod": req.CodeChallengeMethod,
	})
}

// AuthorizeSubmit consumes the consent form and redirects with a code.
func (h *OAuthHandler) AuthorizeSubmit(c *gin.Context) {
	req := oauth.AuthorizeRequest{
		ResponseType:        c.PostForm("response_type"),
		ClientID:            c.PostForm("client_id"),
		RedirectURI:         c.PostForm("redirect_uri"),
		Scope:               c.PostForm("scope"),
		State:               c.PostForm("state"),
		CodeChallenge:       c.PostForm("code_challenge"),
		CodeChallengeMethod: c.PostForm("code_challenge_method"),
	}

	redirect, err := h.Server.CompleteAuthorize(c.Request.Context(), req, c.PostForm("token"))
	if err != nil {
		writeOAuthError(c, err)
		return
	}
	c.Redirect(http.StatusFound, redirect)
}

// Token handles code and refresh grants.
func (h *OAuthHandler) Token(c *gin.Context) {
	var req struct {
		GrantType    string `form:"grant_type" binding:"required"`
		Code         string `form:"code"`
		RedirectURI  string `form:"redirect_uri"`
		ClientID     string `form:"client_id"`
		ClientSecret string `form:"client_secret"`
		CodeVerifier string `form:"code_verifier"`
		RefreshToken string `form:"refresh_token"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid token request."})
		return
	}

	// client_secret_basic is accepted alongside form credentials.
	if req.ClientID == "" {
		if id, secret, ok := c.Request.BasicAuth(); ok {
			req.ClientID = id
			req.ClientSecret = secret
		}
	}

	resp, err := h.Server.Token(c.Request.Context(), oauth.TokenRequest{
		GrantType:    req.GrantType,
		Code:         req.Code,
		RedirectURI:  req.RedirectURI,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		CodeVerifier: req.CodeVerifier,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		writeOAuthError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, resp)
}

// Revoke marks a token unusable. The response is 200 regardless of whether
// the token was live, per RFC 7009.
func (h *OAuthHandler) Revoke(c *gin.Context) {
	token := c.PostForm("token")
	if token != "" {
		h.Server.Revoke(c.Request.Context(), token)
	}
	c.JSON(http.StatusOK, gin.H{})
}

// AuthorizationServerMetadata serves RFC 8414 discovery.
func (h *OAuthHandler) AuthorizationServerMetadata(c *gin.Context) {
	base := h.Cfg.PublicBaseURL
	c.JSON(http.StatusOK, gin.H{
		"issuer":                                base,
		"authorization_endpoint":                base + "/oauth/authorize",
		"token_endpoint":                        base + "/oauth/token",
		"registration_endpoint":                 base + "/oauth/register",
		"revocation_endpoint":                   base + "/oauth/revoke",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_post", "client_secret_basic"},
		"scopes_supported":                      []string{"meetings"},
	})
}

// ProtectedResourceMetadata serves RFC 9728 discovery.
func (h *OAuthHandler) ProtectedResourceMetadata(c *gin.Context) {
	base := h.Cfg.PublicBaseURL
	c.JSON(http.StatusOK, gin.H{
		"resource":                 base,
		"authorization_servers":    []string{base},
		"bearer_methods_supported": []string{"header"},
		"scopes_supported":         []string{"meetings"},
	})
}

func authorizeRequestFromQuery(c *gin.Context) oauth.AuthorizeRequest {
	return oauth.AuthorizeRequest{
		ResponseType:        c.Query("response_type"),
		ClientID:            c.Query("client_id"),
		RedirectURI:         c.Query("redirect_uri"),
		Scope:               c.Query("scope"),
		State:               c.Query("state"),
		CodeChallenge:       c.Query("code_challenge"),
		CodeChallengeMethod: c.Query("code_challenge_method"),
	}
}

func writeOAuthError(c *gin.Context, err error) {
	var oauthErr *oauth.OAuthError
	if errors.As(err, &oauthErr) {
		c.JSON(oauthErr.Status, gin.H{"error": oauthErr.Code, "error_description": oauthErr.Description})
		return
	}
	if errors.Is(err, domain.ErrUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server_error", "error_description": "Service temporarily unavailable."})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal error."})
}
