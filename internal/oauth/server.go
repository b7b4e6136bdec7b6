// Package oauth implements the authorization server third-party clients use
// to obtain delegated access: dynamic client registration, the PKCE
// authorization-code flow bridged to an existing bearer token, and refresh
// rotation with replay detection.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/meetingintel/server/internal/auth"
	"github.com/meetingintel/server/internal/config"
	"github.com/meetingintel/server/internal/domain"
	"github.com/meetingintel/server/internal/jwt"
	"github.com/meetingintel/server/internal/repository"
	"github.com/meetingintel/server/internal/secret"
)

// OAuthError standardizes OAuth compliant errors.
type OAuthError struct {
	Code        string
	Description string
	Status      int
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newOAuthError(code, desc string, status int) *OAuthError {
	return &OAuthError{Code: code, Description: desc, Status: status}
}

// TokenResponse is the token endpoint payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// RegistrationInput is the dynamic client registration request.
type RegistrationInput struct {
	Name         string
	RedirectURIs []string
	Scope        string
	GrantTypes   []string
}

// RegistrationOutput echoes the stored client plus the plaintext secret,
// which is never recoverable afterwards.
type RegistrationOutput struct {
	ClientID     string
	ClientSecret string
	Name         string
	RedirectURIs []string
	Scope        string
	GrantTypes   []string
}

// AuthorizeRequest carries the query parameters of an authorization request.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// TokenRequest carries the form parameters of a token request.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	RefreshToken string
}

type pendingCode struct {
	ClientID    string
	RedirectURI string
	Challenge   string
	Scope       string
	Email       string
	ExpiresAt   time.Time
}

// Server is the OAuth authorization server. Authorization codes are held in
// memory only; an issued code dies with the process, which is acceptable for
// a 10-minute single-use artifact.
type Server struct {
	clients   repository.OAuthClientRepository
	ledger    repository.RefreshLedger
	validator *auth.Validator
	signer    *jwt.Signer
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer

	mu    sync.Mutex
	codes map[string]pendingCode

	now func() time.Time
}

// NewServer wires the authorization server.
func NewServer(
	clients repository.OAuthClientRepository,
	ledger repository.RefreshLedger,
	validator *auth.Validator,
	signer *jwt.Signer,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		clients:   clients,
		ledger:    ledger,
		validator: validator,
		signer:    signer,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("github.com/meetingintel/server/internal/oauth"),
		codes:     make(map[string]pendingCode),
		now:       time.Now,
	}
}

// Register creates a client if every redirect URI points at an allowlisted
// host. The plaintext secret is returned exactly once.
func (s *Server) Register(ctx context.Context, in RegistrationInput) (*RegistrationOutput, error) {
	ctx, span := s.startSpan(ctx, "OAuthServer.Register")
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "Unnamed client"
	}
	if len(in.RedirectURIs) == 0 {
		return nil, newOAuthError("invalid_client_metadata", "At least one redirect_uri is required.", 400)
	}
	for _, raw := range in.RedirectURIs {
		if err := s.checkRedirectURI(raw); err != nil {
			return nil, err
		}
	}

	scope := strings.TrimSpace(in.Scope)
	if scope == "" {
		scope = "meetings"
	}
	grantTypes := in.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{"authorization_code", "refresh_token"}
	}

	plaintext, err := secureRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate client secret: %w", err)
	}
	hash, err := secret.Hash(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash client secret: %w", err)
	}

	client := domain.OAuthClient{
		ClientID:     uuid.NewString(),
		SecretHash:   hash,
		Name:         name,
		RedirectURIs: in.RedirectURIs,
		Scope:        scope,
		GrantTypes:   grantTypes,
	}
	if err := s.clients.Create(ctx, client); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: persist client: %v", domain.ErrUnavailable, err)
	}

	s.audit("oauth.client.registered", "client_id", client.ClientID, "name", name)

	return &RegistrationOutput{
		ClientID:     client.ClientID,
		ClientSecret: plaintext,
		Name:         client.Name,
		RedirectURIs: client.RedirectURIs,
		Scope:        client.Scope,
		GrantTypes:   client.GrantTypes,
	}, nil
}

// Authorize validates an authorization request before any consent UI is
// shown. It returns the client so the consent page can name it.
func (s *Server) Authorize(ctx context.Context, in AuthorizeRequest) (*domain.OAuthClient, error) {
	if in.ResponseType != "code" {
		return nil, newOAuthError("unsupported_response_type", "Only response_type=code is supported.", 400)
	}
	if in.CodeChallenge == "" {
		return nil, newOAuthError("invalid_request", "PKCE code_challenge is required.", 400)
	}
	if in.CodeChallengeMethod != "S256" {
		return nil, newOAuthError("invalid_request", "Only code_challenge_method=S256 is supported.", 400)
	}

	client, err := s.clients.GetByClientID(ctx, in.ClientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, newOAuthError("invalid_client", "Unknown client.", 400)
		}
		return nil, fmt.Errorf("%w: client lookup: %v", domain.ErrUnavailable, err)
	}
	if !client.AllowsRedirect(in.RedirectURI) {
		return nil, newOAuthError("invalid_request", "redirect_uri is not registered for this client.", 400)
	}
	return &client, nil
}

// CompleteAuthorize bridges consent to an existing bearer token: the token is
// validated, its principal's email is bound to a fresh single-use code, and
// the redirect URL is returned.
func (s *Server) CompleteAuthorize(ctx context.Context, in AuthorizeRequest, userToken string) (string, error) {
	ctx, span := s.startSpan(ctx, "OAuthServer.CompleteAuthorize")
	defer span.End()

	client, err := s.Authorize(ctx, in)
	if err != nil {
		return "", err
	}

	principal, err := s.validator.Validate(ctx, userToken)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrUnavailable) {
			return "", err
		}
		return "", newOAuthError("access_denied", "The supplied token is not valid.", 401)
	}

	code, err := secureRandomString(32)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	scope := strings.TrimSpace(in.Scope)
	if scope == "" {
		scope = client.Scope
	}

	s.mu.Lock()
	s.codes[code] = pendingCode{
		ClientID:    client.ClientID,
		RedirectURI: in.RedirectURI,
		Challenge:   in.CodeChallenge,
		Scope:       scope,
		Email:       principal.Email,
		ExpiresAt:   s.now().Add(s.cfg.AuthCodeTTL),
	}
	s.mu.Unlock()

	s.audit("oauth.code.issued", "client_id", client.ClientID, "email", principal.Email)

	redirect, err := url.Parse(in.RedirectURI)
	if err != nil {
		return "", newOAuthError("invalid_request", "redirect_uri is not a valid URL.", 400)
	}
	params := redirect.Query()
	params.Set("code", code)
	if in.State != "" {
		params.Set("state", in.State)
	}
	redirect.RawQuery = params.Encode()
	return redirect.String(), nil
}

// Token dispatches a token request by grant type.
func (s *Server) Token(ctx context.Context, in TokenRequest) (*TokenResponse, error) {
	switch in.GrantType {
	case "authorization_code":
		return s.codeGrant(ctx, in)
	case "refresh_token":
		return s.refreshGrant(ctx, in)
	default:
		return nil, newOAuthError("unsupported_grant_type", "Unsupported grant_type.", 400)
	}
}

func (s *Server) codeGrant(ctx context.Context, in TokenRequest) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "OAuthServer.codeGrant")
	defer span.End()

	client, err := s.authenticateClient(ctx, in.ClientID, in.ClientSecret)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// Single use: the code is removed on first presentation, valid or not.
	s.mu.Lock()
	pending, ok := s.codes[in.Code]
	delete(s.codes, in.Code)
	s.mu.Unlock()

	if !ok || s.now().After(pending.ExpiresAt) {
		return nil, newOAuthError("invalid_grant", "Authorization code is invalid or expired.", 400)
	}
	if pending.ClientID != client.ClientID {
		return nil, newOAuthError("invalid_grant", "Authorization code was issued to another client.", 400)
	}
	if pending.RedirectURI != in.RedirectURI {
		return nil, newOAuthError("invalid_grant", "redirect_uri does not match the authorization request.", 400)
	}
	if pkceChallenge(in.CodeVerifier) != pending.Challenge {
		return nil, newOAuthError("invalid_grant", "PKCE verification failed.", 400)
	}

	family := uuid.NewString()
	resp, err := s.issueTokens(client.ClientID, pending.Email, pending.Scope, family)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.audit("oauth.token.issued", "client_id", client.ClientID, "email", pending.Email, "family", family)
	return resp, nil
}

func (s *Server) refreshGrant(ctx context.Context, in TokenRequest) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "OAuthServer.refreshGrant")
	defer span.End()

	client, err := s.authenticateClient(ctx, in.ClientID, in.ClientSecret)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if in.RefreshToken == "" {
		return nil, newOAuthError("invalid_request", "refresh_token is required.", 400)
	}
	std, custom, err := s.signer.VerifyRefresh(in.RefreshToken)
	if err != nil {
		return nil, newOAuthError("invalid_grant", "Refresh token is invalid or expired.", 401)
	}
	if std.Subject != client.ClientID {
		return nil, newOAuthError("invalid_grant", "Refresh token was issued to another client.", 400)
	}

	revoked, err := s.ledger.IsFamilyRevoked(ctx, custom.Family)
	if err != nil {
		span.RecordError(err)
		return nil, newOAuthError("server_error", "Token service is temporarily unavailable.", 503)
	}
	if revoked {
		return nil, newOAuthError("invalid_grant", "Refresh token family has been revoked.", 401)
	}

	fresh, err := s.ledger.Consume(ctx, auth.HashToken(in.RefreshToken), custom.Family)
	if err != nil {
		span.RecordError(err)
		return nil, newOAuthError("server_error", "Token service is temporarily unavailable.", 503)
	}
	if !fresh {
		// A second redemption of the same secret means it leaked. Kill the
		// whole family so the thief's copy dies with the victim's.
		if s.cfg.RevokeFamilyOnReplay {
			if err := s.ledger.RevokeFamily(ctx, custom.Family); err != nil {
				s.log().Error("revoke family after replay failed", zap.Error(err))
			}
		}
		s.audit("oauth.refresh.replay", "client_id", client.ClientID, "family", custom.Family)
		return nil, newOAuthError("invalid_grant", "Refresh token has already been used.", 401)
	}

	resp, err := s.issueTokens(client.ClientID, custom.Email, custom.Scope, custom.Family)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.audit("oauth.token.refreshed", "client_id", client.ClientID, "family", custom.Family)
	return resp, nil
}

// Revoke marks a refresh token consumed. Per RFC 7009 the outcome is always
// success; an unparseable token is simply ignored.
func (s *Server) Revoke(ctx context.Context, token string) {
	_, custom, err := s.signer.VerifyRefresh(token)
	if err != nil {
		return
	}
	if _, err := s.ledger.Consume(ctx, auth.HashToken(token), custom.Family); err != nil {
		s.log().Warn("revoke consume failed", zap.Error(err))
		return
	}
	s.audit("oauth.token.revoked", "family", custom.Family)
}

// ValidateAccess verifies an access JWT and returns its claims.
func (s *Server) ValidateAccess(token string) (string, *jwt.Claims, error) {
	std, custom, err := s.signer.VerifyAccess(token)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	return std.Subject, custom, nil
}

func (s *Server) issueTokens(clientID, email, scope, family string) (*TokenResponse, error) {
	access, err := s.signer.SignAccess(clientID, email, scope)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.signer.SignRefresh(clientID, email, scope, family)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
		Scope:        scope,
	}, nil
}

func (s *Server) authenticateClient(ctx context.Context, clientID, clientSecret string) (*domain.OAuthClient, error) {
	client, err := s.clients.GetByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, newOAuthError("invalid_client", "Client authentication failed.", 401)
		}
		return nil, newOAuthError("server_error", "Token service is temporarily unavailable.", 503)
	}
	ok, err := secret.Verify(clientSecret, client.SecretHash)
	if err != nil || !ok {
		return nil, newOAuthError("invalid_client", "Client authentication failed.", 401)
	}
	return &client, nil
}

// checkRedirectURI enforces the registration allowlist: exact host match or a
// subdomain of an allowlisted host, https outside the loopback hosts.
func (s *Server) checkRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return newOAuthError("invalid_redirect_uri", fmt.Sprintf("redirect_uri %q is not a valid URL.", raw), 400)
	}
	host := strings.ToLower(u.Hostname())
	loopback := host == "localhost" || host == "127.0.0.1"
	if u.Scheme != "https" && !(u.Scheme == "http" && loopback) {
		return newOAuthError("invalid_redirect_uri", fmt.Sprintf("redirect_uri %q must use https.", raw), 400)
	}
	for _, allowed := range s.cfg.RedirectHosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return newOAuthError("invalid_redirect_uri", fmt.Sprintf("redirect host %q is not allowed.", host), 400)
}

// RunMaintenance sweeps expired authorization codes and prunes the refresh
// ledger until the context is cancelled.
func (s *Server) RunMaintenance(ctx context.Context) {
	codeTicker := time.NewTicker(time.Minute)
	ledgerTicker := time.NewTicker(time.Hour)
	defer codeTicker.Stop()
	defer ledgerTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-codeTicker.C:
			s.sweepCodes()
		case <-ledgerTicker.C:
			pruneCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			removed, err := s.ledger.Prune(pruneCtx, s.cfg.LedgerMaxAge)
			cancel()
			if err != nil {
				s.log().Warn("ledger prune failed", zap.Error(err))
			} else if removed > 0 {
				s.log().Info("ledger pruned", zap.Int64("removed", removed))
			}
		}
	}
}

func (s *Server) sweepCodes() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for code, pending := range s.codes {
		if now.After(pending.ExpiresAt) {
			delete(s.codes, code)
		}
	}
}

func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *Server) audit(event string, attrs ...any) {
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	s.log().Info("audit", fields...)
}

func (s *Server) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
