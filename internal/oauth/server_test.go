package oauth

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meetingintel/server/internal/auth"
	"github.com/meetingintel/server/internal/config"
	"github.com/meetingintel/server/internal/domain"
	"github.com/meetingintel/server/internal/jwt"
	"github.com/meetingintel/server/internal/repository"
	"github.com/meetingintel/server/internal/secret"
)

type stubClientRepo struct {
	mu      sync.Mutex
	clients map[string]domain.OAuthClient
}

var _ repository.OAuthClientRepository = (*stubClientRepo)(nil)

func newStubClientRepo() *stubClientRepo {
	return &stubClientRepo{clients: make(map[string]domain.OAuthClient)}
}

func (r *stubClientRepo) GetByClientID(_ context.Context, clientID string) (domain.OAuthClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	client, ok := r.clients[clientID]
	if !ok {
		return domain.OAuthClient{}, pgx.ErrNoRows
	}
	return client, nil
}

func (r *stubClientRepo) Create(_ context.Context, client domain.OAuthClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.ClientID] = client
	return nil
}

type stubLedger struct {
	mu       sync.Mutex
	consumed map[string]string
	revoked  map[string]bool
}

var _ repository.RefreshLedger = (*stubLedger)(nil)

func newStubLedger() *stubLedger {
	return &stubLedger{consumed: make(map[string]string), revoked: make(map[string]bool)}
}

func (l *stubLedger) Consume(_ context.Context, tokenHash, familyID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, seen := l.consumed[tokenHash]; seen {
		return false, nil
	}
	l.consumed[tokenHash] = familyID
	return true, nil
}

func (l *stubLedger) IsFamilyRevoked(_ context.Context, familyID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.revoked[familyID], nil
}

func (l *stubLedger) RevokeFamily(_ context.Context, familyID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revoked[familyID] = true
	return nil
}

func (l *stubLedger) Prune(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

type stubTokenStore struct {
	tokens map[string]domain.ClientToken
	owners map[string]domain.Principal
}

var _ auth.TokenStore = (*stubTokenStore)(nil)

func (s *stubTokenStore) GetTokenByHash(_ context.Context, hash string) (domain.ClientToken, domain.Principal, error) {
	token, ok := s.tokens[hash]
	if !ok {
		return domain.ClientToken{}, domain.Principal{}, pgx.ErrNoRows
	}
	return token, s.owners[hash], nil
}

func (s *stubTokenStore) TouchTokenLastUsed(_ context.Context, _ string) error { return nil }

const (
	userToken    = "opaque-user-token"
	clientSecret = "registered-client-secret"
	codeVerifier = "test-code-verifier-with-enough-entropy"
)

type fixture struct {
	server  *Server
	clients *stubClientRepo
	ledger  *stubLedger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.Config{
		PublicBaseURL:        "https://meetings.example.com",
		AccessTokenTTL:       time.Hour,
		RefreshTokenTTL:      30 * 24 * time.Hour,
		AuthCodeTTL:          10 * time.Minute,
		RedirectHosts:        []string{"claude.ai", "localhost"},
		RevokeFamilyOnReplay: true,
		LedgerMaxAge:         35 * 24 * time.Hour,
	}

	store := &stubTokenStore{
		tokens: map[string]domain.ClientToken{
			auth.HashToken(userToken): {ID: 1, TokenHash: auth.HashToken(userToken), IsActive: true},
		},
		owners: map[string]domain.Principal{
			auth.HashToken(userToken): {ID: 42, Email: "alice@example.com"},
		},
	}
	validator := auth.NewValidator(store, 5*time.Minute, 16, zap.NewNop())
	signer := jwt.NewSigner("0123456789abcdef0123456789abcdef", "", cfg.PublicBaseURL, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	clients := newStubClientRepo()
	ledger := newStubLedger()
	server := NewServer(clients, ledger, validator, signer, cfg, zap.NewNop())

	return &fixture{server: server, clients: clients, ledger: ledger}
}

func (f *fixture) seedClient(t *testing.T) domain.OAuthClient {
	t.Helper()
	hash, err := secret.Hash(clientSecret)
	require.NoError(t, err)
	client := domain.OAuthClient{
		ClientID:     "client-1",
		SecretHash:   hash,
		Name:         "Test Client",
		RedirectURIs: []string{"https://claude.ai/api/mcp/auth_callback"},
		Scope:        "meetings",
		GrantTypes:   []string{"authorization_code", "refresh_token"},
	}
	require.NoError(t, f.clients.Create(context.Background(), client))
	return client
}

func (f *fixture) authorize(t *testing.T, client domain.OAuthClient) string {
	t.Helper()
	redirect, err := f.server.CompleteAuthorize(context.Background(), AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            client.ClientID,
		RedirectURI:         client.RedirectURIs[0],
		Scope:               "meetings",
		State:               "abc123",
		CodeChallenge:       pkceChallenge(codeVerifier),
		CodeChallengeMethod: "S256",
	}, userToken)
	require.NoError(t, err)

	parsed, err := url.Parse(redirect)
	require.NoError(t, err)
	require.Equal(t, "abc123", parsed.Query().Get("state"))
	code := parsed.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func TestRegisterAllowsListedHostsOnly(t *testing.T) {
	f := newFixture(t)

	out, err := f.server.Register(context.Background(), RegistrationInput{
		Name:         "Claude",
		RedirectURIs: []string{"https://claude.ai/api/mcp/auth_callback"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.ClientID)
	require.NotEmpty(t, out.ClientSecret)

	stored, err := f.clients.GetByClientID(context.Background(), out.ClientID)
	require.NoError(t, err)
	ok, err := secret.Verify(out.ClientSecret, stored.SecretHash)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.server.Register(context.Background(), RegistrationInput{
		Name:         "Evil",
		RedirectURIs: []string{"https://evil.example.net/callback"},
	})
	var oe *OAuthError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, "invalid_redirect_uri", oe.Code)
}

func TestRegisterAllowsSubdomainsAndLoopbackHTTP(t *testing.T) {
	f := newFixture(t)

	_, err := f.server.Register(context.Background(), RegistrationInput{
		Name:         "Subdomain",
		RedirectURIs: []string{"https://connectors.claude.ai/callback"},
	})
	require.NoError(t, err)

	_, err = f.server.Register(context.Background(), RegistrationInput{
		Name:         "Local dev",
		RedirectURIs: []string{"http://localhost:8484/callback"},
	})
	require.NoError(t, err)

	// Plain http outside the loopback hosts is refused even for an
	// allowlisted domain.
	_, err = f.server.Register(context.Background(), RegistrationInput{
		Name:         "Insecure",
		RedirectURIs: []string{"http://claude.ai/callback"},
	})
	require.Error(t, err)
}

func TestAuthorizationCodeFlow(t *testing.T) {
	f := newFixture(t)
	client := f.seedClient(t)
	code := f.authorize(t, client)

	resp, err := f.server.Token(context.Background(), TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  client.RedirectURIs[0],
		ClientID:     client.ClientID,
		ClientSecret: clientSecret,
		CodeVerifier: codeVerifier,
	})
	require.NoError(t, err)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, 3600, resp.ExpiresIn)
	require.NotEmpty(t, resp.RefreshToken)

	subject, claims, err := f.server.ValidateAccess(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, client.ClientID, subject)
	require.Equal(t, "alice@example.com", claims.Email)
	require.Equal(t, "meetings", claims.Scope)
}

func TestAuthorizationCodeSingleUse(t *testing.T) {
	f := newFixture(t)
	client := f.seedClient(t)
	code := f.authorize(t, client)

	req := TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  client.RedirectURIs[0],
		ClientID:     client.ClientID,
		ClientSecret: clientSecret,
		CodeVerifier: codeVerifier,
	}
	_, err := f.server.Token(context.Background(), req)
	require.NoError(t, err)

	_, err = f.server.Token(context.Background(), req)
	var oe *OAuthError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, "invalid_grant", oe.Code)
}

func TestAuthorizationCodeExpires(t *testing.T) {
	f := newFixture(t)
	client := f.seedClient(t)
	code := f.authorize(t, client)

	f.server.now = func() time.Time { return time.Now().Add(11 * time.Minute) }

	_, err := f.server.Token(context.Background(), TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  client.RedirectURIs[0],
		ClientID:     client.ClientID,
		ClientSecret: clientSecret,
		CodeVerifier: codeVerifier,
	})
	var oe *OAuthError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, "invalid_grant", oe.Code)
}

func TestPKCEVerifierMismatch(t *testing.T) {
	f := newFixture(t)
	client := f.seedClient(t)
	code := f.authorize(t, client)

	_, err := f.server.Token(context.Background(), TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  client.RedirectURIs[0],
		ClientID:     client.ClientID,
		ClientSecret: clientSecret,
		CodeVerifier: "some-other-verifier",
	})
	var oe *OAuthError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, "invalid_grant", oe.Code)
}

func TestAuthorizeRejectsPlainChallengeMethod(t *testing.T) {
	f := newFixture(t)
	client := f.seedClient(t)

	_, err := f.server.Authorize(context.Background(), AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            client.ClientID,
		RedirectURI:         client.RedirectURIs[0],
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "plain",
	})
	var oe *OAuthError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, "invalid_request", oe.Code)
}

func TestClientSecretRequired(t *testing.T) {
	f := newFixture(t)
	client := f.seedClient(t)
	code := f.authorize(t, client)

	_, err := f.server.Token(context.Background(), TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  client.RedirectURIs[0],
		ClientID:     client.ClientID,
		ClientSecret: "wrong-secret",
		CodeVerifier: codeVerifier,
	})
	var oe *OAuthError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, "invalid_client", oe.Code)
	require.Equal(t, 401, oe.Status)
}

func TestRefreshRotationAndReplay(t *testing.T) {
	f := newFixture(t)
	client := f.seedClient(t)
	code := f.authorize(t, client)

	first, err := f.server.Token(context.Background(), TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  client.RedirectURIs[0],
		ClientID:     client.ClientID,
		ClientSecret: clientSecret,
		CodeVerifier: codeVerifier,
	})
	require.NoError(t, err)

	refreshReq := TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: first.RefreshToken,
		ClientID:     client.ClientID,
		ClientSecret: clientSecret,
	}
	second, err := f.server.Token(context.Background(), refreshReq)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// Presenting the consumed token again is replay: it fails and kills the
	// whole family.
	_, err = f.server.Token(context.Background(), refreshReq)
	var oe *OAuthError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, "invalid_grant", oe.Code)
	require.Equal(t, 401, oe.Status)

	_, err = f.server.Token(context.Background(), TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: second.RefreshToken,
		ClientID:     client.ClientID,
		ClientSecret: clientSecret,
	})
	require.ErrorAs(t, err, &oe)
	require.Equal(t, 401, oe.Status)
}

func TestExpiredRefreshTokenIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	client := f.seedClient(t)
	code := f.authorize(t, client)

	// Refresh tokens signed with a negative TTL are already expired when
	// issued.
	f.server.signer = jwt.NewSigner("0123456789abcdef0123456789abcdef", "", f.server.cfg.PublicBaseURL, time.Hour, -time.Hour)

	resp, err := f.server.Token(context.Background(), TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  client.RedirectURIs[0],
		ClientID:     client.ClientID,
		ClientSecret: clientSecret,
		CodeVerifier: codeVerifier,
	})
	require.NoError(t, err)

	_, err = f.server.Token(context.Background(), TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: resp.RefreshToken,
		ClientID:     client.ClientID,
		ClientSecret: clientSecret,
	})
	var oe *OAuthError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, "invalid_grant", oe.Code)
	require.Equal(t, 401, oe.Status)
}

func TestRevokeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	client := f.seedClient(t)
	code := f.authorize(t, client)

	resp, err := f.server.Token(context.Background(), TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  client.RedirectURIs[0],
		ClientID:     client.ClientID,
		ClientSecret: clientSecret,
		CodeVerifier: codeVerifier,
	})
	require.NoError(t, err)

	// Garbage and double revocation are both silently accepted.
	f.server.Revoke(context.Background(), "not-a-jwt")
	f.server.Revoke(context.Background(), resp.RefreshToken)
	f.server.Revoke(context.Background(), resp.RefreshToken)

	// The revoked token can no longer be redeemed.
	_, err = f.server.Token(context.Background(), TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: resp.RefreshToken,
		ClientID:     client.ClientID,
		ClientSecret: clientSecret,
	})
	var oe *OAuthError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, "invalid_grant", oe.Code)
}

func TestSweepRemovesExpiredCodes(t *testing.T) {
	f := newFixture(t)
	client := f.seedClient(t)
	f.authorize(t, client)

	f.server.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	f.server.sweepCodes()

	f.server.mu.Lock()
	defer f.server.mu.Unlock()
	require.Empty(t, f.server.codes)
}
