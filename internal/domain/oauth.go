package domain

import "time"

// OAuthClient is a dynamically registered third-party client. The secret is
// persisted as an argon2id hash; the plaintext is returned exactly once at
// registration.
type OAuthClient struct {
	ClientID     string
	SecretHash   string
	Name         string
	RedirectURIs []string
	Scope        string
	GrantTypes   []string
	CreatedAt    time.Time
}

// AllowsRedirect reports whether the URI is registered for the client.
func (c OAuthClient) AllowsRedirect(uri string) bool {
	for _, allowed := range c.RedirectURIs {
		if allowed == uri {
			return true
		}
	}
	return false
}
