package github

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/sync/singleflight"
)

const (
	// appCredentialTTL is the lifetime of the signed App JWT. GitHub caps
	// this at 10 minutes.
	appCredentialTTL = 10 * time.Minute

	// tokenSafetyMargin expires cached installation tokens early so a token
	// handed to a caller never dies mid-request.
	tokenSafetyMargin = 5 * time.Minute
)

type installationToken struct {
	token     string
	expiresAt time.Time
}

// TokenManager owns the App identity credential and the per-installation
// access token cache. Tokens live only in process memory. Concurrent callers
// for the same installation share a single exchange; waiters reuse the
// freshly obtained token instead of re-issuing.
type TokenManager struct {
	appID      int64
	key        *rsa.PrivateKey
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.Mutex
	cache map[int64]installationToken
	group singleflight.Group
}

// NewTokenManager parses the App's PEM private key and returns a manager.
// The privateKey should be the PEM-encoded private key of the GitHub App.
func NewTokenManager(appID int64, privateKey []byte, logger *slog.Logger) (*TokenManager, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKey)
	if err != nil {
		return nil, &CredentialError{Err: fmt.Errorf("parse private key: %w", err)}
	}

	return &TokenManager{
		appID:      appID,
		key:        key,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		cache:      make(map[int64]installationToken),
	}, nil
}

// SetBaseURL overrides the API base URL, primarily for tests.
func (m *TokenManager) SetBaseURL(u string) {
	m.baseURL = u
}

// IssueAppCredential signs a short-lived JWT identifying the App itself:
// iat=now, exp=now+10m, iss=app_id. The credential is never cached; callers
// re-derive whenever they need one.
func (m *TokenManager) IssueAppCredential() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(appCredentialTTL)),
		Issuer:    strconv.FormatInt(m.appID, 10),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.key)
	if err != nil {
		return "", &CredentialError{Err: fmt.Errorf("sign credential: %w", err)}
	}
	return signed, nil
}

// InstallationToken returns an access token for the installation, reusing
// the cached one while it is comfortably inside its validity window.
func (m *TokenManager) InstallationToken(ctx context.Context, installationID int64) (string, time.Time, error) {
	if tok, ok := m.cached(installationID); ok {
		return tok.token, tok.expiresAt, nil
	}

	v, err, _ := m.group.Do(strconv.FormatInt(installationID, 10), func() (any, error) {
		// A waiter may have been queued behind the exchange that just
		// populated the cache.
		if tok, ok := m.cached(installationID); ok {
			return tok, nil
		}
		return m.exchange(ctx, installationID)
	})
	if err != nil {
		return "", time.Time{}, err
	}

	tok := v.(installationToken)
	return tok.token, tok.expiresAt, nil
}

func (m *TokenManager) cached(installationID int64) (installationToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, ok := m.cache[installationID]
	if !ok || time.Until(tok.expiresAt) < tokenSafetyMargin {
		return installationToken{}, false
	}
	return tok, true
}

// exchange trades a freshly issued app credential for an installation token.
func (m *TokenManager) exchange(ctx context.Context, installationID int64) (installationToken, error) {
	credential, err := m.IssueAppCredential()
	if err != nil {
		return installationToken{}, err
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", m.baseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return installationToken{}, &NetworkError{Operation: "exchange installation token", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return installationToken{}, &NetworkError{Operation: "exchange installation token", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return installationToken{}, &AuthError{
			InstallationID: installationID,
			StatusCode:     resp.StatusCode,
			Body:           string(body),
		}
	}

	var payload struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return installationToken{}, &NetworkError{Operation: "decode installation token", Err: err}
	}

	tok := installationToken{token: payload.Token, expiresAt: payload.ExpiresAt}

	m.mu.Lock()
	m.cache[installationID] = tok
	m.mu.Unlock()

	m.logger.Info("issued installation token",
		"installation_id", installationID,
		"expires_at", tok.expiresAt,
	)

	return tok, nil
}
