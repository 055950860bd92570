// Package auth produces bearer tokens for remote store requests.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// driveScope is the access scope requested for every token.
const driveScope = "https://www.googleapis.com/auth/drive"

// defaultTokenURL is used when the key file omits token_uri.
const defaultTokenURL = "https://oauth2.googleapis.com/token"

// expirySlack refreshes tokens this long before they actually expire.
const expirySlack = time.Minute

// Static is a fixed-token source for development and tests.
type Static string

// Token returns the fixed token.
func (s Static) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// credentialsFile mirrors the service-account key JSON.
type credentialsFile struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// ServiceAccount exchanges a signed JWT grant for short-lived bearer tokens.
// Tokens cache in memory and refresh shortly before expiry; concurrent
// callers during a refresh serialize on the internal mutex.
type ServiceAccount struct {
	email      string
	key        *rsa.PrivateKey
	tokenURL   string
	scope      string
	httpClient *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewServiceAccount loads a service-account key file from disk.
func NewServiceAccount(path string) (*ServiceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return ParseServiceAccount(data)
}

// ParseServiceAccount builds a source from raw key JSON.
func ParseServiceAccount(data []byte) (*ServiceAccount, error) {
	var creds credentialsFile
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if creds.ClientEmail == "" || creds.PrivateKey == "" {
		return nil, fmt.Errorf("credentials missing client_email or private_key")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(creds.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	tokenURL := creds.TokenURI
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}

	return &ServiceAccount{
		email:      creds.ClientEmail,
		key:        key,
		tokenURL:   tokenURL,
		scope:      driveScope,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Token returns a cached bearer token, performing the jwt-bearer exchange
// when none is cached or the cached one is about to expire.
func (s *ServiceAccount) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiry) {
		return s.token, nil
	}

	token, expiresIn, err := s.exchange(ctx)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expiry = time.Now().Add(time.Duration(expiresIn)*time.Second - expirySlack)
	return token, nil
}

func (s *ServiceAccount) exchange(ctx context.Context) (string, int64, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   s.email,
		"scope": s.scope,
		"aud":   s.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", 0, fmt.Errorf("sign grant: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("token exchange failed with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tokenResponse struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if tokenResponse.AccessToken == "" {
		return "", 0, fmt.Errorf("token response missing access_token")
	}
	return tokenResponse.AccessToken, tokenResponse.ExpiresIn, nil
}
