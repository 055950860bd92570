package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestStaticToken(t *testing.T) {
	tok, err := Static("fixed").Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok != "fixed" {
		t.Errorf("token = %q", tok)
	}
}

// testKey generates an RSA key and its PEM encoding for fake credentials.
func testKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	return key, string(pemBytes)
}

func credentialsJSON(t *testing.T, email, keyPEM, tokenURL string) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]string{
		"client_email": email,
		"private_key":  keyPEM,
		"token_uri":    tokenURL,
	})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestServiceAccountExchange(t *testing.T) {
	key, keyPEM := testKey(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.Form.Get("grant_type"); got != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
			t.Errorf("grant_type = %q", got)
		}

		parsed, err := jwt.Parse(r.Form.Get("assertion"), func(tok *jwt.Token) (any, error) {
			return &key.PublicKey, nil
		}, jwt.WithValidMethods([]string{"RS256"}))
		if err != nil {
			t.Fatalf("parse assertion: %v", err)
		}
		claims := parsed.Claims.(jwt.MapClaims)
		if claims["iss"] != "robot@example.iam.gserviceaccount.com" {
			t.Errorf("iss = %v", claims["iss"])
		}
		if !strings.Contains(claims["scope"].(string), "auth/drive") {
			t.Errorf("scope = %v", claims["scope"])
		}

		fmt.Fprint(w, `{"access_token":"ya29.test","expires_in":3600,"token_type":"Bearer"}`)
	}))
	defer srv.Close()

	sa, err := ParseServiceAccount(credentialsJSON(t, "robot@example.iam.gserviceaccount.com", keyPEM, srv.URL))
	if err != nil {
		t.Fatalf("ParseServiceAccount: %v", err)
	}

	tok, err := sa.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "ya29.test" {
		t.Errorf("token = %q", tok)
	}

	// Second call must come from the cache.
	if _, err := sa.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("exchanges = %d, want 1", calls.Load())
	}
}

func TestServiceAccountRefreshesWhenExpired(t *testing.T) {
	_, keyPEM := testKey(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":3600}`, n)
	}))
	defer srv.Close()

	sa, err := ParseServiceAccount(credentialsJSON(t, "robot@example.com", keyPEM, srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := sa.Token(context.Background()); err != nil {
		t.Fatal(err)
	}

	sa.mu.Lock()
	sa.expiry = time.Now().Add(-time.Second)
	sa.mu.Unlock()

	tok, err := sa.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok != "tok-2" {
		t.Errorf("token = %q, want tok-2", tok)
	}
	if calls.Load() != 2 {
		t.Errorf("exchanges = %d, want 2", calls.Load())
	}
}

func TestServiceAccountExchangeFailure(t *testing.T) {
	_, keyPEM := testKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	defer srv.Close()

	sa, err := ParseServiceAccount(credentialsJSON(t, "robot@example.com", keyPEM, srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := sa.Token(context.Background()); err == nil {
		t.Fatal("expected exchange failure")
	}
}

func TestParseServiceAccountRejectsBadInput(t *testing.T) {
	if _, err := ParseServiceAccount([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := ParseServiceAccount([]byte(`{"client_email":"a@b.c"}`)); err == nil {
		t.Error("expected error for missing private key")
	}
	if _, err := ParseServiceAccount(credentialsJSON(t, "a@b.c", "not-pem", "")); err == nil {
		t.Error("expected error for unparseable key")
	}
}

func TestNewServiceAccountMissingFile(t *testing.T) {
	if _, err := NewServiceAccount("/nonexistent/key.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
