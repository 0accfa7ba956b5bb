package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/askelund/forma/internal/config"
)

const signingKid = "forma-signing-1"

// authFixture bundles an RSA signing key, the JWKS endpoint publishing it,
// and an identity config pointing at both.
type authFixture struct {
	key  *rsa.PrivateKey
	cfg  config.IdentityConfig
	jwks *JWKSClient
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	srv := serveJWKS(t, rsaJWK(signingKid, &key.PublicKey))

	return &authFixture{
		key: key,
		cfg: config.IdentityConfig{
			Issuer:       "https://id.forma.dev",
			Audience:     "forma-designer",
			Algorithms:   []string{"RS256"},
			RequiredRole: "designer",
		},
		jwks: NewJWKSClient(srv.URL, time.Hour),
	}
}

// token signs a designer token, letting the test mutate the claims first.
func (f *authFixture) token(t *testing.T, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":   f.cfg.Issuer,
		"aud":   f.cfg.Audience,
		"sub":   "designer-1",
		"email": "designer@acme.example.com",
		"roles": []any{"designer"},
		"iat":   jwt.NewNumericDate(time.Now()),
		"exp":   jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = signingKid
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// do runs a request with the given Authorization header through the
// authenticator and records what reaches the inner handler.
func (f *authFixture) do(t *testing.T, authorization string) (code int, claims map[string]any) {
	t.Helper()
	handler := JWTAuthenticator(f.cfg, f.jwks)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims = ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/designer/acme/permit/layout-sets", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Code, claims
}

func serveJWKS(t *testing.T, keys ...map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"keys": keys})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func rsaJWK(kid string, pub *rsa.PublicKey) map[string]any {
	return map[string]any{
		"kid": kid,
		"kty": "RSA",
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func ecJWK(kid string, pub *ecdsa.PublicKey) map[string]any {
	return map[string]any{
		"kid": kid,
		"kty": "EC",
		"crv": "P-256",
		"use": "sig",
		"x":   base64.RawURLEncoding.EncodeToString(pub.X.Bytes()),
		"y":   base64.RawURLEncoding.EncodeToString(pub.Y.Bytes()),
	}
}

// --- JWKSClient ---

func TestJWKSClient_GetKey_parsesRSAAndEC(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	srv := serveJWKS(t, rsaJWK("rsa-1", &rsaKey.PublicKey), ecJWK("ec-1", &ecKey.PublicKey))
	client := NewJWKSClient(srv.URL, time.Hour)

	got, err := client.GetKey("rsa-1")
	if err != nil {
		t.Fatalf("GetKey(rsa-1): %v", err)
	}
	if pub, ok := got.(*rsa.PublicKey); !ok || pub.N.Cmp(rsaKey.N) != 0 {
		t.Errorf("GetKey(rsa-1) = %T, want the published RSA key", got)
	}

	got, err = client.GetKey("ec-1")
	if err != nil {
		t.Fatalf("GetKey(ec-1): %v", err)
	}
	if pub, ok := got.(*ecdsa.PublicKey); !ok || pub.X.Cmp(ecKey.X) != 0 {
		t.Errorf("GetKey(ec-1) = %T, want the published EC key", got)
	}
}

func TestJWKSClient_GetKey_unknownKid(t *testing.T) {
	client := NewJWKSClient(serveJWKS(t).URL, time.Hour)
	if _, err := client.GetKey("nope"); err == nil {
		t.Fatal("GetKey should fail for a kid absent from the key set")
	}
}

func TestJWKSClient_cachesAcrossCalls(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]any{rsaJWK("k", &key.PublicKey)}})
	}))
	defer srv.Close()

	client := NewJWKSClient(srv.URL, time.Hour)
	client.GetKey("k")
	client.GetKey("k")

	if n := fetches.Load(); n != 1 {
		t.Errorf("key set fetched %d times, want 1", n)
	}
}

func TestJWKSClient_servesCachedKeyWhenProviderDown(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches.Add(1) > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]any{rsaJWK("k", &key.PublicKey)}})
	}))
	defer srv.Close()

	// Zero TTL and minRefresh force a refresh attempt on every lookup.
	client := NewJWKSClient(srv.URL, 0)
	client.minRefresh = 0

	if _, err := client.GetKey("k"); err != nil {
		t.Fatalf("initial GetKey: %v", err)
	}
	got, err := client.GetKey("k")
	if err != nil {
		t.Fatalf("GetKey with provider down: %v", err)
	}
	if pub, ok := got.(*rsa.PublicKey); !ok || pub.N.Cmp(key.N) != 0 {
		t.Error("stale cached key should still be served when the provider errors")
	}
}

// --- JWTAuthenticator ---

func TestJWTAuthenticator_admitsDesigner(t *testing.T) {
	f := newAuthFixture(t)

	code, claims := f.do(t, "Bearer "+f.token(t, nil))
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if sub, _ := claims["sub"].(string); sub != "designer-1" {
		t.Errorf("context claims sub = %q, want designer-1", sub)
	}
}

func TestJWTAuthenticator_rejectsBadTokens(t *testing.T) {
	f := newAuthFixture(t)

	cases := []struct {
		name          string
		authorization string
	}{
		{"missing header", ""},
		{"not a bearer scheme", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.jwt"},
		{"expired", "Bearer " + f.token(t, func(c jwt.MapClaims) {
			c["exp"] = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		})},
		{"missing exp", "Bearer " + f.token(t, func(c jwt.MapClaims) {
			delete(c, "exp")
		})},
		{"wrong issuer", "Bearer " + f.token(t, func(c jwt.MapClaims) {
			c["iss"] = "https://id.elsewhere.dev"
		})},
		{"wrong audience", "Bearer " + f.token(t, func(c jwt.MapClaims) {
			c["aud"] = "other-service"
		})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, claims := f.do(t, tc.authorization)
			if code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", code)
			}
			if claims != nil {
				t.Error("inner handler should not run")
			}
		})
	}
}

func TestJWTAuthenticator_disallowedAlgorithm(t *testing.T) {
	f := newAuthFixture(t)
	f.cfg.Algorithms = []string{"ES256"}

	code, _ := f.do(t, "Bearer "+f.token(t, nil))
	if code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for an RS256 token when only ES256 is allowed", code)
	}
}

func TestJWTAuthenticator_unknownSigningKey(t *testing.T) {
	f := newAuthFixture(t)
	// Re-point the client at a key set that does not hold the signing key.
	f.jwks = NewJWKSClient(serveJWKS(t).URL, time.Hour)

	code, _ := f.do(t, "Bearer "+f.token(t, nil))
	if code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for an unknown kid", code)
	}
}

func TestJWTAuthenticator_missingRequiredRole(t *testing.T) {
	f := newAuthFixture(t)

	token := f.token(t, func(c jwt.MapClaims) {
		c["roles"] = []any{"viewer"}
	})
	code, claims := f.do(t, "Bearer "+token)
	if code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 for a token without the designer role", code)
	}
	if claims != nil {
		t.Error("inner handler should not run")
	}
}

func TestJWTAuthenticator_rolesFromNestedClaimPath(t *testing.T) {
	f := newAuthFixture(t)
	f.cfg.ClaimPaths = map[string]string{"roles": "realm_access.roles"}

	token := f.token(t, func(c jwt.MapClaims) {
		delete(c, "roles")
		c["realm_access"] = map[string]any{"roles": []any{"designer"}}
	})
	code, _ := f.do(t, "Bearer "+token)
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200 with roles under realm_access.roles", code)
	}
}

func TestJWTAuthenticator_roleGateDisabled(t *testing.T) {
	f := newAuthFixture(t)
	f.cfg.RequiredRole = ""

	token := f.token(t, func(c jwt.MapClaims) {
		delete(c, "roles")
	})
	code, _ := f.do(t, "Bearer "+token)
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200 when no role is required", code)
	}
}

func TestJWTAuthenticator_clockSkewTolerance(t *testing.T) {
	f := newAuthFixture(t)

	// Expired 15 seconds ago, inside the 30s leeway.
	token := f.token(t, func(c jwt.MapClaims) {
		c["exp"] = jwt.NewNumericDate(time.Now().Add(-15 * time.Second))
	})
	code, _ := f.do(t, "Bearer "+token)
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200 within clock skew tolerance", code)
	}
}
