package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ecowatt/tourate/pkg/controller"
	"github.com/ecowatt/tourate/pkg/storage/storagemock"
	"github.com/ecowatt/tourate/pkg/tariff"
	"github.com/ecowatt/tourate/pkg/types"
)

type mockTickRunner struct {
	mock.Mock
}

func (m *mockTickRunner) RunTick(ctx context.Context, categories []types.RateCategory, now time.Time) controller.TickReport {
	args := m.Called(ctx, categories, now)
	return args.Get(0).(controller.TickReport)
}

type mockQuoter struct {
	mock.Mock
}

func (m *mockQuoter) Quote(category types.RateCategory, now time.Time) tariff.Quote {
	args := m.Called(category, now)
	return args.Get(0).(tariff.Quote)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendTest(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

var testNow = time.Date(2025, time.January, 15, 4, 30, 0, 0, time.UTC)

type testServer struct {
	*Server
	ticker   *mockTickRunner
	quoter   *mockQuoter
	db       *storagemock.MockDatabase
	notifier *mockSender
}

func newTestServer() *testServer {
	ts := &testServer{
		ticker:   &mockTickRunner{},
		quoter:   &mockQuoter{},
		db:       &storagemock.MockDatabase{},
		notifier: &mockSender{},
	}
	ts.Server = &Server{
		controller:  ts.ticker,
		engine:      ts.quoter,
		storage:     ts.db,
		notifier:    ts.notifier,
		categories:  types.AllRateCategories,
		tickTimeout: time.Minute,
		now:         func() time.Time { return testNow },
		listenAddr:  ":8080",
		serverName:  "tourate-test",
	}
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.setupHandler().ServeHTTP(w, req)
	return w
}

// testIssuer serves OIDC discovery and a JWKS so real go-oidc verifiers can be
// exercised against locally signed ID tokens.
type testIssuer struct {
	srv    *httptest.Server
	signer jose.Signer
}

const testKeyID = "test-key"

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	ti := &testIssuer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                ti.srv.URL,
			"authorization_endpoint":                ti.srv.URL + "/auth",
			"token_endpoint":                        ti.srv.URL + "/token",
			"jwks_uri":                              ti.srv.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{string(jose.RS256)},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key:       &key.PublicKey,
			KeyID:     testKeyID,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		}}})
	})
	ti.srv = httptest.NewServer(mux)
	t.Cleanup(ti.srv.Close)

	ti.signer, err = jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", testKeyID),
	)
	require.NoError(t, err)
	return ti
}

func (ti *testIssuer) verifier(t *testing.T, audience string) tokenVerifier {
	t.Helper()
	provider, err := oidc.NewProvider(context.Background(), ti.srv.URL)
	require.NoError(t, err)
	return provider.Verifier(&oidc.Config{ClientID: audience}).Verify
}

func (ti *testIssuer) token(t *testing.T, audience, email string, verified bool, expires time.Time) string {
	t.Helper()
	raw, err := jwt.Signed(ti.signer).Claims(map[string]any{
		"iss":            ti.srv.URL,
		"aud":            audience,
		"sub":            "1234567890",
		"email":          email,
		"email_verified": verified,
		"iat":            time.Now().Add(-time.Minute).Unix(),
		"exp":            expires.Unix(),
	}).Serialize()
	require.NoError(t, err)
	return raw
}
