package httputil_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stockflow/stockflow-backend/pkg/actor"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{Secret: "test-secret", Issuer: "stockflow", TrustGatewayHeaders: true}
}

// echoActor writes the resolved actor ID, or "anonymous"
func echoActor() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a := actor.FromContext(r.Context()); a != nil {
			w.Write([]byte(a.ID + "|" + a.Name))
			return
		}
		w.Write([]byte("anonymous"))
	})
}

func TestAuthenticate(t *testing.T) {
	cfg := testJWTConfig()

	valid, err := httputil.IssueToken(cfg, &actor.Actor{ID: "u-1", Name: "Li Wei"}, time.Hour)
	require.NoError(t, err)

	expired, err := httputil.IssueToken(cfg, &actor.Actor{ID: "u-1"}, -time.Minute)
	require.NoError(t, err)

	otherIssuer, err := httputil.IssueToken(&config.JWTConfig{Secret: "test-secret", Issuer: "elsewhere"}, &actor.Actor{ID: "u-1"}, time.Hour)
	require.NoError(t, err)

	wrongSecret, err := httputil.IssueToken(&config.JWTConfig{Secret: "nope", Issuer: "stockflow"}, &actor.Actor{ID: "u-1"}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		wantBody   string
	}{
		{"valid bearer token", map[string]string{"Authorization": "Bearer " + valid}, http.StatusOK, "u-1|Li Wei"},
		{"expired token", map[string]string{"Authorization": "Bearer " + expired}, http.StatusUnauthorized, ""},
		{"wrong issuer", map[string]string{"Authorization": "Bearer " + otherIssuer}, http.StatusUnauthorized, ""},
		{"wrong secret", map[string]string{"Authorization": "Bearer " + wrongSecret}, http.StatusUnauthorized, ""},
		{"not a bearer scheme", map[string]string{"Authorization": "Basic abc"}, http.StatusUnauthorized, ""},
		{"gateway headers", map[string]string{"X-User-ID": "u-2", "X-User-Name": "Wang"}, http.StatusOK, "u-2|Wang"},
		{"anonymous", nil, http.StatusOK, "anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			httputil.Authenticate(cfg)(echoActor()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestAuthenticate_GatewayHeadersIgnoredWhenUntrusted(t *testing.T) {
	cfg := testJWTConfig()
	cfg.TrustGatewayHeaders = false

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "u-2")
	rec := httptest.NewRecorder()

	httputil.Authenticate(cfg)(echoActor()).ServeHTTP(rec, req)

	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestRequireActor(t *testing.T) {
	handler := httputil.RequireActor(echoActor())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(actor.WithActor(req.Context(), &actor.Actor{ID: "u-1"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
