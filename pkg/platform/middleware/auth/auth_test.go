package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"agentvault/pkg/requestcontext"
)

const testKey = "test-signing-key"

func signedToken(t *testing.T, key, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

func callerThrough(t *testing.T, signingKey string, decorate func(*http.Request)) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var captured string
	handler := CallerIdentity(signingKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = requestcontext.CallerAddress(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodPost, "/vaults", nil)
	decorate(r)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w, captured
}

func TestCallerIdentity(t *testing.T) {
	t.Run("valid token sets caller address", func(t *testing.T) {
		w, caller := callerThrough(t, testKey, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signedToken(t, testKey, "0xabc"))
		})
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "0xabc", caller)
	})

	t.Run("missing token is rejected", func(t *testing.T) {
		w, _ := callerThrough(t, testKey, func(*http.Request) {})
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("token signed with wrong key is rejected", func(t *testing.T) {
		w, _ := callerThrough(t, testKey, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signedToken(t, "other-key", "0xabc"))
		})
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("dev mode trusts caller header", func(t *testing.T) {
		w, caller := callerThrough(t, "", func(r *http.Request) {
			r.Header.Set(DevCallerHeader, "0xowner")
		})
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "0xowner", caller)
	})

	t.Run("dev mode without header is rejected", func(t *testing.T) {
		w, _ := callerThrough(t, "", func(*http.Request) {})
		require.Equal(t, http.StatusForbidden, w.Code)
	})
}
