package authapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkardes/chrono-meister-sub000/internal/apierr"
)

const testAPIKey = "public-anon-key"

func tokenPayload(expiresIn int64) map[string]any {
	return map[string]any{
		"access_token":  "access-1",
		"refresh_token": "refresh-1",
		"expires_in":    expiresIn,
		"user": map[string]string{
			"id":    "11111111-2222-3333-4444-555555555555",
			"email": "worker@example.com",
		},
	}
}

func TestClient_SignIn(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, testAPIKey, r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "worker@example.com", body["email"])
		assert.Equal(t, "hunter2", body["password"])

		_ = json.NewEncoder(w).Encode(tokenPayload(3600))
	}))
	defer srv.Close()

	client := New(srv.URL, testAPIKey)

	sess, err := client.SignIn(ctx, "worker@example.com", "hunter2")
	require.NoError(t, err)

	assert.Equal(t, "access-1", sess.AccessToken)
	assert.Equal(t, "refresh-1", sess.RefreshToken)
	assert.Equal(t, "worker@example.com", sess.Email)
	assert.InDelta(t, time.Hour.Seconds(), time.Until(sess.ExpiresAt).Seconds(), 5)
}

func TestClient_Refresh(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refresh-0", body["refresh_token"])

		_ = json.NewEncoder(w).Encode(tokenPayload(3600))
	}))
	defer srv.Close()

	client := New(srv.URL, testAPIKey)

	sess, err := client.Refresh(ctx, "refresh-0")
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", sess.RefreshToken)
}

func TestClient_SignOut(t *testing.T) {
	ctx := context.Background()

	var gotBearer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/logout", r.URL.Path)
		gotBearer = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := New(srv.URL, testAPIKey)

	require.NoError(t, client.SignOut(ctx, "access-1"))
	assert.Equal(t, "Bearer access-1", gotBearer)
}

func TestClient_ExpiryFromToken(t *testing.T) {
	ctx := context.Background()

	exp := time.Now().Add(45 * time.Minute).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  signed,
			"refresh_token": "refresh-1",
			"user":          map[string]string{"id": "u1", "email": "worker@example.com"},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, testAPIKey)

	sess, err := client.SignIn(ctx, "worker@example.com", "hunter2")
	require.NoError(t, err)
	assert.True(t, exp.Equal(sess.ExpiresAt), "expiry should come from the token exp claim")
}

func TestClient_ErrorDecoding(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		status    int
		body      string
		wantClass apierr.Class
		wantMsg   string
	}{
		{
			name:      "invalid credentials",
			status:    http.StatusBadRequest,
			body:      `{"error":"invalid_grant","error_description":"Invalid login credentials"}`,
			wantClass: apierr.Unknown,
			wantMsg:   "Invalid login credentials",
		},
		{
			name:      "expired refresh token",
			status:    http.StatusUnauthorized,
			body:      `{"msg":"Invalid Refresh Token: Already Used"}`,
			wantClass: apierr.SessionExpired,
			wantMsg:   "Invalid Refresh Token: Already Used",
		},
		{
			name:      "opaque unauthorized",
			status:    http.StatusUnauthorized,
			body:      `not json`,
			wantClass: apierr.SessionExpired,
			wantMsg:   "Unauthorized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			client := New(srv.URL, testAPIKey)

			_, err := client.SignIn(ctx, "worker@example.com", "wrong")
			require.Error(t, err)

			var backendErr *apierr.BackendError
			require.ErrorAs(t, err, &backendErr)
			assert.Equal(t, tt.status, backendErr.Status)
			assert.Equal(t, tt.wantMsg, backendErr.Message)
			assert.Equal(t, tt.wantClass, apierr.Classify(err))
		})
	}
}

func TestClient_User(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(User{ID: "u1", Email: "worker@example.com"})
	}))
	defer srv.Close()

	client := New(srv.URL, testAPIKey)

	user, err := client.User(ctx, "access-1")
	require.NoError(t, err)
	assert.Equal(t, "worker@example.com", user.Email)
}

func TestClient_IncompleteSession(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "only-half"})
	}))
	defer srv.Close()

	client := New(srv.URL, testAPIKey)

	_, err := client.SignIn(ctx, "worker@example.com", "hunter2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete session")
}
