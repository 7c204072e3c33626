package session_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizgate/bizgate/internal/auth"
	"github.com/bizgate/bizgate/internal/session"
	"github.com/bizgate/bizgate/internal/shared"
	"github.com/bizgate/bizgate/internal/token"
)

type stubResolver map[string]*auth.Identity

func (s stubResolver) IdentityForAccessToken(ctx context.Context, raw string) (*auth.Identity, error) {
	switch raw {
	case "expired":
		return nil, fmt.Errorf("%w: %w", shared.ErrUnauthenticated, token.ErrExpired)
	case "db-down":
		return nil, errors.New("connection refused")
	}
	identity, ok := s[raw]
	if !ok {
		return nil, shared.ErrUnauthenticated
	}
	return identity, nil
}

func TestRequire(t *testing.T) {
	alice := &auth.Identity{ID: 7, Username: "alice", Role: shared.RoleUser}
	mw := session.NewMiddleware(stubResolver{"good": alice}, nil)

	var seen *auth.Identity
	handler := mw.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := session.IdentityFromContext(r.Context())
		require.True(t, ok)
		seen = identity
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing header", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "expired token", header: "Bearer expired", status: http.StatusUnauthorized},
		{name: "store failure", header: "Bearer db-down", status: http.StatusInternalServerError},
		{name: "valid", header: "Bearer good", status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"type":"unauthenticated"`)
			}
		})
	}
	assert.Same(t, alice, seen)
}

func TestIdentityFromEmptyContext(t *testing.T) {
	_, ok := session.IdentityFromContext(context.Background())
	assert.False(t, ok)
}
