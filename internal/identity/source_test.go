package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSourceCurrentSession(t *testing.T) {
	t.Run("signed in", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/session", r.URL.Path)
			assert.Equal(t, "Bearer provider-credential", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]string{"identity_token": "assertion-123"})
		}))
		defer srv.Close()

		src := NewHTTPSource(srv.URL, "provider-credential", 5*time.Second)
		sess, err := src.CurrentSession(context.Background())
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.Equal(t, "assertion-123", sess.Assertion)
	})

	t.Run("signed out is not an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no session", http.StatusUnauthorized)
		}))
		defer srv.Close()

		src := NewHTTPSource(srv.URL, "provider-credential", 5*time.Second)
		sess, err := src.CurrentSession(context.Background())
		assert.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("provider failure is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		src := NewHTTPSource(srv.URL, "provider-credential", 5*time.Second)
		_, err := src.CurrentSession(context.Background())
		assert.Error(t, err)
	})
}

func TestHTTPSourceEndSession(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, "provider-credential", 5*time.Second)
	require.NoError(t, src.EndSession(context.Background()))
	assert.Equal(t, http.MethodDelete, method)
}
