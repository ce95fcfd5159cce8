package adminclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInProgressSendsBearerTokenAndNamespaceFilter(t *testing.T) {
	var gotAuth, gotNS string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotNS = r.URL.Query().Get("ns")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": 1, "inprog": []any{}})
	}))
	defer srv.Close()

	c := New(srv.URL).WithToken("secret-token")
	result, err := c.InProgress("test.coll")
	require.NoError(t, err)
	require.Equal(t, "Bearer secret-token", gotAuth)
	require.Equal(t, "test.coll", gotNS)
	require.Equal(t, float64(1), result["ok"])
}

func TestKillOpSendsNumericBody(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": 1})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.KillOp(42)
	require.NoError(t, err)
	require.Equal(t, float64(42), gotBody["op"])
}

func TestDoReturnsAPIErrorOnFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("missing bearer token"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Unlock()
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
