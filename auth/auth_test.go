package auth

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token%d","token_type":"bearer","expires_in":3600}`, n)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestGetTokenIsCached(t *testing.T) {
	srv, calls := tokenServer(t)
	client := NewClientCred(Conf{ClientID: "id", ClientSecret: "secret", AuthURL: srv.URL})

	tok, err := client.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "token1", tok)
	tok, err = client.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "token1", tok)
	assert.EqualValues(t, 1, calls.Load())
}

func TestForceRefresh(t *testing.T) {
	srv, calls := tokenServer(t)
	client := NewClientCred(Conf{ClientID: "id", ClientSecret: "secret", AuthURL: srv.URL})

	_, err := client.GetToken()
	require.NoError(t, err)
	tok, err := client.ForceRefresh()
	require.NoError(t, err)
	assert.Equal(t, "token2", tok)
	assert.EqualValues(t, 2, calls.Load())
}

func TestGetTokenError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()
	_, err := NewClientCred(Conf{ClientID: "id", ClientSecret: "bad", AuthURL: srv.URL}).GetToken()
	assert.ErrorContains(t, err, "failed to get token")
}

func TestConfValidate(t *testing.T) {
	assert.Error(t, Conf{ClientID: "id"}.Validate())
	assert.NoError(t, Conf{ClientID: "id", ClientSecret: "s", AuthURL: "http://idp/token"}.Validate())
}
