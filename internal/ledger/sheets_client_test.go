package ledger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

func TestSheetsHTTPClientIsTracedAndAuthorized(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	client := newSheetsHTTPClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}))
	tr, ok := client.Transport.(*oauth2.Transport)
	require.True(t, ok)
	require.IsType(t, &otelhttp.Transport{}, tr.Base)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, "Bearer tok", auth)
}
