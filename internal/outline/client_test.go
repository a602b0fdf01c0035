package outline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/vpnboard/internal/apperrors"
)

const token = "/S3cr3tT0k3n"

// newAppliance starts a TLS server with a self-signed certificate that serves
// the management API under the secret path prefix.
func newAppliance(t *testing.T, mux *http.ServeMux) string {
	t.Helper()
	srv := httptest.NewTLSServer(http.StripPrefix(token, mux))
	t.Cleanup(srv.Close)
	return srv.URL + token
}

func TestClientReadsAcceptSelfSignedCertificate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /server", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"name":"Frankfurt","serverId":"abc","version":"1.9.2","createdTimestampMs":1700000000000,
			"hostnameForAccessKeys":"1.2.3.4","portForNewAccessKeys":443,"accessKeyDataLimit":{"bytes":5000}}`)
	})
	mux.HandleFunc("GET /access-keys/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"accessKeys":[{"id":"0","name":"alice","port":443,"method":"chacha20-ietf-poly1305",
			"accessUrl":"ss://x@1.2.3.4:443","dataLimit":{"bytes":1000}},{"id":"1","name":"bob"}]}`)
	})
	mux.HandleFunc("GET /metrics/transfer", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"bytesTransferredByUserId":{"0":200,"1":800}}`)
	})
	mux.HandleFunc("GET /metrics/enabled", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"metricsEnabled":true}`)
	})

	c := NewClient(newAppliance(t, mux) + "/")
	ctx := context.Background()

	info, err := c.Server(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Frankfurt", info.Name)
	assert.Equal(t, "1.9.2", info.Version)
	require.NotNil(t, info.AccessKeyDataLimit)
	assert.Equal(t, int64(5000), info.AccessKeyDataLimit.Bytes)

	keys, err := c.AccessKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "alice", keys[0].Name)
	require.NotNil(t, keys[0].DataLimit)
	assert.Nil(t, keys[1].DataLimit)

	metrics, err := c.TransferMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"0": 200, "1": 800}, metrics)

	enabled, err := c.MetricsEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestClientMutations(t *testing.T) {
	type call struct {
		method, path, body string
	}
	calls := make(chan call, 10)
	record := func(status int, resp string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			calls <- call{r.Method, r.URL.Path, strings.TrimSpace(string(b))}
			w.WriteHeader(status)
			io.WriteString(w, resp)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /access-keys", record(http.StatusCreated, `{"id":"7","name":"carol","accessUrl":"ss://y"}`))
	mux.HandleFunc("DELETE /access-keys/{id}", record(http.StatusNoContent, ""))
	mux.HandleFunc("PUT /access-keys/{id}/name", record(http.StatusNoContent, ""))
	mux.HandleFunc("PUT /access-keys/{id}/data-limit", record(http.StatusNoContent, ""))
	mux.HandleFunc("DELETE /access-keys/{id}/data-limit", record(http.StatusNoContent, ""))
	mux.HandleFunc("PUT /name", record(http.StatusNoContent, ""))

	c := NewClient(newAppliance(t, mux))
	ctx := context.Background()

	key, err := c.CreateAccessKey(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "7", key.ID)
	assert.Equal(t, call{"POST", "/access-keys", `{"name":"carol"}`}, <-calls)

	require.NoError(t, c.DeleteAccessKey(ctx, "7"))
	assert.Equal(t, call{"DELETE", "/access-keys/7", ""}, <-calls)

	require.NoError(t, c.RenameAccessKey(ctx, "7", "dave"))
	assert.Equal(t, call{"PUT", "/access-keys/7/name", `{"name":"dave"}`}, <-calls)

	require.NoError(t, c.SetDataLimit(ctx, "7", 1024))
	assert.Equal(t, call{"PUT", "/access-keys/7/data-limit", `{"limit":{"bytes":1024}}`}, <-calls)

	require.NoError(t, c.RemoveDataLimit(ctx, "7"))
	assert.Equal(t, call{"DELETE", "/access-keys/7/data-limit", ""}, <-calls)

	require.NoError(t, c.RenameServer(ctx, "Paris"))
	assert.Equal(t, call{"PUT", "/name", `{"name":"Paris"}`}, <-calls)
}

func TestClientNon2xxIsUnreachable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /server", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})

	_, err := NewClient(newAppliance(t, mux)).Server(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRemoteUnreachable)
	assert.False(t, IsTimeout(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestClientDeadlineIsTimeout(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /server", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	base := newAppliance(t, mux)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient(base).Server(ctx)
	assert.ErrorIs(t, err, apperrors.ErrRemoteTimeout)
	assert.True(t, IsTimeout(err))

	_, err = NewClient(base, WithTimeout(50*time.Millisecond)).Server(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrRemoteTimeout)
}

func TestClientRefusedIsUnreachableAndRedacted(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	base := srv.URL + token
	srv.Close()

	_, err := NewClient(base).AccessKeys(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRemoteUnreachable)
	assert.NotContains(t, err.Error(), token)
}

func TestClientBadJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics/transfer", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>")
	})

	_, err := NewClient(newAppliance(t, mux)).TransferMetrics(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrRemoteUnreachable)
}

func TestEmptyCollectionsAreNonNil(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /access-keys/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{})
	})
	mux.HandleFunc("GET /metrics/transfer", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})
	c := NewClient(newAppliance(t, mux))

	keys, err := c.AccessKeys(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, keys)
	assert.Empty(t, keys)

	m, err := c.TransferMetrics(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestFactoryClientsShareOptions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics/enabled", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		io.WriteString(w, `{"metricsEnabled":false}`)
	})
	base := newAppliance(t, mux)

	newClient := NewFactory(WithTimeout(20 * time.Millisecond))
	_, err := newClient(base).MetricsEnabled(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrRemoteTimeout)

	enabled, err := NewFactory()(base).MetricsEnabled(context.Background())
	require.NoError(t, err)
	assert.False(t, enabled)
}
