package status

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/vpnboard/internal/models"
	"github.com/shohag/vpnboard/internal/registry"
	"github.com/shohag/vpnboard/internal/storage"
)

// fakeServer emulates a management API. delay and fail are keyed by path.
type fakeServer struct {
	name  string
	delay map[string]time.Duration
	fail  map[string]int
}

func (f *fakeServer) start(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	handle := func(path, body string) {
		mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
			if d := f.delay[path]; d > 0 {
				select {
				case <-time.After(d):
				case <-r.Context().Done():
					return
				}
			}
			if code := f.fail[path]; code != 0 {
				w.WriteHeader(code)
				return
			}
			io.WriteString(w, body)
		})
	}
	handle("/server", `{"name":"`+f.name+`","version":"1.10.0","createdTimestampMs":1700000000000,"accessKeyDataLimit":{"bytes":100}}`)
	handle("/access-keys/", `{"accessKeys":[{"id":"a","dataLimit":{"bytes":1000}},{"id":"b"},{"id":"c","dataLimit":{"bytes":500}}]}`)
	handle("/metrics/transfer", `{"bytesTransferredByUserId":{"a":200,"b":800,"c":500}}`)
	handle("/metrics/enabled", `{"metricsEnabled":true}`)

	srv := httptest.NewTLSServer(http.StripPrefix("/tok", mux))
	t.Cleanup(srv.Close)
	return srv.URL + "/tok"
}

type renameRecorder struct {
	mu    sync.Mutex
	calls map[string]string
	err   error
}

func (r *renameRecorder) Rename(ctx context.Context, id, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]string{}
	}
	r.calls[id] = name
	return r.err
}

func endpoint(name, url string) models.Endpoint {
	return *models.NewEndpoint(name, url, time.Now())
}

func TestCheckOnline(t *testing.T) {
	f := &fakeServer{name: "Frankfurt"}
	names := &renameRecorder{}
	agg := NewAggregator(names, zerolog.Nop())

	ep := endpoint("Frankfurt", f.start(t))
	res := agg.Check(context.Background(), ep)

	require.True(t, res.Online)
	require.NotNil(t, res.Summary)
	assert.Equal(t, ep.ID, res.ID)
	assert.Equal(t, "Frankfurt", res.Name)
	assert.Equal(t, 3, res.KeyCount)
	assert.Equal(t, int64(1500), res.TotalBytes)
	require.NotNil(t, res.Version)
	assert.Equal(t, "1.10.0", *res.Version)
	require.NotNil(t, res.CreatedTimestampMs)
	assert.Empty(t, res.Reason)
	assert.Empty(t, names.calls, "matching names must not trigger a write")
}

func TestCheckFallsBackToCachedName(t *testing.T) {
	f := &fakeServer{name: ""}
	names := &renameRecorder{}
	agg := NewAggregator(names, zerolog.Nop())

	res := agg.Check(context.Background(), endpoint("Cached", f.start(t)))

	require.True(t, res.Online)
	assert.Equal(t, "Cached", res.Name)
	assert.Empty(t, names.calls)
}

func TestCheckSelfHealsRegistryName(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(storage.NewFile(filepath.Join(t.TempDir(), "servers.json")), zerolog.Nop())
	f := &fakeServer{name: "Tokyo"}

	ep, err := reg.Add(ctx, "stale name", f.start(t))
	require.NoError(t, err)

	res := NewAggregator(reg, zerolog.Nop()).Check(ctx, *ep)
	require.True(t, res.Online)
	assert.Equal(t, "Tokyo", res.Name)

	got, err := reg.Get(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tokyo", got.Name)
}

func TestCheckSelfHealFailureDoesNotAffectResult(t *testing.T) {
	f := &fakeServer{name: "Remote"}
	names := &renameRecorder{err: errors.New("disk full")}
	agg := NewAggregator(names, zerolog.Nop())

	res := agg.Check(context.Background(), endpoint("Local", f.start(t)))

	require.True(t, res.Online)
	assert.Equal(t, "Remote", res.Name)
	assert.Equal(t, "Remote", names.calls[res.ID])
}

func TestCheckTimeoutIsOffline(t *testing.T) {
	for _, path := range []string{"/server", "/access-keys/", "/metrics/transfer"} {
		t.Run(path, func(t *testing.T) {
			f := &fakeServer{name: "Slow", delay: map[string]time.Duration{path: 2 * time.Second}}
			names := &renameRecorder{}
			agg := NewAggregator(names, zerolog.Nop(), WithTimeout(100*time.Millisecond))

			start := time.Now()
			res := agg.Check(context.Background(), endpoint("Slow", f.start(t)))

			assert.Less(t, time.Since(start), time.Second)
			assert.False(t, res.Online)
			assert.Nil(t, res.Summary)
			assert.Equal(t, ReasonTimeout, res.Reason)
			assert.Empty(t, names.calls)
		})
	}
}

func TestCheckPartialFailureIsUnreachable(t *testing.T) {
	f := &fakeServer{name: "Half", fail: map[string]int{"/metrics/transfer": http.StatusInternalServerError}}
	agg := NewAggregator(&renameRecorder{}, zerolog.Nop())

	res := agg.Check(context.Background(), endpoint("Half", f.start(t)))

	assert.False(t, res.Online)
	assert.Nil(t, res.Summary)
	assert.Equal(t, ReasonUnreachable, res.Reason)
}

func TestCheckRefusedIsUnreachable(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	url := srv.URL + "/tok"
	srv.Close()

	res := NewAggregator(nil, zerolog.Nop()).Check(context.Background(), endpoint("Gone", url))
	assert.False(t, res.Online)
	assert.Equal(t, ReasonUnreachable, res.Reason)
}

func TestResultJSON(t *testing.T) {
	v := "1.0"
	online, err := json.Marshal(NewOnline("id1", Summary{Name: "n", Version: &v, KeyCount: 2, TotalBytes: 9}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"id1","online":true,"name":"n","version":"1.0","keyCount":2,"totalBytes":9,"createdTimestampMs":null}`, string(online))

	offline, err := json.Marshal(NewOffline("id2", ReasonTimeout))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"id2","online":false,"reason":"timeout"}`, string(offline))
}

func TestCheckAllDoesNotBlockOnSlowServers(t *testing.T) {
	fast := &fakeServer{name: "Fast"}
	slow := &fakeServer{name: "Slow", delay: map[string]time.Duration{"/server": 5 * time.Second}}
	down := httptest.NewTLSServer(http.NotFoundHandler())
	downURL := down.URL + "/tok"
	down.Close()

	eps := []models.Endpoint{
		endpoint("Slow", slow.start(t)),
		endpoint("Fast", fast.start(t)),
		endpoint("Down", downURL),
	}
	agg := NewAggregator(&renameRecorder{}, zerolog.Nop(), WithTimeout(300*time.Millisecond))

	var mu sync.Mutex
	var order []Result
	agg.CheckAll(context.Background(), eps, func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, r)
	})

	require.Len(t, order, 3)
	assert.Equal(t, eps[0].ID, order[2].ID, "the slow server must finish last")
	assert.Equal(t, ReasonTimeout, order[2].Reason)

	byID := map[string]Result{}
	for _, r := range order {
		byID[r.ID] = r
	}
	assert.True(t, byID[eps[1].ID].Online)
	assert.Equal(t, ReasonUnreachable, byID[eps[2].ID].Reason)
}

func TestCheckAllManyHungServersDoNotDelayHealthyOne(t *testing.T) {
	var eps []models.Endpoint
	for i := 0; i < 12; i++ {
		hung := &fakeServer{name: "Hung", delay: map[string]time.Duration{"/server": 5 * time.Second}}
		eps = append(eps, endpoint("Hung", hung.start(t)))
	}
	healthy := endpoint("Healthy", (&fakeServer{name: "Healthy"}).start(t))
	eps = append(eps, healthy)

	agg := NewAggregator(&renameRecorder{}, zerolog.Nop(), WithTimeout(time.Second))

	start := time.Now()
	var mu sync.Mutex
	var healthyAfter time.Duration
	var count int
	agg.CheckAll(context.Background(), eps, func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		count++
		if r.ID == healthy.ID {
			healthyAfter = time.Since(start)
			assert.True(t, r.Online)
		}
	})

	assert.Equal(t, len(eps), count)
	assert.Less(t, healthyAfter, 800*time.Millisecond)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestCheckTrimsRemoteName(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(storage.NewFile(filepath.Join(t.TempDir(), "servers.json")), zerolog.Nop())
	f := &fakeServer{name: "  Tokyo  "}
	ep, err := reg.Add(ctx, "Tokyo", f.start(t))
	require.NoError(t, err)

	names := &renameRecorder{}
	res := NewAggregator(names, zerolog.Nop()).Check(ctx, *ep)
	require.True(t, res.Online)
	assert.Equal(t, "Tokyo", res.Name)
	assert.Empty(t, names.calls, "a padded remote name equal to the cached one must not trigger a write")

	blank := &fakeServer{name: "   "}
	res = NewAggregator(names, zerolog.Nop()).Check(ctx, endpoint("Cached", blank.start(t)))
	require.True(t, res.Online)
	assert.Equal(t, "Cached", res.Name)
	assert.Empty(t, names.calls, "a blank remote name must never be stored")
}

func TestUsage(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(storage.NewFile(filepath.Join(t.TempDir(), "servers.json")), zerolog.Nop())
	f := &fakeServer{name: "Seoul"}
	ep, err := reg.Add(ctx, "old", f.start(t))
	require.NoError(t, err)

	snap, err := NewAggregator(reg, zerolog.Nop()).Usage(ctx, *ep)
	require.NoError(t, err)

	assert.True(t, snap.IsMetricsEnabled)
	assert.Equal(t, int64(1500), snap.Server.TotalUsage)
	require.Len(t, snap.Keys, 3)
	assert.Equal(t, "b", snap.Keys[0].ID)
	assert.Equal(t, 1, snap.Server.KeysOverLimit)
	require.NotNil(t, snap.Server.DefaultLimitBytes)
	assert.Equal(t, int64(100), *snap.Server.DefaultLimitBytes)

	got, err := reg.Get(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, "Seoul", got.Name)
}

func TestUsageReturnsRemoteError(t *testing.T) {
	f := &fakeServer{name: "x", delay: map[string]time.Duration{"/metrics/enabled": 2 * time.Second}}
	agg := NewAggregator(nil, zerolog.Nop(), WithTimeout(100*time.Millisecond))

	snap, err := agg.Usage(context.Background(), endpoint("x", f.start(t)))
	assert.Nil(t, snap)
	require.Error(t, err)
}
