// Package status queries live state from managed servers. Remote failures
// never escape as errors from Check: they become an offline Result.
package status

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/shohag/vpnboard/internal/models"
	"github.com/shohag/vpnboard/internal/outline"
	"github.com/shohag/vpnboard/internal/usage"
)

// DefaultTimeout bounds every remote query issued for one check.
const DefaultTimeout = 6 * time.Second

type Reason string

const (
	ReasonTimeout     Reason = "timeout"
	ReasonUnreachable Reason = "unreachable"
)

type Summary struct {
	Name               string  `json:"name"`
	Version            *string `json:"version"`
	KeyCount           int     `json:"keyCount"`
	TotalBytes         int64   `json:"totalBytes"`
	CreatedTimestampMs *int64  `json:"createdTimestampMs"`
}

// Result is either online with a fully populated Summary, or offline with a
// Reason. The two are never mixed.
type Result struct {
	ID     string `json:"id"`
	Online bool   `json:"online"`
	*Summary
	Reason Reason `json:"reason,omitempty"`
}

func NewOnline(id string, s Summary) Result {
	return Result{ID: id, Online: true, Summary: &s}
}

func NewOffline(id string, reason Reason) Result {
	return Result{ID: id, Reason: reason}
}

// NameStore receives display-name corrections observed on remote servers.
type NameStore interface {
	Rename(ctx context.Context, id, name string) error
}

type Aggregator struct {
	names     NameStore
	newClient outline.Factory
	timeout   time.Duration
	log       zerolog.Logger
}

type Option func(*Aggregator)

func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithClientFactory(f outline.Factory) Option {
	return func(a *Aggregator) {
		if f != nil {
			a.newClient = f
		}
	}
}

func NewAggregator(names NameStore, log zerolog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		names:     names,
		newClient: outline.NewFactory(),
		timeout:   DefaultTimeout,
		log:       log.With().Str("component", "status").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Check queries server info, access keys and transfer metrics in parallel.
// All three must succeed for the server to be reported online.
func (a *Aggregator) Check(ctx context.Context, ep models.Endpoint) Result {
	client := a.newClient(ep.ConnectionURL)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		info    *outline.ServerInfo
		keys    []outline.AccessKey
		metrics map[string]int64
	)
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) (err error) {
		info, err = client.Server(ctx)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		keys, err = client.AccessKeys(ctx)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		metrics, err = client.TransferMetrics(ctx)
		return err
	})
	if err := p.Wait(); err != nil {
		reason := ReasonUnreachable
		if outline.IsTimeout(err) {
			reason = ReasonTimeout
		}
		a.log.Warn().Err(err).Str("server_id", ep.ID).Str("reason", string(reason)).Msg("server offline")
		return NewOffline(ep.ID, reason)
	}

	var total int64
	for _, b := range metrics {
		total += b
	}

	name := strings.TrimSpace(info.Name)
	if name == "" {
		name = ep.Name
	}
	a.syncName(ctx, ep, info.Name)

	s := Summary{
		Name:       name,
		KeyCount:   len(keys),
		TotalBytes: total,
	}
	if info.Version != "" {
		s.Version = &info.Version
	}
	if info.CreatedTimestampMs > 0 {
		s.CreatedTimestampMs = &info.CreatedTimestampMs
	}
	return NewOnline(ep.ID, s)
}

// CheckAll checks every server in its own goroutine and calls fn with each
// result as soon as it is available, so a hung server never delays another.
// fn may be called from several goroutines at once.
func (a *Aggregator) CheckAll(ctx context.Context, eps []models.Endpoint, fn func(Result)) {
	p := pool.New()
	for _, ep := range eps {
		p.Go(func() {
			fn(a.Check(ctx, ep))
		})
	}
	p.Wait()
}

// Usage fetches the full key list and metrics of one server and derives
// usage statistics from them. Unlike Check, remote failures are returned.
func (a *Aggregator) Usage(ctx context.Context, ep models.Endpoint) (*usage.Snapshot, error) {
	client := a.newClient(ep.ConnectionURL)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		info    *outline.ServerInfo
		keys    []outline.AccessKey
		metrics map[string]int64
		enabled bool
	)
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) (err error) {
		keys, err = client.AccessKeys(ctx)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		metrics, err = client.TransferMetrics(ctx)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		info, err = client.Server(ctx)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		enabled, err = client.MetricsEnabled(ctx)
		return err
	})
	if err := p.Wait(); err != nil {
		return nil, err
	}

	a.syncName(ctx, ep, info.Name)

	info.MetricsEnabled = enabled
	snap := usage.Compute(keys, metrics, *info)
	return &snap, nil
}

// syncName stores the remote name when it differs from the cached one. A
// failed write is logged and otherwise ignored.
func (a *Aggregator) syncName(ctx context.Context, ep models.Endpoint, remote string) {
	remote = strings.TrimSpace(remote)
	if remote == "" || remote == ep.Name || a.names == nil {
		return
	}
	if err := a.names.Rename(context.WithoutCancel(ctx), ep.ID, remote); err != nil {
		a.log.Warn().Err(err).Str("server_id", ep.ID).Msg("failed to sync server name")
		return
	}
	a.log.Info().Str("server_id", ep.ID).Msg("synced server name from remote")
}
