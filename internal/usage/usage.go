// Package usage derives per-key and server-wide traffic statistics from one
// snapshot of a server's access keys and transfer metrics.
package usage

import (
	"math"
	"math/big"
	"sort"
	"strconv"

	"github.com/shohag/vpnboard/internal/outline"
)

type KeyUsage struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Port         *int     `json:"port"`
	Method       *string  `json:"method"`
	AccessURL    string   `json:"accessUrl"`
	UsedBytes    int64    `json:"usedBytes"`
	LimitBytes   *int64   `json:"limitBytes"`
	UsedPct      *float64 `json:"usedPct"`
	TrafficShare string   `json:"trafficShare"`
	IsOverLimit  bool     `json:"isOverLimit"`
}

type ServerUsage struct {
	Name                  *string `json:"name"`
	ServerID              *string `json:"serverId"`
	Version               *string `json:"version"`
	HostnameForAccessKeys *string `json:"hostnameForAccessKeys"`
	PortForNewAccessKeys  *int    `json:"portForNewAccessKeys"`
	CreatedTimestampMs    *int64  `json:"createdTimestampMs"`
	DefaultLimitBytes     *int64  `json:"defaultLimitBytes"`
	TotalUsage            int64   `json:"totalUsage"`
	ActiveKeys            int     `json:"activeKeys"`
	UnusedKeys            int     `json:"unusedKeys"`
	KeysOverLimit         int     `json:"keysOverLimit"`
	AvgUsageBytes         int64   `json:"avgUsageBytes"`
}

type Snapshot struct {
	Keys             []KeyUsage  `json:"keys"`
	Server           ServerUsage `json:"serverInfo"`
	IsMetricsEnabled bool        `json:"isMetricsEnabled"`
}

// Compute builds a snapshot. Keys are ordered by used bytes, descending; keys
// with equal usage keep the order the server returned them in. A key's limit
// is its own data limit only; the server default is reported separately.
func Compute(keys []outline.AccessKey, metrics map[string]int64, info outline.ServerInfo) Snapshot {
	var total int64
	for _, b := range metrics {
		total += b
	}

	out := make([]KeyUsage, 0, len(keys))
	for _, k := range keys {
		used := metrics[k.ID]
		ku := KeyUsage{
			ID:           k.ID,
			Name:         k.Name,
			Port:         positiveInt(k.Port),
			Method:       nonEmpty(k.Method),
			AccessURL:    k.AccessURL,
			UsedBytes:    used,
			LimitBytes:   limitOf(k.DataLimit),
			TrafficShare: trafficShare(used, total),
		}
		if ku.LimitBytes != nil {
			limit := *ku.LimitBytes
			pct := min(float64(used)/float64(limit)*100, 100)
			ku.UsedPct = &pct
			ku.IsOverLimit = used >= limit
		}
		out = append(out, ku)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UsedBytes > out[j].UsedBytes
	})

	srv := ServerUsage{
		Name:                  nonEmpty(info.Name),
		ServerID:              nonEmpty(info.ServerID),
		Version:               nonEmpty(info.Version),
		HostnameForAccessKeys: nonEmpty(info.HostnameForAccessKeys),
		PortForNewAccessKeys:  positiveInt(info.PortForNewAccessKeys),
		CreatedTimestampMs:    positiveInt64(info.CreatedTimestampMs),
		DefaultLimitBytes:     limitOf(info.AccessKeyDataLimit),
		TotalUsage:            total,
	}
	for _, k := range out {
		switch {
		case k.UsedBytes > 0:
			srv.ActiveKeys++
		case k.UsedBytes == 0:
			srv.UnusedKeys++
		}
		if k.IsOverLimit {
			srv.KeysOverLimit++
		}
	}
	if srv.ActiveKeys > 0 {
		srv.AvgUsageBytes = total / int64(srv.ActiveKeys)
	}

	return Snapshot{Keys: out, Server: srv, IsMetricsEnabled: info.MetricsEnabled}
}

func trafficShare(used, total int64) string {
	if total <= 0 {
		return "0.0"
	}
	return formatTenths(float64(used) / float64(total) * 100)
}

// formatTenths renders x with one decimal, rounding the exact binary value
// of x half away from zero: 81.25 gives "81.3", 0.15 (just below) gives "0.1".
func formatTenths(x float64) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return strconv.FormatFloat(x, 'f', 1, 64)
	}
	sign := ""
	if x < 0 {
		sign = "-"
		x = -x
	}
	r := new(big.Rat).SetFloat64(x)
	r.Mul(r, big.NewRat(10, 1))
	q, m := new(big.Int).QuoRem(r.Num(), r.Denom(), new(big.Int))
	if m.Lsh(m, 1).Cmp(r.Denom()) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	ten := big.NewInt(10)
	whole, frac := new(big.Int).QuoRem(q, ten, new(big.Int))
	if sign != "" && q.Sign() == 0 {
		sign = ""
	}
	return sign + whole.String() + "." + frac.String()
}

// limitOf treats an absent or zero limit as no limit.
func limitOf(l *outline.DataLimit) *int64 {
	if l == nil || l.Bytes <= 0 {
		return nil
	}
	b := l.Bytes
	return &b
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func positiveInt(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}

func positiveInt64(n int64) *int64 {
	if n <= 0 {
		return nil
	}
	return &n
}
