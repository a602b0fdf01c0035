package main

import (
	"strconv"
	"time"

	"github.com/shohag/vpnboard/internal/models"
	"github.com/shohag/vpnboard/internal/outline"
	"github.com/shohag/vpnboard/internal/output"
	"github.com/shohag/vpnboard/internal/status"
	"github.com/shohag/vpnboard/internal/usage"
)

type serverTable []models.SafeEndpoint

func (t serverTable) Header() []string { return []string{"ID", "NAME", "ADDED"} }

func (t serverTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, s := range t {
		rows = append(rows, []string{s.ID, s.Name, time.UnixMilli(s.AddedAt).UTC().Format(time.RFC3339)})
	}
	return rows
}

type statusTable []status.Result

func (t statusTable) Header() []string {
	return []string{"ID", "STATE", "NAME", "VERSION", "KEYS", "TRAFFIC"}
}

func (t statusTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		if !r.Online || r.Summary == nil {
			rows = append(rows, []string{r.ID, "offline (" + string(r.Reason) + ")", "-", "-", "-", "-"})
			continue
		}
		version := "-"
		if r.Version != nil {
			version = *r.Version
		}
		rows = append(rows, []string{
			r.ID, "online", r.Name, version,
			strconv.Itoa(r.KeyCount), output.FormatBytes(r.TotalBytes),
		})
	}
	return rows
}

type usageTable []usage.KeyUsage

func (t usageTable) Header() []string {
	return []string{"ID", "NAME", "USED", "LIMIT", "USED%", "SHARE%", "OVER"}
}

func (t usageTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, k := range t {
		limit, pct := "-", "-"
		if k.LimitBytes != nil {
			limit = output.FormatBytes(*k.LimitBytes)
		}
		if k.UsedPct != nil {
			pct = strconv.FormatFloat(*k.UsedPct, 'f', 1, 64)
		}
		over := ""
		if k.IsOverLimit {
			over = "yes"
		}
		rows = append(rows, []string{
			k.ID, k.Name, output.FormatBytes(k.UsedBytes), limit, pct, k.TrafficShare, over,
		})
	}
	return rows
}

type keyTable []outline.AccessKey

func (t keyTable) Header() []string { return []string{"ID", "NAME", "ACCESS URL"} }

func (t keyTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, k := range t {
		rows = append(rows, []string{k.ID, k.Name, k.AccessURL})
	}
	return rows
}
