package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSafeViewOmitsConnectionURL(t *testing.T) {
	urls := []string{
		"https://10.0.0.1:443/s3cr3tT0ken",
		`https://evil.example/"connectionURL":"x","apiUrl":"y"`,
		"https://host/ConnectionURL=apiUrl&id=1&name=2",
		"https://host:1/" + strings.Repeat("A", 256),
	}

	for _, raw := range urls {
		ep := Endpoint{ID: NewID(), Name: "srv", ConnectionURL: raw, AddedAt: 1}
		out, err := json.Marshal(ToSafeView(ep))
		require.NoError(t, err)

		secret := strings.TrimPrefix(raw, "https://")
		assert.NotContains(t, string(out), secret)
		assert.NotContains(t, string(out), "connectionURL")
		assert.NotContains(t, string(out), "apiUrl")

		var fields map[string]any
		require.NoError(t, json.Unmarshal(out, &fields))
		assert.ElementsMatch(t, []string{"id", "name", "addedAt"}, keys(fields))
	}
}

func TestEndpointJSONNeverCarriesSecret(t *testing.T) {
	ep := Endpoint{ID: "x", Name: "n", ConnectionURL: "https://h/tok3n", AddedAt: 5}
	out, err := json.Marshal(ep)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "tok3n")
}

func TestToSafeViewsEmpty(t *testing.T) {
	out, err := json.Marshal(ToSafeViews(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestNewEndpointTrims(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	ep := NewEndpoint("  Frankfurt  ", "  https://1.2.3.4:8443/abc \n", now)

	assert.Equal(t, "Frankfurt", ep.Name)
	assert.Equal(t, "https://1.2.3.4:8443/abc", ep.ConnectionURL)
	assert.Equal(t, int64(1700000000000), ep.AddedAt)
	assert.NoError(t, ValidateServerID(ep.ID))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
