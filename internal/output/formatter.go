// Package output renders CLI results as a table, JSON or YAML.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Table is implemented by results that have a tabular rendering.
type Table interface {
	Header() []string
	Rows() [][]string
}

type Formatter interface {
	Format(data any) (string, error)
}

// NewFormatter returns a Formatter for the given format string.
// Supported formats: "table" (default), "json", "yaml".
func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case "", "table":
		return &TableFormatter{}, nil
	case "json":
		return &JSONFormatter{}, nil
	case "yaml", "yml":
		return &YAMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (table, json, yaml)", format)
	}
}

type TableFormatter struct{}

func (f *TableFormatter) Format(data any) (string, error) {
	t, ok := data.(Table)
	if !ok {
		return fmt.Sprintln(data), nil
	}
	rows := t.Rows()
	if len(rows) == 0 {
		return "No resources found.\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(t.Header(), "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type JSONFormatter struct{}

func (f *JSONFormatter) Format(data any) (string, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format json: %w", err)
	}
	return string(b) + "\n", nil
}

// YAMLFormatter renders the JSON encoding of data as block YAML, so both
// formats share field names and order.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(data any) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("format yaml: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return "", fmt.Errorf("format yaml: %w", err)
	}
	blockStyle(&doc)
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("format yaml: %w", err)
	}
	return string(out), nil
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
