package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akoyago/deployctl/pkg/reconcile"
)

func TestParseOutputFormat(t *testing.T) {
	cases := []struct {
		in      string
		want    outputFormat
		wantErr bool
	}{
		{"", outputTable, false},
		{"table", outputTable, false},
		{"TABLE", outputTable, false},
		{"json", outputJSON, false},
		{"yaml", outputYAML, false},
		{"xml", "", true},
	}
	for _, tc := range cases {
		got, err := parseOutputFormat(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	report := &reconcile.Report{Successes: 3, Fixes: []string{`created step "A"`}}
	require.NoError(t, printJSON(&buf, report))
	assert.JSONEq(t, `{"successes": 3, "fixes": ["created step \"A\""]}`, buf.String())
}

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printYAML(&buf, map[string]int{"successes": 3}))
	assert.Equal(t, "successes: 3\n", buf.String())
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	err := printTable(&buf, []string{"step", "classification"}, [][]string{
		{"A", "Match"},
		{"B", "MutableDrift"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "STEP")
	assert.Contains(t, out, "CLASSIFICATION")
	assert.Contains(t, out, "MutableDrift")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactlyten", truncate("exactlyten", 10))
	assert.Equal(t, "long st...", truncate("long string here", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
