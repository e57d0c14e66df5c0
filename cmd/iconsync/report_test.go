package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nahidhasan98/icon-sync/internal/reconcile"
	"github.com/nahidhasan98/icon-sync/internal/store"
)

func TestWriteReport_OperationsTable(t *testing.T) {
	r := &report{
		Status: "applied",
		Added:  []string{"res/a.png"},
		Ref:    &store.RefStatus{Ref: "refs/heads/master", SHA: "c9"},
		Operations: []reconcile.Operation{
			{Kind: reconcile.OpGetRef, Target: "heads/master", Result: "c1"},
			{Kind: reconcile.OpCreateBlob, Target: "res/a.png", Result: "b1"},
			{Kind: reconcile.OpUpdateRef, Target: "heads/master", Result: "c9"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "text", r))
	out := buf.String()

	assert.Contains(t, out, "Operations:")
	assert.Contains(t, out, "TARGET")
	assert.NotContains(t, out, "+--")

	var rows []string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "heads/master") || strings.Contains(line, "res/a.png ") {
			rows = append(rows, strings.Join(strings.Fields(line), " "))
		}
	}
	assert.Equal(t, []string{
		"get_ref heads/master c1",
		"create_blob res/a.png b1",
		"update_ref heads/master c9",
		"Updated refs/heads/master to c9",
	}, rows)
}

func TestWriteReport_NoOp(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "text", &report{Status: "noop"}))
	assert.Equal(t, "No icons were affected this push\n", buf.String())
}
