package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/nahidhasan98/icon-sync/internal/reconcile"
	"github.com/nahidhasan98/icon-sync/internal/store"
)

type report struct {
	Status     string                `json:"status"`
	Added      []string              `json:"added"`
	Removed    []string              `json:"removed"`
	Modified   []string              `json:"modified"`
	Commit     string                `json:"commit,omitempty"`
	Ref        *store.RefStatus      `json:"ref,omitempty"`
	Operations []reconcile.Operation `json:"operations,omitempty"`
}

func newReport(res *reconcile.Result) *report {
	r := &report{
		Status:     "applied",
		Added:      res.ChangeSet.ToAdd.Sorted(),
		Removed:    res.ChangeSet.ToRemove.Sorted(),
		Modified:   res.ChangeSet.ToModify.Sorted(),
		Commit:     res.CommitSHA,
		Ref:        res.Ref,
		Operations: res.Operations,
	}
	switch {
	case res.NoOp:
		r.Status = "noop"
	case res.DryRun:
		r.Status = "planned"
	case res.Ref == nil:
		r.Status = "failed"
	}
	return r
}

func writeReport(w io.Writer, format string, r *report) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "text", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	if r.Status == "noop" {
		_, err := fmt.Fprintln(w, "No icons were affected this push")
		return err
	}

	fmt.Fprintf(w, "Status: %s\n", r.Status)
	fmt.Fprintf(w, "Net change set: %d added, %d removed, %d modified\n", len(r.Added), len(r.Removed), len(r.Modified))
	for _, p := range r.Added {
		fmt.Fprintf(w, "  + %s\n", p)
	}
	for _, p := range r.Removed {
		fmt.Fprintf(w, "  - %s\n", p)
	}
	for _, p := range r.Modified {
		fmt.Fprintf(w, "  ~ %s\n", p)
	}

	if len(r.Operations) > 0 {
		fmt.Fprintln(w, "Operations:")
		writeOperations(w, r.Operations)
	}

	if r.Ref != nil {
		fmt.Fprintf(w, "Updated %s to %s\n", r.Ref.Ref, r.Ref.SHA)
	}
	return nil
}

func writeOperations(w io.Writer, ops []reconcile.Operation) {
	table := tablewriter.NewWriter(w)
	table.SetRowLine(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetAutoWrapText(false)
	table.SetColumnSeparator(" ")
	table.SetCenterSeparator(" ")
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Op", "Target", "Result"})
	for _, op := range ops {
		table.Append([]string{string(op.Kind), op.Target, op.Result})
	}
	table.Render()
}
