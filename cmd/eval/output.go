package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/stellarlinkco/eval-studio/internal/run"
)

type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
)

func parseOutputFormat(s string) OutputFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table":
		return FormatTable
	case "json", "jsonl":
		return FormatJSON
	default:
		return ""
	}
}

func resolveOutputFormat(flagValue string) (OutputFormat, error) {
	if strings.TrimSpace(flagValue) == "" {
		return FormatTable, nil
	}
	out := parseOutputFormat(flagValue)
	if out == "" {
		return "", fmt.Errorf("invalid --output %q (expected table|json)", flagValue)
	}
	return out, nil
}

func coloredStatus(passed bool) string {
	if passed {
		return colorGreen + "PASS" + colorReset
	}
	return colorRed + "FAIL" + colorReset
}

func runPassed(r *run.Run) bool {
	if r == nil || r.Status != run.StatusCompleted || r.Summary == nil {
		return false
	}
	return r.Summary.PassCount == len(r.Results)
}

func FormatRun(r *run.Run, format OutputFormat) string {
	switch format {
	case FormatTable:
		return formatRunTable(r)
	case FormatJSON:
		return formatRunJSON(r)
	default:
		return fmt.Sprintf("error: unknown output format %q\n", format)
	}
}

func formatRunTable(r *run.Run) string {
	if r == nil {
		return "Run: <nil> " + coloredStatus(false) + "\n\n"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Run: %s (%s) %s\n", r.Name, r.ID, coloredStatus(runPassed(r)))
	fmt.Fprintf(&buf, "Model: %s status=%s\n", r.Model, r.Status)
	if r.Summary != nil {
		fmt.Fprintf(&buf, "Cases: %d passed=%d failed=%d avg_score=%.2f avg_latency_ms=%.0f\n",
			len(r.Results), r.Summary.PassCount, len(r.Results)-r.Summary.PassCount,
			r.Summary.AvgScore, r.Summary.AvgLatencyMs)
	}

	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tRESULT\tSCORE\tLAT(ms)\tREASONING\tERROR")
	for _, res := range r.Results {
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%d\t%s\t%s\n",
			res.CaseIndex, coloredStatus(res.Passed), res.Score, res.LatencyMs,
			truncate(res.Reasoning, 60), res.Error)
	}
	_ = tw.Flush()
	buf.WriteByte('\n')
	return buf.String()
}

func formatRunJSON(r *run.Run) string {
	if r == nil {
		return "{\"error\":\"nil run\"}\n"
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("{\"error\":%q}\n", err.Error())
	}
	return string(b) + "\n"
}

// truncate shortens s to at most max runes, never splitting a multi-byte rune.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
