package bench

import (
	"bytes"
	"strings"
	"testing"
)

func TestBeginRecordsCallsAndFailures(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	Begin()("switch:insert", false)
	Begin()("switch:insert", true)
	Begin()("obtain", false)

	results := Results()
	if len(results) != 2 {
		t.Fatalf("expected 2 summaries, got %d: %#v", len(results), results)
	}
	byName := map[string]Summary{}
	for _, r := range results {
		byName[r.Name] = r
	}
	insert := byName["switch:insert"]
	if insert.Calls != 2 || insert.Failures != 1 {
		t.Fatalf("unexpected insert summary: %#v", insert)
	}
	if insert.Max > insert.Total {
		t.Fatalf("max %v exceeds total %v", insert.Max, insert.Total)
	}
	if byName["obtain"].Calls != 1 {
		t.Fatalf("unexpected obtain summary: %#v", byName["obtain"])
	}
}

func TestPrintResults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	var empty bytes.Buffer
	PrintResults(&empty)
	if empty.Len() != 0 {
		t.Fatalf("expected no table without results, got %q", empty.String())
	}

	Begin()("switch:normal", false)
	var buf bytes.Buffer
	PrintResults(&buf)
	out := buf.String()
	for _, want := range []string{"NAME", "CALLS", "FAILED", "switch:normal"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table misses %q:\n%s", want, out)
		}
	}
}
