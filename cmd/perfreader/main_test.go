package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iafilius/ThreadPerfMonitor/src/analysis"
	"github.com/iafilius/ThreadPerfMonitor/src/replay"
	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

func writeSaved(t *testing.T, name string) string {
	t.Helper()
	opts := replay.DefaultSyntheticOptions(types.ThreadSync)
	opts.End = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b, err := json.Marshal(replay.Synthetic(opts))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestRunText(t *testing.T) {
	path := writeSaved(t, "svSync.json")
	var out bytes.Buffer
	if err := run(&out, path, "", false); err != nil {
		t.Fatalf("run: %v", err)
	}
	s := out.String()
	for _, want := range []string{"Thread: svSync", "Lifespans: 2", "  #1 ", "  #2 "} {
		if !strings.Contains(s, want) {
			t.Fatalf("output missing %q:\n%s", want, s)
		}
	}
}

func TestRunJSON(t *testing.T) {
	path := writeSaved(t, "capture.json")
	var out bytes.Buffer
	if err := run(&out, path, "svSync", true); err != nil {
		t.Fatalf("run: %v", err)
	}
	var sums []analysis.LifespanSummary
	if err := json.Unmarshal(out.Bytes(), &sums); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if len(sums) != 2 || sums[0].Snapshots != 36 {
		t.Fatalf("unexpected summaries: %+v", sums)
	}
}

func TestRunErrors(t *testing.T) {
	if err := run(&bytes.Buffer{}, filepath.Join(t.TempDir(), "nope.json"), "", false); err == nil {
		t.Fatal("expected error for a missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := run(&bytes.Buffer{}, path, "", false); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestThreadFor(t *testing.T) {
	cases := []struct{ file, flag, want string }{
		{"/x/svNetwork.json", "", "svNetwork"},
		{"/x/svNetwork.json", "svSync", "svSync"},
		{"capture.json", "", "svMain"},
		{"capture.json", "bogus", "svMain"},
	}
	for _, c := range cases {
		if got := threadFor(c.file, c.flag); string(got) != c.want {
			t.Fatalf("threadFor(%q,%q) = %s want %s", c.file, c.flag, got, c.want)
		}
	}
}
