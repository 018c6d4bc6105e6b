package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"tilecensus.ai/internal/census"
)

func readLines(t *testing.T, path string) []RunEntry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var out []RunEntry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e RunEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestRunLogger_WritesAndRotates(t *testing.T) {
	dir := t.TempDir()
	l := NewRunLogger(dir)
	clock := time.Date(2026, 7, 4, 13, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	rep := &census.Report{
		ID:        "r1",
		WorldID:   "w",
		StartedAt: clock,
		Tiles:     2,
		Entries:   []census.Entry{{Code: "RRRRRR", Count: 2}},
	}
	if err := l.WriteRun(rep); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}
	rep.ID = "r2"
	if err := l.WriteRun(rep); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	rep.ID = "r3"
	if err := l.WriteRun(rep); err != nil {
		t.Fatalf("WriteRun after rotate: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	first := readLines(t, filepath.Join(dir, "runs", "runs-2026-07-04-13.jsonl.zst"))
	if len(first) != 2 || first[0].ID != "r1" || first[1].ID != "r2" {
		t.Fatalf("first hour entries=%+v", first)
	}
	if first[0].Entries[0].Code != "RRRRRR" || first[0].Tiles != 2 {
		t.Fatalf("entry content mismatch: %+v", first[0])
	}
	second := readLines(t, filepath.Join(dir, "runs", "runs-2026-07-04-14.jsonl.zst"))
	if len(second) != 1 || second[0].ID != "r3" {
		t.Fatalf("second hour entries=%+v", second)
	}
}
