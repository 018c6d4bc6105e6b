// Package export writes census reports as tile_counts CSV files.
package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"

	"tilecensus.ai/internal/census"
)

const (
	DefaultPrefix = "tile_counts_"

	// TimeLayout is the filename timestamp, YYYYMMDD_HHMMSS.
	TimeLayout = "20060102_150405"
)

type Config struct {
	Dir      string
	Prefix   string
	CRLF     bool
	Compress bool
}

// Exporter is a census.Sink that writes one file per report.
type Exporter struct {
	cfg Config
	now func() time.Time
}

func NewExporter(cfg Config) *Exporter {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Exporter{cfg: cfg, now: time.Now}
}

// Encode renders entries as the tile,count table. Codes are always quoted.
func Encode(entries []census.Entry, crlf bool) []byte {
	eol := "\n"
	if crlf {
		eol = "\r\n"
	}
	var b bytes.Buffer
	b.WriteString("tile,count")
	b.WriteString(eol)
	for _, e := range entries {
		b.WriteByte('"')
		b.WriteString(string(e.Code))
		b.WriteString(`",`)
		b.WriteString(strconv.Itoa(e.Count))
		b.WriteString(eol)
	}
	return b.Bytes()
}

func (x *Exporter) FileName(t time.Time) string {
	name := x.cfg.Prefix + t.Format(TimeLayout) + ".csv"
	if x.cfg.Compress {
		name += ".zst"
	}
	return name
}

// Consume writes r and records the resulting path on it.
func (x *Exporter) Consume(ctx context.Context, r *census.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := x.Write(r.Entries)
	if err != nil {
		return err
	}
	r.Path = path
	return nil
}

// Write exports entries to a new file in the configured directory. The file
// appears complete or not at all.
func (x *Exporter) Write(entries []census.Entry) (string, error) {
	if err := os.MkdirAll(x.cfg.Dir, 0o755); err != nil {
		return "", err
	}
	data := Encode(entries, x.cfg.CRLF)
	if x.cfg.Compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return "", err
		}
		data = enc.EncodeAll(data, nil)
		_ = enc.Close()
	}

	path := filepath.Join(x.cfg.Dir, x.FileName(x.now()))
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("export %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
