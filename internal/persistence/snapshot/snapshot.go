package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"tilecensus.ai/internal/census"
	"tilecensus.ai/internal/tiles"
)

const (
	Version = 1

	ExtPlain = ".tiles.jsonl"
	ExtZstd  = ".tiles.jsonl.zst"
)

var ErrBadHeader = errors.New("bad snapshot header")

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	Tiles   int    `json:"tiles"`
}

// TilesV1 is a placed-tile dump: one JSON header line followed by one JSON
// tile per line. Files ending in .zst are zstd-compressed.
type TilesV1 struct {
	Header Header
	Tiles  []tiles.Record
}

// WriteSnapshot writes to a hidden temp file next to path and renames it into
// place, so readers never see a partial dump.
func WriteSnapshot(path string, snap TilesV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := encode(f, strings.HasSuffix(path, ".zst"), snap); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func encode(w io.Writer, compress bool, snap TilesV1) error {
	var enc *zstd.Encoder
	if compress {
		var err error
		enc, err = zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return err
		}
		w = enc
	}

	bw := bufio.NewWriterSize(w, 256*1024)
	snap.Header.Version = Version
	snap.Header.Tiles = len(snap.Tiles)
	je := json.NewEncoder(bw)
	if err := je.Encode(snap.Header); err != nil {
		return err
	}
	for i := range snap.Tiles {
		if err := je.Encode(&snap.Tiles[i]); err != nil {
			return fmt.Errorf("encode tile %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if enc != nil {
		return enc.Close()
	}
	return nil
}

func ReadSnapshot(path string) (TilesV1, error) {
	var snap TilesV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	var in io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return snap, err
		}
		defer dec.Close()
		in = dec
	}
	return decode(in)
}

func decode(r io.Reader) (TilesV1, error) {
	var snap TilesV1
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return snap, err
		}
		return snap, fmt.Errorf("%w: empty file", ErrBadHeader)
	}
	if err := json.Unmarshal(sc.Bytes(), &snap.Header); err != nil {
		return snap, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, snap.Header.Version)
	}

	snap.Tiles = make([]tiles.Record, 0, snap.Header.Tiles)
	line := 1
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(strings.TrimSpace(string(b))) == 0 {
			continue
		}
		var t tiles.Record
		if err := json.Unmarshal(b, &t); err != nil {
			return snap, fmt.Errorf("line %d: unmarshal: %w", line, err)
		}
		snap.Tiles = append(snap.Tiles, t)
	}
	if err := sc.Err(); err != nil {
		return snap, err
	}
	if len(snap.Tiles) != snap.Header.Tiles {
		return snap, fmt.Errorf("%w: header says %d tiles, found %d", ErrBadHeader, snap.Header.Tiles, len(snap.Tiles))
	}
	return snap, nil
}

// IsSnapshotName reports whether name looks like a tile dump.
func IsSnapshotName(name string) bool {
	return strings.HasSuffix(name, ExtPlain) || strings.HasSuffix(name, ExtZstd)
}

// Latest returns the lexically greatest tile dump in dir. Dumps are named by
// tick (e.g. 000120.tiles.jsonl.zst) so this is the newest one.
func Latest(dir string) (string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() || !IsSnapshotName(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no tile snapshots in %s", dir)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

// FileSource loads tiles from an explicit snapshot file, or from the latest
// snapshot in Dir when Path is empty.
type FileSource struct {
	Path string
	Dir  string
}

func (s FileSource) Load(ctx context.Context) (census.World, error) {
	if err := ctx.Err(); err != nil {
		return census.World{}, err
	}
	path := s.Path
	if path == "" {
		p, err := Latest(s.Dir)
		if err != nil {
			return census.World{}, err
		}
		path = p
	}
	snap, err := ReadSnapshot(path)
	if err != nil {
		return census.World{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return census.World{ID: snap.Header.WorldID, Tick: snap.Header.Tick, Tiles: snap.Tiles}, nil
}
