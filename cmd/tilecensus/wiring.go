package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"tilecensus.ai/internal/census"
	"tilecensus.ai/internal/config"
	"tilecensus.ai/internal/persistence/export"
	"tilecensus.ai/internal/persistence/indexdb"
	persistlog "tilecensus.ai/internal/persistence/log"
	"tilecensus.ai/internal/persistence/r2s3"
	"tilecensus.ai/internal/persistence/snapshot"
	"tilecensus.ai/internal/tiles"
)

// runtime holds the pieces of one census pipeline.
type runtime struct {
	runner *census.Runner
	index  *indexdb.SQLiteIndex
	closer []func() error
}

func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closer) - 1; i >= 0; i-- {
		if err := rt.closer[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newLogger(component string) *log.Logger {
	return log.New(os.Stdout, "["+component+"] ", log.LstdFlags|log.Lmicroseconds)
}

func openIndex(cfg config.Config) (*indexdb.SQLiteIndex, error) {
	if !cfg.Index.Enabled {
		return nil, nil
	}
	return indexdb.OpenSQLite(cfg.Index.Path)
}

func openMirror(cfg config.Config) (*r2s3.Mirror, error) {
	if !cfg.Mirror.Enabled {
		return nil, nil
	}
	accessKeyID := os.Getenv("TILECENSUS_MIRROR_ACCESS_KEY_ID")
	secretAccessKey := os.Getenv("TILECENSUS_MIRROR_SECRET_ACCESS_KEY")
	client, err := r2s3.New(cfg.Mirror.Endpoint, cfg.Mirror.Bucket, accessKeyID, secretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("mirror: %w", err)
	}
	return r2s3.NewMirror(client, cfg.Mirror.Prefix, cfg.Mirror.Workers, cfg.Mirror.QueueCapacity, newLogger("mirror")), nil
}

// buildRuntime wires source, exporter, run log, index (which may be nil) and
// the optional bucket mirror. The runtime takes ownership of idx. extra sinks
// run after the persistent ones.
func buildRuntime(cfg config.Config, src census.Source, logger *log.Logger, idx *indexdb.SQLiteIndex, extra ...census.Sink) (*runtime, error) {
	rt := &runtime{index: idx}
	sinks := []census.Sink{
		export.NewExporter(export.Config{
			Dir:      cfg.Export.Dir,
			Prefix:   cfg.Export.Prefix,
			CRLF:     cfg.CRLF(),
			Compress: cfg.Export.Compress,
		}),
	}
	if cfg.RunLog.Enabled {
		rl := persistlog.NewRunLogger(cfg.DataDir)
		rt.closer = append(rt.closer, rl.Close)
		sinks = append(sinks, rl)
	}
	if idx != nil {
		rt.closer = append(rt.closer, idx.Close)
		sinks = append(sinks, idx)
	}
	mirror, err := openMirror(cfg)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if mirror != nil {
		rt.closer = append(rt.closer, mirror.Close)
		sinks = append(sinks, mirror)
	}
	sinks = append(sinks, extra...)

	rt.runner = census.NewRunner(src, logger,
		census.WithClassifier(tiles.Classifier{Strict: cfg.Classifier.Strict}),
		census.WithSinks(sinks...),
	)
	return rt, nil
}

func sourceFor(cfg config.Config) census.Source {
	return snapshot.FileSource{Path: snapFile, Dir: cfg.Snapshots.Dir}
}
