package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tilecensus.ai/internal/persistence/indexdb"
	"tilecensus.ai/internal/tiles"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	runID := fs.String("run", "", "run id (entries; defaults to latest)")
	code := fs.String("code", "", "tile code (history)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "census.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()
	ctx := context.Background()

	switch q {
	case "runs":
		runs, err := idx.Runs(ctx, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range runs {
			printJSON(r)
		}

	case "entries":
		id := strings.TrimSpace(*runID)
		if id == "" {
			runs, err := idx.Runs(ctx, 1)
			if err != nil {
				fmt.Fprintln(os.Stderr, "latest run:", err)
				os.Exit(1)
			}
			if len(runs) == 0 {
				fmt.Fprintln(os.Stderr, "no runs found")
				os.Exit(2)
			}
			id = runs[0].ID
		}
		entries, err := idx.Entries(ctx, id)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for i, e := range entries {
			if *limit > 0 && i >= *limit {
				break
			}
			printJSON(e)
		}

	case "history":
		c := tiles.Code(strings.ToUpper(strings.TrimSpace(*code)))
		if !c.Valid() {
			fmt.Fprintln(os.Stderr, "missing or invalid -code (six of AFVRLTSG)")
			os.Exit(2)
		}
		// Accept any rotation of the code.
		c = tiles.Code(tiles.Canonicalize(string(c)))
		samples, err := idx.CodeHistory(ctx, c)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, s := range samples {
			printJSON(s)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(runs|entries|history)")
		os.Exit(2)
	}
}
