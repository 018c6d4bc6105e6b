package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"tilecensus.ai/internal/persistence/snapshot"
	"tilecensus.ai/internal/tiles"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "latest":
			latestCmd(os.Args[2:])
			return
		case "trigger":
			triggerCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "snapshots")
	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if snapshot.IsSnapshotName(e.Name()) {
			fmt.Println(e.Name())
		}
	}
}

type groupStat struct {
	Group    string `json:"group"`
	Segments int    `json:"segments"`
	Known    bool   `json:"known"`
}

// inspectCmd summarizes a tile snapshot without running a census: group
// types seen, station tiles, and tiles that would fail classification.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "tile snapshot path (optional; defaults to latest)")
	strict := fs.Bool("strict", false, "count overlapping edge claims as failures")
	_ = fs.Parse(args)

	path := *snapPath
	if path == "" {
		p, err := snapshot.Latest(filepath.Join(*dataDir, "snapshots"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest snapshot:", err)
			os.Exit(1)
		}
		path = p
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	groups := map[string]int{}
	stations := 0
	var failures []string
	c := tiles.Classifier{Strict: *strict}
	for i, t := range snap.Tiles {
		for _, s := range t.Segments {
			groups[s.GroupType]++
		}
		if tiles.IsTrainStation(t) {
			stations++
		}
		if _, err := c.Classify(t); err != nil {
			failures = append(failures, fmt.Sprintf("tile %d: %v", i, err))
		}
	}

	stats := make([]groupStat, 0, len(groups))
	for g, n := range groups {
		_, err := tiles.ElementFor(g, false)
		stats = append(stats, groupStat{Group: g, Segments: n, Known: err == nil})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Group < stats[j].Group })

	printJSON(struct {
		Path     string      `json:"path"`
		WorldID  string      `json:"world_id"`
		Tick     uint64      `json:"tick"`
		Tiles    int         `json:"tiles"`
		Stations int         `json:"stations"`
		Groups   []groupStat `json:"groups"`
		Failures []string    `json:"failures,omitempty"`
	}{
		Path:     path,
		WorldID:  snap.Header.WorldID,
		Tick:     snap.Header.Tick,
		Tiles:    len(snap.Tiles),
		Stations: stations,
		Groups:   stats,
		Failures: failures,
	})
	if len(failures) > 0 {
		os.Exit(1)
	}
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
