package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tilecensus.ai/internal/protocol"
)

var runJSON bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one census over the latest (or given) tile snapshot and export CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := newLogger("census")

		idx, err := openIndex(cfg)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		rt, err := buildRuntime(cfg, sourceFor(cfg), logger, idx)
		if err != nil {
			return err
		}
		defer rt.Close()

		rep, err := rt.runner.Run(cmd.Context())
		if err != nil {
			return err
		}
		if runJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(protocol.NewReportMsg(rep))
		}
		fmt.Printf("census ok: world=%s tick=%d tiles=%d distinct=%d file=%s\n",
			rep.WorldID, rep.Tick, rep.Tiles, rep.Distinct(), rep.Path)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&snapFile, "snapshot", "", "explicit tile snapshot file (default: latest in snapshot dir)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the report as JSON")
}
