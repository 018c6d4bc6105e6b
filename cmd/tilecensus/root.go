package main

import (
	"github.com/spf13/cobra"

	"tilecensus.ai/internal/config"
)

var (
	configPath  string
	dataDir     string
	snapDir     string
	snapFile    string
	exportDir   string
	strictTiles bool
	disableDB   bool
)

var rootCmd = &cobra.Command{
	Use:           "tilecensus",
	Short:         "Count canonical hex tile edge patterns in world snapshots",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "./configs/tilecensus.yaml", "path to tilecensus.yaml (missing file means defaults)")
	pf.StringVar(&dataDir, "data", "", "runtime data directory (overrides data_dir; paths set explicitly in the config file are kept)")
	pf.StringVar(&snapDir, "snapshots", "", "tile snapshot directory (overrides snapshots.dir)")
	pf.StringVar(&exportDir, "exports", "", "CSV export directory (overrides export.dir)")
	pf.BoolVar(&strictTiles, "strict", false, "reject tiles whose segments claim the same edge")
	pf.BoolVar(&disableDB, "disable_db", false, "do not record runs in the sqlite index")

	rootCmd.AddCommand(runCmd, watchCmd, serveCmd)
}

// loadConfig applies command-line overrides on top of the config file.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath, !cmd.Flags().Changed("config"))
	if err != nil {
		return cfg, err
	}
	if dataDir != "" {
		cfg.SetDataDir(dataDir)
	}
	if snapDir != "" {
		cfg.Snapshots.Dir = snapDir
	}
	if exportDir != "" {
		cfg.Export.Dir = exportDir
	}
	if strictTiles {
		cfg.Classifier.Strict = true
	}
	if disableDB {
		cfg.Index.Enabled = false
	}
	cfg.Normalize()
	return cfg, cfg.Validate()
}
