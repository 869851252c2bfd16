package cmd

import (
	"fmt"
	"os"

	"github.com/pypeclub/tmplbuild/internal/database"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed [documents.json...]",
	Short: "Load asset and representation documents into the SQLite database",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := database.OpenSQLite(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		total := 0
		for _, path := range args {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			docs, err := database.ReadDocuments(f)
			_ = f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := db.Insert(docs...); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			log.WithField("file", path).WithField("documents", len(docs)).Debug("seeded")
			total += len(docs)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d documents into %s\n", total, cfg.Database.Path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
