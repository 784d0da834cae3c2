package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/profile-scout/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv|file.xlsx>",
	Short: "Warm the profile cache from a spreadsheet of profile URLs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		column, _ := cmd.Flags().GetInt("column")
		skipRows, _ := cmd.Flags().GetInt("skip-rows")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		sheet, _ := cmd.Flags().GetString("sheet")

		im := importer.New(env.Resolver)
		summary, err := im.Run(ctx, args[0], importer.Options{
			Column:    column,
			SkipRows:  skipRows,
			BatchSize: batchSize,
			SheetName: sheet,
		})
		if err != nil {
			return eris.Wrap(err, "import")
		}

		fmt.Printf("Imported %d rows: %d valid, %d cached, %d fetched, %d dropped\n",
			summary.Rows, summary.Valid, summary.Cached, summary.Fetched, summary.Dropped)
		return nil
	},
}

func init() {
	importCmd.Flags().Int("column", 0, "zero-based column holding profile URLs")
	importCmd.Flags().Int("skip-rows", 1, "header rows to skip")
	importCmd.Flags().Int("batch-size", 25, "references resolved per provider call")
	importCmd.Flags().String("sheet", "", "XLSX sheet name (first sheet by default)")
	rootCmd.AddCommand(importCmd)
}
