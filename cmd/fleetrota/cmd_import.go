/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/friendsincode/fleetrota/internal/bridge"
	"github.com/friendsincode/fleetrota/internal/db"
	"github.com/friendsincode/fleetrota/internal/models"
	"github.com/friendsincode/fleetrota/internal/store"
)

var importProgramadosCmd = &cobra.Command{
	Use:   "import-programados",
	Short: "Load external pre-assignments from a CSV export",
	Long:  "Replace the pre-assignment rows of every service day present in the CSV with the file's rows",
	RunE:  runImportProgramados,
}

var (
	importCSVPath string
	importDryRun  bool
)

func init() {
	rootCmd.AddCommand(importProgramadosCmd)

	importProgramadosCmd.Flags().StringVar(&importCSVPath, "csv", "", "Path to the CSV export (required)")
	importProgramadosCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Parse and summarize without writing")
	_ = importProgramadosCmd.MarkFlagRequired("csv")
}

func runImportProgramados(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	f, err := os.Open(importCSVPath)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	rows, err := bridge.ParseCSV(f)
	if err != nil {
		return err
	}
	byDay := groupByDay(rows)

	logger.Info().
		Str("path", importCSVPath).
		Int("rows", len(rows)).
		Int("days", len(byDay)).
		Bool("dry_run", importDryRun).
		Msg("importing pre-assignments")

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	if importDryRun {
		for _, day := range days {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows\n", day, len(byDay[day]))
		}
		return nil
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close(database)
	if err := db.Migrate(database); err != nil {
		return err
	}

	feed := store.NewPreAssignments(database)
	for _, day := range days {
		if err := feed.ReplaceForDay(cmd.Context(), day, byDay[day]); err != nil {
			return fmt.Errorf("import %s: %w", day, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows imported\n", day, len(byDay[day]))
	}
	return nil
}

func groupByDay(rows []models.ExternalPreAssignment) map[string][]models.ExternalPreAssignment {
	byDay := make(map[string][]models.ExternalPreAssignment)
	for _, row := range rows {
		byDay[row.ServiceDay] = append(byDay[row.ServiceDay], row)
	}
	return byDay
}
