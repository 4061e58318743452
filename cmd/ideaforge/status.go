package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/ideaforge/internal/db"
	"github.com/jonathan/ideaforge/internal/observability"
	"github.com/jonathan/ideaforge/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show a run, or list runs",
	Long: `Reads runs from the configured database. With a run id it prints that run;
without one it lists runs newest first, optionally filtered by project and status.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var (
	statusProject string
	statusFilter  string
	statusLimit   int
	statusJSON    bool
)

func init() {
	statusCmd.Flags().StringVarP(&statusProject, "project", "p", "", "Only list runs of this project")
	statusCmd.Flags().StringVar(&statusFilter, "status", "", "Only list runs with this status")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Maximum number of runs to list")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print JSON instead of a summary")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("status requires database.url (or DATABASE_URL); runs are not persisted otherwise")
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer database.Close()

	out := cmd.OutOrStdout()
	printer := observability.NewPrinter(out)

	if len(args) == 1 {
		runID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", args[0], err)
		}
		run, err := database.Get(ctx, runID)
		if err != nil {
			return err
		}
		if statusJSON {
			return writeJSON(cmd, run)
		}
		printer.PrintRun(run)
		printer.PrintSteps(run)
		printer.PrintArtifacts(run)
		printer.PrintProblems(run)
		return nil
	}

	filter := types.RunFilter{ProjectID: statusProject, Status: types.RunStatus(statusFilter), Limit: statusLimit}
	if filter.Status != "" && !filter.Status.Valid() {
		return fmt.Errorf("unknown status %q", statusFilter)
	}
	runs, err := database.List(ctx, filter)
	if err != nil {
		return err
	}
	if statusJSON {
		return writeJSON(cmd, runs)
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "No runs found")
		return nil
	}
	for _, run := range runs {
		_, _ = fmt.Fprintf(out, "%s  %-10s %-24s step %d/%d  %s\n",
			run.ID, run.Status, run.ProjectID, min(run.CurrentStep, len(run.Steps)), len(run.Steps),
			run.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
