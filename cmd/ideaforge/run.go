package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/ideaforge/internal/artifacts"
	"github.com/jonathan/ideaforge/internal/observability"
	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/types"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the idea-to-launch pipeline once and wait for it",
	Long: `Submits one run in this process, streams its progress and prints a summary
when it finishes. Without an API key, or with --offline, generation uses the
deterministic scripted backend so the pipeline runs without network access.

Review pauses are approved automatically with --approve; otherwise the
command stops at the first pause.`,
	RunE: runPipelineCmd,
}

var (
	runProject     string
	runSector      string
	runIdea        string
	runIdeaFile    string
	runConstraints []string
	runPipeline    string
	runOffline     bool
	runApprove     bool
	runOut         string
)

func init() {
	runCommand.Flags().StringVarP(&runProject, "project", "p", "", "Project id (required)")
	runCommand.Flags().StringVarP(&runSector, "sector", "s", "", "Market sector of the idea (required)")
	runCommand.Flags().StringVarP(&runIdea, "idea", "i", "", "Idea text (mutually exclusive with --idea-file)")
	runCommand.Flags().StringVar(&runIdeaFile, "idea-file", "", "Path to a file containing the idea text")
	runCommand.Flags().StringArrayVar(&runConstraints, "constraint", nil, "Constraint the outputs must respect (repeatable)")
	runCommand.Flags().StringVar(&runPipeline, "pipeline", types.DefaultPipeline, "Pipeline to run")
	runCommand.Flags().BoolVar(&runOffline, "offline", false, "Use the scripted generation backend even if an API key is set")
	runCommand.Flags().BoolVar(&runApprove, "approve", false, "Approve review pauses automatically")
	runCommand.Flags().StringVarP(&runOut, "out", "o", "", "Directory to write artifacts to")

	_ = runCommand.MarkFlagRequired("project")
	_ = runCommand.MarkFlagRequired("sector")
	runCommand.MarkFlagsMutuallyExclusive("idea", "idea-file")

	rootCmd.AddCommand(runCommand)
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	req, err := buildSubmitRequest()
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if runOffline {
		cfg.LLM.Offline = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	printer := observability.NewPrinter(cmd.OutOrStdout())
	run, err := executeRun(ctx, a, req, runApprove, printer)
	if err != nil {
		return err
	}

	printer.PrintRun(run)
	printer.PrintSteps(run)
	printer.PrintArtifacts(run)
	printer.PrintProblems(run)

	if runOut != "" {
		written, err := writeArtifacts(ctx, a.store, run, runOut)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d artifacts to %s\n", written, runOut)
	}

	switch run.Status {
	case types.RunStatusFailed:
		return fmt.Errorf("run %s failed", run.ID)
	case types.RunStatusPaused:
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Run paused for review at %s; rerun with --approve to continue automatically\n", run.CurrentStepName())
	}
	return nil
}

func buildSubmitRequest() (types.SubmitRequest, error) {
	idea := runIdea
	if runIdeaFile != "" {
		data, err := os.ReadFile(runIdeaFile)
		if err != nil {
			return types.SubmitRequest{}, fmt.Errorf("failed to read idea file: %w", err)
		}
		idea = string(data)
	}
	if strings.TrimSpace(idea) == "" {
		return types.SubmitRequest{}, errors.New("either --idea or --idea-file must be provided")
	}
	return types.SubmitRequest{
		ProjectID:   runProject,
		Pipeline:    runPipeline,
		Sector:      runSector,
		Idea:        idea,
		Constraints: runConstraints,
	}, nil
}

// executeRun submits req and follows the run until it is terminal, or paused
// without autoApprove. Progress events are printed as they arrive.
func executeRun(ctx context.Context, a *app, req types.SubmitRequest, autoApprove bool, printer *observability.Printer) (*types.Run, error) {
	run, err := a.dispatcher.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	events, unsubscribe := a.engine.Events().Subscribe(run.ID)
	defer unsubscribe()

	for {
		if err := follow(ctx, a, events, printer); err != nil {
			return nil, err
		}
		run, err = a.tracker.Get(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		if run.Status != types.RunStatusPaused || !autoApprove {
			return run, nil
		}
		a.logger.Info().Str("run_id", run.ID.String()).Str("step", run.CurrentStepName()).Msg("approving review")
		if _, err := a.dispatcher.Resume(ctx, run.ID); err != nil {
			return nil, err
		}
	}
}

// follow prints events until every launched execution has returned.
func follow(ctx context.Context, a *app, events <-chan pipeline.ProgressEvent, printer *observability.Printer) error {
	done := make(chan struct{})
	go func() {
		a.dispatcher.Wait()
		close(done)
	}()

	for {
		select {
		case e := <-events:
			printer.PrintEvent(e)
		case <-done:
			for {
				select {
				case e := <-events:
					printer.PrintEvent(e)
				default:
					return nil
				}
			}
		case <-ctx.Done():
			// interrupted runs stay running and are recovered by the next serve
			a.dispatcher.Close()
			<-done
			return ctx.Err()
		}
	}
}

// writeArtifacts copies the run's artifacts into dir, one file per kind.
func writeArtifacts(ctx context.Context, store artifacts.Store, run *types.Run, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}
	for _, a := range run.Artifacts {
		data, err := store.Get(ctx, a.Locator)
		if err != nil {
			return 0, fmt.Errorf("failed to read %s artifact: %w", a.Kind, err)
		}
		if a.Checksum != "" && types.Checksum(data) != a.Checksum {
			return 0, fmt.Errorf("%s artifact checksum mismatch", a.Kind)
		}
		path := filepath.Join(dir, string(a.Kind)+extension(a.ContentType))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return 0, fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return len(run.Artifacts), nil
}

func extension(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(mediaType) {
	case "text/markdown":
		return ".md"
	case "text/html":
		return ".html"
	case "application/json":
		return ".json"
	case "image/svg+xml":
		return ".svg"
	case "image/png":
		return ".png"
	case "video/webm":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	}
	return ".bin"
}
