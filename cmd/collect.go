package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCollectCmd() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Runs one collection run and prints a summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollect(cmd, query)
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "search query for the run")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func runCollect(cmd *cobra.Command, query string) error {
	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.engine.Collect(ctx, query)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	rt.logger.Info("run summary",
		zap.String("run_id", result.Run.ID),
		zap.String("status", string(result.Run.Status)),
		zap.Int("accepted", result.Run.Stats.Accepted),
		zap.Int("attempted", result.Run.Stats.Attempted),
		zap.Int("render_assisted", result.Run.Stats.RenderAssisted),
	)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d pages\n", result.Run.ID, len(result.Pages))
	for _, page := range result.Pages {
		fmt.Fprintf(out, "  [%s/%s] %s\n", page.SourceType, page.Tier, page.URL)
	}
	return nil
}
