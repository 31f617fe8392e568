package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/clearpath-ai/clearpath-rag/internal/querylog"
)

func newLogsCmd() *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent query log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(n)
		},
	}

	cmd.Flags().IntVarP(&n, "lines", "n", 10, "Number of entries to show")
	return cmd
}

func runLogs(n int) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	p := printer()

	entries, err := querylog.New(cfg.Paths.QueryLogPath).Recent(n)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		p.Dim("no queries logged yet")
		return nil
	}

	for _, e := range entries {
		ts := e.Timestamp.Format("2006-01-02 15:04:05")
		if e.Error != nil {
			p.Error("%s  %-7s %-28s FAILED: %s", ts, e.Classification, truncate(e.Query, 28), *e.Error)
			continue
		}
		p.Success("%s  %-7s %-28s %s %.0fms in=%d out=%d",
			ts, e.Classification, truncate(e.Query, 28), e.ModelUsed,
			e.LatencyMS, e.TokensInput, e.TokensOutput)
		if len(e.EvaluatorFlags) > 0 {
			p.Warn("    flags: %s", strings.Join(e.EvaluatorFlags, ", "))
		}
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
