package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ayusman/gazetrack/internal/config"
	"github.com/ayusman/gazetrack/internal/store"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C89A3A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	cellStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
)

var resultColumns = []struct {
	title string
	width int
}{
	{"STARTED", 18},
	{"TARGETS", 8},
	{"DURATION", 10},
	{"ACCURACY", 10},
	{"REACTION", 10},
	{"ID", 36},
}

func newResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show recent target practice runs",
		Args:  cobra.NoArgs,
		RunE:  runResultsCmd,
	}
	cmd.Flags().IntVar(&resultsLimit, "last", 10, "number of runs to show (0 for all)")
	return cmd
}

func runResultsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.Runs().List(resultsLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), renderRuns(runs))
	return err
}

// renderRuns formats runs as a fixed-width table, newest first.
func renderRuns(runs []*store.Run) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Target practice runs"))
	b.WriteString("\n")

	if len(runs) == 0 {
		b.WriteString(emptyStyle.Render("No runs yet. Calibrate and finish a practice run first."))
		return b.String()
	}

	header := make([]string, len(resultColumns))
	for i, col := range resultColumns {
		header[i] = headerStyle.Width(col.width).Render(col.title)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, header...))

	for _, run := range runs {
		cells := []string{
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", run.TargetCount),
			run.EndedAt.Sub(run.StartedAt).Round(100 * time.Millisecond).String(),
			fmt.Sprintf("%.1fpx", run.MeanAccuracy),
			fmt.Sprintf("%dms", run.MeanReactionMs),
			run.ID,
		}
		row := make([]string, len(cells))
		for i, c := range cells {
			row[i] = cellStyle.Width(resultColumns[i].width).Render(c)
		}
		b.WriteString("\n")
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}

	return b.String()
}
