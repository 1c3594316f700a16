package biohub

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/soundprediction/go-biohub/pkg/botlog"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Manage the bot run report database",
}

var reportInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the report tables and seed bots, domains and properties",
	RunE:  runReportInit,
}

var reportIngestCmd = &cobra.Command{
	Use:   "ingest <dir|file>",
	Short: "Load run logs into the report database",
	Long: `Load a run log, or every *.log file of a directory, into the report
database. Loading a log again replaces the rows of its run.`,
	Args: cobra.ExactArgs(1),
	RunE: runReportIngest,
}

var reportRunsCmd = &cobra.Command{
	Use:   "runs [run_name]",
	Short: "List bot runs with their action counts",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReportRuns,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportInitCmd, reportIngestCmd, reportRunsCmd)

	reportIngestCmd.Flags().Bool("register", false, "Create bots missing from the report")
}

func runReportInit(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	reports, err := c.Reports()
	if err != nil {
		return err
	}
	return reports.InitialSetup(cmd.Context())
}

func runReportIngest(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	reports, err := c.Reports()
	if err != nil {
		return err
	}
	reports.AutoRegister, _ = cmd.Flags().GetBool("register")

	ctx := cmd.Context()
	info, err := os.Stat(args[0])
	if err != nil {
		return err
	}
	if !info.IsDir() {
		res, err := reports.ProcessLog(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: run %d, %d entries\n", res.Path, res.BotRun, res.Entries)
		return nil
	}

	done, err := reports.ProcessLogs(ctx, args[0])
	for _, res := range done {
		fmt.Printf("%s: run %d, %d entries\n", res.Path, res.BotRun, res.Entries)
	}
	return err
}

func runReportRuns(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	reports, err := c.Reports()
	if err != nil {
		return err
	}
	var runName string
	if len(args) == 1 {
		runName = args[0]
	}
	runs, err := reports.BotRuns(cmd.Context(), runName)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.Bot,
			r.RunName,
			r.RunID,
			humanize.Time(r.Ended),
			humanize.Comma(int64(r.Actions[botlog.ActionCreate])),
			humanize.Comma(int64(r.Actions[botlog.ActionUpdate])),
			humanize.Comma(int64(r.Actions[botlog.LevelError])),
		})
	}
	fmt.Println(table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "BOT", "RUN", "RUN ID", "ENDED", "CREATED", "UPDATED", "ERRORS").
		Rows(rows...).
		String())
	return nil
}
