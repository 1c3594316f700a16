package biohub

import (
	"context"
	"fmt"
	"os"

	"github.com/soundprediction/go-biohub"
	"github.com/soundprediction/go-biohub/pkg/botlog"
	"github.com/soundprediction/go-biohub/pkg/sources/interpro"
	"github.com/soundprediction/go-biohub/pkg/sources/mygene"
	"github.com/soundprediction/go-biohub/pkg/utils"
	"github.com/spf13/cobra"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run a bot against the item store",
	Long: `Run a bot that reads the staging database and writes items to the
item store. Every run writes a log to --log-dir; with --ingest the log is
loaded into the report database afterwards.`,
}

var interproCmd = &cobra.Command{
	Use:   "interpro",
	Short: "Write InterPro entries, their relationships and protein domains",
	RunE:  runInterPro,
}

var mondoCmd = &cobra.Command{
	Use:   "mondo",
	Short: "Add Mondo cross references to disease items",
	RunE:  runMondo,
}

var yeastCmd = &cobra.Command{
	Use:   "yeast",
	Short: "Write yeast chromosomes, genes and proteins from MyGene.info",
	RunE:  runYeast,
}

var pubmedCmd = &cobra.Command{
	Use:   "pubmed <pmid>",
	Short: "Find or create the item of a PubMed article",
	Args:  cobra.ExactArgs(1),
	RunE:  runPubmed,
}

func init() {
	rootCmd.AddCommand(botCmd)
	botCmd.AddCommand(interproCmd, mondoCmd, yeastCmd, pubmedCmd)

	botCmd.PersistentFlags().String("run-id", "", "Run identifier (default: start time)")
	botCmd.PersistentFlags().Bool("progress", false, "Show a progress bar")
	botCmd.PersistentFlags().Bool("ingest", false, "Load the run log into the report database")

	interproCmd.Flags().Bool("debug", false, "Stop after a few entries")
	interproCmd.Flags().Bool("skip-items", false, "Do not write entry items")
	interproCmd.Flags().Bool("skip-rel", false, "Do not write entry relationships")
	interproCmd.Flags().Bool("proteins", false, "Also write protein domains")
	interproCmd.Flags().String("taxon", "", "Restrict proteins to this taxon item")

	mondoCmd.Flags().Bool("dry-run", false, "Log updates without writing them")
	mondoCmd.Flags().Bool("sample", false, "Process a sample of the documents")

	yeastCmd.Flags().Bool("skip-proteins", false, "Only write chromosomes and genes")
}

type botFlags struct {
	runID    string
	progress bool
	ingest   bool
}

func readBotFlags(cmd *cobra.Command) botFlags {
	var f botFlags
	f.runID, _ = cmd.Flags().GetString("run-id")
	f.progress, _ = cmd.Flags().GetBool("progress")
	f.ingest, _ = cmd.Flags().GetBool("ingest")
	return f
}

// finish prints the run summary and optionally loads the log into the report.
func finish(ctx context.Context, c *biohub.Client, f botFlags, path string) error {
	_, entries, err := botlog.ParseFile(path)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n%s", path, botlog.Summarize(entries))
	if !f.ingest {
		return nil
	}
	reports, err := c.Reports()
	if err != nil {
		return err
	}
	reports.AutoRegister = true
	res, err := reports.ProcessLog(ctx, path)
	if err != nil {
		return err
	}
	c.Logger().InfoContext(ctx, "run log ingested", "bot_run", res.BotRun, "entries", res.Entries)
	return nil
}

func runInterPro(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	ctx, cancel := signalContext()
	defer cancel()

	deps, err := c.InterProDeps(ctx)
	if err != nil {
		return err
	}
	f := readBotFlags(cmd)
	opts := interpro.Options{LogDir: c.Config().Log.Dir, RunID: f.runID, Progress: f.progress}

	items := &interpro.ItemsBot{Deps: deps, Options: opts}
	items.Debug, _ = cmd.Flags().GetBool("debug")
	items.SkipItems, _ = cmd.Flags().GetBool("skip-items")
	items.SkipRelationships, _ = cmd.Flags().GetBool("skip-rel")
	path, err := items.Run(ctx)
	if err != nil {
		return err
	}
	if err := finish(ctx, c, f, path); err != nil {
		return err
	}

	if proteins, _ := cmd.Flags().GetBool("proteins"); !proteins {
		return nil
	}
	taxon := c.Config().InterPro.Taxon
	if taxon != "" {
		if err := utils.ValidateQID(taxon); err != nil {
			return fmt.Errorf("--taxon: %w", err)
		}
	}
	pb := &interpro.ProteinBot{Deps: deps, Options: opts, Taxon: taxon}
	path, err = pb.Run(ctx)
	if err != nil {
		return err
	}
	return finish(ctx, c, f, path)
}

func runMondo(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	ctx, cancel := signalContext()
	defer cancel()

	b, err := c.MondoBot(ctx)
	if err != nil {
		return err
	}
	f := readBotFlags(cmd)
	b.RunID = f.runID
	b.Progress = f.progress
	b.DryRun, _ = cmd.Flags().GetBool("dry-run")
	b.Sample, _ = cmd.Flags().GetBool("sample")

	path, err := b.Run(ctx)
	if err != nil {
		return err
	}
	return finish(ctx, c, f, path)
}

func runYeast(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	ctx, cancel := signalContext()
	defer cancel()

	deps, err := c.YeastDeps(ctx)
	if err != nil {
		return err
	}
	f := readBotFlags(cmd)
	opts := mygene.Options{LogDir: c.Config().Log.Dir, RunID: f.runID, Progress: f.progress}

	chroms, chromLog, err := (&mygene.ChromosomeBot{Deps: deps, Options: opts}).Run(ctx)
	if err != nil {
		return err
	}
	if err := finish(ctx, c, f, chromLog); err != nil {
		return err
	}

	path, err := (&mygene.GeneBot{Deps: deps, Options: opts, Chromosomes: chroms}).Run(ctx)
	if err != nil {
		return err
	}
	if err := finish(ctx, c, f, path); err != nil {
		return err
	}

	if skip, _ := cmd.Flags().GetBool("skip-proteins"); skip {
		return nil
	}
	path, err = (&mygene.ProteinBot{Deps: deps, Options: opts}).Run(ctx)
	if err != nil {
		return err
	}
	return finish(ctx, c, f, path)
}

func runPubmed(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	ctx, cancel := signalContext()
	defer cancel()

	b, err := c.PubmedBot(ctx, nil)
	if err != nil {
		return err
	}
	qid, err := b.GetOrCreate(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, qid)
	return nil
}
