package biohub

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Launch uploads for sources with a finished dump",
	Long: `Poll the src_dump collection and launch an upload subprocess for every
source whose dump is pending upload. When an upload succeeds the source's
builder command runs.

Without --daemon the command returns once no upload is running or pending.`,
	RunE: runDispatch,
}

var dumpCmd = &cobra.Command{
	Use:   "dump [source]",
	Short: "Download a data source into the archive",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDump,
}

var uploadCmd = &cobra.Command{
	Use:   "upload [source]",
	Short: "Load a dumped source into the staging database",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runUpload,
}

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Run scheduled dumps and the upload poll",
	Long: `Run the configured cron schedules until interrupted. Schedules have a
seconds field, e.g. "0 0 3 * * *" dumps every day at 03:00.`,
	RunE: runHub,
}

func init() {
	rootCmd.AddCommand(dispatchCmd, dumpCmd, uploadCmd, hubCmd)

	dispatchCmd.Flags().BoolP("daemon", "d", false, "Keep polling after every upload finished")

	dumpCmd.Flags().Bool("all", false, "Dump every registered source")
	dumpCmd.Flags().Bool("force", false, "Download even when the release is unchanged")

	uploadCmd.Flags().Bool("all", false, "Upload every registered source")
}

func runDispatch(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	ctx, cancel := signalContext()
	defer cancel()

	d, err := c.Dispatcher(ctx)
	if err != nil {
		return err
	}
	daemon, _ := cmd.Flags().GetBool("daemon")
	if err := d.Run(ctx, daemon); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func sourceArg(cmd *cobra.Command, args []string) (string, bool, error) {
	all, _ := cmd.Flags().GetBool("all")
	switch {
	case all && len(args) > 0:
		return "", false, fmt.Errorf("--all does not take a source")
	case !all && len(args) == 0:
		return "", false, fmt.Errorf("a source or --all is required")
	case all:
		return "", true, nil
	default:
		return args[0], false, nil
	}
}

func runDump(cmd *cobra.Command, args []string) error {
	src, all, err := sourceArg(cmd, args)
	if err != nil {
		return err
	}
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	ctx, cancel := signalContext()
	defer cancel()

	m, err := c.Dumpers(ctx)
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")
	if all {
		return m.DumpAll(ctx, force)
	}
	res, err := m.DumpSrc(ctx, src, force)
	if err != nil {
		return err
	}
	if res.Skipped {
		fmt.Printf("%s: release %s is up to date\n", src, res.Release)
		return nil
	}
	fmt.Printf("%s: release %s, %d files, %s in %s\n",
		src, res.Release, len(res.Files), humanize.Bytes(uint64(res.Bytes)), res.DataFolder)
	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	src, all, err := sourceArg(cmd, args)
	if err != nil {
		return err
	}
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	ctx, cancel := signalContext()
	defer cancel()

	m, err := c.Uploaders(ctx)
	if err != nil {
		return err
	}
	if all {
		return m.UploadAll(ctx)
	}
	return m.UploadSrc(ctx, src)
}

func runHub(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	ctx, cancel := signalContext()
	defer cancel()

	h, err := c.Hub(ctx)
	if err != nil {
		return err
	}
	c.Logger().Info("hub started", "entries", h.Entries())
	if err := h.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
