package commands

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roivol/roivol/pkg/view"
)

var runCmd = &cobra.Command{
	Use:   "run <folder-path> <roi-file>",
	Short: "Traverse a folder and compute the volume of every DICOM directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Bool("export", false, "Export the results as CSV once every job has settled")
	runCmd.Flags().Bool("progress", true, "Print each row as it changes")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	doExport, _ := cmd.Flags().GetBool("export")
	progress, _ := cmd.Flags().GetBool("progress")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var onRow func(*view.Table, view.Row)
	if progress {
		onRow = rowPrinter(out)
	}
	rt, err := openSession(ctx, cfg, out, onRow)
	if err != nil {
		return err
	}
	defer rt.Close()

	snap, err := rt.Submit(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if len(snap.Items) == 0 {
		fmt.Fprintln(out, rt.Render())
		return nil
	}

	rt.ComputeAll(ctx)
	rt.Wait()
	fmt.Fprintln(out, rt.Render())

	if doExport {
		res, err := rt.Export(ctx)
		if err != nil {
			return err
		}
		printExport(out, res.Path, res.Location)
	}
	return nil
}

// rowPrinter prints a single line for every row update.
func rowPrinter(out io.Writer) func(*view.Table, view.Row) {
	var mu sync.Mutex
	return func(t *view.Table, r view.Row) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(out, t.RenderRow(r))
	}
}

func printExport(out io.Writer, path, location string) {
	fmt.Fprintf(out, "exported: %s\n", path)
	if location != "" {
		fmt.Fprintf(out, "uploaded: %s\n", location)
	}
}
