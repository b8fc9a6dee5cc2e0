package commands

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roivol/roivol/pkg/db"
	"github.com/roivol/roivol/pkg/errors"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List remembered folder and ROI file submissions",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum number of submissions to list (0 lists all)")
	historyCmd.Flags().Bool("clear", false, "Forget every remembered submission")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	limit, _ := cmd.Flags().GetInt("limit")
	doClear, _ := cmd.Flags().GetBool("clear")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.SQLitePath == "" {
		return fmt.Errorf("submission history is disabled (sqlite-path is empty)")
	}

	// Ensure database directory exists
	if err := ensureDirectories(cfg.SQLitePath, "", ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	out := cmd.OutOrStdout()

	if doClear {
		n, err := repo.Clear(ctx)
		if err != nil {
			return errors.Wrap(err, "clear failed")
		}
		fmt.Fprintf(out, "Removed %d submissions\n", n)
		return nil
	}

	subs, err := repo.Recent(ctx, limit)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(subs) == 0 {
		fmt.Fprintln(out, "No submissions found")
		return nil
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"FOLDER", "ROI FILE", "DIRECTORIES", "USES", "LAST USED"})
	for _, s := range subs {
		tw.AppendRow(table.Row{s.FolderPath, s.ROIFile, s.ItemCount, s.UseCount, s.LastUsedAt})
	}
	fmt.Fprintln(out, tw.Render())
	return nil
}
