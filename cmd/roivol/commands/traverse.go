package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var traverseCmd = &cobra.Command{
	Use:   "traverse <folder-path> <roi-file>",
	Short: "List the DICOM directories under a folder that contain the ROI file",
	Args:  cobra.ExactArgs(2),
	RunE:  runTraverse,
}

func init() {
	rootCmd.AddCommand(traverseCmd)
}

func runTraverse(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	rt, err := openSession(ctx, cfg, out, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.Submit(ctx, args[0], args[1]); err != nil {
		return err
	}

	fmt.Fprintln(out, rt.Render())
	return nil
}
