package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roivol/roivol/pkg/notify"
	"github.com/roivol/roivol/pkg/session"
	"github.com/roivol/roivol/pkg/store"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start an interactive session",
	Long: `Reads commands from stdin:

  traverse <folder-path> <roi-file>   replace the table with a new traversal
  compute <n>                         compute the volume of row n
  compute-all                         compute every row that is not running
  wait                                wait for running computations
  show                                print the table
  status                              print the visible notifications
  export                              write the table as CSV
  quit                                wait for running computations and exit`,
	Args: cobra.NoArgs,
	RunE: runSession,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	rt, err := openSession(ctx, cfg, out, rowPrinter(out))
	if err != nil {
		return err
	}
	defer rt.Close()

	return repl(ctx, rt.Session, cmd.InOrStdin(), out)
}

// interactive is the part of a session driven by the prompt.
type interactive interface {
	Submit(ctx context.Context, folderPath, roiFile string) (store.Snapshot, error)
	Compute(ctx context.Context, index int) error
	ComputeAll(ctx context.Context) int
	Wait()
	Render() string
	Notifications() notify.Messages
	Export(ctx context.Context) (*session.ExportResult, error)
}

// repl runs prompt commands until quit or end of input. Command failures are
// reported through notifications and never end the loop.
func repl(ctx context.Context, s interactive, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(out, "> ")
			continue
		}

		name, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch name {
		case "quit", "exit":
			return nil
		case "traverse":
			folder, roi := splitTraverseArgs(rest)
			if _, err := s.Submit(ctx, folder, roi); err == nil {
				fmt.Fprintln(out, s.Render())
			}
		case "compute":
			n, err := strconv.Atoi(rest)
			if err != nil {
				fmt.Fprintf(out, "usage: compute <n>\n")
				break
			}
			if err := s.Compute(ctx, n-1); err != nil {
				fmt.Fprintf(out, "row %d: %v\n", n, err)
			}
		case "compute-all":
			fmt.Fprintf(out, "started %d\n", s.ComputeAll(ctx))
		case "wait":
			s.Wait()
			fmt.Fprintln(out, s.Render())
		case "show":
			fmt.Fprintln(out, s.Render())
		case "status":
			msgs := s.Notifications()
			if msgs.Success != "" {
				fmt.Fprintf(out, "success: %s\n", msgs.Success)
			}
			if msgs.Error != "" {
				fmt.Fprintf(out, "error: %s\n", msgs.Error)
			}
		case "export":
			if res, err := s.Export(ctx); err == nil || res != nil {
				printExport(out, res.Path, res.Location)
			}
		case "help":
			fmt.Fprintln(out, sessionCmd.Long)
		default:
			fmt.Fprintf(out, "unknown command %q (try help)\n", name)
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

// splitTraverseArgs takes the last field as the ROI file name and the rest,
// which may contain spaces, as the folder path.
func splitTraverseArgs(rest string) (folder, roi string) {
	i := strings.LastIndexAny(rest, " \t")
	if i < 0 {
		return rest, ""
	}
	return strings.TrimSpace(rest[:i]), strings.TrimSpace(rest[i+1:])
}

var _ interactive = (*session.Session)(nil)
