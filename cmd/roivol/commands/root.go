package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roivol/roivol/internal/config"
	"github.com/roivol/roivol/pkg/notify"
)

// LogLevel is applied to the default logger once configuration is loaded.
var LogLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:   "roivol",
	Short: "DICOM ROI volume client",
	Long:  `Traverses a folder for DICOM directories containing an ROI file and computes ROI volumes through the remote services.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		level, err := config.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		LogLevel.Set(level)
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("server-url", "http://localhost:8000", "Base URL of the traversal and volume services")
	rootCmd.PersistentFlags().Duration("request-timeout", 0, "Per-request timeout (0 waits for the transport)")
	rootCmd.PersistentFlags().Duration("notify-duration", notify.DefaultDuration, "How long a notification stays visible")
	rootCmd.PersistentFlags().String("export-dir", ".", "Directory exports are written to")
	rootCmd.PersistentFlags().String("export-encoding", "utf-8", "Export encoding (utf-8, gb18030, gbk)")
	rootCmd.PersistentFlags().String("sqlite-path", ".artifacts/history.db", "SQLite submission history path (empty disables)")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm", "FSM BoltDB directory (empty runs jobs in-process)")
	rootCmd.PersistentFlags().String("lock-path", ".artifacts/session.lock", "Session lock file")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket exports are uploaded to (empty disables)")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().String("s3-prefix", "exports", "S3 key prefix for exports")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	for _, name := range []string{
		"server-url", "request-timeout", "notify-duration", "export-dir", "export-encoding",
		"sqlite-path", "fsm-db-path", "lock-path", "s3-bucket", "s3-region", "s3-prefix", "log-level",
	} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}
