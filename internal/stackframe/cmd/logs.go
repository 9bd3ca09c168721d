package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/nxadm/tail"
	"github.com/spf13/cobra"

	"stackframe/internal/logging"
)

func newLogsCmd() *cobra.Command {
	logs := &cobra.Command{
		Use:   "logs",
		Short: "Show the newest debug log",
		Long: `Logs prints the newest log file written with STACKFRAME_LOG_TO_FILE=1.
With --follow it keeps printing lines as they are appended.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			follow, _ := cmd.Flags().GetBool("follow")
			path, err := logging.LatestFile(dir)
			if err != nil {
				return err
			}
			if !follow {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				_, err = io.Copy(cmd.OutOrStdout(), f)
				return err
			}
			return followLog(cmd, path)
		},
	}
	logs.Flags().String("dir", ".", "Directory holding the log files")
	logs.Flags().BoolP("follow", "f", false, "Follow the log as it grows")
	return logs
}

func followLog(cmd *cobra.Command, path string) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("tail %s: %w", path, err)
	}
	defer t.Cleanup()

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return t.Stop()
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				return line.Err
			}
			fmt.Fprintln(cmd.OutOrStdout(), line.Text)
		}
	}
}
