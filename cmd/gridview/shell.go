package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/gridview/internal/view"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Explore the dashboard interactively",
	Long: `Starts a dashboard session and reads commands from stdin:

  hour N     select hour N (1-24)
  select I   click the point at index I
  back       return to the overview (when allow_return is enabled)
  show       print the current map geometry
  wait       wait for pending data to arrive
  quit       exit`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	src, closeSrc, err := openSource(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSrc()

	session, stop := startSession(cfg, src, logger)
	defer stop()

	return shellLoop(cmd.Context(), session, os.Stdin, os.Stdout)
}

// shellLoop reads commands from in until EOF or quit
func shellLoop(ctx context.Context, session *view.Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			fmt.Fprint(out, "> ")
			continue
		}

		quit, err := shellCommand(ctx, session, fields, out)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func shellCommand(ctx context.Context, session *view.Session, fields []string, out io.Writer) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	arg := func() (int, error) {
		if len(fields) != 2 {
			return 0, fmt.Errorf("usage: %s N", fields[0])
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, fmt.Errorf("%s: not a number: %s", fields[0], fields[1])
		}
		return n, nil
	}

	switch fields[0] {
	case "hour":
		h, err := arg()
		if err != nil {
			return false, err
		}
		return false, session.SetHour(ctx, h)
	case "select":
		idx, err := arg()
		if err != nil {
			return false, err
		}
		return false, session.SelectPoint(ctx, idx)
	case "back":
		return false, session.Return(ctx)
	case "wait":
		return false, session.Settle(ctx)
	case "show":
		snap, err := session.Snapshot(ctx)
		if err != nil {
			return false, err
		}
		printSnapshot(out, snap)
		return false, nil
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command: %s", fields[0])
	}
}
