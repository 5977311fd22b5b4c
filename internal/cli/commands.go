package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Coldaine/ShortcutSage/internal/audit"
	"github.com/Coldaine/ShortcutSage/internal/config"
	"github.com/Coldaine/ShortcutSage/internal/daemon"
	"github.com/Coldaine/ShortcutSage/internal/model"
)

func init() {
	sendCmd.Flags().StringVarP(&sendType, "type", "t", string(model.EventWindowFocus), "Event type")
	sendCmd.Flags().StringToStringVarP(&sendMeta, "meta", "m", nil, "Event metadata (key=value)")
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "Print the raw suggestion list as JSON")

	acceptCmd.Flags().StringVarP(&acceptRule, "rule", "r", "", "Rule that produced the suggestion")

	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "Only include entries newer than this (e.g. 24h); 0 means all")
	auditCmd.Flags().DurationVar(&auditPrune, "prune", 0, "Delete entries older than this before reporting")
	auditCmd.Flags().IntVarP(&auditRecent, "recent", "n", 0, "Also list the N most recent entries")
}

// --- send command ---

var (
	sendType string
	sendMeta map[string]string
	sendJSON bool
)

var sendCmd = &cobra.Command{
	Use:   "send <action | ->",
	Short: "Send an event to the daemon",
	Long:  "Send one event to the daemon and print the suggestions it produced. Use - to read a JSON event from stdin.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	c := newClient()

	var (
		got []model.SuggestionResult
		err error
	)
	if args[0] == "-" {
		data, rerr := io.ReadAll(cmd.InOrStdin())
		if rerr != nil {
			return fmt.Errorf("read stdin: %w", rerr)
		}
		got, err = c.SendEventJSON(data)
	} else {
		got, err = c.SendEvent(daemon.EventRequest{
			Timestamp: time.Now().Format(time.RFC3339Nano),
			Type:      sendType,
			Action:    args[0],
			Metadata:  sendMeta,
		})
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if sendJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(got)
	}
	printSuggestions(out, got)
	return nil
}

func printSuggestions(w io.Writer, got []model.SuggestionResult) {
	if len(got) == 0 {
		fmt.Fprintln(w, "No suggestions.")
		return
	}
	for i, s := range got {
		fmt.Fprintf(w, "%d. %-16s %s (%s, priority %d)\n", i+1, s.Key, s.Description, s.Action, s.Priority)
	}
}

// --- accept command ---

var acceptRule string

var acceptCmd = &cobra.Command{
	Use:   "accept <action>",
	Short: "Report that a suggested shortcut was used",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := newClient().Accept(args[0], acceptRule)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s accepted (%s total)\n",
			model.CanonicalAction(args[0]), humanize.Comma(int64(n)))
		return nil
	},
}

// --- buffer command ---

var bufferCmd = &cobra.Command{
	Use:   "buffer",
	Short: "Show the events currently held in the daemon's window",
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := newClient().Buffer()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintln(out, "Buffer is empty.")
			return nil
		}
		for _, ev := range events {
			fmt.Fprintf(out, "%s  %-16s %s\n", ev.Timestamp.Format("15:04:05.000"), ev.Type, ev.Action)
		}
		return nil
	},
}

// --- ping command ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the daemon is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		h, err := c.Health()
		if err != nil {
			return fmt.Errorf("daemon not reachable at %s: %w", c.URL(), err)
		}
		started := time.Now().Add(-time.Duration(h.Uptime * float64(time.Second)))
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s from %s (version %s, up %s)\n", h.Ping, c.URL(), h.Version,
			strings.TrimSpace(humanize.RelTime(started, time.Now(), "", "")))
		fmt.Fprintf(out, "  config: %s (%d rules, %d shortcuts)\n", h.ConfigDir, h.Engine.Rules, h.Engine.Shortcuts)
		return nil
	},
}

// --- watch command ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print suggestions as the daemon publishes them",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		return newClient().Stream(ctx, func(n daemon.Notification) error {
			if len(n.Suggestions) == 0 {
				return nil
			}
			fmt.Fprintf(out, "[%s] after %s:\n", n.Time.Local().Format("15:04:05"), n.Action)
			printSuggestions(out, n.Suggestions)
			return nil
		})
	},
}

// --- validate command ---

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the shortcut and rule files",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if _, err := loadSettings(); err != nil {
			return err
		}
		loader, err := config.NewLoader(configDir())
		if err != nil {
			return err
		}
		shortcuts, rules, err := loader.Load()
		if err != nil {
			var cerr *config.Error
			if errors.As(err, &cerr) {
				fmt.Fprintf(out, "%s: invalid\n", cerr.File)
			}
			return err
		}

		fmt.Fprintf(out, "%s: %d shortcuts, %d rules\n", loader.Dir(), len(shortcuts), len(rules))
		warnings := config.CrossCheck(shortcuts, rules)
		for _, w := range warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		if len(warnings) == 0 {
			fmt.Fprintln(out, "ok")
		}
		return nil
	},
}

// --- audit command ---

var (
	auditSince  time.Duration
	auditPrune  time.Duration
	auditRecent int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Summarize the telemetry log",
	RunE:  runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	now := time.Now()

	if auditPrune > 0 {
		n, err := db.PruneTelemetry(now.Add(-auditPrune).UnixMilli())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "pruned %s entries\n\n", humanize.Comma(n))
	}

	var since time.Time
	if auditSince > 0 {
		since = now.Add(-auditSince)
	}
	report, err := audit.Generate(db, since, now)
	if err != nil {
		return err
	}
	report.Format(out)

	if auditRecent > 0 {
		entries, err := db.RecentTelemetry(auditRecent)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "\nRecent:")
		for _, e := range entries {
			line := fmt.Sprintf("  %s  %-20s", time.UnixMilli(e.CreatedAt).Format(time.DateTime), e.Type)
			if e.Timed {
				line += fmt.Sprintf(" %s", e.Duration)
			}
			if e.Properties != "" {
				line += " " + e.Properties
			}
			fmt.Fprintln(out, line)
		}
	}
	return nil
}
