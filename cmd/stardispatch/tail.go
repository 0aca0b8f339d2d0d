package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/stardispatch/internal/tui/tail"
)

func tailCmd(g *globalFlags) *cobra.Command {
	var (
		method     string
		sigJSON    string
		headers    []string
		plain      bool
		opts       tail.Options
		heartbeats bool
	)

	cmd := &cobra.Command{
		Use:   "tail <url|/path>",
		Short: "Follow a Datastar event stream frame by frame",
		Long: `Connect to a Datastar endpoint and display every SSE frame as it arrives.

A path starting with "/" is resolved against api.listen from the config.`,
		Example: `  stardispatch tail /ds/clock
  stardispatch tail -X POST -d '{"count":10,"delay":200}' /ds/counter
  stardispatch tail --plain http://localhost:8080/ds/feed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveTarget(g, cmd, args[0])
			if err != nil {
				return err
			}
			hdr, err := parseHeaders(headers)
			if err != nil {
				return err
			}
			src := tail.Source{URL: target, Method: method, Signals: sigJSON, Header: hdr}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if plain {
				return tail.Plain(ctx, opts.Client, src, cmd.OutOrStdout(), heartbeats)
			}
			opts.HideHeartbeats = !heartbeats
			_, err = tea.NewProgram(tail.New(ctx, src, opts), tea.WithContext(ctx)).Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVarP(&sigJSON, "signals", "d", "", "Signals as a JSON object")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Extra request header (\"Name: value\"), repeatable")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print frames to stdout instead of the TUI")
	cmd.Flags().BoolVar(&opts.Reconnect, "reconnect", false, "Reopen the stream after it ends, resuming from the last id")
	cmd.Flags().IntVar(&opts.MaxFrames, "max-frames", 500, "Scrollback size")
	cmd.Flags().BoolVar(&heartbeats, "heartbeats", false, "Show heartbeat frames")
	return cmd
}

func resolveTarget(g *globalFlags, cmd *cobra.Command, arg string) (string, error) {
	if !strings.HasPrefix(arg, "/") {
		return arg, nil
	}
	cfg, _, err := loadConfig(g, cmd.ErrOrStderr(), true)
	if err != nil {
		return "", err
	}
	return "http://" + cfg.API.Listen + arg, nil
}

func parseHeaders(raw []string) (http.Header, error) {
	h := http.Header{}
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q (want \"Name: value\")", kv)
		}
		h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return h, nil
}
