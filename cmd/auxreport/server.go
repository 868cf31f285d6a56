package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tinytelemetry/auxreport/internal/httpserver"
	"github.com/tinytelemetry/auxreport/internal/report"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve reports over the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd)
		},
	}

	f := cmd.Flags()
	f.String("api-addr", "", "listen address for the HTTP API")
	f.String("url", "", "OpenNMS REST base url")
	f.StringSlice("interfaces", nil, "default interface resource ids")
	f.StringSlice("metrics", nil, "default metric attributes")
	f.String("failure-policy", "", "fail-fast or best-effort")
	f.String("timezone", "", "IANA zone for hour and day buckets (default: local)")
	f.Duration("run-timeout", 0, "abort a report run after this long")
	f.String("log-level", "", "log level")
	return cmd
}

// serve runs the HTTP API until SIGINT or SIGTERM.
func (a *app) serve(cmd *cobra.Command) error {
	cfg, logger, flush, err := a.setup(cmd)
	if err != nil {
		return err
	}
	defer flush()

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	runner := report.NewRunner(client, cfg.runnerConfig(), report.WithLogger(logger))

	apiServer := httpserver.NewServer(cfg.APIAddr, runner,
		httpserver.WithLogger(logger),
		httpserver.WithDefaults(cfg.Interfaces, cfg.metricsOr(nil)),
		httpserver.WithRunTimeout(cfg.RunTimeout),
		httpserver.WithLocation(cfg.location),
	)
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	printStartupBanner(cmd.OutOrStdout(), cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down gracefully...")
	if err := apiServer.Stop(); err != nil {
		logger.Warn("api shutdown", zap.Error(err))
		return err
	}
	return nil
}

func printStartupBanner(w io.Writer, cfg appConfig) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗╦ ╦═╗ ╦╦═╗╔═╗╔═╗╔═╗╦═╗╔╦╗
    ╠═╣║ ║╔╩╦╝╠╦╝║╣ ╠═╝║ ║╠╦╝ ║
    ╩ ╩╚═╝╩ ╚═╩╚═╚═╝╩  ╚═╝╩╚═ ╩`)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+dim.Render("v"+version))
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	lines = append(lines, fmt.Sprintf("    %s  Metrics        %s", check, cyan.Render(cfg.APIAddr+"/metrics")))
	lines = append(lines, fmt.Sprintf("    %s  OpenNMS        %s", check, dim.Render(cfg.URL)))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Runtime"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Concurrency    %s", check, dim.Render(fmt.Sprint(cfg.Concurrency))))
	lines = append(lines, fmt.Sprintf("    %s  Failures       %s", check, dim.Render(string(cfg.policy))))
	lines = append(lines, fmt.Sprintf("    %s  Time zone      %s", check, dim.Render(cfg.location.String())))
	if len(cfg.Interfaces) > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Interfaces     %s", check, dim.Render(fmt.Sprintf("%d default", len(cfg.Interfaces)))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Interfaces     %s", dot, dim.Render("per request")))
	}

	lines = append(lines, "")
	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}
	if cfg.LogPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Log File       %s", check, dim.Render(shortenPath(cfg.LogPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Log File       %s", dot, dim.Render("stderr")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
