package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/tinytelemetry/auxreport/internal/opennms"
	"github.com/tinytelemetry/auxreport/internal/report"
)

func newNodesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes [pair...]",
		Short: "List the virtual servers discovered on each node pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listNodes(cmd, args)
		},
	}
	cmd.Flags().String("url", "", "OpenNMS REST base url")
	return cmd
}

func (a *app) listNodes(cmd *cobra.Command, pairs []string) error {
	cfg, logger, flush, err := a.setup(cmd)
	if err != nil {
		return err
	}
	defer flush()

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		pairs = cfg.Nodes
	}
	if len(pairs) == 0 {
		return fmt.Errorf("no node pairs configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bold := lipgloss.NewStyle().Bold(true)
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	out := cmd.OutOrStdout()
	for _, pair := range pairs {
		d, err := report.Discover(ctx, client, report.ParsePair(pair))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s  %s\n", bold.Render(d.Name), dim.Render(pair))

		tbl := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(dim).
			Headers("Node", "Address", "Virtual servers")
		for _, n := range d.Nodes {
			ip, _ := opennms.ParseNodeLabel(n.Label)
			tbl.Row(n.Node, ip, fmt.Sprint(len(n.Interfaces)))
		}
		fmt.Fprintln(out, tbl.String())
		fmt.Fprintf(out, "%d interfaces, %d metrics\n\n", len(d.Interfaces), len(d.Metrics))
	}
	return nil
}
