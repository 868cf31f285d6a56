package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/tinytelemetry/auxreport/internal/model"
	"github.com/tinytelemetry/auxreport/internal/opennms"
)

// Discovery is the merged interface listing of a node pair.
type Discovery struct {
	// Name joins the parsed node names, e.g. "lb-east-1:lb-east-2".
	Name       string
	Nodes      []*model.NodeResources
	Interfaces []string
	Metrics    []string
}

// ParsePair splits a "nodeA,nodeB" pair definition.
func ParsePair(pair string) []string {
	var nodes []string
	for _, n := range strings.Split(pair, ",") {
		if n = strings.TrimSpace(n); n != "" {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Discover lists the interfaces of every node, in node order. Metrics come
// from the first node that reports any.
func Discover(ctx context.Context, lister model.ResourceLister, nodes []string) (*Discovery, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("report: no nodes to discover")
	}
	d := &Discovery{}
	labels := make([]string, 0, len(nodes))
	seen := make(map[string]struct{})
	for _, node := range nodes {
		res, err := lister.NodeResources(ctx, node)
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", node, err)
		}
		d.Nodes = append(d.Nodes, res)
		labels = append(labels, res.Label)
		for _, iface := range res.Interfaces {
			if _, ok := seen[iface]; ok {
				continue
			}
			seen[iface] = struct{}{}
			d.Interfaces = append(d.Interfaces, iface)
		}
		if len(d.Metrics) == 0 {
			d.Metrics = append(d.Metrics, res.Metrics...)
		}
	}
	d.Name = opennms.PairName(labels...)
	return d, nil
}
