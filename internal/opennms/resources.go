package opennms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tinytelemetry/auxreport/internal/model"
)

// VirtualServerAttribute marks a child resource as a load-balancer virtual
// server.
const VirtualServerAttribute = "ltmVSStatName"

// NodeResources lists the virtual-server interfaces of a node. Metrics are
// the graph attributes of the first matching interface, in document order.
func (c *Client) NodeResources(ctx context.Context, node string) (*model.NodeResources, error) {
	node = strings.TrimSpace(node)
	if node == "" {
		return nil, fmt.Errorf("node is required")
	}
	data, err := c.do(ctx, http.MethodGet, "/resources/fornode/"+url.PathEscape(node), nil)
	if err != nil {
		return nil, fmt.Errorf("list resources for %s: %w", node, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("list resources for %s: invalid json", node)
	}
	return ParseNodeResources(node, data), nil
}

// ParseNodeResources extracts interfaces and metrics from a
// resources/fornode document.
func ParseNodeResources(node string, data []byte) *model.NodeResources {
	doc := gjson.ParseBytes(data)
	res := &model.NodeResources{
		Node:       node,
		Label:      doc.Get("label").String(),
		Name:       doc.Get("name").String(),
		Interfaces: []string{},
		Metrics:    []string{},
	}

	doc.Get("children.resource").ForEach(func(_, child gjson.Result) bool {
		if !child.Get("stringPropertyAttributes").Get(VirtualServerAttribute).Exists() {
			return true
		}
		id := child.Get("id").String()
		if id == "" {
			return true
		}
		if len(res.Interfaces) == 0 {
			child.Get("rrdGraphAttributes").ForEach(func(key, _ gjson.Result) bool {
				res.Metrics = append(res.Metrics, key.String())
				return true
			})
		}
		res.Interfaces = append(res.Interfaces, id)
		return true
	})
	return res
}

// ParseNodeLabel splits a node label of the form "10.0.0.1 (lb-east-1)"
// into its address and name. Labels without a parenthesised name return
// the whole label as name.
func ParseNodeLabel(label string) (ip, name string) {
	label = strings.TrimSpace(label)
	open := strings.Index(label, " (")
	if open < 0 || !strings.HasSuffix(label, ")") {
		return "", label
	}
	return label[:open], label[open+2 : len(label)-1]
}

// PairName joins the names parsed from node labels with ":".
func PairName(labels ...string) string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		_, name := ParseNodeLabel(l)
		if name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ":")
}
