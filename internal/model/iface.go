package model

import "context"

// MeasurementFetcher issues one upstream request for one interface and one
// batch window.
type MeasurementFetcher interface {
	Fetch(ctx context.Context, interfaceID string, metrics []string, w Window) (*MeasurementResponse, error)
}

// NodeResources is the interface listing of one monitored node.
type NodeResources struct {
	Node       string   `json:"node"`
	Label      string   `json:"label"`
	Name       string   `json:"name"`
	Interfaces []string `json:"interfaces"`
	Metrics    []string `json:"metrics"`
}

// ResourceLister discovers the interfaces and metrics of a node.
type ResourceLister interface {
	NodeResources(ctx context.Context, node string) (*NodeResources, error)
}
