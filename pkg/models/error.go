// Package models defines the core domain types shared across NightWatch
// packages: error groups, analyses, patterns, pipeline state, and reports.
package models

// ErrorGroup is an aggregated production error from the observability
// backend. One group per unique (error_class, transaction) pair.
// Immutable after ingestion except Score, which ranking sets exactly once.
type ErrorGroup struct {
	ErrorClass  string
	Transaction string
	Message     string
	Occurrences int
	LastSeen    string // epoch millis, as returned by the backend
	HTTPPath    string
	Host        string
	EntityGUID  string
	Score       float64
}

// TraceData holds pre-fetched trace material for one ErrorGroup.
// Both lists are opaque attribute maps; never mutated after ingestion.
type TraceData struct {
	TransactionErrors []map[string]any
	ErrorTraces       []map[string]any
}
