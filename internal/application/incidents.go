package application

import "context"

//go:generate mockgen -package=application -destination=mock_incident_sink_test.go -source=incidents.go IncidentSink

// IncidentSink forwards failures to an external channel and returns the incident ID.
// Implementations must never fail back into the caller.
type IncidentSink interface {
	Report(ctx context.Context, tag, message string, err error) string
}

// nopSink is used when no IncidentSink is wired; failures are still logged by the caller.
type nopSink struct{}

func (nopSink) Report(context.Context, string, string, error) string { return "" }

var _ IncidentSink = nopSink{}
