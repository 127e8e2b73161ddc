package application

import (
	"context"

	"go.uber.org/zap"
)

// ReferenceRefresh forces every cached supported-symbol list to reload.
type ReferenceRefresh struct {
	refreshers []ReferenceRefresher
	incidents  IncidentSink
	log        *zap.Logger
}

func NewReferenceRefresh(refreshers []ReferenceRefresher, incidents IncidentSink, log *zap.Logger) *ReferenceRefresh {
	if incidents == nil {
		incidents = nopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReferenceRefresh{refreshers: refreshers, incidents: incidents, log: log}
}

// Run refreshes each list in turn and returns how many failed.
func (r *ReferenceRefresh) Run(ctx context.Context) int {
	failed := 0
	for _, ref := range r.refreshers {
		if err := ref.RefreshReference(ctx); err != nil {
			failed++
			id := r.incidents.Report(ctx, "[Reference]", ref.Name()+": refresh failed", err)
			r.log.Error("reference.refresh_failed", zap.String("source", ref.Name()), zap.String("incident_id", id), zap.Error(err))
			continue
		}
		r.log.Info("reference.refreshed", zap.String("source", ref.Name()))
	}
	return failed
}
