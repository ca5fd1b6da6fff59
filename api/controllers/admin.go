package controllers

import (
	"context"
	"net/http"

	"github.com/consertaja/billing/api/responses"
	"github.com/consertaja/billing/internal/saasmetrics"
	pkgerrors "github.com/consertaja/billing/pkg/errors"
	"github.com/consertaja/billing/pkg/logger"
)

type metricsService interface {
	Snapshot(ctx context.Context) (*saasmetrics.Snapshot, error)
	Alerts(ctx context.Context) (*saasmetrics.AlertReport, error)
}

// AdminSaasMetrics serves the headline business metrics snapshot.
func AdminSaasMetrics(svc metricsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "metrics service unavailable"))
			return
		}

		snapshot, err := svc.Snapshot(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}

// AdminAlerts evaluates and serves the current operator alerts.
func AdminAlerts(svc metricsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "metrics service unavailable"))
			return
		}

		report, err := svc.Alerts(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
