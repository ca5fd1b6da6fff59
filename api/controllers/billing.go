package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/consertaja/billing/api/responses"
	"github.com/consertaja/billing/api/validators"
	"github.com/consertaja/billing/internal/reconcile"
	"github.com/consertaja/billing/pkg/db/models"
	"github.com/consertaja/billing/pkg/enums"
	pkgerrors "github.com/consertaja/billing/pkg/errors"
	"github.com/consertaja/billing/pkg/logger"
)

type billingService interface {
	Checkout(ctx context.Context, tenantID uuid.UUID, cycle enums.BillingCycle) (*reconcile.CheckoutResult, error)
	CancelSubscription(ctx context.Context, tenantID uuid.UUID) error
	Summary(ctx context.Context, tenantID uuid.UUID) (*reconcile.SubscriptionSummary, error)
}

type checkoutRequest struct {
	Cycle string `json:"cycle" validate:"required,oneof=monthly yearly"`
}

type subscriptionResponse struct {
	ID                uuid.UUID       `json:"id"`
	Cycle             string          `json:"cycle"`
	Amount            decimal.Decimal `json:"amount"`
	Status            string          `json:"status"`
	CurrentPeriodEnd  *time.Time      `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool            `json:"cancel_at_period_end"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty"`
}

type invoiceResponse struct {
	ID          uuid.UUID       `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	DueDate     time.Time       `json:"due_date"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	InvoiceURL  string          `json:"invoice_url,omitempty"`
	BankSlipURL string          `json:"bank_slip_url,omitempty"`
}

type checkoutResponse struct {
	Subscription subscriptionResponse `json:"subscription"`
	CheckoutURL  string               `json:"checkout_url"`
}

type summaryResponse struct {
	Status             string                `json:"status"`
	TrialDaysRemaining int                   `json:"trial_days_remaining"`
	Subscription       *subscriptionResponse `json:"subscription,omitempty"`
	Invoices           []invoiceResponse     `json:"invoices"`
}

func tenantIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "tenantID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tenant id")
	}
	return id, nil
}

// Checkout opens a paid subscription for the tenant at the gateway.
func Checkout(svc billingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}

		tenantID, err := tenantIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Checkout(r.Context(), tenantID, enums.BillingCycle(payload.Cycle))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			Subscription: newSubscriptionResponse(result.Subscription),
			CheckoutURL:  result.CheckoutURL,
		})
	}
}

// SubscriptionCancel schedules cancellation at the end of the paid period.
func SubscriptionCancel(svc billingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}

		tenantID, err := tenantIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.CancelSubscription(r.Context(), tenantID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}

// SubscriptionSummary returns the tenant's current billing state.
func SubscriptionSummary(svc billingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}

		tenantID, err := tenantIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.Summary(r.Context(), tenantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := summaryResponse{
			Status:             string(summary.Status),
			TrialDaysRemaining: summary.TrialDaysRemaining,
			Invoices:           make([]invoiceResponse, 0, len(summary.Invoices)),
		}
		if summary.Subscription != nil {
			sub := newSubscriptionResponse(summary.Subscription)
			resp.Subscription = &sub
		}
		for _, inv := range summary.Invoices {
			resp.Invoices = append(resp.Invoices, invoiceResponse{
				ID:          inv.ID,
				Amount:      inv.Amount,
				Status:      string(inv.Status),
				DueDate:     inv.DueDate,
				PaidAt:      inv.PaidAt,
				InvoiceURL:  inv.InvoiceURL,
				BankSlipURL: inv.BankSlipURL,
			})
		}

		responses.WriteSuccess(w, resp)
	}
}

func newSubscriptionResponse(sub *models.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                sub.ID,
		Cycle:             string(sub.Cycle),
		Amount:            sub.Amount,
		Status:            string(sub.Status),
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CancelledAt:       sub.CancelledAt,
	}
}
