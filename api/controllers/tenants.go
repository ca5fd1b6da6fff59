package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/consertaja/billing/api/responses"
	"github.com/consertaja/billing/api/validators"
	"github.com/consertaja/billing/internal/reconcile"
	"github.com/consertaja/billing/pkg/db/models"
	pkgerrors "github.com/consertaja/billing/pkg/errors"
	"github.com/consertaja/billing/pkg/logger"
)

type tenantRegistrar interface {
	RegisterTenant(ctx context.Context, params reconcile.RegisterTenantParams) (*models.Tenant, error)
}

type tenantRegisterRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=120"`
	ReferralCode string `json:"referral_code,omitempty" validate:"omitempty,max=32"`
}

type tenantResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	TrialEndsAt  time.Time `json:"trial_ends_at"`
	ReferralCode string    `json:"referral_code"`
	WasReferred  bool      `json:"was_referred"`
	CreatedAt    time.Time `json:"created_at"`
}

// TenantRegister opens a trial for a new tenant.
func TenantRegister(svc tenantRegistrar, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}

		var payload tenantRegisterRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tenant, err := svc.RegisterTenant(r.Context(), reconcile.RegisterTenantParams{
			Name:         payload.Name,
			ReferralCode: payload.ReferralCode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, tenantResponse{
			ID:           tenant.ID,
			Name:         tenant.Name,
			Status:       string(tenant.Status),
			TrialEndsAt:  tenant.TrialEndsAt,
			ReferralCode: tenant.ReferralCode,
			WasReferred:  tenant.ReferredByID != nil,
			CreatedAt:    tenant.CreatedAt,
		})
	}
}
