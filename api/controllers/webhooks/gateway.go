package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/consertaja/billing/api/responses"
	"github.com/consertaja/billing/internal/gateway"
	pkgerrors "github.com/consertaja/billing/pkg/errors"
	"github.com/consertaja/billing/pkg/logger"
	"github.com/consertaja/billing/pkg/metrics"
)

type eventProcessor interface {
	ProcessEvent(ctx context.Context, event *gateway.Event) error
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type secretSource interface {
	WebhookSecret() string
}

// GatewayWebhook handles payment gateway notifications. Anything the engine
// classifies as stale or unresolvable is acknowledged with 200 so the gateway
// stops redelivering it; only genuine processing failures return 5xx.
func GatewayWebhook(svc eventProcessor, secrets secretSource, guard webhookGuard, wm *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}
		if secrets == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gateway client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dedup guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(gateway.SignatureHeader)
		if sigHeader == "" {
			wm.IncEvent("unknown", metrics.OutcomeRejected)
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "gateway signature missing"))
			return
		}

		if !gateway.VerifySignature(payload, secrets.WebhookSecret(), sigHeader) {
			wm.IncEvent("unknown", metrics.OutcomeRejected)
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid gateway signature"))
			return
		}

		event, err := gateway.ParseNotification(payload)
		if err != nil {
			wm.IncEvent("unknown", metrics.OutcomeRejected)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		eventType := string(event.Type)
		if eventType == "" {
			eventType = "unknown"
		}
		if logg != nil {
			ctx = logg.WithGatewayEventID(ctx, event.ID)
		}

		duplicate, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			wm.IncEvent(eventType, metrics.OutcomeFailed)
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check dedup"))
			return
		}
		if duplicate {
			if logg != nil {
				logg.Info(ctx, "duplicate gateway event acknowledged")
			}
			wm.IncEvent(eventType, metrics.OutcomeDuplicate)
			responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
			return
		}

		if err := svc.ProcessEvent(ctx, event); err != nil {
			typed := pkgerrors.As(err)
			switch {
			case typed != nil && typed.Code() == pkgerrors.CodeStaleEvent:
				if logg != nil {
					logg.Warn(ctx, fmt.Sprintf("stale gateway event ignored: %s", typed.Message()))
				}
				wm.IncEvent(eventType, metrics.OutcomeIgnored)
				responses.WriteSuccess(w, map[string]string{"status": "ignored"})
			case typed != nil && typed.Code() == pkgerrors.CodeNotFound:
				// The entity may belong to another environment sharing the
				// gateway account. Acknowledge so the gateway stops retrying.
				if logg != nil {
					logg.Warn(ctx, fmt.Sprintf("gateway event for unknown entity ignored: %s", typed.Message()))
				}
				wm.IncEvent(eventType, metrics.OutcomeIgnored)
				responses.WriteSuccess(w, map[string]string{"status": "ignored"})
			default:
				// Unmark so the gateway's redelivery is not swallowed as a
				// duplicate.
				_ = guard.Delete(ctx, event.ID)
				wm.IncEvent(eventType, metrics.OutcomeFailed)
				responses.WriteError(ctx, logg, w, err)
			}
			return
		}

		if event.Type == "" {
			if logg != nil {
				logg.Info(ctx, "unrecognized gateway event type acknowledged")
			}
			wm.IncEvent(eventType, metrics.OutcomeIgnored)
			responses.WriteSuccess(w, map[string]string{"status": "ignored"})
			return
		}

		if logg != nil {
			logg.Info(ctx, "gateway event processed")
		}
		wm.IncEvent(eventType, metrics.OutcomeProcessed)
		responses.WriteSuccess(w, map[string]string{"status": "processed"})
	}
}
