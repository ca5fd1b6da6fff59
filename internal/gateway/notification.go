package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/consertaja/billing/pkg/enums"
	pkgerrors "github.com/consertaja/billing/pkg/errors"
)

// SignatureHeader is the request header the gateway signs payloads into.
const SignatureHeader = "Asaas-Signature"

const dateLayout = "2006-01-02"

// Event is the normalized form of one gateway notification. The raw payload
// nests payment fields under "payment"; flattening happens at parse time so
// the reconciliation engine never sees wire shapes.
type Event struct {
	ID             string
	Type           enums.GatewayEventType
	PaymentID      string
	SubscriptionID string
	ExternalRef    string
	OccurredAt     time.Time
	DueDate        time.Time
	Amount         decimal.Decimal
	InvoiceURL     string
	BankSlipURL    string
}

type rawNotification struct {
	ID          string     `json:"id"`
	Event       string     `json:"event"`
	DateCreated string     `json:"dateCreated"`
	Payment     rawPayment `json:"payment"`
}

type rawPayment struct {
	ID           string          `json:"id"`
	Subscription string          `json:"subscription"`
	ExternalRef  string          `json:"externalReference"`
	Value        decimal.Decimal `json:"value"`
	DueDate      string          `json:"dueDate"`
	PaymentDate  string          `json:"paymentDate"`
	InvoiceURL   string          `json:"invoiceUrl"`
	BankSlipURL  string          `json:"bankSlipUrl"`
}

// VerifySignature reports whether payload was signed with secret. Comparison
// is constant time.
func VerifySignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

// Sign computes the signature header value for payload. Used by tests and
// outbound verification tooling.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseNotification decodes a signed gateway payload into an Event. Unknown
// event types are returned with Type unset so callers can acknowledge and
// skip them; structurally invalid payloads return a validation error.
func ParseNotification(payload []byte) (*Event, error) {
	var raw rawNotification
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode notification")
	}

	eventID := strings.TrimSpace(raw.ID)
	if eventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification id missing")
	}
	if strings.TrimSpace(raw.Event) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification event missing")
	}
	if strings.TrimSpace(raw.Payment.ID) == "" && strings.TrimSpace(raw.Payment.Subscription) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification references no payment or subscription")
	}

	event := &Event{
		ID:             eventID,
		PaymentID:      strings.TrimSpace(raw.Payment.ID),
		SubscriptionID: strings.TrimSpace(raw.Payment.Subscription),
		ExternalRef:    strings.TrimSpace(raw.Payment.ExternalRef),
		Amount:         raw.Payment.Value,
		InvoiceURL:     raw.Payment.InvoiceURL,
		BankSlipURL:    raw.Payment.BankSlipURL,
	}

	if eventType, err := enums.ParseGatewayEventType(raw.Event); err == nil {
		event.Type = eventType
	}

	if raw.DateCreated != "" {
		occurredAt, err := parseGatewayTime(raw.DateCreated)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse notification timestamp")
		}
		event.OccurredAt = occurredAt
	}
	if raw.Payment.DueDate != "" {
		dueDate, err := time.Parse(dateLayout, raw.Payment.DueDate)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse payment due date")
		}
		event.DueDate = dueDate
	}

	return event, nil
}

func parseGatewayTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", dateLayout} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "unrecognized timestamp format")
}
