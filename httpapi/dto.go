package httpapi

import (
	"encoding/json"

	"github.com/goliatone/go-credledger/core"
	"github.com/goliatone/go-credledger/money"
)

// Amounts are accepted as JSON numbers or numeric strings; the literal text
// is kept so no float conversion happens.
type intakeBody struct {
	Currency    string         `json:"currency"`
	Amount      json.Number    `json:"amount"`
	AmountMinor json.Number    `json:"amount_minor"`
	Method      string         `json:"method"`
	OccurredAt  string         `json:"occurred_at"`
	Reference   string         `json:"reference"`
	Donor       string         `json:"donor"`
	Metadata    map[string]any `json:"metadata"`
}

func (b intakeBody) request() core.IntakeRequest {
	return core.IntakeRequest{
		Currency:   b.Currency,
		Amount:     amountInput(b.Amount, b.AmountMinor),
		Method:     b.Method,
		OccurredAt: b.OccurredAt,
		Reference:  b.Reference,
		Donor:      b.Donor,
		Metadata:   b.Metadata,
	}
}

type payoutBody struct {
	Currency    string         `json:"currency"`
	Amount      json.Number    `json:"amount"`
	AmountMinor json.Number    `json:"amount_minor"`
	Beneficiary string         `json:"beneficiary"`
	Method      string         `json:"method"`
	Purpose     string         `json:"purpose"`
	OccurredAt  string         `json:"occurred_at"`
	Reference   string         `json:"reference"`
	Metadata    map[string]any `json:"metadata"`
}

func (b payoutBody) request() core.PayoutRequest {
	return core.PayoutRequest{
		Currency:    b.Currency,
		Amount:      amountInput(b.Amount, b.AmountMinor),
		Beneficiary: b.Beneficiary,
		Method:      b.Method,
		Purpose:     b.Purpose,
		OccurredAt:  b.OccurredAt,
		Reference:   b.Reference,
		Metadata:    b.Metadata,
	}
}

type revokeBody struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

func amountInput(amount json.Number, minor json.Number) money.Input {
	return money.Input{Amount: amount.String(), AmountMinor: minor.String()}
}

type eventsResponse struct {
	Events []core.LedgerEvent `json:"events"`
}

type schemasResponse struct {
	Schemas []string `json:"schemas"`
}

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code       int               `json:"code"`
	TextCode   string            `json:"text_code"`
	Message    string            `json:"message"`
	Validation []validationIssue `json:"validation,omitempty"`
}

type validationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
