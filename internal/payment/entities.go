package payment

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrGatewayUnavailable = errors.New("payment: gateway unavailable")
	ErrIntentRejected     = errors.New("payment: gateway rejected the request")
	ErrInvalidAmount      = errors.New("payment: amount must be positive")
)

// Status é o estado normalizado de um payment intent
type Status string

const (
	StatusRequiresAction Status = "requires_action"
	StatusProcessing     Status = "processing"
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"
)

// Intent representa um payment intent do gateway
type Intent struct {
	ID           string `json:"payment_intent_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Status       Status `json:"status"`
	// GatewayStatus is the gateway's own status string before normalization.
	GatewayStatus string `json:"-"`
	// Amount in minor units (cents).
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	// UserID vem de metadata[user_id]; zero quando o intent não foi criado pela loja
	UserID int64 `json:"-"`
}

func (i *Intent) Succeeded() bool {
	return i.Status == StatusSucceeded
}

// IntentRequest pede a criação de um intent; Amount em centavos
type IntentRequest struct {
	Amount   int64
	Currency string
	UserID   int64
}

// NormalizeStatus collapses the gateway status set onto the four states checkout acts on.
func NormalizeStatus(raw string) Status {
	switch raw {
	case "succeeded":
		return StatusSucceeded
	case "processing":
		return StatusProcessing
	case "requires_payment_method", "requires_confirmation", "requires_action", "requires_capture":
		return StatusRequiresAction
	default:
		return StatusFailed
	}
}

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converte um valor monetário para centavos, arredondando meio para cima
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converte centavos para o valor monetário
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
