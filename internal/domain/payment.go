package domain

import "strings"

// PaymentOutcome is the result a payment processor reports for an order.
type PaymentOutcome string

const (
	PaymentSuccess PaymentOutcome = "success"
	PaymentFailure PaymentOutcome = "failure"
	// PaymentPending is acknowledged without changing the order.
	PaymentPending PaymentOutcome = "pending"
)

func ParsePaymentOutcome(s string) (PaymentOutcome, error) {
	switch o := PaymentOutcome(strings.ToLower(strings.TrimSpace(s))); o {
	case PaymentSuccess, PaymentFailure, PaymentPending:
		return o, nil
	}
	return "", ErrInvalidOutcome
}
