package models

// PaymentStatus is the provider-abstracted outcome of a payment attempt.
type PaymentStatus string

const (
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
	PaymentTimeout PaymentStatus = "timeout"
)

// PaymentResult is the provider-abstracted payment event consumed by the
// reservation lifecycle. ReferenceID carries the booking-session token that
// was used as the merchant transaction id.
type PaymentResult struct {
	Status      PaymentStatus `json:"status"`
	ReferenceID string        `json:"reference_id"`
	Amount      int64         `json:"amount"` // paise
	Currency    string        `json:"currency"`
	RawPayload  string        `json:"-"`
}

// Succeeded reports whether the payment completed.
func (p *PaymentResult) Succeeded() bool {
	return p.Status == PaymentSuccess
}

// AmountRupees converts the provider amount (paise) to rupees.
func (p *PaymentResult) AmountRupees() int64 {
	return p.Amount / 100
}
