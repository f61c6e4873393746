package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FlowToken associates a generated booking-session token with the mobile
// number that requested it. It is created when a session starts, consulted
// when slot selections are submitted and never mutated.
type FlowToken struct {
	Token     string    `json:"token"`
	Mobile    string    `json:"mobile"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewFlowTokenValue generates an opaque session token. The value doubles as
// the merchant transaction id, so dashes are stripped to satisfy provider
// constraints.
func NewFlowTokenValue() string {
	v := uuid.New().String()
	return strings.ReplaceAll(v[:len(v)-2], "-", "")
}
