package dto

import "time"

type AuthMeResponse struct {
	OperatorID string    `json:"operator_id"`
	Role       string    `json:"role"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
}

type LogoutResponse struct {
	OK bool `json:"ok"`
}
