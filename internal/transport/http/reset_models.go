package http

import "time"

// ErrorResponse is the error payload shared by all endpoints.
type ErrorResponse struct {
	Error     string `json:"error" example:"INVALID_TOKEN"`
	Message   string `json:"message" example:"invalid or expired reset token"`
	Timestamp string `json:"timestamp" example:"2025-11-17T15:30:00Z"`
}

// InitiateResetRequest carries the account identifier for issuance.
type InitiateResetRequest struct {
	Email string `json:"email" example:"user@example.com"`
}

// InitiateResetResponse returns the plaintext token exactly once.
type InitiateResetResponse struct {
	ResetToken string    `json:"reset_token" example:"550e8400-e29b-41d4-a716-446655440000"`
	ExpiresAt  time.Time `json:"expires_at" example:"2025-11-17T16:00:00Z"`
}

// ExecuteResetRequest carries the presented token and the new credential.
type ExecuteResetRequest struct {
	ResetToken  string `json:"reset_token" example:"550e8400-e29b-41d4-a716-446655440000"`
	NewPassword string `json:"new_password" example:"NewP@ssw0rd"`
}

// ExecuteResetResponse confirms a completed reset.
type ExecuteResetResponse struct {
	Message string `json:"message" example:"password successfully reset"`
}
