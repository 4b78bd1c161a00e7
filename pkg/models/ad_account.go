package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AdAccount is an advertising account discovered on the platform.
// Stored in ad_accounts, keyed by the numeric account id (without "act_").
type AdAccount struct {
	ID            uuid.UUID `json:"id"`
	AccountID     string    `json:"account_id"`
	AccountName   string    `json:"account_name"`
	Currency      string    `json:"currency,omitempty"`
	AccountStatus int       `json:"account_status,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NormalizeAccountID strips the "act_" prefix the Graph API uses in paths.
func NormalizeAccountID(id string) string {
	return strings.TrimPrefix(strings.TrimSpace(id), "act_")
}
