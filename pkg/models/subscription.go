package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription statuses
const (
	SubscriptionSubscribed    = "subscribed"
	SubscriptionNotSubscribed = "not_subscribed"
	SubscriptionError         = "error"
)

// SubscribedFields is the set of webhook fields requested for every account.
const SubscribedFields = "leadgen,ads,adsets,campaigns"

// Subscription tracks the webhook subscription state of one ad account.
type Subscription struct {
	ID          uuid.UUID  `json:"id"`
	AdAccountID string     `json:"ad_account_id"`
	AccountName string     `json:"account_name"`
	Status      string     `json:"status"`
	Fields      string     `json:"fields"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
}
