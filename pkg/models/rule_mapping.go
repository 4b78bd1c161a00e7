package models

import (
	"time"

	"github.com/google/uuid"
)

// RuleMapping is a named set of rules routing lead field values to entities.
type RuleMapping struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Rules     []MappingRule `json:"rules"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// MappingRule matches a source field value and points it at a target entity.
type MappingRule struct {
	SourceField  string `json:"sourceField"`
	SourceValue  string `json:"sourceValue"`
	TargetEntity string `json:"targetEntity"`
	TargetID     string `json:"targetId"`
}
