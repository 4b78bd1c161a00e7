package models

import (
	"time"

	"github.com/google/uuid"
)

// FieldMapping maps a raw lead-form field label to a canonical field name.
type FieldMapping struct {
	ID             uuid.UUID `json:"id"`
	RawFieldName   string    `json:"raw_field_name"`
	NormalizedName string    `json:"normalized_name"`
	MappedField    string    `json:"mapped_field"`
	Language       *string   `json:"language,omitempty"`
	AutoDetected   bool      `json:"auto_detected"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UnmappedField is a stored raw field name without a mapping.
type UnmappedField struct {
	FieldName    string   `json:"field_name"`
	Count        int      `json:"count"`
	SampleValues []string `json:"sample_values"`
}
