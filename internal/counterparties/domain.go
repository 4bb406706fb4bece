// Package counterparties keeps the directory of third parties that journal
// entries are booked against.
package counterparties

import (
	"errors"
	"time"
)

// DocumentType identifies the kind of tax or identity document.
type DocumentType string

const (
	DocumentCC  DocumentType = "CC"
	DocumentNIT DocumentType = "NIT"
	DocumentCE  DocumentType = "CE"
	DocumentPA  DocumentType = "PA"
)

// Counterparty is a customer, supplier or any other third party.
type Counterparty struct {
	ID             int64        `json:"id"`
	DocumentType   DocumentType `json:"document_type"`
	DocumentNumber string       `json:"document_number"`
	Name           string       `json:"name"`
	Address        string       `json:"address,omitempty"`
	Phone          string       `json:"phone,omitempty"`
	Email          string       `json:"email,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// CreateInput registers a new counterparty.
type CreateInput struct {
	DocumentType   DocumentType `json:"document_type" validate:"required,oneof=CC NIT CE PA"`
	DocumentNumber string       `json:"document_number" validate:"required,max=20,alphanum"`
	Name           string       `json:"name" validate:"required,max=255"`
	Address        string       `json:"address" validate:"max=255"`
	Phone          string       `json:"phone" validate:"max=20"`
	Email          string       `json:"email" validate:"omitempty,email,max=254"`
}

// ContactInput changes the mutable contact fields. Nil fields are kept.
type ContactInput struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=255"`
	Address *string `json:"address" validate:"omitempty,max=255"`
	Phone   *string `json:"phone" validate:"omitempty,max=20"`
	Email   *string `json:"email" validate:"omitempty,email,max=254"`
}

// ListFilter narrows List.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

var (
	ErrNotFound          = errors.New("counterparties: not found")
	ErrDuplicateDocument = errors.New("counterparties: document number already registered")
	ErrInUse             = errors.New("counterparties: referenced by journal entries")
	ErrValidation        = errors.New("counterparties: validation failed")
)
