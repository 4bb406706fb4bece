package counterparties

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository persists counterparties.
type Repository interface {
	Create(ctx context.Context, c Counterparty, searchName string) (Counterparty, error)
	Get(ctx context.Context, id int64) (Counterparty, error)
	List(ctx context.Context, filter ListFilter) ([]Counterparty, int, error)
	Update(ctx context.Context, c Counterparty, searchName string) (Counterparty, error)
	Delete(ctx context.Context, id int64) error
}

// Service validates and stores counterparties.
type Service struct {
	repo      Repository
	audit     accounting.AuditPort
	validator *validator.Validate
	logger    *slog.Logger
}

// NewService constructs a counterparty service. audit may be nil.
func NewService(repo Repository, audit accounting.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, validator: validator.New(), logger: logger}
}

// FieldError describes one invalid field.
type FieldError struct {
	Field string
	Tag   string
}

// ValidationError lists the invalid fields of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" failed "+f.Tag)
	}
	return "counterparty: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (s *Service) check(v any) error {
	err := s.validator.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: snake(fe.Field()), Tag: fe.Tag()})
	}
	return out
}

func snake(field string) string {
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Create registers a counterparty. Document numbers are unique.
func (s *Service) Create(ctx context.Context, in CreateInput) (Counterparty, error) {
	in.DocumentType = DocumentType(strings.ToUpper(strings.TrimSpace(string(in.DocumentType))))
	in.DocumentNumber = strings.TrimSpace(in.DocumentNumber)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.check(in); err != nil {
		return Counterparty{}, err
	}
	c, err := s.repo.Create(ctx, Counterparty{
		DocumentType:   in.DocumentType,
		DocumentNumber: in.DocumentNumber,
		Name:           in.Name,
		Address:        strings.TrimSpace(in.Address),
		Phone:          strings.TrimSpace(in.Phone),
		Email:          in.Email,
	}, shared.FoldSearch(in.Name))
	if err != nil {
		return Counterparty{}, err
	}
	s.record(ctx, "counterparty.create", c.ID, map[string]any{"document_number": c.DocumentNumber})
	return c, nil
}

// Get returns one counterparty.
func (s *Service) Get(ctx context.Context, id int64) (Counterparty, error) {
	if id <= 0 {
		return Counterparty{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// ResolveCounterparty satisfies accounting.CounterpartyResolver.
func (s *Service) ResolveCounterparty(ctx context.Context, id int64) (accounting.CounterpartyRef, error) {
	c, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return accounting.CounterpartyRef{}, fmt.Errorf("counterparty %d: %w", id, accounting.ErrCounterpartyNotFound)
	}
	if err != nil {
		return accounting.CounterpartyRef{}, err
	}
	return accounting.CounterpartyRef{ID: c.ID, Name: c.Name}, nil
}

// List returns counterparties whose document number starts with search or
// whose name contains it, ignoring case and accents.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Counterparty, int, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.List(ctx, filter)
}

// UpdateContact changes the name and contact details. Document identity is
// immutable.
func (s *Service) UpdateContact(ctx context.Context, id int64, in ContactInput) (Counterparty, error) {
	if err := s.check(in); err != nil {
		return Counterparty{}, err
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return Counterparty{}, err
	}
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Address != nil {
		c.Address = strings.TrimSpace(*in.Address)
	}
	if in.Phone != nil {
		c.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Email != nil {
		c.Email = strings.TrimSpace(*in.Email)
	}
	if c.Name == "" {
		return Counterparty{}, &ValidationError{Fields: []FieldError{{Field: "name", Tag: "required"}}}
	}
	updated, err := s.repo.Update(ctx, c, shared.FoldSearch(c.Name))
	if err != nil {
		return Counterparty{}, err
	}
	s.record(ctx, "counterparty.update", id, nil)
	return updated, nil
}

// Delete removes a counterparty that no journal entry references.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "counterparty.delete", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "counterparty",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
