package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"formcore/internal/blob"
	"formcore/pkg/domain"
)

// Service exposes the owner-scoped form operations on top of a persistent store.
type Service struct {
	store          PersistentStore
	logger         Logger
	metrics        MetricsRecorder
	clock          Clock
	allowAnonymous bool
	archive        blob.Store
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		metrics: noopMetrics{},
		clock:   systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// FormInput carries user-editable form attributes.
type FormInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// FieldInput carries user-editable field attributes. Type is parsed against
// the field type enumeration.
type FieldInput struct {
	Label    string `json:"label"`
	Type     string `json:"type"`
	Options  string `json:"options"`
	Required bool   `json:"required"`
}

// FormDetail is a form together with its fields in column order.
type FormDetail struct {
	Form   Form    `json:"form"`
	Fields []Field `json:"fields"`
}

func (s *Service) observe(ctx context.Context, op string, start time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	elapsed := time.Since(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	switch {
	case err == nil:
		s.logger.Debug("operation completed", "op", op, "duration", elapsed)
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrPermissionDenied), errors.Is(err, domain.ErrNotFound):
		s.logger.Info("operation rejected", "op", op, "error", err)
	default:
		s.logger.Error("operation failed", "op", op, "error", err)
	}
}

// run executes fn in one store transaction and reports non-blocking rule findings.
func (s *Service) run(ctx context.Context, op string, fn func(Transaction) error) error {
	res, err := s.store.RunInTransaction(ctx, fn)
	for _, v := range res.Violations {
		if v.Severity == domain.SeverityBlock {
			continue
		}
		s.logger.Warn("rule finding", "op", op, "rule", v.Rule, "entity", v.Entity, "id", v.EntityID, "message", v.Message)
	}
	return err
}

func formInput(in FormInput) (string, string, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return "", "", domain.ValidationError{Field: "title", Code: domain.CodeRequired, Message: "title is required"}
	}
	return title, strings.TrimSpace(in.Description), nil
}

func fieldInput(in FieldInput) (string, FieldType, error) {
	label := strings.TrimSpace(in.Label)
	if label == "" {
		return "", "", domain.ValidationError{Field: "label", Code: domain.CodeRequired, Message: "label is required"}
	}
	ft, err := domain.ParseFieldType(in.Type)
	if err != nil {
		return "", "", err
	}
	return label, ft, nil
}

// CreateForm stores a new form owned by the acting identity.
func (s *Service) CreateForm(ctx context.Context, id Identity, in FormInput) (form Form, err error) {
	const op = "create_form"
	defer s.observe(ctx, op, time.Now(), &err)
	if id.IsAnonymous() {
		return Form{}, domain.PermissionError{Operation: op}
	}
	title, desc, err := formInput(in)
	if err != nil {
		return Form{}, err
	}
	err = s.run(ctx, op, func(tx Transaction) error {
		var txErr error
		form, txErr = tx.CreateForm(Form{Title: title, Description: desc, OwnerID: id.UserID})
		return txErr
	})
	return form, err
}

// EditForm replaces the title and description of an owned form.
func (s *Service) EditForm(ctx context.Context, id Identity, formID string, in FormInput) (form Form, err error) {
	const op = "edit_form"
	defer s.observe(ctx, op, time.Now(), &err)
	title, desc, err := formInput(in)
	if err != nil {
		return Form{}, err
	}
	err = s.run(ctx, op, func(tx Transaction) error {
		if _, err := ownedForm(tx.Snapshot(), id, formID, op); err != nil {
			return err
		}
		var txErr error
		form, txErr = tx.UpdateForm(formID, func(f *Form) error {
			f.Title = title
			f.Description = desc
			return nil
		})
		return txErr
	})
	return form, err
}

// DeleteForm removes an owned form with its answers, responses and fields.
func (s *Service) DeleteForm(ctx context.Context, id Identity, formID string) (err error) {
	const op = "delete_form"
	defer s.observe(ctx, op, time.Now(), &err)
	return s.run(ctx, op, func(tx Transaction) error {
		view := tx.Snapshot()
		if _, err := ownedForm(view, id, formID, op); err != nil {
			return err
		}
		responses := view.ListResponsesByForm(formID)
		ids := make([]string, 0, len(responses))
		for _, r := range responses {
			ids = append(ids, r.ID)
		}
		for _, a := range view.ListAnswersForResponses(ids) {
			if err := tx.DeleteAnswer(a.ID); err != nil {
				return err
			}
		}
		// answers from fields of this form attached to foreign responses
		for _, f := range view.ListFieldsByForm(formID) {
			for _, a := range tx.Snapshot().ListAnswersByField(f.ID) {
				if err := tx.DeleteAnswer(a.ID); err != nil {
					return err
				}
			}
		}
		for _, r := range responses {
			if err := tx.DeleteResponse(r.ID); err != nil {
				return err
			}
		}
		for _, f := range view.ListFieldsByForm(formID) {
			if err := tx.DeleteField(f.ID); err != nil {
				return err
			}
		}
		return tx.DeleteForm(formID)
	})
}

// DuplicateForm copies an owned form and its fields. Responses are not copied.
func (s *Service) DuplicateForm(ctx context.Context, id Identity, formID string) (form Form, err error) {
	const op = "duplicate_form"
	defer s.observe(ctx, op, time.Now(), &err)
	err = s.run(ctx, op, func(tx Transaction) error {
		view := tx.Snapshot()
		src, err := ownedForm(view, id, formID, op)
		if err != nil {
			return err
		}
		fields := view.ListFieldsByForm(formID)
		form, err = tx.CreateForm(Form{
			Title:       src.Title + " (Copy)",
			Description: src.Description,
			OwnerID:     id.UserID,
		})
		if err != nil {
			return err
		}
		for _, f := range fields {
			if _, err := tx.CreateField(Field{
				FormID:     form.ID,
				Label:      f.Label,
				Type:       f.Type,
				OptionsRaw: f.OptionsRaw,
				Required:   f.Required,
				Position:   f.Position,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return form, err
}

// AddField appends a field to an owned form.
func (s *Service) AddField(ctx context.Context, id Identity, formID string, in FieldInput) (field Field, err error) {
	const op = "add_field"
	defer s.observe(ctx, op, time.Now(), &err)
	err = s.run(ctx, op, func(tx Transaction) error {
		if _, err := ownedForm(tx.Snapshot(), id, formID, op); err != nil {
			return err
		}
		label, ft, err := fieldInput(in)
		if err != nil {
			return err
		}
		field, err = tx.CreateField(Field{
			FormID:     formID,
			Label:      label,
			Type:       ft,
			OptionsRaw: in.Options,
			Required:   in.Required,
		})
		return err
	})
	return field, err
}

// EditField replaces the attributes of a field on an owned form. The column
// position is kept.
func (s *Service) EditField(ctx context.Context, id Identity, fieldID string, in FieldInput) (field Field, err error) {
	const op = "edit_field"
	defer s.observe(ctx, op, time.Now(), &err)
	err = s.run(ctx, op, func(tx Transaction) error {
		if _, _, err := ownedField(tx.Snapshot(), id, fieldID, op); err != nil {
			return err
		}
		label, ft, err := fieldInput(in)
		if err != nil {
			return err
		}
		field, err = tx.UpdateField(fieldID, func(f *Field) error {
			f.Label = label
			f.Type = ft
			f.OptionsRaw = in.Options
			f.Required = in.Required
			return nil
		})
		return err
	})
	return field, err
}

// DeleteField removes a field and its answers. Responses are kept.
func (s *Service) DeleteField(ctx context.Context, id Identity, fieldID string) (err error) {
	const op = "delete_field"
	defer s.observe(ctx, op, time.Now(), &err)
	return s.run(ctx, op, func(tx Transaction) error {
		view := tx.Snapshot()
		if _, _, err := ownedField(view, id, fieldID, op); err != nil {
			return err
		}
		for _, a := range view.ListAnswersByField(fieldID) {
			if err := tx.DeleteAnswer(a.ID); err != nil {
				return err
			}
		}
		return tx.DeleteField(fieldID)
	})
}

// SubmitResponse records one response with an answer per non-empty value.
// values is keyed by field ID. Nothing is stored when validation fails.
func (s *Service) SubmitResponse(ctx context.Context, id Identity, formID string, values map[string]string) (resp Response, err error) {
	const op = "submit_response"
	defer s.observe(ctx, op, time.Now(), &err)
	if id.IsAnonymous() && !s.allowAnonymous {
		return Response{}, domain.PermissionError{Operation: op}
	}
	err = s.run(ctx, op, func(tx Transaction) error {
		view := tx.Snapshot()
		if _, ok := view.FindForm(formID); !ok {
			return domain.NotFoundError{Entity: domain.EntityForm, ID: formID}
		}
		fields := view.ListFieldsByForm(formID)
		if err := validateSubmission(fields, values); err != nil {
			return err
		}
		var err error
		resp, err = tx.CreateResponse(Response{FormID: formID, SubmittedBy: id.UserID})
		if err != nil {
			return err
		}
		for _, f := range fields {
			value := values[f.ID]
			if !answered(f, value) {
				continue
			}
			if _, err := tx.CreateAnswer(Answer{ResponseID: resp.ID, FieldID: f.ID, Value: value}); err != nil {
				return err
			}
		}
		return nil
	})
	return resp, err
}

// answered reports whether value carries an answer for f. A checkbox value
// with no items after splitting counts as blank.
func answered(f Field, value string) bool {
	if f.Type == domain.FieldCheckbox {
		return len(domain.ParseOptions(value)) > 0
	}
	return strings.TrimSpace(value) != ""
}

func validateSubmission(fields []Field, values map[string]string) error {
	known := make(map[string]struct{}, len(fields))
	var errs []error
	for _, f := range fields {
		known[f.ID] = struct{}{}
		value := strings.TrimSpace(values[f.ID])
		if !answered(f, value) {
			if f.Required {
				errs = append(errs, domain.ValidationError{Field: f.Label, Code: domain.CodeRequired, Message: "a value is required"})
			}
			continue
		}
		options := f.Options()
		if !f.Type.HasOptions() || len(options) == 0 {
			continue
		}
		chosen := []string{value}
		if f.Type == domain.FieldCheckbox {
			chosen = domain.ParseOptions(value)
		}
		for _, c := range chosen {
			if !slices.Contains(options, c) {
				errs = append(errs, domain.ValidationError{Field: f.Label, Code: domain.CodeInvalidOption, Message: fmt.Sprintf("%q is not one of the options", c)})
			}
		}
	}
	unknown := make([]string, 0)
	for fieldID := range values {
		if _, ok := known[fieldID]; !ok {
			unknown = append(unknown, fieldID)
		}
	}
	slices.Sort(unknown)
	for _, fieldID := range unknown {
		errs = append(errs, domain.ValidationError{Field: fieldID, Code: domain.CodeUnknownField, Message: "field does not belong to this form"})
	}
	return errors.Join(errs...)
}

// ListForms returns the forms owned by the identity, newest first.
func (s *Service) ListForms(ctx context.Context, id Identity) (forms []Form, err error) {
	const op = "list_forms"
	defer s.observe(ctx, op, time.Now(), &err)
	if id.IsAnonymous() {
		return nil, domain.PermissionError{Operation: op}
	}
	err = s.store.View(ctx, func(v TransactionView) error {
		forms = v.ListFormsByOwner(id.UserID)
		return nil
	})
	return forms, err
}

// ListPublicForms returns every form, newest first.
func (s *Service) ListPublicForms(ctx context.Context) (forms []Form, err error) {
	const op = "list_public_forms"
	defer s.observe(ctx, op, time.Now(), &err)
	err = s.store.View(ctx, func(v TransactionView) error {
		forms = v.ListForms()
		return nil
	})
	return forms, err
}

// GetForm returns a form and its fields for the public view.
func (s *Service) GetForm(ctx context.Context, formID string) (detail FormDetail, err error) {
	const op = "get_form"
	defer s.observe(ctx, op, time.Now(), &err)
	err = s.store.View(ctx, func(v TransactionView) error {
		form, ok := v.FindForm(formID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityForm, ID: formID}
		}
		detail = FormDetail{Form: form, Fields: v.ListFieldsByForm(formID)}
		return nil
	})
	return detail, err
}

// ListFields returns an owned form with its fields for the editing view.
func (s *Service) ListFields(ctx context.Context, id Identity, formID string) (detail FormDetail, err error) {
	const op = "list_fields"
	defer s.observe(ctx, op, time.Now(), &err)
	err = s.store.View(ctx, func(v TransactionView) error {
		form, err := ownedForm(v, id, formID, op)
		if err != nil {
			return err
		}
		detail = FormDetail{Form: form, Fields: v.ListFieldsByForm(formID)}
		return nil
	})
	return detail, err
}
