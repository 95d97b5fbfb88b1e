package core

import (
	"context"
	"fmt"

	"formcore/pkg/domain"
)

// NewFieldPositionRule returns the rule requiring unique column positions per form.
func NewFieldPositionRule() domain.Rule {
	return fieldPositionRule{}
}

type fieldPositionRule struct{}

func (fieldPositionRule) Name() string { return "field_position" }

func (fieldPositionRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	touched := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityField || change.Action == domain.ActionDelete {
			continue
		}
		if f, ok := change.After.(domain.Field); ok {
			touched[f.FormID] = struct{}{}
		}
	}

	res := domain.Result{}
	for formID := range touched {
		seen := make(map[int]string)
		for _, field := range view.ListFieldsByForm(formID) {
			if other, dup := seen[field.Position]; dup {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "field_position",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("fields %s and %s share position %d", other, field.ID, field.Position),
					Entity:   domain.EntityField,
					EntityID: field.ID,
				})
				continue
			}
			seen[field.Position] = field.ID
		}
	}
	return res, nil
}

// NewChoiceOptionsRule returns the rule warning about choice fields without options.
func NewChoiceOptionsRule() domain.Rule {
	return choiceOptionsRule{}
}

type choiceOptionsRule struct{}

func (choiceOptionsRule) Name() string { return "choice_options" }

func (choiceOptionsRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityField || change.Action == domain.ActionDelete {
			continue
		}
		field, ok := change.After.(domain.Field)
		if !ok || !field.Type.HasOptions() || len(field.Options()) > 0 {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "choice_options",
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("%s field %q has no options", field.Type, field.Label),
			Entity:   domain.EntityField,
			EntityID: field.ID,
		})
	}
	return res, nil
}

// NewDefaultRulesEngine registers the built-in integrity rules.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewAnswerIntegrityRule())
	engine.Register(NewFieldPositionRule())
	engine.Register(NewChoiceOptionsRule())
	return engine
}
