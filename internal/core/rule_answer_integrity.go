package core

import (
	"context"
	"fmt"

	"formcore/pkg/domain"
)

// NewAnswerIntegrityRule returns the rule blocking answers whose field and
// response belong to different forms or no longer exist.
func NewAnswerIntegrityRule() domain.Rule {
	return answerIntegrityRule{}
}

type answerIntegrityRule struct{}

func (answerIntegrityRule) Name() string { return "answer_integrity" }

func (answerIntegrityRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityAnswer || change.Action != domain.ActionCreate {
			continue
		}
		answer, ok := change.After.(domain.Answer)
		if !ok {
			continue
		}
		response, okResp := view.FindResponse(answer.ResponseID)
		field, okField := view.FindField(answer.FieldID)
		var msg string
		switch {
		case !okResp:
			msg = fmt.Sprintf("answer %s references missing response %s", answer.ID, answer.ResponseID)
		case !okField:
			msg = fmt.Sprintf("answer %s references missing field %s", answer.ID, answer.FieldID)
		case field.FormID != response.FormID:
			msg = fmt.Sprintf("answer %s links field %s of form %s to response of form %s", answer.ID, field.ID, field.FormID, response.FormID)
		default:
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "answer_integrity",
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityAnswer,
			EntityID: answer.ID,
		})
	}
	return res, nil
}
