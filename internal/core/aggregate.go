package core

import (
	"context"
	"time"
)

// Row is one response aligned to the form's field columns.
type Row struct {
	ResponseID  string    `json:"response_id"`
	Number      int       `json:"number"`
	SubmittedAt time.Time `json:"submitted_at"`
	Cells       []string  `json:"cells"`
}

// ResponseTable is the tabular view of a form's responses. Every row holds
// exactly one cell per header; missing answers are empty strings.
type ResponseTable struct {
	Form    Form     `json:"form"`
	Fields  []Field  `json:"fields"`
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
}

// Aggregate builds the response table of an owned form. Columns follow field
// position, rows follow submission order.
func (s *Service) Aggregate(ctx context.Context, id Identity, formID string) (table ResponseTable, err error) {
	const op = "aggregate_responses"
	defer s.observe(ctx, op, time.Now(), &err)
	err = s.store.View(ctx, func(v TransactionView) error {
		form, err := ownedForm(v, id, formID, op)
		if err != nil {
			return err
		}
		table = buildTable(form, v.ListFieldsByForm(formID), v.ListResponsesByForm(formID), v)
		return nil
	})
	return table, err
}

func buildTable(form Form, fields []Field, responses []Response, v TransactionView) ResponseTable {
	headers := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = f.Label
	}
	ids := make([]string, len(responses))
	for i, r := range responses {
		ids[i] = r.ID
	}
	byResponse := make(map[string]map[string]string, len(responses))
	for _, a := range v.ListAnswersForResponses(ids) {
		m, ok := byResponse[a.ResponseID]
		if !ok {
			m = make(map[string]string)
			byResponse[a.ResponseID] = m
		}
		m[a.FieldID] = a.Value
	}
	rows := make([]Row, len(responses))
	for i, r := range responses {
		cells := make([]string, len(fields))
		answers := byResponse[r.ID]
		for j, f := range fields {
			cells[j] = answers[f.ID]
		}
		rows[i] = Row{ResponseID: r.ID, Number: r.Number, SubmittedAt: r.SubmittedAt, Cells: cells}
	}
	return ResponseTable{Form: form, Fields: fields, Headers: headers, Rows: rows}
}
