package core

import "formcore/pkg/domain"

// Relation is the policy outcome for an identity and a form.
type Relation int

const (
	// RelationAnonymous means no identity is attached to the request.
	RelationAnonymous Relation = iota
	// RelationNotOwner means an authenticated identity that does not own the form.
	RelationNotOwner
	// RelationOwner means the identity owns the form.
	RelationOwner
)

func (r Relation) String() string {
	switch r {
	case RelationOwner:
		return "owner"
	case RelationNotOwner:
		return "not_owner"
	default:
		return "anonymous"
	}
}

// Authorize classifies identity against form.
func Authorize(identity Identity, form Form) Relation {
	switch {
	case identity.IsAnonymous():
		return RelationAnonymous
	case form.OwnerID == identity.UserID:
		return RelationOwner
	default:
		return RelationNotOwner
	}
}

// ownedForm resolves formID for an owner-only operation. A missing form and
// a foreign form yield the same error so callers cannot probe existence.
func ownedForm(view TransactionView, identity Identity, formID, operation string) (Form, error) {
	if identity.IsAnonymous() {
		return Form{}, domain.PermissionError{Operation: operation}
	}
	form, ok := view.FindForm(formID)
	if !ok || Authorize(identity, form) != RelationOwner {
		return Form{}, domain.PermissionError{Operation: operation}
	}
	return form, nil
}

// ownedField resolves a field and its form for an owner-only operation.
func ownedField(view TransactionView, identity Identity, fieldID, operation string) (Field, Form, error) {
	if identity.IsAnonymous() {
		return Field{}, Form{}, domain.PermissionError{Operation: operation}
	}
	field, ok := view.FindField(fieldID)
	if !ok {
		return Field{}, Form{}, domain.PermissionError{Operation: operation}
	}
	form, err := ownedForm(view, identity, field.FormID, operation)
	if err != nil {
		return Field{}, Form{}, err
	}
	return field, form, nil
}
