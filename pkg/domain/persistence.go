package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Deletes refuse to orphan dependents;
// cascades are the caller's responsibility.
type Transaction interface {
	Snapshot() TransactionView
	CreateUser(User) (User, error)
	CreateForm(Form) (Form, error)
	UpdateForm(id string, mutator func(*Form) error) (Form, error)
	DeleteForm(id string) error
	CreateField(Field) (Field, error)
	UpdateField(id string, mutator func(*Field) error) (Field, error)
	DeleteField(id string) error
	CreateResponse(Response) (Response, error)
	DeleteResponse(id string) error
	CreateAnswer(Answer) (Answer, error)
	DeleteAnswer(id string) error
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	FindUser(id string) (User, bool)
	FindUserByUsername(username string) (User, bool)
	FindUserByEmail(email string) (User, bool)
	FindForm(id string) (Form, bool)
	ListForms() []Form
	ListFormsByOwner(ownerID string) []Form
	FindField(id string) (Field, bool)
	ListFields() []Field
	ListFieldsByForm(formID string) []Field
	FindResponse(id string) (Response, bool)
	ListResponsesByForm(formID string) []Response
	ListAnswers() []Answer
	ListAnswersForResponses(responseIDs []string) []Answer
	ListAnswersByField(fieldID string) []Answer
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
