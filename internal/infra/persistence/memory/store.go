// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"formcore/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// User aliases domain.User for in-memory persistence operations.
	User = domain.User
	// Form aliases domain.Form.
	Form = domain.Form
	// Field aliases domain.Field.
	Field = domain.Field
	// Response aliases domain.Response.
	Response = domain.Response
	// Answer aliases domain.Answer.
	Answer = domain.Answer
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	users     map[string]User
	forms     map[string]Form
	fields    map[string]Field
	responses map[string]Response
	answers   map[string]Answer
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Users     map[string]User     `json:"users"`
	Forms     map[string]Form     `json:"forms"`
	Fields    map[string]Field    `json:"fields"`
	Responses map[string]Response `json:"responses"`
	Answers   map[string]Answer   `json:"answers"`
}

func newMemoryState() memoryState {
	return memoryState{
		users:     make(map[string]User),
		forms:     make(map[string]Form),
		fields:    make(map[string]Field),
		responses: make(map[string]Response),
		answers:   make(map[string]Answer),
	}
}

// Records are flat value types, so copying the maps is a deep clone.
func (s memoryState) clone() memoryState {
	return memoryState{
		users:     copyMap(s.users),
		forms:     copyMap(s.forms),
		fields:    copyMap(s.fields),
		responses: copyMap(s.responses),
		answers:   copyMap(s.answers),
	}
}

func copyMap[T any](in map[string]T) map[string]T {
	out := make(map[string]T, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{
		Users:     c.users,
		Forms:     c.forms,
		Fields:    c.fields,
		Responses: c.responses,
		Answers:   c.answers,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		users:     s.Users,
		forms:     s.Forms,
		fields:    s.Fields,
		responses: s.Responses,
		answers:   s.Answers,
	}
	if state.users == nil {
		state.users = map[string]User{}
	}
	if state.forms == nil {
		state.forms = map[string]Form{}
	}
	if state.fields == nil {
		state.fields = map[string]Field{}
	}
	if state.responses == nil {
		state.responses = map[string]Response{}
	}
	if state.answers == nil {
		state.answers = map[string]Answer{}
	}
	return state.clone()
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider stamped onto new records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	return fn(newTransactionView(&snapshot))
}

// View helpers ----------------------------------------------------------------

func (v transactionView) FindUser(id string) (User, bool) {
	u, ok := v.state.users[id]
	return u, ok
}

func (v transactionView) FindUserByUsername(username string) (User, bool) {
	for _, u := range v.state.users {
		if u.Username == username {
			return u, true
		}
	}
	return User{}, false
}

func (v transactionView) FindUserByEmail(email string) (User, bool) {
	want := domain.NormalizeEmail(email)
	for _, u := range v.state.users {
		if domain.NormalizeEmail(u.Email) == want {
			return u, true
		}
	}
	return User{}, false
}

func (v transactionView) FindForm(id string) (Form, bool) {
	f, ok := v.state.forms[id]
	return f, ok
}

// ListForms returns every form, newest first.
func (v transactionView) ListForms() []Form {
	out := make([]Form, 0, len(v.state.forms))
	for _, f := range v.state.forms {
		out = append(out, f)
	}
	sortForms(out)
	return out
}

// ListFormsByOwner returns the forms owned by ownerID, newest first.
func (v transactionView) ListFormsByOwner(ownerID string) []Form {
	var out []Form
	for _, f := range v.state.forms {
		if f.OwnerID == ownerID {
			out = append(out, f)
		}
	}
	sortForms(out)
	return out
}

func (v transactionView) FindField(id string) (Field, bool) {
	f, ok := v.state.fields[id]
	return f, ok
}

func (v transactionView) ListFields() []Field {
	out := make([]Field, 0, len(v.state.fields))
	for _, f := range v.state.fields {
		out = append(out, f)
	}
	sortFields(out)
	return out
}

// ListFieldsByForm returns the form's fields in column order.
func (v transactionView) ListFieldsByForm(formID string) []Field {
	var out []Field
	for _, f := range v.state.fields {
		if f.FormID == formID {
			out = append(out, f)
		}
	}
	sortFields(out)
	return out
}

func (v transactionView) FindResponse(id string) (Response, bool) {
	r, ok := v.state.responses[id]
	return r, ok
}

// ListResponsesByForm returns the form's responses, oldest first.
func (v transactionView) ListResponsesByForm(formID string) []Response {
	var out []Response
	for _, r := range v.state.responses {
		if r.FormID == formID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v transactionView) ListAnswers() []Answer {
	out := make([]Answer, 0, len(v.state.answers))
	for _, a := range v.state.answers {
		out = append(out, a)
	}
	sortAnswers(out)
	return out
}

// ListAnswersForResponses batch-loads the answers of every listed response.
func (v transactionView) ListAnswersForResponses(responseIDs []string) []Answer {
	wanted := make(map[string]struct{}, len(responseIDs))
	for _, id := range responseIDs {
		wanted[id] = struct{}{}
	}
	var out []Answer
	for _, a := range v.state.answers {
		if _, ok := wanted[a.ResponseID]; ok {
			out = append(out, a)
		}
	}
	sortAnswers(out)
	return out
}

func (v transactionView) ListAnswersByField(fieldID string) []Answer {
	var out []Answer
	for _, a := range v.state.answers {
		if a.FieldID == fieldID {
			out = append(out, a)
		}
	}
	sortAnswers(out)
	return out
}

func sortForms(forms []Form) {
	sort.Slice(forms, func(i, j int) bool {
		if !forms[i].CreatedAt.Equal(forms[j].CreatedAt) {
			return forms[i].CreatedAt.After(forms[j].CreatedAt)
		}
		return forms[i].ID < forms[j].ID
	})
}

func sortFields(fields []Field) {
	sort.Slice(fields, func(i, j int) bool {
		if fields[i].FormID != fields[j].FormID {
			return fields[i].FormID < fields[j].FormID
		}
		if fields[i].Position != fields[j].Position {
			return fields[i].Position < fields[j].Position
		}
		return fields[i].ID < fields[j].ID
	})
}

func sortAnswers(answers []Answer) {
	sort.Slice(answers, func(i, j int) bool {
		if answers[i].ResponseID != answers[j].ResponseID {
			return answers[i].ResponseID < answers[j].ResponseID
		}
		return answers[i].FieldID < answers[j].FieldID
	})
}

// Transaction operations ------------------------------------------------------

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateUser stores a new identity, enforcing username and email uniqueness.
func (tx *transaction) CreateUser(u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, exists := tx.state.users[u.ID]; exists {
		return User{}, fmt.Errorf("user %q already exists", u.ID)
	}
	view := tx.Snapshot()
	if _, taken := view.FindUserByUsername(u.Username); taken {
		return User{}, domain.ValidationError{Field: "username", Code: domain.CodeDuplicate, Message: "username already taken"}
	}
	if _, taken := view.FindUserByEmail(u.Email); taken {
		return User{}, domain.ValidationError{Field: "email", Code: domain.CodeDuplicate, Message: "email already registered"}
	}
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	tx.state.users[u.ID] = u
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionCreate, After: u})
	return u, nil
}

// CreateForm stores a new form.
func (tx *transaction) CreateForm(f Form) (Form, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if _, exists := tx.state.forms[f.ID]; exists {
		return Form{}, fmt.Errorf("form %q already exists", f.ID)
	}
	if _, ok := tx.state.users[f.OwnerID]; !ok {
		return Form{}, domain.NotFoundError{Entity: domain.EntityUser, ID: f.OwnerID}
	}
	f.CreatedAt = tx.now
	f.UpdatedAt = tx.now
	tx.state.forms[f.ID] = f
	tx.recordChange(Change{Entity: domain.EntityForm, Action: domain.ActionCreate, After: f})
	return f, nil
}

// UpdateForm mutates a form. Ownership is immutable.
func (tx *transaction) UpdateForm(id string, mutator func(*Form) error) (Form, error) {
	current, ok := tx.state.forms[id]
	if !ok {
		return Form{}, domain.NotFoundError{Entity: domain.EntityForm, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Form{}, err
	}
	if current.OwnerID != before.OwnerID {
		return Form{}, fmt.Errorf("form %q owner is immutable", id)
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.forms[id] = current
	tx.recordChange(Change{Entity: domain.EntityForm, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteForm removes a form that no longer has fields or responses.
func (tx *transaction) DeleteForm(id string) error {
	current, ok := tx.state.forms[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityForm, ID: id}
	}
	for _, f := range tx.state.fields {
		if f.FormID == id {
			return fmt.Errorf("form %q still referenced by field %q", id, f.ID)
		}
	}
	for _, r := range tx.state.responses {
		if r.FormID == id {
			return fmt.Errorf("form %q still referenced by response %q", id, r.ID)
		}
	}
	delete(tx.state.forms, id)
	tx.recordChange(Change{Entity: domain.EntityForm, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateField stores a new field, appending it to the form's column order
// when no position is supplied.
func (tx *transaction) CreateField(f Field) (Field, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if _, exists := tx.state.fields[f.ID]; exists {
		return Field{}, fmt.Errorf("field %q already exists", f.ID)
	}
	if _, ok := tx.state.forms[f.FormID]; !ok {
		return Field{}, domain.NotFoundError{Entity: domain.EntityForm, ID: f.FormID}
	}
	if !f.Type.Valid() {
		return Field{}, domain.ValidationError{Field: "type", Code: domain.CodeInvalidFieldType, Message: fmt.Sprintf("unknown field type %q", f.Type)}
	}
	if f.Position <= 0 {
		f.Position = tx.nextFieldPosition(f.FormID)
	}
	f.CreatedAt = tx.now
	f.UpdatedAt = tx.now
	tx.state.fields[f.ID] = f
	tx.recordChange(Change{Entity: domain.EntityField, Action: domain.ActionCreate, After: f})
	return f, nil
}

func (tx *transaction) nextFieldPosition(formID string) int {
	highest := 0
	for _, f := range tx.state.fields {
		if f.FormID == formID && f.Position > highest {
			highest = f.Position
		}
	}
	return highest + 1
}

// UpdateField mutates a field. The owning form is immutable.
func (tx *transaction) UpdateField(id string, mutator func(*Field) error) (Field, error) {
	current, ok := tx.state.fields[id]
	if !ok {
		return Field{}, domain.NotFoundError{Entity: domain.EntityField, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Field{}, err
	}
	if current.FormID != before.FormID {
		return Field{}, fmt.Errorf("field %q cannot move between forms", id)
	}
	if !current.Type.Valid() {
		return Field{}, domain.ValidationError{Field: "type", Code: domain.CodeInvalidFieldType, Message: fmt.Sprintf("unknown field type %q", current.Type)}
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.fields[id] = current
	tx.recordChange(Change{Entity: domain.EntityField, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteField removes a field that no longer has answers.
func (tx *transaction) DeleteField(id string) error {
	current, ok := tx.state.fields[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityField, ID: id}
	}
	for _, a := range tx.state.answers {
		if a.FieldID == id {
			return fmt.Errorf("field %q still referenced by answer %q", id, a.ID)
		}
	}
	delete(tx.state.fields, id)
	tx.recordChange(Change{Entity: domain.EntityField, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateResponse stores a new submission and assigns its sequence number.
func (tx *transaction) CreateResponse(r Response) (Response, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, exists := tx.state.responses[r.ID]; exists {
		return Response{}, fmt.Errorf("response %q already exists", r.ID)
	}
	if _, ok := tx.state.forms[r.FormID]; !ok {
		return Response{}, domain.NotFoundError{Entity: domain.EntityForm, ID: r.FormID}
	}
	if r.Number <= 0 {
		highest := 0
		for _, existing := range tx.state.responses {
			if existing.FormID == r.FormID && existing.Number > highest {
				highest = existing.Number
			}
		}
		r.Number = highest + 1
	}
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = tx.now
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.responses[r.ID] = r
	tx.recordChange(Change{Entity: domain.EntityResponse, Action: domain.ActionCreate, After: r})
	return r, nil
}

// DeleteResponse removes a response that no longer has answers.
func (tx *transaction) DeleteResponse(id string) error {
	current, ok := tx.state.responses[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityResponse, ID: id}
	}
	for _, a := range tx.state.answers {
		if a.ResponseID == id {
			return fmt.Errorf("response %q still referenced by answer %q", id, a.ID)
		}
	}
	delete(tx.state.responses, id)
	tx.recordChange(Change{Entity: domain.EntityResponse, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateAnswer stores one field value for a response.
func (tx *transaction) CreateAnswer(a Answer) (Answer, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, exists := tx.state.answers[a.ID]; exists {
		return Answer{}, fmt.Errorf("answer %q already exists", a.ID)
	}
	if _, ok := tx.state.responses[a.ResponseID]; !ok {
		return Answer{}, domain.NotFoundError{Entity: domain.EntityResponse, ID: a.ResponseID}
	}
	if _, ok := tx.state.fields[a.FieldID]; !ok {
		return Answer{}, domain.NotFoundError{Entity: domain.EntityField, ID: a.FieldID}
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.answers[a.ID] = a
	tx.recordChange(Change{Entity: domain.EntityAnswer, Action: domain.ActionCreate, After: a})
	return a, nil
}

// DeleteAnswer removes a single answer.
func (tx *transaction) DeleteAnswer(id string) error {
	current, ok := tx.state.answers[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityAnswer, ID: id}
	}
	delete(tx.state.answers, id)
	tx.recordChange(Change{Entity: domain.EntityAnswer, Action: domain.ActionDelete, Before: current})
	return nil
}
