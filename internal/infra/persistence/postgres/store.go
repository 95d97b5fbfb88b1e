// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics while writing committed state to normalized tables.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"formcore/internal/entitymodel/sqlbundle"
	"formcore/internal/infra/persistence/memory"
	"formcore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/formcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It applies the DDL bundle and hydrates the in-memory store from the normalized tables.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applyDDL(ctx, db); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

// RunInTransaction applies fn within a transaction, then writes committed state to Postgres.
// A failed write restores the in-memory state held before fn ran.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.ExportState()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		s.ImportState(before)
		return res, err
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func applyDDL(ctx context.Context, db execer) error {
	for _, stmt := range sqlbundle.SplitStatements(sqlbundle.Postgres()) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

const (
	selectUsers     = `SELECT id, username, email, password_hash, created_at, updated_at FROM users`
	selectForms     = `SELECT id, title, description, owner_id, created_at, updated_at FROM forms`
	selectFields    = `SELECT id, form_id, label, field_type, options, required, position, created_at, updated_at FROM fields`
	selectResponses = `SELECT id, form_id, number, submitted_at, submitted_by, created_at, updated_at FROM responses`
	selectAnswers   = `SELECT id, response_id, field_id, value, created_at, updated_at FROM answers`
)

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	snapshot := memory.Snapshot{
		Users:     map[string]domain.User{},
		Forms:     map[string]domain.Form{},
		Fields:    map[string]domain.Field{},
		Responses: map[string]domain.Response{},
		Answers:   map[string]domain.Answer{},
	}
	err := queryRows(ctx, db, selectUsers, func(rows *sql.Rows) error {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return err
		}
		snapshot.Users[u.ID] = u
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load users: %w", err)
	}
	err = queryRows(ctx, db, selectForms, func(rows *sql.Rows) error {
		var f domain.Form
		if err := rows.Scan(&f.ID, &f.Title, &f.Description, &f.OwnerID, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return err
		}
		snapshot.Forms[f.ID] = f
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load forms: %w", err)
	}
	err = queryRows(ctx, db, selectFields, func(rows *sql.Rows) error {
		var f domain.Field
		var fieldType string
		if err := rows.Scan(&f.ID, &f.FormID, &f.Label, &fieldType, &f.OptionsRaw, &f.Required, &f.Position, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return err
		}
		f.Type = domain.FieldType(fieldType)
		snapshot.Fields[f.ID] = f
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load fields: %w", err)
	}
	err = queryRows(ctx, db, selectResponses, func(rows *sql.Rows) error {
		var r domain.Response
		if err := rows.Scan(&r.ID, &r.FormID, &r.Number, &r.SubmittedAt, &r.SubmittedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return err
		}
		snapshot.Responses[r.ID] = r
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load responses: %w", err)
	}
	err = queryRows(ctx, db, selectAnswers, func(rows *sql.Rows) error {
		var a domain.Answer
		if err := rows.Scan(&a.ID, &a.ResponseID, &a.FieldID, &a.Value, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return err
		}
		snapshot.Answers[a.ID] = a
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load answers: %w", err)
	}
	return snapshot, nil
}

func queryRows(ctx context.Context, db *sql.DB, query string, scan func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Children are cleared before parents and inserted after them so foreign keys hold.
var clearStatements = []string{
	`DELETE FROM answers`,
	`DELETE FROM responses`,
	`DELETE FROM fields`,
	`DELETE FROM forms`,
	`DELETE FROM users`,
}

func (s *Store) persist(ctx context.Context) error {
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := writeSnapshot(ctx, tx, snapshot); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func writeSnapshot(ctx context.Context, tx execer, snapshot memory.Snapshot) error {
	for _, stmt := range clearStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
	}
	for _, id := range sortedKeys(snapshot.Users) {
		u := snapshot.Users[id]
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (id, username, email, password_hash, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6)`,
			u.ID, u.Username, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt); err != nil {
			return fmt.Errorf("insert user %s: %w", u.ID, err)
		}
	}
	for _, id := range sortedKeys(snapshot.Forms) {
		f := snapshot.Forms[id]
		if _, err := tx.ExecContext(ctx, `INSERT INTO forms (id, title, description, owner_id, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6)`,
			f.ID, f.Title, f.Description, f.OwnerID, f.CreatedAt, f.UpdatedAt); err != nil {
			return fmt.Errorf("insert form %s: %w", f.ID, err)
		}
	}
	for _, id := range sortedKeys(snapshot.Fields) {
		f := snapshot.Fields[id]
		if _, err := tx.ExecContext(ctx, `INSERT INTO fields (id, form_id, label, field_type, options, required, position, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			f.ID, f.FormID, f.Label, string(f.Type), f.OptionsRaw, f.Required, f.Position, f.CreatedAt, f.UpdatedAt); err != nil {
			return fmt.Errorf("insert field %s: %w", f.ID, err)
		}
	}
	for _, id := range sortedKeys(snapshot.Responses) {
		r := snapshot.Responses[id]
		if _, err := tx.ExecContext(ctx, `INSERT INTO responses (id, form_id, number, submitted_at, submitted_by, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			r.ID, r.FormID, r.Number, r.SubmittedAt, r.SubmittedBy, r.CreatedAt, r.UpdatedAt); err != nil {
			return fmt.Errorf("insert response %s: %w", r.ID, err)
		}
	}
	for _, id := range sortedKeys(snapshot.Answers) {
		a := snapshot.Answers[id]
		if _, err := tx.ExecContext(ctx, `INSERT INTO answers (id, response_id, field_id, value, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6)`,
			a.ID, a.ResponseID, a.FieldID, a.Value, a.CreatedAt, a.UpdatedAt); err != nil {
			return fmt.Errorf("insert answer %s: %w", a.ID, err)
		}
	}
	return nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
