package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"formcore/internal/core"
	"formcore/internal/infra/persistence/memory"
	"formcore/pkg/domain"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// tickingClock advances one minute per call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	next := epoch
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Minute)
		return t
	}
}

func newService(t *testing.T, opts ...core.ServiceOption) (*core.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore(core.NewDefaultRulesEngine())
	store.SetNowFunc(tickingClock())
	return core.NewService(store, opts...), store
}

func addUser(t *testing.T, store domain.PersistentStore, username string) domain.Identity {
	t.Helper()
	var user domain.User
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		user, err = tx.CreateUser(domain.User{Username: username, Email: username + "@example.com"})
		return err
	})
	require.NoError(t, err)
	return domain.IdentityOf(user)
}

func mustForm(t *testing.T, svc *core.Service, id domain.Identity, title string) domain.Form {
	t.Helper()
	form, err := svc.CreateForm(context.Background(), id, core.FormInput{Title: title})
	require.NoError(t, err)
	return form
}

func mustField(t *testing.T, svc *core.Service, id domain.Identity, formID string, in core.FieldInput) domain.Field {
	t.Helper()
	field, err := svc.AddField(context.Background(), id, formID, in)
	require.NoError(t, err)
	return field
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *recordingLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			n++
		}
	}
	return n
}

type observation struct {
	op      string
	success bool
}

type recordingMetrics struct {
	mu  sync.Mutex
	obs []observation
}

func (m *recordingMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obs = append(m.obs, observation{op: op, success: success})
}
