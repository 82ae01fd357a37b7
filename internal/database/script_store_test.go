package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

type mockExecutor[T any] struct {
	mock.Mock
}

func (m *mockExecutor[T]) Query(ctx context.Context, query string, params map[string]any) ([]T, error) {
	args := m.Called(query, params)
	rows, _ := args.Get(0).([]T)
	return rows, args.Error(1)
}

func (m *mockExecutor[T]) Execute(ctx context.Context, query string, params map[string]any) error {
	return m.Called(query, params).Error(0)
}

func startsWith(prefix string) any {
	return mock.MatchedBy(func(q string) bool { return strings.HasPrefix(q, prefix) })
}

func newTestScriptStore(t *testing.T) (*ScriptStore, *mockExecutor[scriptRecord]) {
	t.Helper()
	exec := &mockExecutor[scriptRecord]{}
	c, err := NewClient[scriptRecord](nil, scriptTable, WithExecutor[scriptRecord](exec))
	require.NoError(t, err)
	store := newScriptStore(c)
	store.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return store, exec
}

func record(id, jobID string) scriptRecord {
	rid := surrealmodels.NewRecordID(scriptTable, id)
	return scriptRecord{
		ID:       &rid,
		Owner:    "alice",
		Name:     "w1",
		Body:     "print(1)",
		Language: "python",
		JobID:    jobID,
	}
}

func strPtr(s string) *string { return &s }

func TestNewClient_RequiresExecutor(t *testing.T) {
	_, err := NewClient[scriptRecord](nil, scriptTable)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewClient[scriptRecord](nil, "", WithExecutor[scriptRecord](&mockExecutor[scriptRecord]{}))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestClient_QueryOneAddsLimit(t *testing.T) {
	exec := &mockExecutor[scriptRecord]{}
	c, err := NewClient[scriptRecord](nil, scriptTable, WithExecutor[scriptRecord](exec))
	require.NoError(t, err)

	exec.On("Query", "SELECT * FROM script WHERE owner = $o LIMIT 1", mock.Anything).Return([]scriptRecord{record("a", "")}, nil).Once()

	got, err := c.QueryOne(context.Background(), "SELECT * FROM script WHERE owner = $o", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", recordKey(got.ID))
	exec.AssertExpectations(t)
}

func TestScriptStore_CreateNew(t *testing.T) {
	store, exec := newTestScriptStore(t)

	exec.On("Query", startsWith("CREATE"), mock.MatchedBy(func(p map[string]any) bool {
		data := p["data"].(map[string]any)
		return p["table"] == scriptTable && p["id"] != "" && data["job_id"] == "" && data["is_design"] == true
	})).Return([]scriptRecord{record("new-id", "")}, nil).Once()

	s, err := store.CreateOrUpdate(context.Background(), domain.ScriptAttrs{
		Owner:    "alice",
		Name:     strPtr("w1"),
		Body:     strPtr("print(1)"),
		Language: strPtr("python"),
	})
	require.NoError(t, err)
	assert.Equal(t, "new-id", s.ID)
	assert.False(t, s.Submitted())
	exec.AssertExpectations(t)
}

func TestScriptStore_UpdateLeavesJobID(t *testing.T) {
	store, exec := newTestScriptStore(t)

	exec.On("Query", startsWith("SELECT"), mock.Anything).Return([]scriptRecord{record("s1", "job-1")}, nil).Once()
	exec.On("Query", startsWith("UPDATE"), mock.MatchedBy(func(p map[string]any) bool {
		data := p["data"].(map[string]any)
		_, hasJob := data["job_id"]
		_, hasOwner := data["owner"]
		return !hasJob && !hasOwner && data["name"] == "renamed"
	})).Return([]scriptRecord{record("s1", "job-1")}, nil).Once()

	s, err := store.CreateOrUpdate(context.Background(), domain.ScriptAttrs{ID: "s1", Name: strPtr("renamed")})
	require.NoError(t, err)
	assert.Equal(t, "job-1", s.JobID)
	exec.AssertExpectations(t)
}

func TestScriptStore_GetNotFound(t *testing.T) {
	store, exec := newTestScriptStore(t)
	exec.On("Query", startsWith("SELECT"), mock.Anything).Return([]scriptRecord{}, nil).Once()

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestScriptStore_QueryFailureIsPersistence(t *testing.T) {
	store, exec := newTestScriptStore(t)
	exec.On("Query", mock.Anything, mock.Anything).Return(nil, NewDBError(ErrQueryFailed, "boom")).Once()

	_, err := store.List(context.Background(), domain.ScriptFilter{})
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestScriptStore_ListFilters(t *testing.T) {
	store, exec := newTestScriptStore(t)

	older := record("b", "")
	older.UpdatedAt = &surrealmodels.CustomDateTime{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := record("a", "")
	newer.UpdatedAt = &surrealmodels.CustomDateTime{Time: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}

	exec.On("Query", "SELECT * FROM type::table($table) WHERE owner = $owner AND is_design = true ORDER BY updated_at DESC",
		mock.MatchedBy(func(p map[string]any) bool { return p["owner"] == "alice" })).
		Return([]scriptRecord{older, newer}, nil).Once()

	scripts, err := store.List(context.Background(), domain.ScriptFilter{Owner: "alice", DesignOnly: true})
	require.NoError(t, err)
	require.Len(t, scripts, 2)
	assert.Equal(t, "a", scripts[0].ID)
	assert.Equal(t, "b", scripts[1].ID)
	exec.AssertExpectations(t)
}

func TestScriptStore_SetJobID(t *testing.T) {
	ctx := context.Background()

	t.Run("swap succeeds", func(t *testing.T) {
		store, exec := newTestScriptStore(t)
		exec.On("Query", startsWith("UPDATE"), mock.MatchedBy(func(p map[string]any) bool {
			return p["expected"] == "" && p["job"] == "job-1"
		})).Return([]scriptRecord{record("s1", "job-1")}, nil).Once()

		require.NoError(t, store.SetJobID(ctx, "s1", "", "job-1"))
		exec.AssertExpectations(t)
	})

	t.Run("stale expected value conflicts", func(t *testing.T) {
		store, exec := newTestScriptStore(t)
		exec.On("Query", startsWith("UPDATE"), mock.Anything).Return([]scriptRecord{}, nil).Once()
		exec.On("Query", startsWith("SELECT"), mock.Anything).Return([]scriptRecord{record("s1", "job-other")}, nil).Once()

		err := store.SetJobID(ctx, "s1", "", "job-1")
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("missing script", func(t *testing.T) {
		store, exec := newTestScriptStore(t)
		exec.On("Query", startsWith("UPDATE"), mock.Anything).Return([]scriptRecord{}, nil).Once()
		exec.On("Query", startsWith("SELECT"), mock.Anything).Return([]scriptRecord{}, nil).Once()

		err := store.SetJobID(ctx, "s1", "", "job-1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("empty job id rejected", func(t *testing.T) {
		store, _ := newTestScriptStore(t)
		assert.ErrorIs(t, store.SetJobID(ctx, "s1", "job-1", ""), domain.ErrInvalidRequest)
	})
}

func TestScriptStore_DeleteMissing(t *testing.T) {
	store, exec := newTestScriptStore(t)
	exec.On("Query", startsWith("DELETE"), mock.Anything).Return([]scriptRecord{}, nil).Once()

	err := store.Delete(context.Background(), "gone")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.True(t, errors.Is(err, ErrNotFound), "the store error stays reachable")
}

func TestDocumentStore_Copy(t *testing.T) {
	exec := &mockExecutor[documentRecord]{}
	c, err := NewClient[documentRecord](nil, documentTable, WithExecutor[documentRecord](exec))
	require.NoError(t, err)
	store := newDocumentStore(c)

	rid := surrealmodels.NewRecordID(documentTable, "d2")
	exec.On("Query", startsWith("CREATE"), mock.MatchedBy(func(p map[string]any) bool {
		data := p["data"].(map[string]any)
		return data["owner"] == "bob" && data["script_id"] == "s2"
	})).Return([]documentRecord{{ID: &rid, Owner: "bob", ScriptID: "s2", SharedGroups: []string{"eng"}}}, nil).Once()

	src := &domain.Document{ID: "d1", Owner: "alice", ScriptID: "s1", SharedGroups: []string{"eng"}}
	doc, err := store.Copy(context.Background(), src, "bob", "s2", "w1 (Copy)")
	require.NoError(t, err)
	assert.Equal(t, "d2", doc.ID)
	assert.Equal(t, []string{"eng"}, doc.SharedGroups)
	exec.AssertExpectations(t)
}
