package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karaoke-session-system/pkg/logger"
)

type fakeExecutor struct {
	failBatch bool
	failOn    string
	executed  []string
}

func (f *fakeExecutor) ExecSQL(_ context.Context, sql string) error {
	f.executed = append(f.executed, sql)
	if f.failBatch && strings.Count(sql, ";") > 1 {
		return errors.New("multi statement not allowed")
	}
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return errors.New("statement failed")
	}
	return nil
}

const script = `
CREATE INDEX idx_a ON sessions (code);

CREATE INDEX idx_b ON song_queue (session_id);
CREATE INDEX idx_c ON skip_votes (queue_item_id);
`

func TestSplitStatements(t *testing.T) {
	statements := SplitStatements(script + ";;  ;")
	assert.Equal(t, []string{
		"CREATE INDEX idx_a ON sessions (code);",
		"CREATE INDEX idx_b ON song_queue (session_id);",
		"CREATE INDEX idx_c ON skip_votes (queue_item_id);",
	}, statements)
}

func TestApplySQL(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNop()

	t.Run("batch", func(t *testing.T) {
		exec := &fakeExecutor{}
		result := ApplySQL(ctx, exec, "001.sql", script, log)
		assert.True(t, result.Batched)
		assert.Equal(t, 3, result.Succeeded)
		assert.Len(t, exec.executed, 1)
	})

	t.Run("falls back to statements", func(t *testing.T) {
		exec := &fakeExecutor{failBatch: true, failOn: "idx_b"}
		result := ApplySQL(ctx, exec, "001.sql", script, log)
		assert.False(t, result.Batched)
		assert.Equal(t, ApplyResult{File: "001.sql", Succeeded: 2, Failed: 1, Statements: 3}, result)
		assert.Len(t, exec.executed, 4)
	})
}

func TestApplyDirRunsFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "002_second.sql"), []byte("SELECT 2;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_first.sql"), []byte("SELECT 1;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	exec := &fakeExecutor{}
	results, err := ApplyDir(context.Background(), exec, dir, logger.NewNop())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "001_first.sql", results[0].File)
	assert.Equal(t, "002_second.sql", results[1].File)
	assert.Equal(t, []string{"SELECT 1;", "SELECT 2;"}, exec.executed)
}
