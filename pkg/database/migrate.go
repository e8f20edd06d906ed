package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karaoke-session-system/pkg/logger"
)

// SQLExecutor runs one raw SQL string.
type SQLExecutor interface {
	ExecSQL(ctx context.Context, sql string) error
}

func (db *MySQLDB) ExecSQL(ctx context.Context, sql string) error {
	return db.WithContext(ctx).Exec(sql).Error
}

// ApplyResult summarizes one migration file.
type ApplyResult struct {
	File       string
	Batched    bool
	Succeeded  int
	Failed     int
	Statements int
}

// SplitStatements splits a script on ';' and drops empty statements.
func SplitStatements(script string) []string {
	var statements []string
	for _, part := range strings.Split(script, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			statements = append(statements, stmt+";")
		}
	}
	return statements
}

// ApplySQL runs script as one batch. If the batch fails it falls back to
// running each statement on its own, logging failures and carrying on with
// the remaining statements.
func ApplySQL(ctx context.Context, exec SQLExecutor, name, script string, log *logger.Logger) ApplyResult {
	result := ApplyResult{File: name}
	statements := SplitStatements(script)
	result.Statements = len(statements)

	err := exec.ExecSQL(ctx, script)
	if err == nil {
		result.Batched = true
		result.Succeeded = len(statements)
		log.Infof("%s: applied as a single batch", name)
		return result
	}
	log.Warnf("%s: batch failed, applying statements one by one: %v", name, err)

	for i, stmt := range statements {
		if err := exec.ExecSQL(ctx, stmt); err != nil {
			result.Failed++
			log.Errorf("%s: statement %d failed: %v", name, i+1, err)
			continue
		}
		result.Succeeded++
	}
	return result
}

// ApplyDir applies every *.sql file in dir in lexical order.
func ApplyDir(ctx context.Context, exec SQLExecutor, dir string, log *logger.Logger) ([]ApplyResult, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(files)

	results := make([]ApplyResult, 0, len(files))
	for _, file := range files {
		script, err := os.ReadFile(file)
		if err != nil {
			return results, fmt.Errorf("failed to read %s: %w", file, err)
		}
		results = append(results, ApplySQL(ctx, exec, filepath.Base(file), string(script), log))
	}
	return results, nil
}
