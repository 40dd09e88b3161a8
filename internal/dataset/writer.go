package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/parquet-go/parquet-go"

	"chatbatch/internal/config"
	"chatbatch/internal/fileutil"
	"chatbatch/internal/services"
	"chatbatch/internal/workitem"
)

const (
	checkpointSuffix = ".checkpoint"
	abandonedSuffix  = ".abandoned"
	lockSuffix       = ".lock"
)

// Writer persists completed items in a configured type and format. Every
// write replaces the destination atomically.
type Writer struct {
	Type   string
	Format string
	Table  string
}

// NewWriter builds a Writer from the output section.
func NewWriter(out config.Output) *Writer {
	table := out.Table
	if strings.TrimSpace(table) == "" {
		table = "requests"
	}
	return &Writer{Type: out.Type, Format: out.Format, Table: table}
}

// Write stores items at path sorted by ID. The caller's slice is not
// reordered.
func (w *Writer) Write(ctx context.Context, path string, items []workitem.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b workitem.Item) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})

	var err error
	switch w.Type {
	case config.DataTypeJSONL:
		err = fileutil.WriteFileAtomic(path, 0o644, func(out io.Writer) error {
			return w.encodeJSONL(out, sorted)
		})
	case config.DataTypeParquet, config.DataTypeHF:
		err = fileutil.WriteFileAtomic(path, 0o644, func(out io.Writer) error {
			return w.encodeParquet(out, sorted)
		})
	case config.DataTypeSQLite:
		err = fileutil.ReplaceFile(path, func(tmpPath string) error {
			return w.writeSQLite(ctx, tmpPath, sorted)
		})
	default:
		return services.Wrap(services.ErrConfiguration, "persist", "write", fmt.Sprintf("unsupported output type %q", w.Type), nil)
	}
	if err != nil {
		return services.Wrap(services.ErrTransient, "persist", "write", path, err)
	}
	return nil
}

func (w *Writer) encodeJSONL(out io.Writer, items []workitem.Item) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	if w.Format == config.FormatPromptColumn {
		for _, rec := range toPromptRecords(items) {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	}
	for _, rec := range toMessagesRecords(items) {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) encodeParquet(out io.Writer, items []workitem.Item) error {
	if w.Format == config.FormatPromptColumn {
		return parquet.Write(out, toPromptRecords(items))
	}
	return parquet.Write(out, toMessagesRecords(items))
}

func (w *Writer) writeSQLite(ctx context.Context, path string, items []workitem.Item) error {
	if !tableNamePattern.MatchString(w.Table) {
		return fmt.Errorf("invalid table name %q", w.Table)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	var schema, insert string
	if w.Format == config.FormatPromptColumn {
		schema = fmt.Sprintf(`CREATE TABLE %q (id INTEGER PRIMARY KEY, prompt TEXT NOT NULL, response TEXT, reasoning TEXT)`, w.Table)
		insert = fmt.Sprintf(`INSERT INTO %q (id, prompt, response, reasoning) VALUES (?, ?, ?, ?)`, w.Table)
	} else {
		schema = fmt.Sprintf(`CREATE TABLE %q (id INTEGER PRIMARY KEY, messages TEXT NOT NULL)`, w.Table)
		insert = fmt.Sprintf(`INSERT INTO %q (id, messages) VALUES (?, ?)`, w.Table)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	if w.Format == config.FormatPromptColumn {
		for i, rec := range toPromptRecords(items) {
			if _, err := stmt.ExecContext(ctx, items[i].ID, rec.Prompt, nullable(rec.Response), nullable(rec.Reasoning)); err != nil {
				return fmt.Errorf("insert item %d: %w", items[i].ID, err)
			}
		}
	} else {
		for i, rec := range toMessagesRecords(items) {
			encoded, err := json.Marshal(rec.Messages)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, items[i].ID, string(encoded)); err != nil {
				return fmt.Errorf("insert item %d: %w", items[i].ID, err)
			}
		}
	}
	return tx.Commit()
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// OutputPath returns the final output location. hf output is saved as
// parquet: a trailing .hf is replaced, otherwise .parquet is appended.
func OutputPath(out config.Output) string {
	if out.Type != config.DataTypeHF || out.Path == "" {
		return out.Path
	}
	if strings.EqualFold(filepath.Ext(out.Path), ".hf") {
		return strings.TrimSuffix(out.Path, filepath.Ext(out.Path)) + ".parquet"
	}
	return out.Path + ".parquet"
}

// CheckpointPath returns the checkpoint file for an output path.
func CheckpointPath(outputPath string) string { return outputPath + checkpointSuffix }

// AbandonedPath returns where abandoned items are written.
func AbandonedPath(outputPath string) string { return outputPath + abandonedSuffix }

// LockPath returns the run lock file for an output path.
func LockPath(outputPath string) string { return outputPath + lockSuffix }
