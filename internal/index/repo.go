package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/starford/nbweb/internal/apperr"
	"github.com/starford/nbweb/internal/models"
)

var documentColumns = []string{
	"system_path", "logical_path", "logical_dir", "logical_basename", "extension", "modified_time",
	"title", "date", "tags", "id", "other_metadata", "reference_name", "is_draft", "todo",
	"tags_combined", "blog_date", "is_blogged", "rendered_html", "outgoing_links", "search_text",
}

var (
	selectSQL = `SELECT ` + strings.Join(documentColumns, ", ") + ` FROM documents `
	insertSQL = `INSERT INTO documents (` + strings.Join(documentColumns, ", ") + `) VALUES (?` +
		strings.Repeat(", ?", len(documentColumns)-1) + `)`
	updateSQL = `UPDATE documents SET ` + strings.Join(documentColumns, " = ?, ") + ` = ? WHERE logical_path = ?`
)

// Seconds converts a modification time to the REAL stored in modified_time.
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func joinCSV(items []string) string {
	return strings.Join(items, ",")
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// documentArgs returns the values for documentColumns in order.
func documentArgs(d *models.Document) ([]any, error) {
	other := "{}"
	if len(d.Meta.Other) > 0 {
		b, err := json.Marshal(d.Meta.Other)
		if err != nil {
			return nil, fmt.Errorf("index: encode metadata: %w", err)
		}
		other = string(b)
	}
	var todo any
	if len(d.Todos) > 0 {
		b, err := json.Marshal(d.Todos)
		if err != nil {
			return nil, fmt.Errorf("index: encode todos: %w", err)
		}
		todo = string(b)
	}
	var blogDate any
	if d.BlogDate != nil {
		blogDate = Seconds(*d.BlogDate)
	}
	return []any{
		d.SystemPath, d.LogicalPath, d.LogicalDir, d.LogicalBasename, d.Extension, Seconds(d.ModTime),
		d.Meta.Title, d.Meta.Date, joinCSV(d.Meta.Tags), d.Meta.ID, other, d.RefName, boolInt(d.Meta.Draft), todo,
		joinCSV(d.Tags), blogDate, boolInt(d.IsBlogged), d.HTML, joinCSV(d.OutgoingLinks), d.SearchText,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (models.Document, error) {
	var (
		d              models.Document
		mtime          float64
		tags, other    string
		combined       string
		links          string
		todo           sql.NullString
		blogDate       sql.NullFloat64
		draft, blogged int
	)
	err := row.Scan(
		&d.SystemPath, &d.LogicalPath, &d.LogicalDir, &d.LogicalBasename, &d.Extension, &mtime,
		&d.Meta.Title, &d.Meta.Date, &tags, &d.Meta.ID, &other, &d.RefName, &draft, &todo,
		&combined, &blogDate, &blogged, &d.HTML, &links, &d.SearchText,
	)
	if err != nil {
		return d, err
	}
	d.ModTime = fromSeconds(mtime)
	d.Meta.Tags = splitCSV(tags)
	d.Meta.Draft = draft != 0
	if other != "" && other != "{}" {
		if err := json.Unmarshal([]byte(other), &d.Meta.Other); err != nil {
			return d, fmt.Errorf("index: decode metadata of %s: %w", d.LogicalPath, err)
		}
	}
	if todo.Valid {
		if err := json.Unmarshal([]byte(todo.String), &d.Todos); err != nil {
			return d, fmt.Errorf("index: decode todos of %s: %w", d.LogicalPath, err)
		}
	}
	d.Tags = splitCSV(combined)
	if blogDate.Valid {
		t := fromSeconds(blogDate.Float64)
		d.BlogDate = &t
	}
	d.IsBlogged = blogged != 0
	d.OutgoingLinks = splitCSV(links)
	return d, nil
}

func (db *DB) queryDocuments(ctx context.Context, where string, args ...any) ([]models.Document, error) {
	rows, err := db.conn.QueryContext(ctx, selectSQL+where, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (db *DB) queryOne(ctx context.Context, what, where string, args ...any) (*models.Document, error) {
	d, err := scanDocument(db.conn.QueryRowContext(ctx, selectSQL+where+" LIMIT 1", args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: %s: %w", what, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: %s: %w", what, err)
	}
	return &d, nil
}

// Lookup returns every record stored under logicalPath. More than one means
// the index holds a duplicate.
func (db *DB) Lookup(ctx context.Context, logicalPath string) ([]models.Document, error) {
	return db.queryDocuments(ctx, `WHERE logical_path = ? ORDER BY rowid`, logicalPath)
}

// Get returns the record for logicalPath or apperr.ErrNotFound.
func (db *DB) Get(ctx context.Context, logicalPath string) (*models.Document, error) {
	return db.queryOne(ctx, logicalPath, `WHERE logical_path = ? ORDER BY rowid`, logicalPath)
}

// Save updates the record for doc.LogicalPath, inserting it when absent.
func (db *DB) Save(ctx context.Context, doc *models.Document) error {
	args, err := documentArgs(doc)
	if err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.ExecContext(ctx, updateSQL, append(args, doc.LogicalPath)...)
	if err != nil {
		return fmt.Errorf("index: update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.ExecContext(ctx, insertSQL, args...); err != nil {
			return fmt.Errorf("index: insert document: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit: %w", err)
	}
	db.bump()
	return nil
}

// insert adds a row without checking for an existing one.
func (db *DB) insert(ctx context.Context, doc *models.Document) error {
	args, err := documentArgs(doc)
	if err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(ctx, insertSQL, args...); err != nil {
		return fmt.Errorf("index: insert document: %w", err)
	}
	db.bump()
	return nil
}

// Delete removes every record stored under logicalPath.
func (db *DB) Delete(ctx context.Context, logicalPath string) error {
	return db.DeleteMany(ctx, []string{logicalPath})
}

// DeleteMany removes the records of all paths in one transaction.
func (db *DB) DeleteMany(ctx context.Context, logicalPaths []string) error {
	if len(logicalPaths) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM documents WHERE logical_path = ?`)
	if err != nil {
		return fmt.Errorf("index: prepare delete: %w", err)
	}
	defer stmt.Close()
	for _, p := range logicalPaths {
		if _, err := stmt.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("index: delete %s: %w", p, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit: %w", err)
	}
	db.bump()
	return nil
}

func (db *DB) stringSet(ctx context.Context, query string) (map[string]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("index: query: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out[s] = struct{}{}
	}
	return out, rows.Err()
}

// LogicalPaths returns every indexed logical path.
func (db *DB) LogicalPaths(ctx context.Context) (map[string]struct{}, error) {
	return db.stringSet(ctx, `SELECT DISTINCT logical_path FROM documents`)
}

// IDs returns every non-empty metadata id.
func (db *DB) IDs(ctx context.Context) (map[string]struct{}, error) {
	return db.stringSet(ctx, `SELECT DISTINCT id FROM documents WHERE id != ''`)
}

// Count returns the number of records.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// ByID returns the first document whose metadata id is id.
func (db *DB) ByID(ctx context.Context, id string) (*models.Document, error) {
	return db.queryOne(ctx, "id "+id, `WHERE id = ? ORDER BY rowid`, id)
}

// ByBasename returns the document whose logical path minus extension is
// basename.
func (db *DB) ByBasename(ctx context.Context, basename string) (*models.Document, error) {
	return db.queryOne(ctx, basename, `WHERE logical_basename = ? ORDER BY logical_path`, basename)
}

// IDTargets maps every metadata id to the basename of the first document
// carrying it.
func (db *DB) IDTargets(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, logical_basename FROM documents WHERE id != '' ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("index: id targets: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, base string
		if err := rows.Scan(&id, &base); err != nil {
			return nil, err
		}
		if _, ok := out[id]; !ok {
			out[id] = base
		}
	}
	return out, rows.Err()
}

// ListDirectory returns the documents directly inside dir.
func (db *DB) ListDirectory(ctx context.Context, dir string, includeDrafts bool) ([]models.Document, error) {
	return db.queryDocuments(ctx, `WHERE logical_dir = ? AND (? OR is_draft = 0) ORDER BY logical_path`, dir, includeDrafts)
}

// SearchCandidates returns documents whose search text or lowercased title
// contains any token. It is a substring pre-filter; scoring happens later.
func (db *DB) SearchCandidates(ctx context.Context, tokens []string, includeDrafts bool) ([]models.Document, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	var clauses []string
	var args []any
	for _, t := range tokens {
		clauses = append(clauses, `search_text LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(t)+"%")
	}
	for _, t := range tokens {
		clauses = append(clauses, `lower(title) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(t)+"%")
	}
	args = append(args, includeDrafts)
	return db.queryDocuments(ctx, `WHERE (`+strings.Join(clauses, " OR ")+`) AND (? OR is_draft = 0) ORDER BY logical_path`, args...)
}

// IncomingCandidates returns documents whose outgoing links may point at
// basename (or at idToken when non-empty). Callers must verify each link
// exactly; this is a substring pre-filter.
func (db *DB) IncomingCandidates(ctx context.Context, basename, idToken string) ([]models.Document, error) {
	where := `WHERE outgoing_links LIKE ? ESCAPE '\'`
	args := []any{"%" + escapeLike(basename+".") + "%"}
	if idToken != "" {
		where += ` OR outgoing_links LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(idToken)+"%")
	}
	return db.queryDocuments(ctx, where+` ORDER BY logical_basename`, args...)
}

// WithTodos returns documents that carry todo items, optionally limited to a
// directory subtree.
func (db *DB) WithTodos(ctx context.Context, dir string, includeDrafts bool) ([]models.Document, error) {
	where := `WHERE todo IS NOT NULL AND (? OR is_draft = 0)`
	args := []any{includeDrafts}
	if dir != "" && dir != "/" {
		where += ` AND logical_basename LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(strings.TrimSuffix(dir, "/")+"/")+"%")
	}
	return db.queryDocuments(ctx, where+` ORDER BY logical_path`, args...)
}

// WithTags returns documents that carry at least one tag.
func (db *DB) WithTags(ctx context.Context, includeDrafts bool) ([]models.Document, error) {
	return db.queryDocuments(ctx, `WHERE tags_combined != '' AND (? OR is_draft = 0) ORDER BY logical_path`, includeDrafts)
}

// BlogPosts returns blogged documents, newest first.
func (db *DB) BlogPosts(ctx context.Context, offset, limit int, includeDrafts bool) ([]models.Document, error) {
	return db.queryDocuments(ctx, `WHERE is_blogged = 1 AND (? OR is_draft = 0)
		ORDER BY blog_date DESC, logical_path LIMIT ? OFFSET ?`, includeDrafts, limit, offset)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
