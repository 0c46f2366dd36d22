// Package sqlitefts retrieves documents from a prebuilt SQLite FTS5 table.
// The table is opened read-only and must have title, source and content
// columns; building it is left to external tooling.
package sqlitefts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/germanamz/granitechat/pkg/retriever"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// DefaultTable is the FTS5 table queried when none is configured.
const DefaultTable = "documents"

// DefaultTopK is used when TopK is not positive.
const DefaultTopK = 4

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var _ retriever.Retriever = (*Store)(nil)

// Store is a read-only FTS5 retriever.
type Store struct {
	db    *sql.DB
	query string
	topK  int
}

// Open opens the database at path read-only and checks that table exists.
func Open(ctx context.Context, path, table string, topK int) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlitefts: path is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("sqlitefts: invalid table name %q", table)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	dsn := (&url.URL{Scheme: "file", Opaque: path, RawQuery: "mode=ro"}).String()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitefts: open: %w", err)
	}

	var name string
	err = db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
	if err != nil {
		_ = db.Close()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sqlitefts: table %q not found in %s", table, path)
		}
		return nil, fmt.Errorf("sqlitefts: open: %w", err)
	}

	// bm25() is lower-is-better; negate so Score follows the higher-is-better rule.
	q := `SELECT rowid, title, source, content, -bm25(` + table + `) AS score
		FROM ` + table + `
		WHERE ` + table + ` MATCH ?
		ORDER BY score DESC
		LIMIT ?`

	return &Store{db: db, query: q, topK: topK}, nil
}

// Retrieve runs a full-text match for the query terms, best first.
func (s *Store) Retrieve(ctx context.Context, query string) ([]retriever.Document, error) {
	match := matchExpr(query)
	if match == "" {
		return nil, retriever.ErrNoDocuments
	}

	rows, err := s.db.QueryContext(ctx, s.query, match, s.topK)
	if err != nil {
		return nil, fmt.Errorf("sqlitefts: query: %w", err)
	}
	defer rows.Close()

	var docs []retriever.Document
	for rows.Next() {
		var (
			id                     int64
			title, source, content sql.NullString
			d                      retriever.Document
		)
		if err := rows.Scan(&id, &title, &source, &content, &d.Score); err != nil {
			return nil, fmt.Errorf("sqlitefts: scan: %w", err)
		}
		d.ID = strconv.FormatInt(id, 10)
		d.Title = title.String
		d.Source = source.String
		d.Content = content.String
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitefts: rows: %w", err)
	}

	if len(docs) == 0 {
		return nil, retriever.ErrNoDocuments
	}

	return docs, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// matchExpr turns free text into an FTS5 expression: every word becomes a
// quoted phrase and the phrases are OR-ed so bm25 ranks partial matches.
func matchExpr(query string) string {
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	terms := make([]string, 0, len(words))
	for _, w := range words {
		terms = append(terms, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
	}

	return strings.Join(terms, " OR ")
}
