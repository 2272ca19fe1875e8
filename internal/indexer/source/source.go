// Package source reads the documents an index is built from.
package source

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/collection"
	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
)

// Source streams documents to fn in a stable order. Returning an error
// from fn stops the stream.
type Source interface {
	Each(ctx context.Context, fn func(collection.Document) error) error
	Name() string
}

// Load adds every document of src to b. Documents without tokens are
// counted as skipped; a duplicate id stops the load.
func Load(ctx context.Context, src Source, b *collection.Builder) (added, skipped int, err error) {
	logger := slog.Default().With("component", "document-source", "source", src.Name())
	err = src.Each(ctx, func(doc collection.Document) error {
		ok, err := b.Add(doc)
		if err != nil {
			return err
		}
		if ok {
			added++
		} else {
			skipped++
		}
		if (added+skipped)%100000 == 0 {
			logger.Info("loading documents", "added", added, "skipped", skipped)
		}
		return nil
	})
	if err != nil {
		return added, skipped, fmt.Errorf("loading %s: %w", src.Name(), err)
	}
	logger.Info("documents loaded", "added", added, "skipped", skipped)
	return added, skipped, nil
}

// File reads a JSON-lines file of {"id","title","body"} objects, or, for a
// .txt file, one document per line with the line number as its id.
type File struct {
	Path string
}

func (f File) Name() string { return f.Path }

func (f File) Each(ctx context.Context, fn func(collection.Document) error) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("opening documents: %w", err)
	}
	defer file.Close()
	if strings.EqualFold(filepath.Ext(f.Path), ".txt") {
		return eachLine(ctx, file, fn)
	}
	return eachJSON(ctx, file, fn)
}

func eachJSON(ctx context.Context, r io.Reader, fn func(collection.Document) error) error {
	dec := json.NewDecoder(bufio.NewReader(r))
	for n := 1; ; n++ {
		var doc collection.Document
		err := dec.Decode(&doc)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: document %d: %v", apperrors.ErrInvalidInput, n, err)
		}
		if doc.ID == "" {
			return fmt.Errorf("%w: document %d has no id", apperrors.ErrInvalidInput, n)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
}

func eachLine(ctx context.Context, r io.Reader, fn func(collection.Document) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for n := 1; sc.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(collection.Document{ID: strconv.Itoa(n), Body: sc.Text()}); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Querier is the subset of *sql.DB the PostgreSQL source uses.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Postgres reads documents from a table with id, title and body columns.
type Postgres struct {
	DB    Querier
	Table string
}

func (p Postgres) Name() string { return "postgres:" + p.table() }

func (p Postgres) table() string {
	if p.Table == "" {
		return "documents"
	}
	return p.Table
}

func (p Postgres) Each(ctx context.Context, fn func(collection.Document) error) error {
	query, err := selectDocuments(p.table())
	if err != nil {
		return err
	}
	rows, err := p.DB.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var doc collection.Document
		var title sql.NullString
		if err := rows.Scan(&doc.ID, &title, &doc.Body); err != nil {
			return fmt.Errorf("scanning document row: %w", err)
		}
		doc.Title = title.String
		if err := fn(doc); err != nil {
			return err
		}
	}
	return rows.Err()
}

// selectDocuments builds the scan query; table must be a plain identifier,
// optionally schema-qualified.
func selectDocuments(table string) (string, error) {
	for _, part := range strings.Split(table, ".") {
		if part == "" {
			return "", fmt.Errorf("%w: table name %q", apperrors.ErrInvalidInput, table)
		}
		for i, r := range part {
			ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9')
			if !ok {
				return "", fmt.Errorf("%w: table name %q", apperrors.ErrInvalidInput, table)
			}
		}
	}
	return "SELECT id::text, title, body FROM " + table + " ORDER BY id", nil
}
