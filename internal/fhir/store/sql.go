package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"fhiraudit/internal/fhir"
	"fhiraudit/pkg/platform/sentinel"
	txcontext "fhiraudit/pkg/platform/tx"
)

var errMissingID = errors.New("resource id is required")

// SQL is a resource store over a single "resources" table. The seq column
// preserves insertion order for SearchAll.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQL wraps a migrated database.
func NewSQL(db *sql.DB, dialect Dialect) *SQL {
	return &SQL{db: db, dialect: dialect, now: time.Now}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQL) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// RunInTx runs fn inside a transaction carried by the context.
func (s *SQL) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQL) Create(ctx context.Context, res *fhir.Resource) (*fhir.Resource, error) {
	stored, err := res.WithID(uuid.NewString())
	if err != nil {
		return nil, err
	}
	stored.CreatedAt = s.now().UTC()
	if err := s.insert(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *SQL) insert(ctx context.Context, res *fhir.Resource) error {
	query := s.rebind(`
		INSERT INTO resources (resource_type, id, body, created_at)
		VALUES (?, ?, ?, ?)
	`)
	_, err := s.execer(ctx).ExecContext(ctx, query, string(res.Type), res.ID, string(res.Body), res.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert %s/%s: %w", res.Type, res.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert %s: %w", res.Type, err)
	}
	return nil
}

func (s *SQL) Read(ctx context.Context, rt fhir.ResourceType, id string) (*fhir.Resource, error) {
	query := s.rebind(`
		SELECT id, body, created_at
		FROM resources
		WHERE resource_type = ? AND id = ?
	`)
	res := &fhir.Resource{Type: rt}
	var body []byte
	err := s.execer(ctx).QueryRowContext(ctx, query, string(rt), id).Scan(&res.ID, &body, &res.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", rt, id, err)
	}
	res.Body = body
	return res, nil
}

func (s *SQL) SearchAll(ctx context.Context, rt fhir.ResourceType) ([]*fhir.Resource, error) {
	query := s.rebind(`
		SELECT id, body, created_at
		FROM resources
		WHERE resource_type = ?
		ORDER BY seq
	`)
	rows, err := s.execer(ctx).QueryContext(ctx, query, string(rt))
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", rt, err)
	}
	defer rows.Close()

	var out []*fhir.Resource
	for rows.Next() {
		res := &fhir.Resource{Type: rt}
		var body []byte
		if err := rows.Scan(&res.ID, &body, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", rt, err)
		}
		res.Body = body
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", rt, err)
	}
	return out, nil
}

// Update replaces the body of res, inserting it when no row with its id
// exists. The boolean result reports whether a row was created.
func (s *SQL) Update(ctx context.Context, res *fhir.Resource) (*fhir.Resource, bool, error) {
	if res.ID == "" {
		return nil, false, errMissingID
	}
	stored, err := res.WithID(res.ID)
	if err != nil {
		return nil, false, err
	}

	var created bool
	err = s.RunInTx(ctx, func(ctx context.Context) error {
		query := s.rebind(`UPDATE resources SET body = ? WHERE resource_type = ? AND id = ?`)
		result, err := s.execer(ctx).ExecContext(ctx, query, string(stored.Body), string(stored.Type), stored.ID)
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", stored.Type, stored.ID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", stored.Type, stored.ID, err)
		}
		if n > 0 {
			current, err := s.Read(ctx, stored.Type, stored.ID)
			if err != nil {
				return err
			}
			stored.CreatedAt = current.CreatedAt
			return nil
		}
		created = true
		stored.CreatedAt = s.now().UTC()
		return s.insert(ctx, stored)
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *SQL) Delete(ctx context.Context, rt fhir.ResourceType, id string) error {
	query := s.rebind(`DELETE FROM resources WHERE resource_type = ? AND id = ?`)
	result, err := s.execer(ctx).ExecContext(ctx, query, string(rt), id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", rt, id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", rt, id, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// rebind rewrites "?" placeholders into "$n" for Postgres drivers.
func (s *SQL) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
