package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"loyaltylink/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies .sql files from dir in lexical order (dev helper).
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil { return err }
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") { names = append(names, e.Name()) }
	}
	sort.Strings(names)
	for _, n := range names {
		b, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil { return err }
		if _, err := p.db.Exec(string(b)); err != nil { return err }
	}
	return nil
}

// InsertCode relies on the unique index on codes.code: ON CONFLICT DO NOTHING
// plus the affected-row count makes the insert-if-absent atomic at the
// storage layer, with no check-then-write window.
func (p *Postgres) InsertCode(ctx context.Context, orderRef, code string) (model.CodeRecord, error) {
	rec := model.CodeRecord{ID: uuid.New().String(), OrderRef: orderRef, Code: code, IssuedAt: time.Now().UTC()}
	res, err := p.db.ExecContext(ctx, `INSERT INTO codes (id, order_ref, code, issued_at) VALUES ($1,$2,$3,$4) ON CONFLICT (code) DO NOTHING`,
		rec.ID, orderRef, code, rec.IssuedAt)
	if err != nil { return model.CodeRecord{}, err }
	n, err := res.RowsAffected()
	if err != nil { return model.CodeRecord{}, err }
	if n == 0 { return model.CodeRecord{}, ErrCodeExists }
	return rec, nil
}

func (p *Postgres) CodeExists(ctx context.Context, code string) (bool, error) {
	var one int
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM codes WHERE code=$1`, code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) { return false, nil }
	if err != nil { return false, err }
	return true, nil
}

func (p *Postgres) GetCodeByOrder(ctx context.Context, orderRef string) (model.CodeRecord, error) {
	var rec model.CodeRecord
	row := p.db.QueryRowContext(ctx, `SELECT id::text, order_ref, code, issued_at FROM codes WHERE order_ref=$1 ORDER BY issued_at LIMIT 1`, orderRef)
	if err := row.Scan(&rec.ID, &rec.OrderRef, &rec.Code, &rec.IssuedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) { return rec, ErrNotFound }
		return rec, err
	}
	return rec, nil
}

func (p *Postgres) ListCodes(ctx context.Context, cursor string, limit int) ([]model.CodeRecord, string, error) {
	if limit <= 0 || limit > 500 { limit = 100 }
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, order_ref, code, issued_at FROM codes WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, order_ref, code, issued_at FROM codes ORDER BY id LIMIT $1`, limit)
	}
	if err != nil { return nil, "", err }
	defer rows.Close()
	out := []model.CodeRecord{}
	var last string
	for rows.Next() {
		var rec model.CodeRecord
		if err := rows.Scan(&rec.ID, &rec.OrderRef, &rec.Code, &rec.IssuedAt); err != nil { return nil, "", err }
		out = append(out, rec)
		last = rec.ID
	}
	var next string
	if len(out) == limit { next = last }
	return out, next, rows.Err()
}

// Annotation reconciliation queue

func (p *Postgres) EnqueueAnnotation(ctx context.Context, orderRef, note string) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO annotation_jobs (id, order_ref, note, status, attempts, next_attempt_at, created_at) VALUES ($1,$2,$3,'pending',0,now(),now())`,
		id, orderRef, note)
	if err != nil { return "", err }
	return id, nil
}

func (p *Postgres) FetchDueAnnotations(ctx context.Context, limit int) ([]model.AnnotationJob, error) {
	if limit <= 0 { limit = 50 }
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, order_ref, note, status, attempts, COALESCE(last_error,''), next_attempt_at, created_at
        FROM annotation_jobs WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil { return nil, err }
	defer rows.Close()
	out := []model.AnnotationJob{}
	for rows.Next() {
		var j model.AnnotationJob
		if err := rows.Scan(&j.ID, &j.OrderRef, &j.Note, &j.Status, &j.Attempts, &j.LastError, &j.NextAttemptAt, &j.CreatedAt); err != nil { return nil, err }
		out = append(out, j)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkAnnotation(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE annotation_jobs SET status='delivered', attempts=attempts+1, last_error=NULL, delivered_at=now() WHERE id=$1`, id)
		return err
	}
	next := time.Now().Add(1 * time.Minute)
	if nextAttemptAt != nil { next = *nextAttemptAt }
	_, err := p.db.ExecContext(ctx, `UPDATE annotation_jobs SET status='retry', attempts=attempts+1, last_error=$2, next_attempt_at=$3 WHERE id=$1`, id, lastError, next)
	return err
}

func (p *Postgres) FailAnnotation(ctx context.Context, id string, lastError string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE annotation_jobs SET status='dead', attempts=attempts+1, last_error=$2 WHERE id=$1`, id, lastError)
	return err
}

func (p *Postgres) ListAnnotations(ctx context.Context, status, cursor string, limit int) ([]model.AnnotationJob, string, error) {
	if limit <= 0 || limit > 500 { limit = 100 }
	q := `SELECT id::text, order_ref, note, status, attempts, COALESCE(last_error,''), next_attempt_at, created_at FROM annotation_jobs`
	args := []any{}
	where := []string{}
	if status != "" { args = append(args, status); where = append(where, `status=$1`) }
	if cursor != "" {
		args = append(args, cursor)
		where = append(where, `id::text > $`+strconv.Itoa(len(args)))
	}
	if len(where) > 0 { q += ` WHERE ` + strings.Join(where, ` AND `) }
	args = append(args, limit)
	q += ` ORDER BY id LIMIT $` + strconv.Itoa(len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil { return nil, "", err }
	defer rows.Close()
	out := []model.AnnotationJob{}
	var last string
	for rows.Next() {
		var j model.AnnotationJob
		if err := rows.Scan(&j.ID, &j.OrderRef, &j.Note, &j.Status, &j.Attempts, &j.LastError, &j.NextAttemptAt, &j.CreatedAt); err != nil { return nil, "", err }
		out = append(out, j)
		last = j.ID
	}
	var next string
	if len(out) == limit { next = last }
	return out, next, rows.Err()
}

func (p *Postgres) RetryAnnotation(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE annotation_jobs SET status='pending', next_attempt_at=now() WHERE id=$1`, id)
	if err != nil { return err }
	if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
	return nil
}
