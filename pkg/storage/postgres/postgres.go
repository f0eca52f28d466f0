// Package postgres implements the remote storage backend over a hosted
// PostgreSQL instance.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-hub/pkg/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// collectionColumns maps each collection to its table columns. Insert and
// update statements are built from the intersection of the incoming record's
// keys and this list, so unknown record fields never reach SQL.
var collectionColumns = map[string][]string{
	storage.CollectionSettings: {
		"id", "google_auth_enabled", "google_client_id", "google_client_secret",
		"password_auth_enabled", "org_name", "org_logo", "primary_color", "public_viewing",
	},
	storage.CollectionUsers: {
		"id", "name", "email", "user_role", "email_notifications",
		"unread_messages", "auth_provider",
	},
	storage.CollectionEvents: {
		"id", "name", "date", "location", "description",
		"landing_page_enabled", "landing_page_title", "landing_page_description",
		"landing_page_image", "landing_page_theme", "custom_url", "recurrence",
		"roles", "version",
	},
	storage.CollectionMessages: {
		"id", "sender_id", "recipient_id", "subject", "content", "timestamp", "read",
	},
}

// jsonColumns holds the jsonb columns per collection; their values are
// marshalled on the way in and unmarshalled on the way out.
var jsonColumns = map[string]map[string]bool{
	storage.CollectionEvents: {"roles": true},
}

// Backend executes CRUD against PostgreSQL through a pgx connection pool.
type Backend struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a postgres backend, verifies connectivity and applies pending
// migrations.
func New(ctx context.Context, connString string, logger *zap.Logger) (*Backend, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create connection pool: %v", storage.ErrUnavailable, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", storage.ErrUnavailable, err)
	}

	b := &Backend{pool: pool, logger: logger}
	if err := b.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("using postgres backend")
	return b, nil
}

// runMigrations executes all pending SQL migration files in order, tracking
// applied files in a schema_migrations table.
func (b *Backend) runMigrations(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	rows, err := b.pool.Query(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	applied := make(map[string]bool)
	for rows.Next() {
		var filename string
		if err := rows.Scan(&filename); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration filename: %w", err)
		}
		applied[filename] = true
	}
	rows.Close()

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		if applied[filename] {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, "migrations/"+filename)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		tx, err := b.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", filename, err)
		}

		if _, err := tx.Exec(ctx, string(content)); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filename); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", filename, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", filename, err)
		}

		b.logger.Info("applied migration", zap.String("file", filename))
	}

	return nil
}

// translate maps postgres error codes onto the storage taxonomy. Unknown
// errors pass through wrapped but untranslated.
func translate(op, collection string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s %s: %s", storage.ErrConflict, op, collection, pgErr.Message)
		case "23503":
			return fmt.Errorf("%w: %s %s: %s", storage.ErrReferential, op, collection, pgErr.Message)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", storage.ErrNotFound, op, collection)
	}
	return fmt.Errorf("failed to %s %s: %w", op, collection, err)
}

func columnSet(collection string) (map[string]bool, error) {
	cols, ok := collectionColumns[collection]
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", storage.ErrValidation, collection)
	}
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c] = true
	}
	return set, nil
}

// encodeValue prepares a record value for a query argument, marshalling
// jsonb columns.
func encodeValue(collection, column string, v any) (any, error) {
	if jsonColumns[collection][column] {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s.%s: %w", collection, column, err)
		}
		return data, nil
	}
	return v, nil
}

// recordFromRow converts the current row into a storage.Record, decoding
// jsonb columns back into nested values.
func recordFromRow(collection string, rows pgx.Rows) (storage.Record, error) {
	values, err := rows.Values()
	if err != nil {
		return nil, fmt.Errorf("failed to read row values: %w", err)
	}
	valid, err := columnSet(collection)
	if err != nil {
		return nil, err
	}
	rec := storage.Record{}
	for i, fd := range rows.FieldDescriptions() {
		name := fd.Name
		if !valid[name] {
			// Bookkeeping columns such as "seq" stay out of records.
			continue
		}
		v := values[i]
		if jsonColumns[collection][name] {
			var raw []byte
			switch jv := v.(type) {
			case []byte:
				raw = jv
			case string:
				raw = []byte(jv)
			case nil:
				rec[name] = nil
				continue
			default:
				// pgx already decoded the jsonb value.
				rec[name] = jv
				continue
			}
			var decoded any
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return nil, fmt.Errorf("failed to decode %s.%s: %w", collection, name, err)
			}
			rec[name] = decoded
			continue
		}
		switch nv := v.(type) {
		case int32:
			rec[name] = int(nv)
		default:
			rec[name] = v
		}
	}
	return rec, nil
}

func collectOne(collection string, rows pgx.Rows) (storage.Record, error) {
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}
	return recordFromRow(collection, rows)
}

// listQuery builds the SELECT for a collection. Rows come back ordered by
// the "seq" serial so list order tracks insertion and survives updates.
func listQuery(collection string, filter storage.Filter) (string, []any) {
	query := fmt.Sprintf(`SELECT * FROM %q`, collection)
	var args []any
	if len(filter) > 0 {
		keys := make([]string, 0, len(filter))
		for k := range filter {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		conds := make([]string, 0, len(keys))
		for _, k := range keys {
			args = append(args, filter[k])
			conds = append(conds, fmt.Sprintf(`%q = $%d`, k, len(args)))
		}
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY "seq"`
	return query, args
}

// List returns the records matching filter, oldest insert first.
func (b *Backend) List(ctx context.Context, collection string, filter storage.Filter) ([]storage.Record, error) {
	if _, err := columnSet(collection); err != nil {
		return nil, err
	}

	query, args := listQuery(collection, filter)
	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate("list", collection, err)
	}
	defer rows.Close()

	recs := []storage.Record{}
	for rows.Next() {
		rec, err := recordFromRow(collection, rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list", collection, err)
	}
	return recs, nil
}

// Get returns the record with the given id or storage.ErrNotFound.
func (b *Backend) Get(ctx context.Context, collection, id string) (storage.Record, error) {
	if _, err := columnSet(collection); err != nil {
		return nil, err
	}

	rows, err := b.pool.Query(ctx, fmt.Sprintf(`SELECT * FROM %q WHERE "id" = $1`, collection), id)
	if err != nil {
		return nil, translate("get", collection, err)
	}
	rec, err := collectOne(collection, rows)
	if err != nil {
		return nil, translate("get", collection, err)
	}
	return rec, nil
}

// Insert writes a new record and returns it as stored.
func (b *Backend) Insert(ctx context.Context, collection string, rec storage.Record) (storage.Record, error) {
	valid, err := columnSet(collection)
	if err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(rec))
	for k := range rec {
		if valid[k] {
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: empty record for %s", storage.ErrValidation, collection)
	}

	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%q", c)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i], err = encodeValue(collection, c, rec[c])
		if err != nil {
			return nil, err
		}
	}

	query := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s) RETURNING *`,
		collection, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate("insert", collection, err)
	}
	stored, err := collectOne(collection, rows)
	if err != nil {
		return nil, translate("insert", collection, err)
	}
	return stored, nil
}

// Update applies patch to the record with the given id. Tables with a
// version column have the stamp bumped by every accepted update, so
// conditional writers racing this one see a conflict.
func (b *Backend) Update(ctx context.Context, collection, id string, patch storage.Record) (storage.Record, error) {
	return b.update(ctx, collection, id, patch, nil)
}

// UpdateVersioned applies patch only while the stored version stamp equals
// expected, incrementing the stamp in the same statement. The version guard
// makes check-then-act sign-up safe: a concurrent accepted write moves the
// stamp and this write reports storage.ErrConflict instead of clobbering.
func (b *Backend) UpdateVersioned(ctx context.Context, collection, id string, patch storage.Record, expected int64) (storage.Record, error) {
	return b.update(ctx, collection, id, patch, &expected)
}

func (b *Backend) update(ctx context.Context, collection, id string, patch storage.Record, expected *int64) (storage.Record, error) {
	valid, err := columnSet(collection)
	if err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(patch))
	for k := range patch {
		if valid[k] && k != "id" && k != "version" {
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	if len(cols) == 0 && expected == nil {
		return b.Get(ctx, collection, id)
	}

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for _, c := range cols {
		v, err := encodeValue(collection, c, patch[c])
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(`%q = $%d`, c, len(args)))
	}
	if valid["version"] {
		sets = append(sets, `"version" = "version" + 1`)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE %q SET %s WHERE "id" = $%d`,
		collection, strings.Join(sets, ", "), len(args))
	if expected != nil {
		args = append(args, *expected)
		query += fmt.Sprintf(` AND "version" = $%d`, len(args))
	}
	query += ` RETURNING *`

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate("update", collection, err)
	}
	stored, err := collectOne(collection, rows)
	if err == nil {
		return stored, nil
	}
	if expected != nil && errors.Is(err, pgx.ErrNoRows) {
		// Distinguish "gone" from "stamp moved".
		if _, getErr := b.Get(ctx, collection, id); getErr == nil {
			return nil, fmt.Errorf("%w: %s %q version changed from %d",
				storage.ErrConflict, collection, id, *expected)
		}
	}
	return nil, translate("update", collection, err)
}

// Delete removes the record with the given id.
func (b *Backend) Delete(ctx context.Context, collection, id string) error {
	if _, err := columnSet(collection); err != nil {
		return err
	}

	tag, err := b.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %q WHERE "id" = $1`, collection), id)
	if err != nil {
		return translate("delete", collection, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %q", storage.ErrNotFound, collection, id)
	}
	return nil
}

// Close drains the connection pool.
func (b *Backend) Close() {
	b.pool.Close()
}
