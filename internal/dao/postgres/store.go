package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	dbutil "github.com/flarebyte/datamove/internal/dao/dbutil"
	"github.com/flarebyte/datamove/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbtx is the part of pgxpool.Pool and pgx.Tx the store needs.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Column describes a column in information_schema.columns.
type Column struct {
	ColumnName string
	DataType   string
	UDTSchema  string
	UDTName    string
	IsNullable bool
	// Generated columns are computed by the database and never written.
	Generated bool
	// Identity columns are GENERATED ALWAYS AS IDENTITY; explicit values need OVERRIDING SYSTEM VALUE.
	Identity bool
}

// Store runs the migration contract against one PostgreSQL schema.
type Store struct {
	querier
	pool     *pgxpool.Pool
	identity string
}

var _ store.Store = (*Store)(nil)

// NewStore wraps pool. Tables are resolved inside schema.
func NewStore(pool *pgxpool.Pool, schema string) *Store {
	if schema == "" {
		schema = "public"
	}
	cc := pool.Config().ConnConfig
	return &Store{
		querier:  querier{db: pool, schema: schema, cols: &columnCache{m: map[string][]Column{}}},
		pool:     pool,
		identity: fmt.Sprintf("postgres://%s:%d/%s/%s", cc.Host, cc.Port, cc.Database, schema),
	}
}

func (s *Store) Identity() string { return s.identity }

// InTx runs fn in one read-write transaction. Deferrable constraints are
// checked at commit.
func (s *Store) InTx(ctx context.Context, fn func(q store.Querier) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return dbutil.ErrWrap("store.begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `SET CONSTRAINTS ALL DEFERRED`); err != nil {
		return dbutil.ErrWrap("store.defer_constraints", err)
	}
	if err := fn(s.with(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return dbutil.ErrWrap("store.commit", err)
	}
	return nil
}

// ReadTx runs fn against a repeatable-read snapshot so a multi-table export
// is consistent.
func (s *Store) ReadTx(ctx context.Context, fn func(q store.Querier) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return dbutil.ErrWrap("store.begin_read", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(s.with(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) with(tx pgx.Tx) querier {
	return querier{db: tx, schema: s.schema, cols: s.cols}
}

type columnCache struct {
	mu sync.Mutex
	m  map[string][]Column
}

type querier struct {
	db     dbtx
	schema string
	cols   *columnCache
}

func (q querier) ident(table string) string {
	return pgx.Identifier{q.schema, table}.Sanitize()
}

func (q querier) columns(ctx context.Context, table string) ([]Column, error) {
	q.cols.mu.Lock()
	cols, ok := q.cols.m[table]
	q.cols.mu.Unlock()
	if ok {
		return cols, nil
	}
	cols, err := fetchTableColumns(ctx, q.db, q.schema, table)
	if err != nil {
		return nil, err
	}
	q.cols.mu.Lock()
	q.cols.m[table] = cols
	q.cols.mu.Unlock()
	return cols, nil
}

func fetchTableColumns(ctx context.Context, db dbtx, schema, table string) ([]Column, error) {
	rows, err := db.Query(ctx, `SELECT column_name, data_type, udt_schema, udt_name, is_nullable,
          COALESCE(is_generated = 'ALWAYS', false),
          COALESCE(identity_generation = 'ALWAYS', false)
          FROM information_schema.columns
          WHERE table_schema=$1 AND table_name=$2
          ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, dbutil.ErrWrap("store.columns", err, dbutil.ParamSummary("table", table))
	}
	defer rows.Close()
	var out []Column
	for rows.Next() {
		var c Column
		var nullable string
		if err := rows.Scan(&c.ColumnName, &c.DataType, &c.UDTSchema, &c.UDTName, &nullable, &c.Generated, &c.Identity); err != nil {
			return nil, dbutil.ErrWrap("store.columns.scan", err, dbutil.ParamSummary("table", table))
		}
		c.IsNullable = strings.EqualFold(nullable, "YES")
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, dbutil.ErrWrap("store.columns", err, dbutil.ParamSummary("table", table))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("table %s.%s not found", schema, table)
	}
	return out, nil
}

func (q querier) Count(ctx context.Context, table string) (int, error) {
	var n int
	if err := q.db.QueryRow(ctx, `SELECT count(*) FROM `+q.ident(table)).Scan(&n); err != nil {
		return 0, dbutil.ErrWrap("store.count", err, dbutil.ParamSummary("table", table))
	}
	return n, nil
}

// CountExisting ships the incoming keys as one JSON array and matches them
// as text, so composite and non-integer keys need no per-type handling.
func (q querier) CountExisting(ctx context.Context, table string, key []string, rows []store.Record) (int, error) {
	if len(rows) == 0 || len(key) == 0 {
		return 0, nil
	}
	keys := make([]map[string]any, len(rows))
	for i, r := range rows {
		k := make(map[string]any, len(key))
		for _, c := range key {
			k[c] = r[c]
		}
		keys[i] = k
	}
	b, err := json.Marshal(keys)
	if err != nil {
		return 0, dbutil.ErrWrap("store.count_existing.encode", err, dbutil.ParamSummary("table", table))
	}
	conds := make([]string, len(key))
	for i, c := range key {
		conds[i] = fmt.Sprintf("t.%s::text = e->>%s", pgx.Identifier{c}.Sanitize(), quoteLiteral(c))
	}
	sql := fmt.Sprintf(`SELECT count(*) FROM jsonb_array_elements($1::jsonb) e
		WHERE EXISTS (SELECT 1 FROM %s t WHERE %s)`, q.ident(table), strings.Join(conds, " AND "))
	var n int
	if err := q.db.QueryRow(ctx, sql, string(b)).Scan(&n); err != nil {
		return 0, dbutil.ErrWrap("store.count_existing", err, dbutil.ParamSummary("table", table), dbutil.ParamSummary("rows", rows))
	}
	return n, nil
}

// Select renders each row as one jsonb object, relations included, and
// decodes numbers as json.Number so large keys survive.
func (q querier) Select(ctx context.Context, sq store.SelectQuery) ([]store.Record, error) {
	sql := q.selectSQL(sq)
	rows, err := q.db.Query(ctx, sql)
	if err != nil {
		return nil, dbutil.ErrWrap("store.select", err, dbutil.ParamSummary("table", sq.Table))
	}
	defer rows.Close()
	out := []store.Record{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, dbutil.ErrWrap("store.select.scan", err, dbutil.ParamSummary("table", sq.Table))
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		rec := store.Record{}
		if err := dec.Decode(&rec); err != nil {
			return nil, dbutil.ErrWrap("store.select.decode", err, dbutil.ParamSummary("table", sq.Table))
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dbutil.ErrWrap("store.select", err, dbutil.ParamSummary("table", sq.Table))
	}
	return out, nil
}

func jsonObject(alias string, cols []string) string {
	if len(cols) == 0 {
		return "to_jsonb(" + alias + ")"
	}
	pairs := make([]string, 0, len(cols))
	for _, c := range cols {
		pairs = append(pairs, quoteLiteral(c)+", "+alias+"."+pgx.Identifier{c}.Sanitize())
	}
	return "jsonb_build_object(" + strings.Join(pairs, ", ") + ")"
}

func (q querier) selectSQL(sq store.SelectQuery) string {
	expr := jsonObject("t", sq.Columns)
	if len(sq.Relations) > 0 {
		parts := make([]string, 0, len(sq.Relations))
		for _, r := range sq.Relations {
			local := "t." + pgx.Identifier{r.LocalKey}.Sanitize()
			remote := "r." + pgx.Identifier{r.RemoteKey}.Sanitize()
			var sub string
			if r.Many() {
				sub = fmt.Sprintf(`COALESCE((SELECT jsonb_agg(%s ORDER BY %s) FROM %s j JOIN %s r ON %s = j.%s WHERE j.%s = %s), '[]'::jsonb)`,
					jsonObject("r", r.Columns), remote, q.ident(r.Through), q.ident(r.Table),
					remote, pgx.Identifier{r.ThroughRemote}.Sanitize(), pgx.Identifier{r.ThroughLocal}.Sanitize(), local)
			} else {
				sub = fmt.Sprintf(`(SELECT %s FROM %s r WHERE %s = %s)`, jsonObject("r", r.Columns), q.ident(r.Table), remote, local)
			}
			parts = append(parts, quoteLiteral(r.Field)+", "+sub)
		}
		expr += " || jsonb_build_object(" + strings.Join(parts, ", ") + ")"
	}
	sql := "SELECT " + expr + " FROM " + q.ident(sq.Table) + " AS t"
	if len(sq.OrderBy) > 0 {
		cols := make([]string, len(sq.OrderBy))
		for i, c := range sq.OrderBy {
			cols[i] = "t." + pgx.Identifier{c}.Sanitize()
		}
		sql += " ORDER BY " + strings.Join(cols, ", ")
	}
	return sql
}

// DeleteAll removes every row; foreign keys from other tables still apply.
func (q querier) DeleteAll(ctx context.Context, table string) (int, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM `+q.ident(table))
	if err != nil {
		return 0, dbutil.ErrWrap("store.delete_all", err, dbutil.ParamSummary("table", table))
	}
	return int(tag.RowsAffected()), nil
}

// Insert queues one INSERT per row in a single batch. Values travel as text
// and are cast to the live column type, so JSON-decoded snapshots insert
// without per-type Go conversions. Keys that are not live columns are ignored.
func (q querier) Insert(ctx context.Context, table string, rows []store.Record, opt store.InsertOptions) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if opt.OnConflict != store.ConflictFail && len(opt.Key) == 0 {
		return 0, errors.New("conflict handling requires a key")
	}
	cols, err := q.columns(ctx, table)
	if err != nil {
		return 0, err
	}
	batch := &pgx.Batch{}
	for i, rec := range rows {
		sql, args, err := q.insertSQL(table, cols, rec, opt)
		if err != nil {
			return 0, dbutil.ErrWrap("store.insert.encode", err, dbutil.ParamSummary("table", table), dbutil.ParamSummary("row", i))
		}
		batch.Queue(sql, args...)
	}
	br := q.db.SendBatch(ctx, batch)
	written := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, dbutil.ErrWrap("store.insert", err, dbutil.ParamSummary("table", table), dbutil.ParamSummary("row", i))
		}
		written += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, dbutil.ErrWrap("store.insert", err, dbutil.ParamSummary("table", table))
	}
	return written, nil
}

// insertSQL renders the INSERT for one record over the live columns it carries.
func (q querier) insertSQL(table string, cols []Column, rec store.Record, opt store.InsertOptions) (string, []any, error) {
	var names, placeholders []string
	var args []any
	overriding := false
	for _, c := range cols {
		v, ok := rec[c.ColumnName]
		if !ok || c.Generated {
			continue
		}
		arg, err := textValue(c, v)
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", c.ColumnName, err)
		}
		args = append(args, arg)
		names = append(names, pgx.Identifier{c.ColumnName}.Sanitize())
		placeholders = append(placeholders, castPlaceholder(c, len(args)))
		overriding = overriding || c.Identity
	}
	sql := "INSERT INTO " + q.ident(table)
	if len(names) == 0 {
		sql += " DEFAULT VALUES"
	} else {
		sql += " (" + strings.Join(names, ", ") + ")"
		if overriding {
			sql += " OVERRIDING SYSTEM VALUE"
		}
		sql += " VALUES (" + strings.Join(placeholders, ", ") + ")"
	}
	if opt.OnConflict == store.ConflictFail {
		return sql, args, nil
	}
	keys := make([]string, len(opt.Key))
	isKey := make(map[string]bool, len(opt.Key))
	for i, k := range opt.Key {
		keys[i] = pgx.Identifier{k}.Sanitize()
		isKey[keys[i]] = true
	}
	sql += " ON CONFLICT (" + strings.Join(keys, ", ") + ")"
	var sets []string
	if opt.OnConflict == store.ConflictUpdate {
		for _, n := range names {
			if !isKey[n] {
				sets = append(sets, n+" = EXCLUDED."+n)
			}
		}
	}
	if len(sets) == 0 {
		return sql + " DO NOTHING", args, nil
	}
	return sql + " DO UPDATE SET " + strings.Join(sets, ", "), args, nil
}

func castPlaceholder(c Column, n int) string {
	typ := pgx.Identifier{c.UDTSchema, c.UDTName}.Sanitize()
	if c.DataType == "ARRAY" {
		// element rows come from a JSON array; the array type itself is udt_name
		return fmt.Sprintf("CASE WHEN $%d::jsonb IS NULL THEN NULL ELSE ARRAY(SELECT jsonb_array_elements_text($%d::jsonb)) END::%s", n, n, typ)
	}
	return fmt.Sprintf("CAST($%d::text AS %s)", n, typ)
}

// textValue renders v in the text form PostgreSQL accepts for column c.
func textValue(c Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if c.DataType == "ARRAY" || c.DataType == "json" || c.DataType == "jsonb" {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case []byte:
		return string(x), nil
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return fmt.Sprint(x), nil
	}
}

func (q querier) MaxValue(ctx context.Context, table, column string) (int64, bool, error) {
	var max *int64
	sql := fmt.Sprintf(`SELECT max(%s)::bigint FROM %s`, pgx.Identifier{column}.Sanitize(), q.ident(table))
	if err := q.db.QueryRow(ctx, sql).Scan(&max); err != nil {
		return 0, false, dbutil.ErrWrap("store.max", err, dbutil.ParamSummary("table", table), dbutil.ParamSummary("column", column))
	}
	if max == nil {
		return 0, false, nil
	}
	return *max, true, nil
}

func (q querier) sequenceName(ctx context.Context, table, column string) (string, error) {
	var name *string
	if err := q.db.QueryRow(ctx, `SELECT pg_get_serial_sequence($1, $2)`, q.ident(table), column).Scan(&name); err != nil {
		return "", dbutil.ErrWrap("store.sequence_name", err, dbutil.ParamSummary("table", table), dbutil.ParamSummary("column", column))
	}
	if name == nil {
		return "", fmt.Errorf("%w: %s.%s", store.ErrNoSequence, table, column)
	}
	return *name, nil
}

func (q querier) Sequence(ctx context.Context, table, column string) (store.SequenceState, error) {
	name, err := q.sequenceName(ctx, table, column)
	if err != nil {
		return store.SequenceState{}, err
	}
	var st store.SequenceState
	// name comes back from the catalog already quoted where needed
	if err := q.db.QueryRow(ctx, `SELECT last_value, is_called FROM `+name).Scan(&st.Last, &st.Called); err != nil {
		return st, dbutil.ErrWrap("store.sequence", err, dbutil.ParamSummary("table", table))
	}
	return st, nil
}

func (q querier) SetSequence(ctx context.Context, table, column string, value int64) error {
	name, err := q.sequenceName(ctx, table, column)
	if err != nil {
		return err
	}
	if _, err := q.db.Exec(ctx, `SELECT setval($1::regclass, $2, true)`, name, value); err != nil {
		return dbutil.ErrWrap("store.setval", err, dbutil.ParamSummary("table", table), dbutil.ParamSummary("value", value))
	}
	return nil
}

func quoteIdent(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}
