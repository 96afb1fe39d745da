// Package mysqlconn adapts the teacher's dbconn DSN plumbing and
// retryable-error classification (pkg/dbconn/conn.go,
// pkg/dbconn/dbconn.go in block-spirit) into a Stratum
// connector.Source/connector.Destination implementation. It configures
// no TLS and retries nothing itself; Config.MaxRetries is not read.
package mysqlconn

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stratumhq/stratum/pkg/connector"
	"github.com/stratumhq/stratum/pkg/plan"
	"github.com/stratumhq/stratum/pkg/value"
)

// Config mirrors the teacher's DBConfig defaults
// (LockWaitTimeout=30, InnodbLockWaitTimeout=30, MaxRetries=5).
type Config struct {
	DSN                   string
	LockWaitTimeoutSecs   int
	InnodbLockWaitSecs    int
	MaxRetries            int
}

func NewConfig(dsn string) Config {
	return Config{
		DSN:                 dsn,
		LockWaitTimeoutSecs: 30,
		InnodbLockWaitSecs:  30,
		MaxRetries:          5,
	}
}

// Conn is a connector.Source + connector.Destination backed by MySQL.
type Conn struct {
	db  *sql.DB
	cfg Config
}

func Open(ctx context.Context, cfg Config) (*Conn, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysqlconn: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysqlconn: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("SET SESSION lock_wait_timeout=%d, innodb_lock_wait_timeout=%d",
		cfg.LockWaitTimeoutSecs, cfg.InnodbLockWaitSecs)); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysqlconn: standardize session: %w", err)
	}
	return &Conn{db: db, cfg: cfg}, nil
}

func (c *Conn) Close() error { return c.db.Close() }

func (c *Conn) Describe(ctx context.Context, name string) (connector.TableMetadata, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_KEY FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ORDINAL_POSITION", name)
	if err != nil {
		return connector.TableMetadata{}, fmt.Errorf("mysqlconn: describe %s: %w", name, err)
	}
	defer rows.Close()
	meta := connector.TableMetadata{Name: name}
	for rows.Next() {
		var colName, colType, isNullable, colKey string
		if err := rows.Scan(&colName, &colType, &isNullable, &colKey); err != nil {
			return connector.TableMetadata{}, err
		}
		meta.Columns = append(meta.Columns, connector.ColumnMeta{
			Name:       colName,
			Type:       colType,
			Nullable:   isNullable == "YES",
			PrimaryKey: colKey == "PRI",
		})
	}
	return meta, rows.Err()
}

// Read issues the keyset-pagination query built by buildSelect and
// decodes the result into a value.Batch.
func (c *Conn) Read(ctx context.Context, name string, offset plan.OffsetSpec, cursor value.Cursor, limit int) (value.Batch, error) {
	query, args := buildSelect(name, offset, cursor, limit)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return value.Batch{}, fmt.Errorf("mysqlconn: read %s: %w", name, err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return value.Batch{}, err
	}
	var out value.Batch
	var lastCursor []value.Value
	for rows.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return value.Batch{}, err
		}
		row := value.NewRow()
		for i, col := range cols {
			row.Set(name+"."+col, scanToValue(dest[i]))
		}
		out.Rows = append(out.Rows, row)
		lastCursor = cursorValuesFor(row, name, offset)
	}
	if err := rows.Err(); err != nil {
		return value.Batch{}, err
	}
	out.CursorAfter = value.Cursor{Values: lastCursor, Exhausted: len(out.Rows) < limit}
	return out, nil
}

func cursorValuesFor(row value.Row, table string, offset plan.OffsetSpec) []value.Value {
	vals := make([]value.Value, len(offset.Columns))
	for i, col := range offset.Columns {
		vals[i] = row.Get(table + "." + col)
	}
	return vals
}

func buildSelect(name string, offset plan.OffsetSpec, cursor value.Cursor, limit int) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT * FROM `%s`", name)
	var args []any
	if len(cursor.Values) > 0 {
		sb.WriteString(" WHERE ")
		cmp := ">"
		if offset.Descending {
			cmp = "<"
		}
		// single-column tuple comparison; composite keys compare
		// lexicographically via a chain of ORs, same shape the
		// teacher's composite chunker produces.
		if len(offset.Columns) == 1 {
			fmt.Fprintf(&sb, "`%s` %s ?", offset.Columns[0], cmp)
			args = append(args, valueArg(cursor.Values[0]))
		} else {
			sb.WriteString(compositeTuplePredicate(offset.Columns, cmp))
			for i := range offset.Columns {
				for j := 0; j <= i; j++ {
					args = append(args, valueArg(cursor.Values[j]))
				}
			}
		}
	}
	order := "ASC"
	if offset.Descending {
		order = "DESC"
	}
	sb.WriteString(" ORDER BY ")
	for i, col := range offset.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "`%s` %s", col, order)
	}
	fmt.Fprintf(&sb, " LIMIT %d", limit)
	return sb.String(), args
}

// compositeTuplePredicate builds the standard keyset-pagination OR
// chain for N tiebreaker columns: (c1 > v1) OR (c1 = v1 AND c2 > v2)
// OR ...
func compositeTuplePredicate(cols []string, cmp string) string {
	var parts []string
	for i := range cols {
		var clause []string
		for j := 0; j < i; j++ {
			clause = append(clause, fmt.Sprintf("`%s` = ?", cols[j]))
		}
		clause = append(clause, fmt.Sprintf("`%s` %s ?", cols[i], cmp))
		parts = append(parts, "("+strings.Join(clause, " AND ")+")")
	}
	return strings.Join(parts, " OR ")
}

func scanToValue(v any) value.Value {
	if v == nil {
		return value.Null()
	}
	switch t := v.(type) {
	case int64:
		return value.Int64(t)
	case float64:
		return value.Float64(t)
	case []byte:
		return value.String(string(t))
	case string:
		return value.String(t)
	case bool:
		return value.Bool(t)
	default:
		return value.String(fmt.Sprintf("%v", t))
	}
}

// Classify implements connector.Classifier using the same MySQL
// error-code table as the teacher's dbconn.canRetryError.
func (c *Conn) Classify(err error) connector.ErrorKind {
	if err == nil {
		return connector.ErrorUnknown
	}
	msg := err.Error()
	for _, code := range []string{"1205", "1213", "2003", "2013", "1290", "1836"} {
		if strings.Contains(msg, code) {
			return connector.ErrorRetryable
		}
	}
	if strings.Contains(msg, "1062") {
		return connector.ErrorConstraintViolation
	}
	return connector.ErrorPermanent
}

func (c *Conn) Capabilities() connector.Capabilities {
	return connector.Capabilities{CopyStreaming: false, Merge: false, UpsertNative: true, Transactions: true}
}

func (c *Conn) EnsureTable(ctx context.Context, name string, cols []connector.ColumnMeta) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS `%s` (", name)
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "`%s` %s", col.Name, col.Type)
		if !col.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if col.PrimaryKey {
			sb.WriteString(" PRIMARY KEY")
		}
	}
	sb.WriteString(")")
	_, err := c.db.ExecContext(ctx, sb.String())
	return err
}

func (c *Conn) Copy(ctx context.Context, name string, rows []value.Row) (int64, error) {
	return 0, fmt.Errorf("mysqlconn: COPY streaming is not a MySQL capability")
}

func (c *Conn) Upsert(ctx context.Context, name string, rows []value.Row, keyCols []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cols := rows[0].Columns
	query, args := buildUpsert(name, cols, rows)
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (c *Conn) Insert(ctx context.Context, name string, rows []value.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cols := rows[0].Columns
	query, args := buildInsert(name, cols, rows)
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func buildInsert(name string, cols []string, rows []value.Row) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO `%s` (", name)
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "`%s`", strings.TrimPrefix(c, name+"."))
	}
	sb.WriteString(") VALUES ")
	var args []any
	for ri, row := range rows {
		if ri > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for ci, c := range cols {
			if ci > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			args = append(args, valueArg(row.Get(c)))
		}
		sb.WriteString(")")
	}
	return sb.String(), args
}

func buildUpsert(name string, cols []string, rows []value.Row) (string, []any) {
	query, args := buildInsert(name, cols, rows)
	var updates []string
	for _, c := range cols {
		col := strings.TrimPrefix(c, name+".")
		updates = append(updates, fmt.Sprintf("`%s` = VALUES(`%s`)", col, col))
	}
	query += " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
	return query, args
}

func valueArg(v value.Value) any {
	switch v.Kind {
	case value.KindNull:
		return nil
	case value.KindBool:
		return v.Bool
	case value.KindInt64:
		return v.Int
	case value.KindFloat64:
		return v.Float
	case value.KindDecimal:
		return v.Dec.String()
	case value.KindString:
		return v.Str
	case value.KindBytes:
		return v.Bytes
	case value.KindTimestamp:
		return v.Time
	default:
		return nil
	}
}

var _ connector.Source      = (*Conn)(nil)
var _ connector.Destination = (*Conn)(nil)
var _ connector.Classifier  = (*Conn)(nil)
