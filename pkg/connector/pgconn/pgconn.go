// Package pgconn adapts the pgxpool connection-pooling pattern from
// the joaofoltran-pg-migrator reference pipeline into a Stratum
// connector.Source/connector.Destination, using pgx.CopyFrom as the
// destination's fast bulk-load path (§4.6 COPY).
package pgconn

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stratumhq/stratum/pkg/connector"
	"github.com/stratumhq/stratum/pkg/plan"
	"github.com/stratumhq/stratum/pkg/value"
)

type Config struct {
	ConnString string
}

type Conn struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, cfg Config) (*Conn, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("pgconn: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgconn: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgconn: ping: %w", err)
	}
	return &Conn{pool: pool}, nil
}

func (c *Conn) Close() error {
	c.pool.Close()
	return nil
}

func (c *Conn) Describe(ctx context.Context, name string) (connector.TableMetadata, error) {
	rows, err := c.pool.Query(ctx, `SELECT column_name, data_type, is_nullable,
		EXISTS (SELECT 1 FROM information_schema.key_column_usage k
			JOIN information_schema.table_constraints t ON k.constraint_name = t.constraint_name
			WHERE t.constraint_type = 'PRIMARY KEY' AND k.table_name = $1 AND k.column_name = c.column_name)
		FROM information_schema.columns c WHERE table_name = $1 ORDER BY ordinal_position`, name)
	if err != nil {
		return connector.TableMetadata{}, fmt.Errorf("pgconn: describe %s: %w", name, err)
	}
	defer rows.Close()
	meta := connector.TableMetadata{Name: name}
	for rows.Next() {
		var colName, dataType, isNullable string
		var isPK bool
		if err := rows.Scan(&colName, &dataType, &isNullable, &isPK); err != nil {
			return connector.TableMetadata{}, err
		}
		meta.Columns = append(meta.Columns, connector.ColumnMeta{
			Name: colName, Type: dataType, Nullable: isNullable == "YES", PrimaryKey: isPK,
		})
	}
	return meta, rows.Err()
}

func (c *Conn) Read(ctx context.Context, name string, offset plan.OffsetSpec, cursor value.Cursor, limit int) (value.Batch, error) {
	query, args := buildSelect(name, offset, cursor, limit)
	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return value.Batch{}, fmt.Errorf("pgconn: read %s: %w", name, err)
	}
	defer rows.Close()
	fields := rows.FieldDescriptions()
	var out value.Batch
	var lastCursor []value.Value
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return value.Batch{}, err
		}
		row := value.NewRow()
		for i, f := range fields {
			row.Set(name+"."+string(f.Name), scanToValue(vals[i]))
		}
		out.Rows = append(out.Rows, row)
		vs := make([]value.Value, len(offset.Columns))
		for i, col := range offset.Columns {
			vs[i] = row.Get(name + "." + col)
		}
		lastCursor = vs
	}
	if err := rows.Err(); err != nil {
		return value.Batch{}, err
	}
	out.CursorAfter = value.Cursor{Values: lastCursor, Exhausted: len(out.Rows) < limit}
	return out, nil
}

func buildSelect(name string, offset plan.OffsetSpec, cursor value.Cursor, limit int) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT * FROM "%s"`, name)
	var args []any
	argN := 1
	if len(cursor.Values) > 0 {
		cmp := ">"
		if offset.Descending {
			cmp = "<"
		}
		if len(offset.Columns) == 1 {
			fmt.Fprintf(&sb, ` WHERE "%s" %s $%d`, offset.Columns[0], cmp, argN)
			args = append(args, pgArg(cursor.Values[0]))
			argN++
		} else {
			sb.WriteString(" WHERE ")
			var parts []string
			for i := range offset.Columns {
				var clause []string
				for j := 0; j <= i; j++ {
					op := "="
					if j == i {
						op = cmp
					}
					clause = append(clause, fmt.Sprintf(`"%s" %s $%d`, offset.Columns[j], op, argN))
					args = append(args, pgArg(cursor.Values[j]))
					argN++
				}
				parts = append(parts, "("+strings.Join(clause, " AND ")+")")
			}
			sb.WriteString(strings.Join(parts, " OR "))
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
		fmt.Fprintf(&sb, `"%s" %s`, col, order)
	}
	fmt.Fprintf(&sb, " LIMIT %d", limit)
	return sb.String(), args
}

func pgArg(v value.Value) any {
	switch v.Kind {
	case value.KindInt64:
		return v.Int
	case value.KindFloat64:
		return v.Float
	case value.KindDecimal:
		return v.Dec.String()
	case value.KindString:
		return v.Str
	case value.KindBool:
		return v.Bool
	case value.KindTimestamp:
		return v.Time
	default:
		return nil
	}
}

func scanToValue(v any) value.Value {
	if v == nil {
		return value.Null()
	}
	switch t := v.(type) {
	case int64:
		return value.Int64(t)
	case int32:
		return value.Int64(int64(t))
	case float64:
		return value.Float64(t)
	case string:
		return value.String(t)
	case bool:
		return value.Bool(t)
	default:
		return value.String(fmt.Sprintf("%v", t))
	}
}

func (c *Conn) Classify(err error) connector.ErrorKind {
	if err == nil {
		return connector.ErrorUnknown
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unique_violation") || strings.Contains(msg, "23505"):
		return connector.ErrorConstraintViolation
	case strings.Contains(msg, "connection") || strings.Contains(msg, "timeout"):
		return connector.ErrorConnectionFailed
	case strings.Contains(msg, "deadlock_detected") || strings.Contains(msg, "40P01") || strings.Contains(msg, "serialization_failure"):
		return connector.ErrorRetryable
	default:
		return connector.ErrorPermanent
	}
}

func (c *Conn) Capabilities() connector.Capabilities {
	return connector.Capabilities{CopyStreaming: true, Merge: true, UpsertNative: true, Transactions: true}
}

func (c *Conn) EnsureTable(ctx context.Context, name string, cols []connector.ColumnMeta) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, `CREATE TABLE IF NOT EXISTS "%s" (`, name)
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, `"%s" %s`, col.Name, col.Type)
		if !col.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if col.PrimaryKey {
			sb.WriteString(" PRIMARY KEY")
		}
	}
	sb.WriteString(")")
	_, err := c.pool.Exec(ctx, sb.String())
	return err
}

// Copy uses pgx.CopyFrom, the destination's native binary bulk-load
// protocol — this is the fast path the writer prefers when
// Capabilities().CopyStreaming is true.
func (c *Conn) Copy(ctx context.Context, name string, rows []value.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cols := rows[0].Columns
	colNames := make([]string, len(cols))
	for i, c := range cols {
		colNames[i] = strings.TrimPrefix(c, name+".")
	}
	source := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		out := make([]any, len(cols))
		for j, col := range cols {
			out[j] = pgArg(rows[i].Get(col))
		}
		return out, nil
	})
	n, err := c.pool.CopyFrom(ctx, pgx.Identifier{name}, colNames, source)
	return n, err
}

func (c *Conn) Upsert(ctx context.Context, name string, rows []value.Row, keyCols []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cols := rows[0].Columns
	query, args := buildInsert(name, cols, rows)
	var conflictCols []string
	for _, k := range keyCols {
		conflictCols = append(conflictCols, fmt.Sprintf(`"%s"`, strings.TrimPrefix(k, name+".")))
	}
	var updates []string
	for _, c := range cols {
		col := strings.TrimPrefix(c, name+".")
		updates = append(updates, fmt.Sprintf(`"%s" = EXCLUDED."%s"`, col, col))
	}
	query += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflictCols, ", "), strings.Join(updates, ", "))
	tag, err := c.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *Conn) Insert(ctx context.Context, name string, rows []value.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	query, args := buildInsert(name, rows[0].Columns, rows)
	tag, err := c.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func buildInsert(name string, cols []string, rows []value.Row) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `INSERT INTO "%s" (`, name)
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, `"%s"`, strings.TrimPrefix(c, name+"."))
	}
	sb.WriteString(") VALUES ")
	var args []any
	argN := 1
	for ri, row := range rows {
		if ri > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for ci, c := range cols {
			if ci > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", argN)
			args = append(args, pgArg(row.Get(c)))
			argN++
		}
		sb.WriteString(")")
	}
	return sb.String(), args
}

var _ connector.Source      = (*Conn)(nil)
var _ connector.Destination = (*Conn)(nil)
var _ connector.Classifier  = (*Conn)(nil)
