package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// QueryParams narrows a Query. Where and OrderBy are SQL fragments without
// their keywords. A zero Limit returns every remaining row.
type QueryParams struct {
	Where   string
	Args    []any
	Limit   int
	Offset  int
	OrderBy string
}

// DataReader reads back the tables a DataRecorder wrote.
type DataReader interface {
	// MapTable tells the reader which struct a table's rows decode into.
	// Only mapped tables can be queried.
	MapTable(tableName string, sampleEntry any)

	// ListTables returns the mapped tables in name order.
	ListTables() []string

	// Query returns pointers to decoded rows and the number of rows that
	// match the Where clause before paging.
	Query(ctx context.Context, tableName string, params QueryParams) (
		results []any,
		totalCount int,
		err error,
	)

	Close() error
}

type sqliteReader struct {
	*sql.DB

	types map[string]reflect.Type
}

// NewReader opens a trace database file for reading.
func NewReader(dbFilename string) (DataReader, error) {
	db, err := sql.Open("sqlite3", dbFilename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbFilename, err)
	}

	return NewReaderWithDB(db), nil
}

// NewReaderWithDB wraps an open database.
func NewReaderWithDB(db *sql.DB) DataReader {
	return &sqliteReader{DB: db, types: make(map[string]reflect.Type)}
}

func (r *sqliteReader) MapTable(tableName string, sampleEntry any) {
	r.types[tableName] = reflect.TypeOf(sampleEntry)
}

func (r *sqliteReader) ListTables() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) ([]any, int, error) {
	rowType, ok := r.types[tableName]
	if !ok {
		return nil, 0, fmt.Errorf("table %s is not mapped", tableName)
	}

	var total int
	err := r.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+tableName+where(params), params.Args...).
		Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", tableName, err)
	}

	rows, err := r.QueryContext(ctx,
		"SELECT * FROM "+tableName+where(params)+page(params),
		params.Args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query %s: %w", tableName, err)
	}
	defer rows.Close()

	results, err := decodeRows(rows, rowType)
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", tableName, err)
	}

	return results, total, nil
}

func where(p QueryParams) string {
	if p.Where == "" {
		return ""
	}

	return " WHERE " + p.Where
}

func page(p QueryParams) string {
	var b strings.Builder

	if p.OrderBy != "" {
		b.WriteString(" ORDER BY " + p.OrderBy)
	}

	switch {
	case p.Limit > 0:
		fmt.Fprintf(&b, " LIMIT %d", p.Limit)
	case p.Offset > 0:
		b.WriteString(" LIMIT -1")
	}

	if p.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", p.Offset)
	}

	return b.String()
}

// decodeRows fills one new rowType value per row, matching columns to
// fields by name. Columns with no field are discarded.
func decodeRows(rows *sql.Rows, rowType reflect.Type) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	fieldOf := make([]int, len(columns))
	for i, col := range columns {
		fieldOf[i] = -1
		if f, ok := rowType.FieldByName(col); ok && len(f.Index) == 1 {
			fieldOf[i] = f.Index[0]
		}
	}

	var results []any
	for rows.Next() {
		ptr := reflect.New(rowType)
		targets := make([]any, len(columns))

		for i, idx := range fieldOf {
			if idx < 0 {
				targets[i] = new(any)
				continue
			}
			targets[i] = ptr.Elem().Field(idx).Addr().Interface()
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}

		results = append(results, ptr.Interface())
	}

	return results, rows.Err()
}
