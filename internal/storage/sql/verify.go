package sql

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTableDoesNotExist 文件记录表不存在
	ErrTableDoesNotExist = errors.New("stored file table does not exist")
	// ErrMissingColumn 缺少必需的列
	ErrMissingColumn = errors.New("stored file table is missing a required column")
)

// 列类型分类
const (
	KindInteger  = "integer"
	KindString   = "string"
	KindDatetime = "datetime"
	KindBoolean  = "boolean"
	KindDecimal  = "decimal"
)

// InvalidColumnError 列类型与预期不符
type InvalidColumnError struct {
	Table    string
	Column   string
	Expected string
	Actual   string
}

func (e *InvalidColumnError) Error() string {
	return fmt.Sprintf("column %s.%s should be %s but is %s", e.Table, e.Column, e.Expected, e.Actual)
}

type requiredColumn struct {
	name string
	kind string
}

// requiredColumns 文件记录表必需的列
var requiredColumns = []requiredColumn{
	{"parent_id", KindInteger},
	{"parent_type", KindString},
	{"name", KindString},
	{"key", KindString},
	{"extension", KindString},
	{"original_filename", KindString},
	{"created_at", KindDatetime},
	{"updated_at", KindDatetime},
}

// Verify 检查文件记录表是否存在且包含所需的列
func (s *Store) Verify() error {
	migrator := s.gormDB.Migrator()
	if !migrator.HasTable(s.table) {
		return fmt.Errorf("%w: %s", ErrTableDoesNotExist, s.table)
	}

	columnTypes, err := migrator.ColumnTypes(s.table)
	if err != nil {
		return fmt.Errorf("failed to read columns of %s: %w", s.table, err)
	}

	columns := make(map[string]string, len(columnTypes))
	for _, ct := range columnTypes {
		columns[strings.ToLower(ct.Name())] = ct.DatabaseTypeName()
	}
	return checkColumns(s.table, columns)
}

// checkColumns 按列名 -> 数据库类型名检查必需列
func checkColumns(table string, columns map[string]string) error {
	for _, required := range requiredColumns {
		dbType, ok := columns[required.name]
		if !ok {
			return fmt.Errorf("%w: %s.%s", ErrMissingColumn, table, required.name)
		}
		if kind := columnKind(dbType); kind != required.kind {
			return &InvalidColumnError{
				Table:    table,
				Column:   required.name,
				Expected: required.kind,
				Actual:   kind,
			}
		}
	}
	return nil
}

// columnKind 将 MySQL / PostgreSQL 的类型名归类
func columnKind(dbType string) string {
	t := strings.ToLower(strings.TrimSpace(dbType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimSpace(strings.TrimSuffix(t, " unsigned"))

	switch t {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint",
		"int2", "int4", "int8", "serial", "bigserial", "smallserial", "serial4", "serial8":
		return KindInteger
	case "char", "varchar", "character", "character varying", "bpchar",
		"text", "tinytext", "mediumtext", "longtext", "citext", "string":
		return KindString
	case "datetime", "timestamp", "timestamptz",
		"timestamp with time zone", "timestamp without time zone":
		return KindDatetime
	case "bool", "boolean", "bit":
		return KindBoolean
	case "decimal", "numeric", "float", "float4", "float8", "double", "double precision", "real":
		return KindDecimal
	}
	return t
}
