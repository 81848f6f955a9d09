package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validColumns() map[string]string {
	return map[string]string{
		"id":                "BIGINT",
		"parent_id":         "BIGINT",
		"parent_type":       "VARCHAR",
		"name":              "VARCHAR",
		"key":               "VARCHAR",
		"extension":         "VARCHAR",
		"original_filename": "VARCHAR",
		"created_at":        "DATETIME",
		"updated_at":        "DATETIME",
	}
}

func TestColumnKind(t *testing.T) {
	testCases := []struct {
		dbType   string
		expected string
	}{
		{"BIGINT", KindInteger},
		{"int(11)", KindInteger},
		{"int unsigned", KindInteger},
		{"int8", KindInteger},
		{"VARCHAR", KindString},
		{"varchar(255)", KindString},
		{"character varying", KindString},
		{"text", KindString},
		{"DATETIME", KindDatetime},
		{"datetime(3)", KindDatetime},
		{"timestamptz", KindDatetime},
		{"timestamp with time zone", KindDatetime},
		{"bool", KindBoolean},
		{"numeric", KindDecimal},
		{"interval", "interval"},
		{"point", "point"},
		{"JSON", "json"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, columnKind(tc.dbType), "Type: %s", tc.dbType)
	}
}

func TestCheckColumns(t *testing.T) {
	t.Run("valid table", func(t *testing.T) {
		assert.NoError(t, checkColumns(DefaultTable, validColumns()))
	})

	t.Run("postgres types", func(t *testing.T) {
		columns := map[string]string{
			"parent_id":         "int8",
			"parent_type":       "varchar",
			"name":              "text",
			"key":               "varchar",
			"extension":         "varchar",
			"original_filename": "varchar",
			"created_at":        "timestamptz",
			"updated_at":        "timestamp",
		}
		assert.NoError(t, checkColumns(DefaultTable, columns))
	})

	t.Run("missing column", func(t *testing.T) {
		columns := validColumns()
		delete(columns, "original_filename")

		err := checkColumns(DefaultTable, columns)
		assert.ErrorIs(t, err, ErrMissingColumn)
		assert.Contains(t, err.Error(), "external_files.original_filename")
	})

	t.Run("wrong type", func(t *testing.T) {
		columns := validColumns()
		columns["parent_id"] = "VARCHAR"

		err := checkColumns(DefaultTable, columns)
		var invalid *InvalidColumnError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "parent_id", invalid.Column)
		assert.Equal(t, KindInteger, invalid.Expected)
		assert.Equal(t, KindString, invalid.Actual)
		assert.Equal(t, "column external_files.parent_id should be integer but is string", err.Error())
	})
}
