package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// ErrInvalidTableName 表名只允许字母、数字和下划线
var ErrInvalidTableName = errors.New("invalid table name")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// schemaStatements 各数据库的建表语句，%[1]s 为表名
var schemaStatements = map[string]struct{ up, down []string }{
	"mysql": {
		up: []string{
			"CREATE TABLE IF NOT EXISTS `%[1]s` (" +
				"`id` BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY, " +
				"`parent_id` BIGINT NOT NULL, " +
				"`parent_type` VARCHAR(255) NOT NULL, " +
				"`name` VARCHAR(255), " +
				"`key` VARCHAR(32), " +
				"`extension` VARCHAR(255), " +
				"`original_filename` VARCHAR(255), " +
				"`created_at` DATETIME(3), " +
				"`updated_at` DATETIME(3), " +
				"UNIQUE KEY `idx_parent_slot` (`parent_type`, `parent_id`, `name`)" +
				") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
		},
		down: []string{"DROP TABLE IF EXISTS `%[1]s`"},
	},
	"postgres": {
		up: []string{
			`CREATE TABLE IF NOT EXISTS "%[1]s" (` +
				`"id" BIGSERIAL PRIMARY KEY, ` +
				`"parent_id" BIGINT NOT NULL, ` +
				`"parent_type" VARCHAR(255) NOT NULL, ` +
				`"name" VARCHAR(255), ` +
				`"key" VARCHAR(32), ` +
				`"extension" VARCHAR(255), ` +
				`"original_filename" VARCHAR(255), ` +
				`"created_at" TIMESTAMPTZ, ` +
				`"updated_at" TIMESTAMPTZ)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS "idx_%[1]s_parent_slot" ON "%[1]s" ("parent_type", "parent_id", "name")`,
		},
		down: []string{`DROP TABLE IF EXISTS "%[1]s"`},
	},
}

// gooseUp 便于测试替换
var gooseUp = func(ctx context.Context, p *goose.Provider) ([]*goose.MigrationResult, error) {
	return p.Up(ctx)
}

// gooseLogger 将 goose 日志转发到 zap
type gooseLogger struct {
	log *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) { l.log.Infof(format, v...) }
func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.log.Errorf(format, v...) }

// statements 按表名生成语句
func statements(templates []string, table string) []string {
	out := make([]string, len(templates))
	for i, tmpl := range templates {
		out[i] = fmt.Sprintf(tmpl, table)
	}
	return out
}

func execAll(stmts []string) *goose.GoFunc {
	return &goose.GoFunc{
		RunTx: func(ctx context.Context, tx *sql.Tx) error {
			for _, stmt := range stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// schemaMigrations 返回文件记录表的版本化迁移
func schemaMigrations(driver, table string) ([]*goose.Migration, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, table)
	}
	schema, ok := schemaStatements[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	return []*goose.Migration{
		goose.NewGoMigration(1, execAll(statements(schema.up, table)), execAll(statements(schema.down, table))),
	}, nil
}

func gooseDialect(driver string) goose.Dialect {
	if driver == "mysql" {
		return goose.DialectMySQL
	}
	return goose.DialectPostgres
}

// MigrateVersioned 使用 goose 执行版本化迁移，返回本次执行的迁移
func (s *Store) MigrateVersioned(ctx context.Context) ([]*goose.MigrationResult, error) {
	migrations, err := schemaMigrations(s.driverName, s.table)
	if err != nil {
		return nil, err
	}

	provider, err := goose.NewProvider(gooseDialect(s.driverName), s.db, nil,
		goose.WithGoMigrations(migrations...),
		goose.WithDisableGlobalRegistry(true),
		goose.WithLogger(gooseLogger{log: s.log.Sugar()}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := gooseUp(ctx, provider)
	if err != nil {
		return results, fmt.Errorf("failed to migrate %s: %w", s.table, err)
	}
	for _, r := range results {
		s.log.Info("Applied migration",
			zap.String("table", s.table),
			zap.Int64("version", r.Source.Version),
			zap.Duration("duration", r.Duration))
	}
	return results, nil
}
