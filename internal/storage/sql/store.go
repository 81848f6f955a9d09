package sql

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"filecargo/backend/internal/domain"
	"filecargo/backend/internal/storage"
)

// DefaultTable 默认文件记录表名
const DefaultTable = "external_files"

// Options SQL 存储配置
type Options struct {
	Driver          string // "mysql" or "postgres"
	DSN             string
	Table           string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB
	driverName string // "mysql" or "postgres"
	table      string
	log        *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建SQL数据库存储
func NewStore(opts Options, log *zap.Logger) (*Store, error) {
	// 验证驱动类型
	if opts.Driver != "mysql" && opts.Driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", opts.Driver)
	}

	// 打开数据库连接
	db, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	// 测试连接
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	var dialector gorm.Dialector
	if opts.Driver == "mysql" {
		dialector = mysql.New(mysql.Config{Conn: db})
	} else {
		dialector = postgres.New(postgres.Config{Conn: db})
	}

	gormDB, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	store, err := NewStoreWithDB(gormDB, opts.Table, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.driverName = opts.Driver

	if opts.AutoMigrate {
		if err := store.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return store, nil
}

// NewStoreWithDB 使用已初始化的 GORM 实例创建存储
func NewStoreWithDB(gormDB *gorm.DB, table string, log *zap.Logger) (*Store, error) {
	db, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	if table == "" {
		table = DefaultTable
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Store{
		db:         db,
		gormDB:     gormDB,
		driverName: gormDB.Dialector.Name(),
		table:      table,
		log:        log,
	}, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Table 返回文件记录表名
func (s *Store) Table() string {
	return s.table
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Ping()
}

// Migrate 创建或更新文件记录表（使用GORM AutoMigrate）
func (s *Store) Migrate() error {
	return s.files().AutoMigrate(&domain.StoredFile{})
}

func (s *Store) files() *gorm.DB {
	return s.gormDB.Table(s.table)
}

// ========== 文件记录 ==========

// SaveFile 在事务中保存记录并执行生命周期回调。
// 任何一步失败都会回滚，新记录的 ID 恢复为 0。
func (s *Store) SaveFile(file *domain.StoredFile, hooks storage.LifecycleAware) error {
	wasNew := file.IsNew()

	err := s.gormDB.Transaction(func(tx *gorm.DB) error {
		if hooks != nil {
			hooks.EnsureKey()
		}

		var result *gorm.DB
		if wasNew {
			result = tx.Table(s.table).Create(file)
		} else {
			result = tx.Table(s.table).Save(file)
		}
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return storage.ErrDuplicateSlot
			}
			return fmt.Errorf("failed to save stored file: %w", result.Error)
		}

		if hooks != nil {
			return hooks.Commit()
		}
		return nil
	})
	if err != nil {
		if wasNew {
			file.ID = 0
		}
		return err
	}

	file.ClearChanges()
	s.log.Debug("Saved stored file",
		zap.String("table", s.table),
		zap.Int64("id", file.ID),
		zap.String("parent_type", file.ParentType),
		zap.Int64("parent_id", file.ParentID),
		zap.String("name", file.Name))
	return nil
}

// DeleteFile 在事务中执行 Remove 回调并删除记录
func (s *Store) DeleteFile(file *domain.StoredFile, hooks storage.LifecycleAware) error {
	if file.IsNew() {
		if hooks != nil {
			return hooks.Remove()
		}
		return nil
	}

	return s.gormDB.Transaction(func(tx *gorm.DB) error {
		if hooks != nil {
			if err := hooks.Remove(); err != nil {
				return err
			}
		}

		result := tx.Table(s.table).Delete(&domain.StoredFile{}, file.ID)
		if result.Error != nil {
			return fmt.Errorf("failed to delete stored file: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return storage.ErrFileNotFound
		}
		return nil
	})
}

// GetFile 根据 ID 获取记录
func (s *Store) GetFile(id int64) (*domain.StoredFile, error) {
	var file domain.StoredFile
	if err := s.files().First(&file, id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &file, nil
}

// FindByParent 根据父实体和名称获取记录
func (s *Store) FindByParent(owner domain.Owner, name string) (*domain.StoredFile, error) {
	var file domain.StoredFile
	err := s.files().
		Where("parent_type = ? AND parent_id = ? AND name = ?", owner.Type, owner.ID, name).
		First(&file).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &file, nil
}

// ListByParent 返回父实体的全部记录（按 ID 排序）
func (s *Store) ListByParent(owner domain.Owner) ([]*domain.StoredFile, error) {
	var files []*domain.StoredFile
	err := s.files().
		Where("parent_type = ? AND parent_id = ?", owner.Type, owner.ID).
		Order("id").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stored files: %w", err)
	}
	return files, nil
}

// ListByType 返回指定父实体类型的全部记录（按 ID 排序）
func (s *Store) ListByType(parentType string) ([]*domain.StoredFile, error) {
	var files []*domain.StoredFile
	err := s.files().
		Where("parent_type = ?", parentType).
		Order("id").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stored files: %w", err)
	}
	return files, nil
}

// ListByCategory 返回存储分类下的全部记录（按 ID 排序）。
// 分类由父实体类型推导，先取出映射到该分类的全部类型写法再查询。
func (s *Store) ListByCategory(category string) ([]*domain.StoredFile, error) {
	var parentTypes []string
	if err := s.files().Distinct("parent_type").Pluck("parent_type", &parentTypes).Error; err != nil {
		return nil, fmt.Errorf("failed to list parent types: %w", err)
	}

	matched := make([]string, 0, len(parentTypes))
	for _, t := range parentTypes {
		if domain.CategoryFor(t) == category {
			matched = append(matched, t)
		}
	}
	files := make([]*domain.StoredFile, 0)
	if len(matched) == 0 {
		return files, nil
	}

	err := s.files().
		Where("parent_type IN ?", matched).
		Order("id").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stored files: %w", err)
	}
	return files, nil
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrFileNotFound
	}
	return fmt.Errorf("failed to query stored file: %w", err)
}
