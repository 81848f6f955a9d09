package sql

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"filecargo/backend/internal/domain"
	"filecargo/backend/internal/storage"
	"filecargo/backend/internal/storage/filesystem"
)

var fileColumns = []string{"id", "parent_id", "parent_type", "name", "key", "extension", "original_filename", "created_at", "updated_at"}

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), gormConfig())
	require.NoError(t, err)

	store, err := NewStoreWithDB(gormDB, "", nil)
	require.NoError(t, err)
	return store, mock
}

func newFileStore(t *testing.T) *filesystem.Store {
	t.Helper()
	fs, err := filesystem.NewStore(filesystem.Options{Root: t.TempDir()}, nil, nil)
	require.NoError(t, err)
	return fs
}

func TestNewStore_UnsupportedDriver(t *testing.T) {
	_, err := NewStore(Options{Driver: "sqlite", DSN: "file::memory:"}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestNewStoreWithDB_Defaults(t *testing.T) {
	store, _ := newStoreWithMock(t)
	assert.Equal(t, DefaultTable, store.Table())
	assert.Equal(t, "mysql", store.driverName)
}

func TestSaveFile_CreateCommitsContent(t *testing.T) {
	store, mock := newStoreWithMock(t)
	fs := newFileStore(t)

	file := domain.NewStoredFile(domain.Owner{Type: "Image", ID: 9}, "original")
	att := fs.Attach(file)
	_, err := att.Set(filesystem.FromReader("snail.jpg", strings.NewReader("jpeg bytes")))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `external_files`")).
		WillReturnResult(sqlmock.NewResult(1947, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveFile(file, att))
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, int64(1947), file.ID)
	assert.Len(t, file.Key, filesystem.DefaultKeyLength)
	assert.False(t, file.IsChanged())

	fullPath, err := att.CanonicalPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fs.Root(), "images", "00", "01", "00_01_i3_"+file.Key+".jpg"), fullPath)
	content, err := os.ReadFile(fullPath)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(content))
}

// failingHooks Commit 总是失败
type failingHooks struct{ removed bool }

func (h *failingHooks) EnsureKey()    {}
func (h *failingHooks) Commit() error { return errors.New("disk full") }
func (h *failingHooks) Remove() error {
	h.removed = true
	return errors.New("permission denied")
}

func TestSaveFile_CommitFailureRollsBack(t *testing.T) {
	store, mock := newStoreWithMock(t)
	file := domain.NewStoredFile(domain.Owner{Type: "Image", ID: 9}, "original")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `external_files`")).
		WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectRollback()

	err := store.SaveFile(file, &failingHooks{})
	assert.EqualError(t, err, "disk full")
	assert.True(t, file.IsNew())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveFile_DuplicateSlot(t *testing.T) {
	store, mock := newStoreWithMock(t)
	file := domain.NewStoredFile(domain.Owner{Type: "Image", ID: 9}, "original")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `external_files`")).
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	err := store.SaveFile(file, nil)
	assert.ErrorIs(t, err, storage.ErrDuplicateSlot)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveFile_UpdateExisting(t *testing.T) {
	store, mock := newStoreWithMock(t)
	file := domain.NewStoredFile(domain.Owner{Type: "Image", ID: 9}, "original")
	file.ID = 1947
	file.SetKey("myk25s")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `external_files` SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveFile(file, nil))
	assert.Equal(t, int64(1947), file.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteFile(t *testing.T) {
	t.Run("remove then delete row", func(t *testing.T) {
		store, mock := newStoreWithMock(t)
		fs := newFileStore(t)

		file := domain.NewStoredFile(domain.Owner{Type: "Image", ID: 9}, "original")
		file.ID = 1947
		att := fs.Attach(file)
		_, err := att.Set(filesystem.FromReader("snail.jpg", strings.NewReader("x")))
		require.NoError(t, err)
		require.NoError(t, att.Commit())
		require.True(t, att.Exists())

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `external_files`")).
			WithArgs(int64(1947)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, store.DeleteFile(file, att))
		assert.False(t, att.Exists())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		store, mock := newStoreWithMock(t)
		file := domain.NewStoredFile(domain.Owner{Type: "Image", ID: 9}, "original")
		file.ID = 5

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `external_files`")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := store.DeleteFile(file, nil)
		assert.ErrorIs(t, err, storage.ErrFileNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("remove failure keeps row", func(t *testing.T) {
		store, mock := newStoreWithMock(t)
		file := domain.NewStoredFile(domain.Owner{Type: "Image", ID: 9}, "original")
		file.ID = 5

		mock.ExpectBegin()
		mock.ExpectRollback()

		hooks := &failingHooks{}
		err := store.DeleteFile(file, hooks)
		assert.EqualError(t, err, "permission denied")
		assert.True(t, hooks.removed)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unsaved record touches no rows", func(t *testing.T) {
		store, mock := newStoreWithMock(t)
		file := domain.NewStoredFile(domain.Owner{Type: "Image", ID: 9}, "original")

		require.NoError(t, store.DeleteFile(file, nil))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestQueries(t *testing.T) {
	now := time.Now().UTC()

	t.Run("get file", func(t *testing.T) {
		store, mock := newStoreWithMock(t)
		rows := sqlmock.NewRows(fileColumns).
			AddRow(1947, 9, "Image", "original", "myk25s", "jpg", "snail.jpg", now, now)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `external_files`")).WillReturnRows(rows)

		file, err := store.GetFile(1947)
		require.NoError(t, err)
		assert.Equal(t, int64(1947), file.ID)
		assert.Equal(t, "Image", file.ParentType)
		assert.Equal(t, "myk25s", file.Key)
		assert.Equal(t, "images", file.Category())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get missing file", func(t *testing.T) {
		store, mock := newStoreWithMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `external_files`")).
			WillReturnRows(sqlmock.NewRows(fileColumns))

		_, err := store.GetFile(1)
		assert.ErrorIs(t, err, storage.ErrFileNotFound)
	})

	t.Run("find by parent", func(t *testing.T) {
		store, mock := newStoreWithMock(t)
		rows := sqlmock.NewRows(fileColumns).
			AddRow(3, 9, "Image", "thumbnail", "bcd234", "png", "thumb.png", now, now)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `external_files` WHERE parent_type = ? AND parent_id = ? AND name = ?")).
			WillReturnRows(rows)

		file, err := store.FindByParent(domain.Owner{Type: "Image", ID: 9}, "thumbnail")
		require.NoError(t, err)
		assert.Equal(t, int64(3), file.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list by parent", func(t *testing.T) {
		store, mock := newStoreWithMock(t)
		rows := sqlmock.NewRows(fileColumns).
			AddRow(1, 9, "Image", "original", "myk25s", "jpg", "a.jpg", now, now).
			AddRow(2, 9, "Image", "thumbnail", "bcd234", "jpg", "a.jpg", now, now)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `external_files` WHERE parent_type = ? AND parent_id = ? ORDER BY id")).
			WillReturnRows(rows)

		files, err := store.ListByParent(domain.Owner{Type: "Image", ID: 9})
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, "thumbnail", files[1].Name)
	})

	t.Run("list by type", func(t *testing.T) {
		store, mock := newStoreWithMock(t)
		rows := sqlmock.NewRows(fileColumns).
			AddRow(1, 9, "Image", "original", "myk25s", "jpg", "a.jpg", now, now).
			AddRow(1947, 10, "Image", "original", "bcd234", "png", "b.png", now, now)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `external_files` WHERE parent_type = ? ORDER BY id")).
			WithArgs("Image").
			WillReturnRows(rows)

		files, err := store.ListByType("Image")
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, int64(1947), files[1].ID)
		assert.Equal(t, "png", files[1].Extension)
	})

	t.Run("list by category", func(t *testing.T) {
		store, mock := newStoreWithMock(t)
		mock.ExpectQuery("SELECT DISTINCT .parent_type. FROM .external_files.").
			WillReturnRows(sqlmock.NewRows([]string{"parent_type"}).
				AddRow("Image").AddRow("image").AddRow("Document"))
		rows := sqlmock.NewRows(fileColumns).
			AddRow(1, 9, "Image", "original", "myk25s", "jpg", "a.jpg", now, now).
			AddRow(2, 9, "image", "original", "bcd234", "png", "b.png", now, now)
		mock.ExpectQuery(`SELECT \* FROM .external_files. WHERE parent_type IN \(\?,\?\) ORDER BY id`).
			WithArgs("Image", "image").
			WillReturnRows(rows)

		files, err := store.ListByCategory("images")
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, "image", files[1].ParentType)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list by category without matching types", func(t *testing.T) {
		store, mock := newStoreWithMock(t)
		mock.ExpectQuery("SELECT DISTINCT .parent_type. FROM .external_files.").
			WillReturnRows(sqlmock.NewRows([]string{"parent_type"}).AddRow("Document"))

		files, err := store.ListByCategory("images")
		require.NoError(t, err)
		assert.Empty(t, files)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestHealth(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	gormDB, err := gorm.Open(mysql.New(mysql.Config{Conn: db, SkipInitializeWithVersion: true}), gormConfig())
	require.NoError(t, err)
	store, err := NewStoreWithDB(gormDB, "files", nil)
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, store.Health())
	require.NoError(t, mock.ExpectationsWereMet())
}
