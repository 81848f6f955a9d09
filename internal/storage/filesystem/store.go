package filesystem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"filecargo/backend/internal/domain"
	"filecargo/backend/internal/monitoring"
)

// pruneLevels 删除文件后向上尝试删除的目录层数（mid、prefix），分类根目录不在其中
const pruneLevels = 2

// Options 文件系统存储配置
type Options struct {
	Root       string      // 存储根目录
	URLPrefix  string      // 公开访问 URL 前缀，可为空
	StagingDir string      // 暂存目录，为空时使用系统临时目录
	KeyLength  int         // 随机键长度
	DirMode    os.FileMode // 新建目录权限
	FileMode   os.FileMode // 提交文件权限
}

// Store 文件系统存储实现
type Store struct {
	opts          Options
	basePath      string         // 标准化后的存储根目录
	platformUtils *PlatformUtils // 平台兼容性工具
	log           *zap.Logger
	metrics       *monitoring.Metrics
}

// NewStore 创建文件系统存储实例
func NewStore(opts Options, log *zap.Logger, metrics *monitoring.Metrics) (*Store, error) {
	if opts.Root == "" {
		return nil, domain.ErrFilePathNotSet
	}

	// 创建平台工具
	platformUtils := NewPlatformUtils()

	// 验证基础路径
	if err := platformUtils.ValidatePath(opts.Root); err != nil {
		return nil, fmt.Errorf("invalid base path: %w", err)
	}

	if opts.KeyLength <= 0 {
		opts.KeyLength = DefaultKeyLength
	}
	if opts.DirMode == 0 {
		opts.DirMode = 0755
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0644
	}
	if log == nil {
		log = zap.NewNop()
	}

	// 标准化路径
	normalizedPath := platformUtils.NormalizePath(opts.Root)

	// 确保基础目录存在
	if err := os.MkdirAll(normalizedPath, opts.DirMode); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	if opts.StagingDir != "" {
		if err := os.MkdirAll(opts.StagingDir, opts.DirMode); err != nil {
			return nil, fmt.Errorf("failed to create staging directory: %w", err)
		}
	}

	return &Store{
		opts:          opts,
		basePath:      normalizedPath,
		platformUtils: platformUtils,
		log:           log,
		metrics:       metrics,
	}, nil
}

// Root 返回标准化后的存储根目录
func (s *Store) Root() string {
	return s.basePath
}

// ========== 路径推导 ==========

// Segments 返回记录主键的三段编码
func (s *Store) Segments(f *domain.StoredFile) (Segments, error) {
	if f == nil || !f.HasIdentity() {
		return Segments{}, domain.ErrIdentityMissing
	}
	return EncodeIdentity(f.ID)
}

// Subdirectory 返回逻辑子目录：{category}/{prefix}/{mid}
func (s *Store) Subdirectory(f *domain.StoredFile) (string, error) {
	seg, err := s.Segments(f)
	if err != nil {
		return "", err
	}
	return path.Join(f.Category(), seg.Prefix(), seg.Mid()), nil
}

// BaseFilename 返回由主键推导的稳定文件名主干：{prefix}_{mid}_{low}
func (s *Store) BaseFilename(f *domain.StoredFile) (string, error) {
	seg, err := s.Segments(f)
	if err != nil {
		return "", err
	}
	return seg.Join(segmentSeparator), nil
}

// Filename 返回完整文件名，包含随机键和扩展名（如果有）
func (s *Store) Filename(f *domain.StoredFile) (string, error) {
	seg, err := s.Segments(f)
	if err != nil {
		return "", err
	}
	return BuildFilename(seg, f.Key, f.Extension), nil
}

// CanonicalDirectory 返回文件所在目录的绝对路径
func (s *Store) CanonicalDirectory(f *domain.StoredFile) (string, error) {
	sub, err := s.Subdirectory(f)
	if err != nil {
		return "", err
	}
	return s.platformUtils.JoinPath(s.basePath, sub), nil
}

// CanonicalPath 返回文件的绝对路径
func (s *Store) CanonicalPath(f *domain.StoredFile) (string, error) {
	dir, err := s.CanonicalDirectory(f)
	if err != nil {
		return "", err
	}
	name, err := s.Filename(f)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// CategoryRoot 返回分类根目录的绝对路径
func (s *Store) CategoryRoot(category string) string {
	return s.platformUtils.JoinPath(s.basePath, category)
}

// PublicURL 返回公开访问地址。
// 文件存在时追加 "?{修改时间}" 作为缓存失效参数。
func (s *Store) PublicURL(f *domain.StoredFile) (string, error) {
	if s.opts.URLPrefix == "" {
		return "", domain.ErrURLPrefixNotConfigured
	}

	sub, err := s.Subdirectory(f)
	if err != nil {
		return "", err
	}
	name, err := s.Filename(f)
	if err != nil {
		return "", err
	}

	parts := []string{strings.TrimRight(s.opts.URLPrefix, "/")}
	for _, segment := range strings.Split(sub, "/") {
		if segment = strings.Trim(segment, "/"); segment != "" {
			parts = append(parts, segment)
		}
	}
	parts = append(parts, name)
	url := strings.Join(parts, "/")

	if fullPath, err := s.CanonicalPath(f); err == nil {
		if info, err := os.Stat(fullPath); err == nil {
			url += "?" + strconv.FormatInt(info.ModTime().Unix(), 10)
		}
	}
	return url, nil
}

// Exists 报告已提交的文件是否在磁盘上
func (s *Store) Exists(f *domain.StoredFile) bool {
	fullPath, err := s.CanonicalPath(f)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && !info.IsDir()
}

// Open 打开已提交的文件，调用方负责关闭
func (s *Store) Open(f *domain.StoredFile) (*os.File, error) {
	fullPath, err := s.CanonicalPath(f)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrFileMissing, fullPath)
		}
		return nil, domain.NewStorageIOError("open", fullPath, err)
	}
	return file, nil
}

// ========== 附件生命周期 ==========

// Attach 将记录与本存储绑定，返回可执行生命周期操作的附件
func (s *Store) Attach(f *domain.StoredFile) *Attachment {
	return &Attachment{store: s, file: f}
}

// Attachment 一条文件记录及其暂存内容。
// 同一实例不支持并发调用。
type Attachment struct {
	store  *Store
	file   *domain.StoredFile
	staged *StagingBuffer
}

// File 返回底层记录
func (a *Attachment) File() *domain.StoredFile {
	return a.file
}

// Set 暂存新的文件内容，返回暂存内容是否非空。
// 之前未提交的暂存内容会先被丢弃。
func (a *Attachment) Set(src Source) (bool, error) {
	if err := a.Discard(); err != nil {
		return false, err
	}

	staged, err := stage(a.store.opts.StagingDir, src)
	if err != nil {
		return false, err
	}
	a.staged = staged
	a.store.metrics.RecordStaged(staged.Size())

	if staged.Size() > 0 {
		original := a.store.platformUtils.BaseName(src.Name())
		a.file.SetMetadata(original, a.store.platformUtils.Extension(original))
	}
	return a.HasPendingContent(), nil
}

// HasPendingContent 报告是否存在非空的暂存内容
func (a *Attachment) HasPendingContent() bool {
	return a.staged != nil && a.staged.Size() > 0
}

// PendingSize 返回暂存内容大小，没有暂存内容时为 0
func (a *Attachment) PendingSize() int64 {
	return a.staged.Size()
}

// PendingHeader 读取暂存内容开头最多 n 个字节
func (a *Attachment) PendingHeader(n int) ([]byte, error) {
	if !a.HasPendingContent() {
		return nil, nil
	}
	r, err := a.staged.Reader()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, domain.NewStorageIOError("read", a.staged.Path(), err)
	}
	return buf[:read], nil
}

// EnsureKey 在随机键为空时生成一个
func (a *Attachment) EnsureKey() {
	if a.file.Key == "" {
		a.file.SetKey(GenerateKey(a.store.opts.KeyLength))
	}
}

// Commit 将暂存内容写入规范路径并删除旧文件。
// 失败时暂存内容保持不变，可以重试。
func (a *Attachment) Commit() error {
	a.EnsureKey()
	if !a.HasPendingContent() {
		return nil
	}

	start := time.Now()
	size := a.staged.Size()
	err := a.store.commit(a.file, a.staged)
	a.store.metrics.RecordCommit(a.file.Category(), size, time.Since(start), err)
	if err != nil {
		return err
	}

	return a.Discard()
}

// Remove 删除已提交的文件并清理空目录，文件不存在时不报错
func (a *Attachment) Remove() error {
	if err := a.Discard(); err != nil {
		return err
	}
	if !a.file.HasIdentity() {
		return nil
	}

	err := a.store.remove(a.file)
	a.store.metrics.RecordRemoval(a.file.Category(), err)
	return err
}

// Discard 丢弃暂存内容
func (a *Attachment) Discard() error {
	if a.staged == nil {
		return nil
	}
	err := a.staged.Discard()
	a.staged = nil
	return err
}

// Subdirectory 见 Store.Subdirectory
func (a *Attachment) Subdirectory() (string, error) { return a.store.Subdirectory(a.file) }

// BaseFilename 见 Store.BaseFilename
func (a *Attachment) BaseFilename() (string, error) { return a.store.BaseFilename(a.file) }

// Filename 见 Store.Filename
func (a *Attachment) Filename() (string, error) { return a.store.Filename(a.file) }

// CanonicalDirectory 见 Store.CanonicalDirectory
func (a *Attachment) CanonicalDirectory() (string, error) { return a.store.CanonicalDirectory(a.file) }

// CanonicalPath 见 Store.CanonicalPath
func (a *Attachment) CanonicalPath() (string, error) { return a.store.CanonicalPath(a.file) }

// URL 见 Store.PublicURL
func (a *Attachment) URL() (string, error) { return a.store.PublicURL(a.file) }

// Exists 见 Store.Exists
func (a *Attachment) Exists() bool { return a.store.Exists(a.file) }

// ========== 提交与删除 ==========

// commit 写临时文件 → fsync → 原子 rename → 删除旧的同主键文件
func (s *Store) commit(f *domain.StoredFile, staged *StagingBuffer) error {
	dir, err := s.CanonicalDirectory(f)
	if err != nil {
		return err
	}
	base, err := s.BaseFilename(f)
	if err != nil {
		return err
	}
	name, err := s.Filename(f)
	if err != nil {
		return err
	}
	fullPath := filepath.Join(dir, name)

	if err := os.MkdirAll(dir, s.opts.DirMode); err != nil {
		return domain.NewStorageIOError("mkdir", dir, err)
	}

	reader, err := staged.Reader()
	if err != nil {
		return err
	}

	// 临时文件以 "." 开头，不会匹配任何主键前缀
	tmpPath := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	if err := writeFile(tmpPath, reader, s.opts.FileMode); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return domain.NewStorageIOError("rename", fullPath, err)
	}

	// 删除失败时新文件已就位，记录回滚后由清理任务回收
	removed, err := s.removeStale(dir, base, name)
	s.metrics.RecordStaleRemoved(f.Category(), removed)
	if err != nil {
		return err
	}

	s.log.Info("Committed stored file",
		zap.String("category", f.Category()),
		zap.Int64("id", f.ID),
		zap.String("path", fullPath),
		zap.Int64("size", staged.Size()),
		zap.Int("stale_removed", removed))
	return nil
}

// writeFile 写入并 fsync，失败时删除临时文件
func writeFile(tmpPath string, r io.Reader, mode os.FileMode) error {
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return domain.NewStorageIOError("create", tmpPath, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return domain.NewStorageIOError("write", tmpPath, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return domain.NewStorageIOError("sync", tmpPath, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return domain.NewStorageIOError("close", tmpPath, err)
	}
	return nil
}

// removeStale 删除目录中与 base 同主键、但文件名不同的旧文件
func (s *Store) removeStale(dir, base, keep string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, domain.NewStorageIOError("readdir", dir, err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == keep || !hasBasePrefix(name, base) {
			continue
		}
		stalePath := filepath.Join(dir, name)
		if err := os.Remove(stalePath); err != nil && !os.IsNotExist(err) {
			return removed, domain.NewStorageIOError("remove", stalePath, err)
		}
		removed++
		s.log.Debug("Removed stale file", zap.String("path", stalePath))
	}
	return removed, nil
}

// hasBasePrefix 文件名以 base 开头，且其后紧跟分隔符或结束
func hasBasePrefix(name, base string) bool {
	if !strings.HasPrefix(name, base) {
		return false
	}
	rest := name[len(base):]
	return rest == "" || strings.HasPrefix(rest, segmentSeparator) || strings.HasPrefix(rest, extensionSeparator)
}

func (s *Store) remove(f *domain.StoredFile) error {
	fullPath, err := s.CanonicalPath(f)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return domain.NewStorageIOError("remove", fullPath, err)
	}

	pruned := s.prune(filepath.Dir(fullPath))
	s.metrics.RecordPruned(f.Category(), pruned)

	s.log.Info("Removed stored file",
		zap.String("category", f.Category()),
		zap.Int64("id", f.ID),
		zap.String("path", fullPath),
		zap.Int("dirs_pruned", pruned))
	return nil
}

// prune 从 dir 开始向上删除空目录，遇到第一个非空或不存在的目录即停止
func (s *Store) prune(dir string) int {
	pruned := 0
	for level := 0; level < pruneLevels; level++ {
		if err := os.Remove(dir); err != nil {
			s.log.Debug("Stopped pruning", zap.String("dir", dir), zap.Error(err))
			break
		}
		pruned++
		dir = filepath.Dir(dir)
	}
	return pruned
}

// ========== 分类扫描 ==========

// Entry 分类目录中的一个文件
type Entry struct {
	Category string
	Path     string
	Name     string
	Size     int64
	ModTime  time.Time
	Parsed   *ParsedFilename // 无法解析时为 nil
}

// ScanCategory 遍历 {root}/{category}/{prefix}/{mid}/ 下的所有文件。
// 分类目录不存在时返回空列表。
func (s *Store) ScanCategory(category string) ([]Entry, error) {
	categoryPath := s.CategoryRoot(category)

	prefixDirs, err := os.ReadDir(categoryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.NewStorageIOError("readdir", categoryPath, err)
	}

	var entries []Entry
	for _, prefixDir := range prefixDirs {
		if !prefixDir.IsDir() {
			continue
		}
		prefixPath := filepath.Join(categoryPath, prefixDir.Name())

		// 遍历二级目录
		midDirs, err := os.ReadDir(prefixPath)
		if err != nil {
			continue
		}

		for _, midDir := range midDirs {
			if !midDir.IsDir() {
				continue
			}
			midPath := filepath.Join(prefixPath, midDir.Name())

			files, err := os.ReadDir(midPath)
			if err != nil {
				continue
			}

			for _, file := range files {
				if file.IsDir() {
					continue
				}
				info, err := file.Info()
				if err != nil {
					continue
				}
				entry := Entry{
					Category: category,
					Path:     filepath.Join(midPath, file.Name()),
					Name:     file.Name(),
					Size:     info.Size(),
					ModTime:  info.ModTime(),
				}
				if parsed, err := ParseFilename(file.Name()); err == nil {
					entry.Parsed = parsed
				}
				entries = append(entries, entry)
			}
		}
	}

	return entries, nil
}

// Evict 删除扫描得到的文件并清理空目录
func (s *Store) Evict(entry Entry) error {
	categoryPath := s.CategoryRoot(entry.Category)
	if rel, err := filepath.Rel(categoryPath, entry.Path); err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("entry %s is outside category %s", entry.Path, entry.Category)
	}

	if err := os.Remove(entry.Path); err != nil && !os.IsNotExist(err) {
		return domain.NewStorageIOError("remove", entry.Path, err)
	}
	s.metrics.RecordPruned(entry.Category, s.prune(filepath.Dir(entry.Path)))
	return nil
}

// Stats 存储统计信息
type Stats struct {
	Categories map[string]int `json:"categories"`
	FileCount  int            `json:"fileCount"`
	TotalBytes int64          `json:"totalBytes"`
	BasePath   string         `json:"basePath"`
}

// GetStorageStats 统计各分类的文件数量和总大小
func (s *Store) GetStorageStats() (*Stats, error) {
	stats := &Stats{
		Categories: make(map[string]int),
		BasePath:   s.basePath,
	}

	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // 跳过错误，继续遍历
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return nil
		}
		category := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]

		stats.Categories[category]++
		stats.FileCount++
		stats.TotalBytes += info.Size()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}
