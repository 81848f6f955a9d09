package filesystem

import (
	"errors"
	"fmt"
	"io"
	"os"

	"filecargo/backend/internal/domain"
)

// Source 待暂存的文件来源：文件路径或已打开的读取句柄
type Source interface {
	// Name 来源引用（路径或上传文件名），用于提取原始文件名和扩展名
	Name() string
	// Open 打开来源以供读取，调用方负责关闭
	Open() (io.ReadCloser, error)
}

type pathSource string

func (p pathSource) Name() string { return string(p) }

func (p pathSource) Open() (io.ReadCloser, error) {
	return os.Open(string(p))
}

// FromPath 以磁盘路径作为来源
func FromPath(path string) Source {
	return pathSource(path)
}

type readerSource struct {
	name string
	r    io.Reader
}

func (s *readerSource) Name() string { return s.name }

func (s *readerSource) Open() (io.ReadCloser, error) {
	if s.r == nil {
		return nil, errors.New("nil reader")
	}
	return io.NopCloser(s.r), nil
}

// FromReader 以任意读取器作为来源，name 作为原始文件名。
// 读取器归调用方所有，暂存完成后不会被关闭。
func FromReader(name string, r io.Reader) Source {
	return &readerSource{name: name, r: r}
}

// FromFile 以已打开的文件作为来源，文件名取自 f.Name()。
// 文件归调用方所有，暂存完成后不会被关闭。
func FromFile(f *os.File) Source {
	if f == nil {
		return &readerSource{}
	}
	return &readerSource{name: f.Name(), r: f}
}

// StagingBuffer 提交前的临时存储，内容保存在暂存目录的临时文件中
type StagingBuffer struct {
	file *os.File
	size int64
}

// sourceReader 记录来源读取错误，用于区分读取失败和写入失败
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

// stage 将来源的全部内容复制到暂存目录中的临时文件
func stage(dir string, src Source) (*StagingBuffer, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no source given", domain.ErrSourceUnreadable)
	}

	rc, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnreadable, err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(dir, "cargo-staging-*")
	if err != nil {
		return nil, domain.NewStorageIOError("create", dir, err)
	}

	reader := &sourceReader{r: rc}
	size, err := io.Copy(tmp, reader)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		if reader.err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnreadable, reader.err)
		}
		return nil, domain.NewStorageIOError("write", tmp.Name(), err)
	}

	return &StagingBuffer{file: tmp, size: size}, nil
}

// Size 暂存内容的字节数
func (b *StagingBuffer) Size() int64 {
	if b == nil {
		return 0
	}
	return b.size
}

// Path 暂存临时文件的路径
func (b *StagingBuffer) Path() string {
	if b == nil || b.file == nil {
		return ""
	}
	return b.file.Name()
}

// Reader 从头开始读取暂存内容
func (b *StagingBuffer) Reader() (io.Reader, error) {
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, domain.NewStorageIOError("seek", b.Path(), err)
	}
	return b.file, nil
}

// Discard 关闭并删除临时文件，可重复调用
func (b *StagingBuffer) Discard() error {
	if b == nil || b.file == nil {
		return nil
	}
	name := b.file.Name()
	b.file.Close()
	b.file = nil
	b.size = 0
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		return domain.NewStorageIOError("remove", name, err)
	}
	return nil
}
