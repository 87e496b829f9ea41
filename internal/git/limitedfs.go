package git

import (
	"fmt"
	"os"
	"sync/atomic"

	billy "github.com/go-git/go-billy/v5"
)

// LimitedFs wraps a billy.Filesystem and enforces caps on the number of
// files and the total bytes written, protecting the in-memory clone from
// hostile or runaway repositories.
type LimitedFs struct {
	Fs            billy.Filesystem
	MaxFiles      int64
	TotalFileSize int64

	fileCount atomic.Int64
	byteCount atomic.Int64
}

var _ billy.Filesystem = (*LimitedFs)(nil)

func (l *LimitedFs) countFile() error {
	if l.fileCount.Add(1) > l.MaxFiles {
		return fmt.Errorf("file count exceeds limit of %d", l.MaxFiles)
	}
	return nil
}

// Create implements billy.Basic.
func (l *LimitedFs) Create(filename string) (billy.File, error) {
	if err := l.countFile(); err != nil {
		return nil, err
	}
	f, err := l.Fs.Create(filename)
	if err != nil {
		return nil, err
	}
	return &limitedFile{File: f, fs: l}, nil
}

// Open implements billy.Basic.
func (l *LimitedFs) Open(filename string) (billy.File, error) {
	return l.Fs.Open(filename)
}

// OpenFile implements billy.Basic.
func (l *LimitedFs) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&os.O_CREATE != 0 {
		if err := l.countFile(); err != nil {
			return nil, err
		}
	}
	f, err := l.Fs.OpenFile(filename, flag, perm)
	if err != nil {
		return nil, err
	}
	if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		return &limitedFile{File: f, fs: l}, nil
	}
	return f, nil
}

// Stat implements billy.Basic.
func (l *LimitedFs) Stat(filename string) (os.FileInfo, error) {
	return l.Fs.Stat(filename)
}

// Rename implements billy.Basic.
func (l *LimitedFs) Rename(oldpath, newpath string) error {
	return l.Fs.Rename(oldpath, newpath)
}

// Remove implements billy.Basic.
func (l *LimitedFs) Remove(filename string) error {
	return l.Fs.Remove(filename)
}

// Join implements billy.Basic.
func (l *LimitedFs) Join(elem ...string) string {
	return l.Fs.Join(elem...)
}

// TempFile implements billy.TempFile.
func (l *LimitedFs) TempFile(dir, prefix string) (billy.File, error) {
	if err := l.countFile(); err != nil {
		return nil, err
	}
	f, err := l.Fs.TempFile(dir, prefix)
	if err != nil {
		return nil, err
	}
	return &limitedFile{File: f, fs: l}, nil
}

// ReadDir implements billy.Dir.
func (l *LimitedFs) ReadDir(path string) ([]os.FileInfo, error) {
	return l.Fs.ReadDir(path)
}

// MkdirAll implements billy.Dir.
func (l *LimitedFs) MkdirAll(filename string, perm os.FileMode) error {
	return l.Fs.MkdirAll(filename, perm)
}

// Lstat implements billy.Symlink.
func (l *LimitedFs) Lstat(filename string) (os.FileInfo, error) {
	return l.Fs.Lstat(filename)
}

// Symlink implements billy.Symlink.
func (l *LimitedFs) Symlink(target, link string) error {
	if err := l.countFile(); err != nil {
		return err
	}
	return l.Fs.Symlink(target, link)
}

// Readlink implements billy.Symlink.
func (l *LimitedFs) Readlink(link string) (string, error) {
	return l.Fs.Readlink(link)
}

// Chroot implements billy.Chroot. The chrooted filesystem shares the
// parent's counters.
func (l *LimitedFs) Chroot(path string) (billy.Filesystem, error) {
	fs, err := l.Fs.Chroot(path)
	if err != nil {
		return nil, err
	}
	return &LimitedFs{Fs: fs, MaxFiles: l.MaxFiles, TotalFileSize: l.TotalFileSize}, nil
}

// Root implements billy.Chroot.
func (l *LimitedFs) Root() string {
	return l.Fs.Root()
}

// limitedFile charges written bytes against the filesystem's size budget.
type limitedFile struct {
	billy.File
	fs *LimitedFs
}

func (f *limitedFile) Write(p []byte) (int, error) {
	if f.fs.byteCount.Add(int64(len(p))) > f.fs.TotalFileSize {
		return 0, fmt.Errorf("total file size exceeds limit of %d bytes", f.fs.TotalFileSize)
	}
	return f.File.Write(p)
}
