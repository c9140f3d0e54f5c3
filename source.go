package classweave

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/deepnoodle-ai/classweave/errz"
)

// ClassSource supplies the bytes of a class by internal name, such as
// "java/util/List".
type ClassSource interface {
	ClassBytes(name string) ([]byte, error)
}

func notFound(name, where string) error {
	return errz.Newf(errz.TargetNotFound, "class %s not found in %s", name, where)
}

// MapSource serves classes from memory.
type MapSource map[string][]byte

func (m MapSource) ClassBytes(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, notFound(name, "memory")
	}
	return data, nil
}

// DirSource serves classes from a directory laid out by package.
type DirSource string

func (d DirSource) ClassBytes(name string) ([]byte, error) {
	path := filepath.Join(string(d), filepath.FromSlash(name)+".class")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(name, string(d))
	}
	return data, err
}

// ZipSource serves classes from a jar or zip archive.
type ZipSource struct {
	name   string
	files  map[string]*zip.File
	closer io.Closer
}

// OpenZipSource opens the archive at path. Close releases it.
func OpenZipSource(path string) (*ZipSource, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	s := newZipSource(path, &rc.Reader)
	s.closer = rc
	return s, nil
}

// NewZipSource reads an archive of the given size from r.
func NewZipSource(r io.ReaderAt, size int64) (*ZipSource, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	return newZipSource("archive", zr), nil
}

func newZipSource(name string, zr *zip.Reader) *ZipSource {
	s := &ZipSource{name: name, files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, ".class") {
			s.files[strings.TrimSuffix(f.Name, ".class")] = f
		}
	}
	return s
}

// Names returns the internal names of the classes in the archive.
func (s *ZipSource) Names() []string {
	names := make([]string, 0, len(s.files))
	for n := range s.files {
		names = append(names, n)
	}
	return names
}

func (s *ZipSource) ClassBytes(name string) ([]byte, error) {
	f, ok := s.files[name]
	if !ok {
		return nil, notFound(name, s.name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Close releases an archive opened with OpenZipSource.
func (s *ZipSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// ChainSource tries each source in turn.
type ChainSource []ClassSource

func (c ChainSource) ClassBytes(name string) ([]byte, error) {
	for _, s := range c {
		data, err := s.ClassBytes(name)
		if err == nil {
			return data, nil
		}
		if !errz.Is(err, errz.TargetNotFound) {
			return nil, err
		}
	}
	return nil, notFound(name, "class path")
}
