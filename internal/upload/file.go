package upload

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// File is a local file to be sent to object storage. Body is read through
// io.ReaderAt so every retry can start again from byte zero.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.ReaderAt

	closer io.Closer
}

// OpenFile opens path and sniffs its content type.
func OpenFile(path string) (*File, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect content type of %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}

	contentType, _, _ := strings.Cut(mt.String(), ";")
	return &File{
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: contentType,
		Body:        f,
		closer:      f,
	}, nil
}

// NewFile wraps an in-memory payload.
func NewFile(name, contentType string, data []byte) *File {
	return &File{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: contentType,
		Body:        bytes.NewReader(data),
	}
}

// Close releases the underlying file, if any.
func (f *File) Close() error {
	if f == nil || f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

func (f *File) contentType() string {
	if f.ContentType == "" {
		return "application/octet-stream"
	}
	return f.ContentType
}
