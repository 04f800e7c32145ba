// Package storage keeps uploaded resumes on a filesystem under generated names.
package storage

import (
	"context"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// PublicPrefix is the URL path stored files are served under.
const PublicPrefix = "/uploads/resumes/"

const tmpSuffix = ".part"

var (
	ErrTooLarge    = errors.New("file exceeds the size limit")
	ErrInvalidName = errors.New("invalid file name")
)

type Object struct {
	Name    string
	URL     string
	Size    int64
	ModTime time.Time
}

type Store struct {
	fs       afero.Fs
	dir      string
	maxBytes int64
}

// NewStore creates the upload directory if needed. maxBytes <= 0 disables the
// write-time size check.
func NewStore(fs afero.Fs, dir string, maxBytes int64) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "unable to create upload dir %s", dir)
	}
	return &Store{fs: fs, dir: dir, maxBytes: maxBytes}, nil
}

// Save writes r under name and returns its public reference. The content is
// written to a temporary file first and renamed into place, so a failed or
// cancelled copy never leaves a partial file under name.
func (s *Store) Save(ctx context.Context, name string, r io.Reader) (Object, error) {
	if err := validName(name); err != nil {
		return Object{}, err
	}
	final := filepath.Join(s.dir, name)
	tmp := final + tmpSuffix
	f, err := s.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Object{}, errors.Wrapf(err, "unable to create %s", tmp)
	}
	n, copyErr := s.copy(ctx, f, r)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = s.fs.Remove(tmp)
		return Object{}, copyErr
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		_ = s.fs.Remove(tmp)
		return Object{}, errors.Wrapf(err, "unable to move %s into place", name)
	}
	return Object{Name: name, URL: URLFor(name), Size: n, ModTime: time.Now()}, nil
}

func (s *Store) copy(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	src = &ctxReader{ctx: ctx, r: src}
	if s.maxBytes > 0 {
		// one extra byte tells us the source was larger than allowed
		n, err := io.Copy(dst, io.LimitReader(src, s.maxBytes+1))
		if err != nil {
			return n, errors.Wrap(err, "unable to write file")
		}
		if n > s.maxBytes {
			return n, ErrTooLarge
		}
		return n, nil
	}
	n, err := io.Copy(dst, src)
	if err != nil {
		return n, errors.Wrap(err, "unable to write file")
	}
	return n, nil
}

// Delete removes the file a reference points at. A missing file is not an error.
func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := NameFromURL(ref)
	if err := validName(name); err != nil {
		return err
	}
	err := s.fs.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "unable to delete %s", name)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, ref string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	name := NameFromURL(ref)
	if err := validName(name); err != nil {
		return false, err
	}
	return afero.Exists(s.fs, filepath.Join(s.dir, name))
}

// List returns every completed file in the store.
func (s *Store) List(ctx context.Context) ([]Object, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list %s", s.dir)
	}
	objects := make([]Object, 0, len(infos))
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if info.IsDir() || strings.HasSuffix(info.Name(), tmpSuffix) {
			continue
		}
		objects = append(objects, Object{
			Name:    info.Name(),
			URL:     URLFor(info.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return objects, nil
}

// FileServer serves stored files, mount it under PublicPrefix.
func (s *Store) FileServer() http.Handler {
	return http.FileServer(afero.NewHttpFs(afero.NewBasePathFs(s.fs, s.dir)).Dir("/"))
}

func URLFor(name string) string {
	return PublicPrefix + name
}

func NameFromURL(ref string) string {
	return path.Base(strings.TrimPrefix(ref, PublicPrefix))
}

func validName(name string) error {
	if name == "" || name == "." || name == "/" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, "..") {
		return ErrInvalidName
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
