// Package upload decides whether an uploaded resume may be stored and under
// which name.
package upload

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/segmentio/ksuid"

	"github.com/0x13a/jobapply/internal/apperror"
)

// FieldName is the multipart field carrying the resume.
const FieldName = "resume"

const namePrefix = "resume-"

// allowed maps declared content types to their canonical extension.
var allowed = map[string]string{
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
}

// File describes an inbound upload. Size and ContentType are what the client
// declared, the content is not sniffed.
type File struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

type Gatekeeper struct {
	maxBytes int64
}

func NewGatekeeper(maxBytes int64) Gatekeeper {
	return Gatekeeper{maxBytes: maxBytes}
}

func (g Gatekeeper) MaxBytes() int64 {
	return g.maxBytes
}

// Check accepts or rejects f before anything is written. Rejections are
// validation errors keyed on the resume field.
func (g Gatekeeper) Check(f File) error {
	if _, ok := allowed[mediaType(f.ContentType)]; !ok {
		return apperror.NewValidation("Invalid file type", map[string]string{
			FieldName: "Only PDF, DOC and DOCX files are allowed",
		})
	}
	if f.Size <= 0 {
		return apperror.NewValidation("Invalid file", map[string]string{
			FieldName: "Resume file is empty",
		})
	}
	if f.Size > g.maxBytes {
		return apperror.NewValidation("File too large", map[string]string{
			FieldName: fmt.Sprintf("File size must not exceed %s", humanize.IBytes(uint64(g.maxBytes))),
		})
	}
	return nil
}

// TooLarge is the error reported when the stored content turns out to be
// bigger than declared.
func (g Gatekeeper) TooLarge() error {
	return apperror.NewValidation("File too large", map[string]string{
		FieldName: fmt.Sprintf("File size must not exceed %s", humanize.IBytes(uint64(g.maxBytes))),
	})
}

// StoredName returns resume-<unix nanos>-<ksuid><ext>. The extension comes from
// the original filename when it is one of the allowed ones, otherwise from the
// declared content type.
func StoredName(f File) string {
	return namePrefix + fmt.Sprintf("%d-%s", time.Now().UnixNano(), ksuid.New().String()) + extension(f)
}

func extension(f File) string {
	canonical := allowed[mediaType(f.ContentType)]
	ext := strings.ToLower(filepath.Ext(f.Filename))
	for _, e := range allowed {
		if ext == e {
			return ext
		}
	}
	return canonical
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
