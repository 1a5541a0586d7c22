package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	apperrors "github.com/datamed/datamed-api/internal/errors"
)

// UploadField is the multipart field carrying prescription documents.
const UploadField = "pdf_file"

const (
	defaultMaxUploadBytes = 10 << 20
	multipartOverhead     = 1 << 20
	multipartMemory       = 8 << 20
)

var pdfMagic = []byte("%PDF")

// UploadPolicy bounds accepted file uploads.
type UploadPolicy struct {
	MaxBytes int64
	// AllowedExtensions are lower-case and without the leading dot.
	AllowedExtensions []string
}

func (p UploadPolicy) withDefaults() UploadPolicy {
	if p.MaxBytes <= 0 {
		p.MaxBytes = defaultMaxUploadBytes
	}
	if len(p.AllowedExtensions) == 0 {
		p.AllowedExtensions = []string{"pdf"}
	}
	return p
}

// ValidateUpload returns a middleware that checks the pdf_file part of a
// multipart request against policy. Requests without that part pass through.
// Files with a pdf extension must start with %PDF.
func ValidateUpload(policy UploadPolicy) func(http.Handler) http.Handler {
	policy = policy.withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, policy.MaxBytes+multipartOverhead)
			if err := r.ParseMultipartForm(multipartMemory); err != nil {
				var tooBig *http.MaxBytesError
				switch {
				case errors.As(err, &tooBig):
					WriteAppError(w, policy.tooLarge())
					return
				case errors.Is(err, http.ErrNotMultipart):
					next.ServeHTTP(w, r)
					return
				default:
					WriteAppError(w, apperrors.ValidationField(UploadField, "Invalid multipart form"))
					return
				}
			}
			// Earlier stages may have replaced r, so net/http would not clean up
			// parts spilled to disk.
			if r.MultipartForm != nil {
				defer func() { _ = r.MultipartForm.RemoveAll() }()
			}

			file, header, err := r.FormFile(UploadField)
			if errors.Is(err, http.ErrMissingFile) {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				WriteAppError(w, apperrors.ValidationField(UploadField, "Invalid multipart form"))
				return
			}
			defer file.Close()

			if verr := policy.check(file, header); verr != nil {
				WriteAppError(w, verr)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (p UploadPolicy) check(file multipart.File, header *multipart.FileHeader) error {
	if header.Size > p.MaxBytes {
		return p.tooLarge()
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
	if !slices.Contains(p.AllowedExtensions, ext) {
		return apperrors.ValidationField(UploadField,
			"Invalid file type. Allowed: "+strings.Join(p.AllowedExtensions, ", "))
	}

	if ext == "pdf" {
		head := make([]byte, len(pdfMagic))
		n, err := io.ReadFull(file, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "read upload")
		}
		if !bytes.Equal(head[:n], pdfMagic) {
			return apperrors.ValidationField(UploadField, "Invalid PDF file")
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "rewind upload")
		}
	}
	return nil
}

func (p UploadPolicy) tooLarge() error {
	return apperrors.ValidationField(UploadField,
		fmt.Sprintf("File too large. Maximum size is %s", formatBytes(p.MaxBytes)))
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dMB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dKB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
