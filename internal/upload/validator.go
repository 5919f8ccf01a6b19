// Package upload validates file payloads before they are relayed to the
// document-understanding agent. Validation is pass/fail only; the bytes are
// never transformed and never outlive the request.
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// MaxFileSize is the upload cap: 10 MiB.
const MaxFileSize = 10 << 20

// FormOverhead is extra room on top of MaxFileSize for multipart framing
// and non-file form fields when bounding the request body reader.
const FormOverhead = 1 << 20

var (
	// ErrNoFile is returned when the multipart form has no file field.
	ErrNoFile = errors.New("no file uploaded")
	// ErrUnsupportedType is returned for mime types outside the whitelist.
	ErrUnsupportedType = errors.New("unsupported file type: only PDF, PNG, and JPEG are accepted")
	// ErrTooLarge is returned when the payload exceeds MaxFileSize.
	ErrTooLarge = errors.New("file too large: maximum size is 10MB")
)

var allowedTypes = map[string]struct{}{
	"application/pdf": {},
	"image/png":       {},
	"image/jpeg":      {},
	"image/jpg":       {},
}

// File is a validated binary payload owned by a single request.
type File struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// Validate checks the mime whitelist and size cap.
func (f *File) Validate() error {
	if _, ok := allowedTypes[f.ContentType]; !ok {
		return fmt.Errorf("%w (got %s)", ErrUnsupportedType, f.ContentType)
	}
	if f.Size > MaxFileSize {
		return ErrTooLarge
	}
	return nil
}

// FromRequest extracts and validates the named multipart file field.
// The caller is expected to have bounded r.Body with http.MaxBytesReader;
// a reader overrun is reported as ErrTooLarge.
func FromRequest(r *http.Request, field string) (*File, error) {
	src, header, err := r.FormFile(field)
	if err != nil {
		if isBodyTooLarge(err) {
			return nil, ErrTooLarge
		}
		return nil, ErrNoFile
	}
	defer src.Close()

	// The multipart header carries the declared size; reject oversized
	// payloads before buffering anything.
	if header.Size > MaxFileSize {
		return nil, ErrTooLarge
	}

	f := &File{
		Filename:    header.Filename,
		ContentType: contentType(header),
		Size:        header.Size,
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(src, MaxFileSize+1))
	if err != nil {
		if isBodyTooLarge(err) {
			return nil, ErrTooLarge
		}
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrTooLarge
	}
	f.Data = data
	f.Size = int64(len(data))
	return f, nil
}

func contentType(h *multipart.FileHeader) string {
	return h.Header.Get("Content-Type")
}

func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
