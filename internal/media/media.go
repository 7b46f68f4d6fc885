// Package media turns image references into validated, allow-listed image bytes.
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	// Register decoders for the allow-listed formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"converse/internal/llm/core"
)

var (
	// ErrUnsupportedFormat is matched by UnsupportedFormatError.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrDecode reports malformed image data or an unreadable reference.
	ErrDecode = errors.New("image decode failed")
)

// UnsupportedFormatError carries the MIME type that fell outside the allow-list.
type UnsupportedFormatError struct {
	MIME string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnsupportedFormat, e.MIME)
}

func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

var allowed = map[string]core.ImageFormat{
	"png":  core.ImageFormatPNG,
	"jpeg": core.ImageFormatJPEG,
	"jpg":  core.ImageFormatJPEG,
	"gif":  core.ImageFormatGIF,
	"webp": core.ImageFormatWebP,
}

// FormatFromMIME maps an image MIME type (or bare subtype) onto the allow-list.
func FormatFromMIME(mimeType string) (core.ImageFormat, bool) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	sub := strings.TrimPrefix(mt, "image/")
	if sub == mt && strings.Contains(mt, "/") {
		return "", false
	}
	format, ok := allowed[sub]
	return format, ok
}

// Loader resolves file paths and data: URIs. The zero value reads from disk.
type Loader struct {
	// ReadFile overrides os.ReadFile, mainly for tests.
	ReadFile func(name string) ([]byte, error)
}

// LoadImage resolves ref into allow-listed image bytes. Out-of-list types fail
// with *UnsupportedFormatError before any data is decoded.
func (l Loader) LoadImage(ref core.ImageRef) (core.ImagePart, error) {
	if u := strings.TrimSpace(ref.URL); u != "" {
		mimeType, data, err := parseDataURI(u)
		if err != nil {
			var unsupported *UnsupportedFormatError
			if errors.As(err, &unsupported) {
				return core.ImagePart{}, err
			}
			return core.ImagePart{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return FromBytes(mimeType, data)
	}

	path := strings.TrimSpace(ref.Path)
	if path == "" {
		return core.ImagePart{}, fmt.Errorf("%w: empty image reference", ErrDecode)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType != "" {
		if _, ok := FormatFromMIME(mimeType); !ok {
			return core.ImagePart{}, &UnsupportedFormatError{MIME: baseMIME(mimeType)}
		}
	}

	read := l.ReadFile
	if read == nil {
		read = os.ReadFile
	}
	data, err := read(path)
	if err != nil {
		return core.ImagePart{}, fmt.Errorf("%w: read %s: %v", ErrDecode, path, err)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return FromBytes(mimeType, data)
}

// FromBytes validates raw image bytes announced as mimeType.
func FromBytes(mimeType string, data []byte) (core.ImagePart, error) {
	format, ok := FormatFromMIME(mimeType)
	if !ok {
		return core.ImagePart{}, &UnsupportedFormatError{MIME: baseMIME(mimeType)}
	}
	if len(data) == 0 {
		return core.ImagePart{}, fmt.Errorf("%w: empty image data", ErrDecode)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return core.ImagePart{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return core.ImagePart{Format: format, Bytes: data}, nil
}

func parseDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, errors.New("image url must be a data: uri")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data uri has no payload")
	}
	params := strings.Split(header, ";")
	mimeType := strings.TrimSpace(params[0])
	if _, ok := FormatFromMIME(mimeType); !ok {
		return "", nil, &UnsupportedFormatError{MIME: mimeType}
	}
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return "", nil, errors.New("data uri is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, err
	}
	return mimeType, data, nil
}

func baseMIME(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.TrimSpace(mimeType)
	}
	return mt
}
