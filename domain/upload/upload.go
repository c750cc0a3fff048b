// Package upload defines the narrow capability interface an uploaded
// file must satisfy. Any concrete upload mechanism (HTTP multipart,
// CLI path, test fixture) implements it; consumers never see the
// transport it arrived over.
package upload

import (
	"encoding/base64"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

type Upload interface {
	// Name returns the original filename as supplied by the uploader.
	Name() string
	// Bytes returns the full file content.
	Bytes() ([]byte, error)
	// DeclaredMIMEType returns the MIME type the upload mechanism
	// reported, or "" when none was declared.
	DeclaredMIMEType() string
}

// DataURI converts an image upload into a self-contained data URI
// usable as an embedded resource reference. Non-image or empty uploads
// yield "" so the caller can leave placeholders untouched. When no MIME
// type was declared it is guessed from the filename extension, then
// assumed to be PNG.
func DataURI(u Upload) (string, error) {
	mimeType := u.DeclaredMIMEType()
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(u.Name()))
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", nil
	}
	data, err := u.Bytes()
	if err != nil {
		return "", fmt.Errorf("read upload %s: %w", u.Name(), err)
	}
	if len(data) == 0 {
		return "", nil
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)), nil
}

// Memory is an in-memory Upload, used by tests and by callers that
// already hold the file content.
type Memory struct {
	FileName string
	MIME     string
	Content  []byte
}

func (m *Memory) Name() string             { return m.FileName }
func (m *Memory) Bytes() ([]byte, error)   { return m.Content, nil }
func (m *Memory) DeclaredMIMEType() string { return m.MIME }
