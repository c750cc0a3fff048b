// Package document holds the pure checks and transforms applied to a
// generated HTML document before it is handed back to the caller.
package document

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document is a generated HTML document retained for preview and
// download.
type Document struct {
	ID        string    `json:"id"`
	HTML      string    `json:"-"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

func New(html, model string) *Document {
	return &Document{
		ID:        uuid.New().String(),
		HTML:      html,
		Model:     model,
		CreatedAt: time.Now().UTC(),
	}
}

// Placeholder image references the model is instructed to emit. They
// are replaced literally, without parsing the surrounding markup.
const (
	AvatarPlaceholder = "avatar.png"
	QRPlaceholder     = "qr.png"
)

var accentColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate reports whether the model output is a well-formed document
// by structural prefix: trimmed, case-insensitive "<!doctype html".
// Anything else must be treated as a generation failure, not used
// partially.
func Validate(html string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(html)), "<!doctype html")
}

// ValidAccentColor reports whether color is a #RRGGBB hex value.
func ValidAccentColor(color string) bool {
	return accentColorPattern.MatchString(color)
}

// ApplyImageOverrides replaces the placeholder image references with
// real data URIs. At most one occurrence is replaced per placeholder
// per quote style; an empty URI leaves its placeholder untouched.
func ApplyImageOverrides(html, avatarURI, qrURI string) string {
	html = overrideSrc(html, AvatarPlaceholder, avatarURI)
	html = overrideSrc(html, QRPlaceholder, qrURI)
	return html
}

func overrideSrc(html, placeholder, uri string) string {
	if uri == "" {
		return html
	}
	html = strings.Replace(html, `src="`+placeholder+`"`, `src="`+uri+`"`, 1)
	html = strings.Replace(html, `src='`+placeholder+`'`, `src='`+uri+`'`, 1)
	return html
}
