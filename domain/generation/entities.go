package generation

import (
	"encoding/json"
	"time"
)

// Core generation entities independent of frameworks and vendors

// ItemKind tags a ContentItem variant.
type ItemKind string

const (
	ItemText    ItemKind = "text"
	ItemImage   ItemKind = "image"
	ItemFile    ItemKind = "file"
	ItemWarning ItemKind = "warning"
)

// ContentItem is one unit of request payload attached to a message.
// Exactly which fields are populated depends on Kind: text and warning
// items carry Text, image items carry MIME and Data, file items carry
// Filename, MIME and Data. Data is always base64 without the data-URI
// prefix; the wire encoding belongs to the provider layer.
type ContentItem struct {
	Kind     ItemKind `json:"kind"`
	Text     string   `json:"text,omitempty"`
	MIME     string   `json:"mime,omitempty"`
	Filename string   `json:"filename,omitempty"`
	Data     string   `json:"data,omitempty"`
}

func TextItem(text string) ContentItem {
	return ContentItem{Kind: ItemText, Text: text}
}

func ImageItem(mime, base64Data string) ContentItem {
	return ContentItem{Kind: ItemImage, MIME: mime, Data: base64Data}
}

func FileItem(filename, mime, base64Data string) ContentItem {
	return ContentItem{Kind: ItemFile, Filename: filename, MIME: mime, Data: base64Data}
}

func WarningItem(text string) ContentItem {
	return ContentItem{Kind: ItemWarning, Text: text}
}

// Message roles. Extra messages supplied by the caller keep whatever
// role they arrived with.
const (
	RoleDeveloper = "developer"
	RoleUser      = "user"
)

type Message struct {
	Role    string        `json:"role"`
	Content []ContentItem `json:"content"`
}

// RequestConfig carries the per-call knobs for one completion request.
// Nil optionals are omitted from the outbound body entirely so the API
// keeps its own defaults.
type RequestConfig struct {
	Model           string
	Temperature     *float64
	MaxOutputTokens *int
	Stream          bool
	Timeout         time.Duration
	MaxFileBytes    int64

	// Pass-through shaping parameters, sent verbatim when non-nil.
	Reasoning json.RawMessage
	Text      json.RawMessage
}

// FileResult is the per-file outcome of normalization. A failed file
// carries Err and no items; the caller decides the partial-success
// policy instead of unwinding the whole request.
type FileResult struct {
	Path  string
	Items []ContentItem
	Err   error
}
