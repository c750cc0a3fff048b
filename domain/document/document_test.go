package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		html  string
		valid bool
	}{
		{"standard declaration", "<!DOCTYPE html><html></html>", true},
		{"lowercase declaration", "<!doctype html>\n<html></html>", true},
		{"mixed case", "<!DocType HTML><html></html>", true},
		{"leading whitespace", "\n\t  <!DOCTYPE html><html></html>", true},
		{"empty string", "", false},
		{"missing declaration", "<html><body></body></html>", false},
		{"prose before declaration", "Here is your CV: <!DOCTYPE html>", false},
		{"malformed prefix", "<!DOCTYP html><html></html>", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, Validate(tt.html))
		})
	}
}

func TestValidAccentColor(t *testing.T) {
	assert.True(t, ValidAccentColor("#0b3a6e"))
	assert.True(t, ValidAccentColor("#FFFFFF"))
	assert.False(t, ValidAccentColor("0b3a6e"))
	assert.False(t, ValidAccentColor("#0b3a6"))
	assert.False(t, ValidAccentColor("#0b3a6ez"))
	assert.False(t, ValidAccentColor(""))
}

func TestApplyImageOverrides_BothQuoteStyles(t *testing.T) {
	html := `<img src="avatar.png"><img src='avatar.png'><img src="qr.png">`

	out := ApplyImageOverrides(html, "data:image/png;base64,AAA", "data:image/png;base64,BBB")

	assert.Equal(t, `<img src="data:image/png;base64,AAA"><img src='data:image/png;base64,AAA'><img src="data:image/png;base64,BBB">`, out)
}

func TestApplyImageOverrides_FirstOccurrenceOnly(t *testing.T) {
	html := strings.Repeat(`<img src="avatar.png">`, 3)

	out := ApplyImageOverrides(html, "data:image/png;base64,AAA", "")

	assert.Equal(t, 1, strings.Count(out, "data:image/png;base64,AAA"))
	assert.Equal(t, 2, strings.Count(out, `src="avatar.png"`))
}

func TestApplyImageOverrides_AbsentURIs(t *testing.T) {
	html := `<img src="avatar.png"><img src="qr.png">`

	assert.Equal(t, html, ApplyImageOverrides(html, "", ""))
}

func TestApplyImageOverrides_Idempotent(t *testing.T) {
	html := `<img src="avatar.png"><img src="qr.png">`

	once := ApplyImageOverrides(html, "data:a", "data:b")
	twice := ApplyImageOverrides(once, "data:a", "data:b")

	assert.Equal(t, once, twice)
}
