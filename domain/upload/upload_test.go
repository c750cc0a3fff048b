package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataURI_Image(t *testing.T) {
	u := &Memory{FileName: "avatar.png", MIME: "image/png", Content: []byte{0x89, 0x50, 0x4e, 0x47}}

	uri, err := DataURI(u)

	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,iVBORw==", uri)
}

func TestDataURI_GuessesMIMEFromFilename(t *testing.T) {
	u := &Memory{FileName: "photo.jpg", Content: []byte("jpegdata")}

	uri, err := DataURI(u)

	require.NoError(t, err)
	assert.Contains(t, uri, "data:image/jpeg;base64,")
}

func TestDataURI_GuessedNonImageRejected(t *testing.T) {
	u := &Memory{FileName: "cv.pdf", Content: []byte("%PDF-1.4")}

	uri, err := DataURI(u)

	require.NoError(t, err)
	assert.Empty(t, uri)
}

func TestDataURI_DefaultsToPNG(t *testing.T) {
	u := &Memory{FileName: "avatar", Content: []byte("abc")}

	uri, err := DataURI(u)

	require.NoError(t, err)
	assert.True(t, len(uri) > 0)
	assert.Contains(t, uri, "data:image/png;base64,")
}

func TestDataURI_NonImage(t *testing.T) {
	u := &Memory{FileName: "cv.pdf", MIME: "application/pdf", Content: []byte("%PDF-1.4")}

	uri, err := DataURI(u)

	require.NoError(t, err)
	assert.Empty(t, uri)
}

func TestDataURI_EmptyContent(t *testing.T) {
	u := &Memory{FileName: "empty.png", MIME: "image/png"}

	uri, err := DataURI(u)

	require.NoError(t, err)
	assert.Empty(t, uri)
}
