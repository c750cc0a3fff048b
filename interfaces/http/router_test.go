package httpiface

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appgen "github.com/fjgonzalezmgt/cv-maker/application/generation"
	"github.com/fjgonzalezmgt/cv-maker/domain/document"
	"github.com/fjgonzalezmgt/cv-maker/domain/generation"
	"github.com/fjgonzalezmgt/cv-maker/infrastructure/store"
)

const validHTML = "<!DOCTYPE html><html><body>cv</body></html>"

type fakeService struct {
	docs *store.DocumentStore

	err     error
	gotIn   appgen.Input
	chunks  []string
	called  bool
	streams bool
}

func (f *fakeService) Generate(_ context.Context, in appgen.Input) (*document.Document, error) {
	f.called = true
	f.gotIn = in
	if f.err != nil {
		return nil, f.err
	}
	return f.docs.Put(validHTML, "gpt-4.1-mini"), nil
}

func (f *fakeService) GenerateStream(_ context.Context, in appgen.Input) (*appgen.StreamSession, error) {
	f.streams = true
	f.gotIn = in
	if f.err != nil {
		return nil, f.err
	}
	i := 0
	stream := generation.NewTextStream(func() (string, error) {
		if i >= len(f.chunks) {
			return "", io.EOF
		}
		chunk := f.chunks[i]
		i++
		return chunk, nil
	}, nil)
	return appgen.NewStreamSession(stream, func(raw string) (*document.Document, error) {
		if !document.Validate(raw) {
			return nil, generation.ErrInvalidResponse
		}
		return f.docs.Put(raw, "gpt-4.1-mini"), nil
	}), nil
}

func newTestRouter(t *testing.T, service *fakeService) (*Router, *store.DocumentStore) {
	t.Helper()
	docs, err := store.New(16)
	require.NoError(t, err)
	service.docs = docs
	return NewRouter(service, docs, []string{"*"}), docs
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for name, content := range files {
		part, err := writer.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestGenerateEndpoint(t *testing.T) {
	service := &fakeService{}
	router, _ := newTestRouter(t, service)
	engine := router.SetupRoutes()

	body, contentType := multipartBody(t, map[string]string{
		"brief":             "data analyst, 5 years",
		"accent_color":      "#0b3a6e",
		"model":             "gpt-4.1",
		"max_output_tokens": "4000",
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/generate", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, service.called)
	assert.Equal(t, "data analyst, 5 years", service.gotIn.Brief)
	assert.Equal(t, "#0b3a6e", service.gotIn.AccentColor)
	assert.Equal(t, "gpt-4.1", service.gotIn.Model)
	assert.Equal(t, 4000, service.gotIn.MaxOutputTokens)
	assert.True(t, service.gotIn.IncludeAccentHint)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["id"])
	assert.Equal(t, validHTML, resp["html"])
	assert.Contains(t, resp["download_url"], "/download")
}

func TestGenerateEndpointUploads(t *testing.T) {
	service := &fakeService{}
	router, _ := newTestRouter(t, service)
	engine := router.SetupRoutes()

	body, contentType := multipartBody(t, map[string]string{
		"brief":               "brief",
		"include_accent_hint": "false",
	}, map[string][]byte{
		"avatar": {0x89, 0x50, 0x4e, 0x47},
		"qr":     {0x89, 0x50, 0x4e, 0x47},
		"files":  []byte("previous cv text"),
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/generate", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, service.gotIn.IncludeAccentHint)
	require.NotNil(t, service.gotIn.Avatar)
	assert.Equal(t, "avatar.png", service.gotIn.Avatar.Name())
	require.NotNil(t, service.gotIn.QR)
	// the context attachment plus both images land in temp files
	assert.Len(t, service.gotIn.Files, 3)
}

func TestGenerateEndpointBadForm(t *testing.T) {
	service := &fakeService{}
	router, _ := newTestRouter(t, service)
	engine := router.SetupRoutes()

	body, contentType := multipartBody(t, map[string]string{
		"brief":             "brief",
		"max_output_tokens": "lots",
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/generate", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, service.called)
}

func TestGenerateEndpointErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"validation", &appgen.ValidationError{Field: "brief", Message: "must not be empty"}, http.StatusBadRequest},
		{"missing credential", generation.ErrMissingCredential, http.StatusServiceUnavailable},
		{"invalid model output", generation.ErrInvalidResponse, http.StatusBadGateway},
		{"rate limited", &generation.APIError{Status: 429, Message: "slow down"}, http.StatusTooManyRequests},
		{"upstream failure", &generation.APIError{Status: 500, Message: "boom"}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &fakeService{err: tt.err}
			router, _ := newTestRouter(t, service)
			engine := router.SetupRoutes()

			body, contentType := multipartBody(t, map[string]string{"brief": "brief"}, nil)
			req := httptest.NewRequest(http.MethodPost, "/v1/generate", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestGenerateStreamEndpoint(t *testing.T) {
	service := &fakeService{chunks: []string{"<!DOCTYPE html>", "<html></html>"}}
	router, docs := newTestRouter(t, service)
	engine := router.SetupRoutes()

	body, contentType := multipartBody(t, map[string]string{"brief": "brief"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/generate/stream", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, service.streams)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	assert.Contains(t, out, "event: delta\ndata: <!DOCTYPE html>\n\n")
	assert.Contains(t, out, "event: document\n")
	assert.Contains(t, out, "data: [DONE]")
	assert.Equal(t, 1, docs.Len())
}

func TestGenerateStreamEndpointInvalidOutput(t *testing.T) {
	service := &fakeService{chunks: []string{"nope"}}
	router, docs := newTestRouter(t, service)
	engine := router.SetupRoutes()

	body, contentType := multipartBody(t, map[string]string{"brief": "brief"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/generate/stream", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	out := rec.Body.String()
	assert.Contains(t, out, "event: error\n")
	assert.NotContains(t, out, "data: [DONE]")
	assert.Equal(t, 0, docs.Len())
}

func TestDocumentEndpoints(t *testing.T) {
	service := &fakeService{}
	router, docs := newTestRouter(t, service)
	engine := router.SetupRoutes()

	doc := docs.Put(validHTML, "gpt-4.1-mini")

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/documents/"+doc.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, validHTML, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/documents/"+doc.ID+"/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="cv.html"`, rec.Header().Get("Content-Disposition"))

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/documents/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	service := &fakeService{}
	router, _ := newTestRouter(t, service)
	engine := router.SetupRoutes()

	for _, path := range []string{"/live", "/ready", "/health"} {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestCORSMiddleware(t *testing.T) {
	service := &fakeService{}
	router, _ := newTestRouter(t, service)
	engine := router.SetupRoutes()

	req := httptest.NewRequest(http.MethodOptions, "/v1/generate", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORSSpecificOrigin(t *testing.T) {
	service := &fakeService{}
	docs, err := store.New(4)
	require.NoError(t, err)
	service.docs = docs
	router := NewRouter(service, docs, []string{"http://allowed.test"})
	engine := router.SetupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("Origin", "http://denied.test")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("Origin", "http://allowed.test")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, "http://allowed.test", rec.Header().Get("Access-Control-Allow-Origin"))
}
