package httpiface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	appgen "github.com/fjgonzalezmgt/cv-maker/application/generation"
	"github.com/fjgonzalezmgt/cv-maker/domain/document"
	"github.com/fjgonzalezmgt/cv-maker/domain/generation"
	"github.com/fjgonzalezmgt/cv-maker/infrastructure/store"
)

type GenerationService interface {
	Generate(ctx context.Context, in appgen.Input) (*document.Document, error)
	GenerateStream(ctx context.Context, in appgen.Input) (*appgen.StreamSession, error)
}

type BreakerMonitor interface {
	States() map[string]gobreaker.State
}

type Router struct {
	service     GenerationService
	documents   *store.DocumentStore
	corsOrigins []string
	breakers    BreakerMonitor
}

func NewRouter(service GenerationService, documents *store.DocumentStore, corsOrigins []string) *Router {
	return &Router{
		service:     service,
		documents:   documents,
		corsOrigins: corsOrigins,
	}
}

// WithBreakerMonitor exposes circuit breaker states on the health endpoint.
func (r *Router) WithBreakerMonitor(monitor BreakerMonitor) *Router {
	r.breakers = monitor
	return r
}

func (r *Router) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(r.corsMiddleware())

	// Health endpoints - no versioning so monitoring tools stay stable
	router.GET("/live", r.liveness)
	router.GET("/ready", r.readiness)
	router.GET("/health", r.healthCheck)

	api := router.Group("/v1")
	api.POST("/generate", r.generate)
	api.POST("/generate/stream", r.generateStream)
	api.GET("/documents/:id", r.getDocument)
	api.GET("/documents/:id/download", r.downloadDocument)

	return router
}

func (r *Router) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqOrigin := c.GetHeader("Origin")
		if reqOrigin == "" {
			c.Header("Access-Control-Allow-Origin", strings.Join(r.corsOrigins, ", "))
		} else {
			allowOrigin := ""
			if len(r.corsOrigins) == 1 && r.corsOrigins[0] == "*" {
				allowOrigin = "*"
			} else {
				for _, allowed := range r.corsOrigins {
					if allowed == reqOrigin {
						allowOrigin = reqOrigin
						break
					}
				}
			}
			if allowOrigin != "" {
				c.Header("Access-Control-Allow-Origin", allowOrigin)
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (r *Router) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) readiness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) healthCheck(c *gin.Context) {
	checks := gin.H{
		"api":       "ok",
		"documents": r.documents.Len(),
	}
	if r.breakers != nil {
		states := gin.H{}
		for model, state := range r.breakers.States() {
			states[model] = state.String()
		}
		checks["circuit_breakers"] = states
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "cv-maker",
		"checks":    checks,
	})
}

// parseInput reads the multipart form into a generation input plus the
// temp file cleanup function. The cleanup must run on every exit path.
func (r *Router) parseInput(c *gin.Context) (appgen.Input, func(), error) {
	cleanup := func() {}

	in := appgen.Input{
		Brief:             c.PostForm("brief"),
		AccentColor:       c.PostForm("accent_color"),
		Model:             c.PostForm("model"),
		IncludeAccentHint: true,
	}

	if raw := c.PostForm("include_accent_hint"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return in, cleanup, fmt.Errorf("invalid include_accent_hint value %q", raw)
		}
		in.IncludeAccentHint = parsed
	}
	if raw := c.PostForm("max_output_tokens"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return in, cleanup, fmt.Errorf("invalid max_output_tokens value %q", raw)
		}
		in.MaxOutputTokens = parsed
	}

	if header, err := c.FormFile("avatar"); err == nil {
		in.Avatar = &formUpload{header: header}
	}
	if header, err := c.FormFile("qr"); err == nil {
		in.QR = &formUpload{header: header}
	}

	form, err := c.MultipartForm()
	if err != nil {
		return in, cleanup, nil
	}

	// Attachments (and the avatar/QR images, which double as visual
	// context) are persisted to per-request temp files for the
	// normalizer. They are removed as soon as the request finishes.
	var headers []*multipart.FileHeader
	headers = append(headers, form.File["files"]...)
	if in.Avatar != nil {
		headers = append(headers, in.Avatar.(*formUpload).header)
	}
	if in.QR != nil {
		headers = append(headers, in.QR.(*formUpload).header)
	}
	if len(headers) == 0 {
		return in, cleanup, nil
	}

	paths, cleanup, err := persistTempFiles(headers)
	if err != nil {
		cleanup()
		return in, func() {}, err
	}
	in.Files = paths
	return in, cleanup, nil
}

func persistTempFiles(headers []*multipart.FileHeader) ([]string, func(), error) {
	dir, err := os.MkdirTemp("", "cv-maker-*")
	if err != nil {
		return nil, func() {}, err
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			logrus.WithError(err).WithField("dir", dir).Warn("Failed to remove temp upload directory")
		}
	}

	paths := make([]string, 0, len(headers))
	for i, header := range headers {
		src, err := header.Open()
		if err != nil {
			return nil, cleanup, err
		}
		// prefix avoids collisions between same-named uploads
		path := filepath.Join(dir, fmt.Sprintf("%d-%s", i, filepath.Base(header.Filename)))
		dst, err := os.Create(path)
		if err != nil {
			src.Close()
			return nil, cleanup, err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, cleanup, err
		}
		paths = append(paths, path)
	}
	return paths, cleanup, nil
}

func (r *Router) generate(c *gin.Context) {
	in, cleanup, err := r.parseInput(c)
	defer cleanup()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := r.service.Generate(c.Request.Context(), in)
	if err != nil {
		r.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           doc.ID,
		"model":        doc.Model,
		"created_at":   doc.CreatedAt,
		"html":         doc.HTML,
		"preview_url":  "/v1/documents/" + doc.ID,
		"download_url": "/v1/documents/" + doc.ID + "/download",
	})
}

func (r *Router) generateStream(c *gin.Context) {
	in, cleanup, err := r.parseInput(c)
	defer cleanup()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := r.service.GenerateStream(c.Request.Context(), in)
	if err != nil {
		r.writeServiceError(c, err)
		return
	}
	defer session.Stream.Close()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported by server"})
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	var sb strings.Builder
	for {
		fragment, err := session.Stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			logrus.WithError(err).Error("Streaming failed mid-response")
			writeSSE(c, flusher, "error", err.Error())
			return
		}
		sb.WriteString(fragment)
		writeSSE(c, flusher, "delta", fragment)
	}

	doc, err := session.Finalize(sb.String())
	if err != nil {
		logrus.WithError(err).Error("Failed to finalize streamed document")
		writeSSE(c, flusher, "error", err.Error())
		return
	}

	writeSSE(c, flusher, "document", doc.ID)
	c.Writer.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

func writeSSE(c *gin.Context, flusher http.Flusher, event, data string) {
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

func (r *Router) getDocument(c *gin.Context) {
	doc, ok := r.documents.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc.HTML))
}

func (r *Router) downloadDocument(c *gin.Context) {
	doc, ok := r.documents.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="cv.html"`)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc.HTML))
}

func (r *Router) writeServiceError(c *gin.Context, err error) {
	var verr *appgen.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
		return
	}
	if errors.Is(err, generation.ErrMissingCredential) {
		logrus.Error("Generation rejected: API key not configured")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "API credential not configured"})
		return
	}
	if errors.Is(err, generation.ErrInvalidResponse) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Model did not return a valid HTML document"})
		return
	}
	var apiErr *generation.APIError
	if errors.As(err, &apiErr) {
		logrus.WithError(apiErr).Error("Upstream API call failed")
		if apiErr.Status == http.StatusTooManyRequests {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Upstream rate limit exceeded, try again later"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream API request failed"})
		return
	}
	logrus.WithError(err).Error("Generation failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
}

// formUpload adapts a multipart file header to the upload capability
// the domain expects.
type formUpload struct {
	header *multipart.FileHeader
}

func (f *formUpload) Name() string { return f.header.Filename }

func (f *formUpload) DeclaredMIMEType() string { return f.header.Header.Get("Content-Type") }

func (f *formUpload) Bytes() ([]byte, error) {
	src, err := f.header.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}
