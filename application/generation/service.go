// Package generation orchestrates a document generation request: it
// normalizes attachments, assembles the model conversation, calls the
// completion transport, validates the returned HTML, applies image
// overrides, and stores the result for later retrieval.
package generation

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/fjgonzalezmgt/cv-maker/domain/document"
	"github.com/fjgonzalezmgt/cv-maker/domain/generation"
	"github.com/fjgonzalezmgt/cv-maker/domain/upload"
	"github.com/fjgonzalezmgt/cv-maker/infrastructure/store"
	"github.com/fjgonzalezmgt/cv-maker/internal/config"
)

// ValidationError reports an unusable field in a generation request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Input carries everything a single generation needs. Avatar and QR
// are optional image uploads embedded into the final document; Files
// are paths to already-persisted context attachments.
type Input struct {
	Brief             string
	AccentColor       string
	IncludeAccentHint bool
	Model             string
	MaxOutputTokens   int
	Avatar            upload.Upload
	QR                upload.Upload
	Files             []string
}

type Service struct {
	completer  generation.CompletionPort
	streamer   generation.StreamPort
	normalizer generation.Normalizer
	store      *store.DocumentStore
	cfg        *config.Config

	systemPrompt string
}

func NewService(
	completer generation.CompletionPort,
	streamer generation.StreamPort,
	normalizer generation.Normalizer,
	docs *store.DocumentStore,
	cfg *config.Config,
	systemPrompt string,
) *Service {
	return &Service{
		completer:    completer,
		streamer:     streamer,
		normalizer:   normalizer,
		store:        docs,
		cfg:          cfg,
		systemPrompt: systemPrompt,
	}
}

// BuildBrief assembles the user message text from the brief and the
// request options. Hints about the accent color and the placeholder
// images are appended as separate paragraphs so the model treats them
// as instructions rather than profile content.
func BuildBrief(brief, accent string, includeAccentHint, hasAvatar, hasQR bool) string {
	parts := []string{strings.TrimSpace(brief)}
	if includeAccentHint && accent != "" {
		parts = append(parts, "Preferred accent color: "+accent)
	}
	if hasAvatar {
		parts = append(parts, `A profile photo was provided; keep the attribute src="avatar.png" in the HTML.`)
	}
	if hasQR {
		parts = append(parts, `A LinkedIn QR code was provided; keep the attribute src="qr.png" in the HTML.`)
	}
	return strings.Join(parts, "\n\n")
}

// Generate runs the full pipeline and returns the stored document.
func (s *Service) Generate(ctx context.Context, in Input) (*document.Document, error) {
	prep, err := s.prepare(in)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := s.completer.Complete(ctx, prep.request, prep.messages)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"model":       prep.request.Model,
		"duration_ms": time.Since(start).Milliseconds(),
		"html_bytes":  len(raw),
	}).Info("Generation completed")

	return s.finalize(raw, prep)
}

// StreamSession is a streaming generation in flight. The caller drains
// Stream, concatenating the fragments itself (typically relaying them
// to its own client as they arrive), then hands the full text to
// Finalize for validation, image overrides, and storage.
type StreamSession struct {
	Stream   *generation.TextStream
	finalize func(raw string) (*document.Document, error)
}

// NewStreamSession pairs a stream with its finalize step. Exposed so
// interface-layer tests can fake streaming generations.
func NewStreamSession(stream *generation.TextStream, finalize func(string) (*document.Document, error)) *StreamSession {
	return &StreamSession{Stream: stream, finalize: finalize}
}

func (s *StreamSession) Finalize(raw string) (*document.Document, error) {
	return s.finalize(raw)
}

// GenerateStream starts a streaming generation.
func (s *Service) GenerateStream(ctx context.Context, in Input) (*StreamSession, error) {
	prep, err := s.prepare(in)
	if err != nil {
		return nil, err
	}

	prep.request.Stream = true
	stream, err := s.streamer.Stream(ctx, prep.request, prep.messages)
	if err != nil {
		return nil, err
	}
	return &StreamSession{
		Stream:   stream,
		finalize: func(raw string) (*document.Document, error) { return s.finalize(raw, prep) },
	}, nil
}

type prepared struct {
	request   generation.RequestConfig
	messages  []generation.Message
	avatarURI string
	qrURI     string
}

func (s *Service) prepare(in Input) (*prepared, error) {
	brief := strings.TrimSpace(in.Brief)
	if brief == "" {
		return nil, &ValidationError{Field: "brief", Message: "must not be empty"}
	}
	if utf8.RuneCountInString(in.Brief) > s.cfg.Generation.MaxBriefLength {
		return nil, &ValidationError{
			Field:   "brief",
			Message: fmt.Sprintf("exceeds maximum length of %d characters", s.cfg.Generation.MaxBriefLength),
		}
	}

	accent := in.AccentColor
	if accent == "" {
		accent = s.cfg.Generation.DefaultAccentColor
	}
	if !document.ValidAccentColor(accent) {
		return nil, &ValidationError{Field: "accent_color", Message: "must be a #RRGGBB hex value"}
	}

	model := in.Model
	if model == "" {
		model = s.cfg.OpenAI.DefaultModel
	}
	if !s.cfg.ModelAllowed(model) {
		return nil, &ValidationError{
			Field:   "model",
			Message: fmt.Sprintf("%q is not in the allowed model list", model),
		}
	}

	tokens := in.MaxOutputTokens
	if tokens == 0 {
		tokens = s.cfg.Generation.DefaultMaxTokens
	}
	tokens = s.cfg.ClampTokens(tokens)

	items, err := s.collectItems(in)
	if err != nil {
		return nil, err
	}

	userText := BuildBrief(brief, accent, in.IncludeAccentHint, in.Avatar != nil, in.QR != nil)
	messages, err := generation.BuildInput(s.systemPrompt, userText, items, nil)
	if err != nil {
		return nil, err
	}

	avatarURI, err := imageURI(in.Avatar)
	if err != nil {
		return nil, err
	}
	qrURI, err := imageURI(in.QR)
	if err != nil {
		return nil, err
	}

	temperature := s.cfg.OpenAI.Temperature
	return &prepared{
		request: generation.RequestConfig{
			Model:           model,
			Temperature:     &temperature,
			MaxOutputTokens: &tokens,
			Timeout:         s.cfg.OpenAI.Timeout,
			MaxFileBytes:    s.cfg.Files.MaxFileBytes,
		},
		messages:  messages,
		avatarURI: avatarURI,
		qrURI:     qrURI,
	}, nil
}

func imageURI(u upload.Upload) (string, error) {
	if u == nil {
		return "", nil
	}
	return upload.DataURI(u)
}

// collectItems normalizes every context attachment. Individual
// failures are skipped with a warning; the request only aborts when
// files were supplied and none survived.
func (s *Service) collectItems(in Input) ([]generation.ContentItem, error) {
	if len(in.Files) == 0 {
		return nil, nil
	}

	var items []generation.ContentItem
	failed := 0
	for _, result := range s.normalizer.NormalizeAll(in.Files, s.cfg.Files.MaxFileBytes) {
		if result.Err != nil {
			failed++
			logrus.WithFields(logrus.Fields{
				"path":  result.Path,
				"error": result.Err,
			}).Warn("Skipping attachment that could not be processed")
			continue
		}
		items = append(items, result.Items...)
	}
	if failed == len(in.Files) {
		return nil, &ValidationError{Field: "files", Message: "none of the attached files could be processed"}
	}
	return items, nil
}

func (s *Service) finalize(raw string, prep *prepared) (*document.Document, error) {
	if !document.Validate(raw) {
		logrus.WithField("model", prep.request.Model).Error("Model response is not a valid HTML document")
		return nil, generation.ErrInvalidResponse
	}
	html := document.ApplyImageOverrides(raw, prep.avatarURI, prep.qrURI)
	doc := s.store.Put(html, prep.request.Model)
	logrus.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"html_bytes":  len(html),
	}).Info("Stored generated document")
	return doc, nil
}
