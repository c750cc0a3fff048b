// Package store keeps generated documents in a bounded in-memory cache
// so they can be previewed and downloaded after generation. Old entries
// are evicted least-recently-used once the capacity is reached.
package store

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/fjgonzalezmgt/cv-maker/domain/document"
)

// DocumentStore is a fixed-capacity LRU store of generated documents
// keyed by ID. Safe for concurrent use.
type DocumentStore struct {
	cache *lru.Cache[string, *document.Document]
}

func New(capacity int) (*DocumentStore, error) {
	cache, err := lru.NewWithEvict[string, *document.Document](capacity,
		func(id string, _ *document.Document) {
			logrus.WithField("document_id", id).Debug("Evicted document from store")
		})
	if err != nil {
		return nil, err
	}
	return &DocumentStore{cache: cache}, nil
}

// Put stores html under a fresh ID and returns the stored document.
func (s *DocumentStore) Put(html, model string) *document.Document {
	doc := document.New(html, model)
	s.cache.Add(doc.ID, doc)
	return doc
}

func (s *DocumentStore) Get(id string) (*document.Document, bool) {
	return s.cache.Get(id)
}

func (s *DocumentStore) Len() int {
	return s.cache.Len()
}

// Purge removes entries older than maxAge and returns how many were
// dropped. Intended for periodic housekeeping.
func (s *DocumentStore) Purge(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, id := range s.cache.Keys() {
		if doc, ok := s.cache.Peek(id); ok && doc.CreatedAt.Before(cutoff) {
			s.cache.Remove(id)
			removed++
		}
	}
	return removed
}
