// Package mongodb implements MongoDB adapters for the application.
package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"indexer_server/core/domain"
	"indexer_server/core/port/out"
)

var _ out.BodyCache = (*BodyCacheAdapter)(nil)

// =============================================================================
// MongoDB Body Cache Adapter
// =============================================================================

const (
	collectionMailBodies = "mail_bodies"

	// Compression threshold - only compress if content is larger than this
	compressionThreshold = 1024 // 1KB

	defaultTTLDays = 7
)

// BodyCacheAdapter implements out.BodyCache using MongoDB. Bodies fetched
// during backfill land here so a re-walk after a mid-group failure does not
// re-download them; the TTL index ages entries out on its own.
type BodyCacheAdapter struct {
	collection *mongo.Collection
	ttl        time.Duration
}

// NewBodyCacheAdapter creates a new MongoDB body cache adapter.
func NewBodyCacheAdapter(db *mongo.Database, ttlDays int) *BodyCacheAdapter {
	if ttlDays <= 0 {
		ttlDays = defaultTTLDays
	}
	return &BodyCacheAdapter{
		collection: db.Collection(collectionMailBodies),
		ttl:        time.Duration(ttlDays) * 24 * time.Hour,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *BodyCacheAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "body_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0), // TTL index
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type mailBodyDocument struct {
	BodyID string `bson:"body_id"`

	// Content (potentially compressed)
	Text         []byte `bson:"text"`
	IsCompressed bool   `bson:"is_compressed"`
	OriginalSize int64  `bson:"original_size"`

	CachedAt  time.Time `bson:"cached_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// =============================================================================
// out.BodyCache
// =============================================================================

// GetBody returns the cached body, or nil on a miss.
func (a *BodyCacheAdapter) GetBody(ctx context.Context, bodyID string) (*domain.MailBody, error) {
	var doc mailBodyDocument
	err := a.collection.FindOne(ctx, bson.M{"body_id": bodyID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached body: %w", err)
	}

	text := doc.Text
	if doc.IsCompressed {
		text, err = decompress(text)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress cached body: %w", err)
		}
	}

	return &domain.MailBody{ID: doc.BodyID, Text: string(text)}, nil
}

// SaveBody upserts a body into the cache.
func (a *BodyCacheAdapter) SaveBody(ctx context.Context, body *domain.MailBody) error {
	text := []byte(body.Text)
	doc := mailBodyDocument{
		BodyID:       body.ID,
		Text:         text,
		OriginalSize: int64(len(text)),
		CachedAt:     time.Now(),
		ExpiresAt:    time.Now().Add(a.ttl),
	}

	if len(text) > compressionThreshold {
		compressed, err := compress(text)
		if err == nil && len(compressed) < len(text) {
			doc.Text = compressed
			doc.IsCompressed = true
		}
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := a.collection.ReplaceOne(ctx, bson.M{"body_id": body.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to cache body: %w", err)
	}
	return nil
}

// Purge drops the whole cache.
func (a *BodyCacheAdapter) Purge(ctx context.Context) error {
	if _, err := a.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to purge body cache: %w", err)
	}
	return nil
}

// =============================================================================
// Compression
// =============================================================================

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
