package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"

	"github.com/msvee3/Interview-prep/internal/interview"
)

const DefaultBucket = "interview-transcripts"

type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Enabled reports whether enough is configured to upload records.
func (c Config) Enabled() bool {
	return c.URL != "" && c.ServiceRoleKey != ""
}

type uploader interface {
	Upload(key, contentType string, data []byte) error
}

// Store uploads finished interview records as JSON objects named <id>.json.
type Store struct {
	up uploader
}

var _ interview.Archiver = (*Store)(nil)

// NewSupabase returns a Store backed by a Supabase Storage bucket.
func NewSupabase(cfg Config) (*Store, error) {
	if !cfg.Enabled() {
		return nil, errors.New("archive: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Store{up: &bucket{files: client.Storage, name: cfg.Bucket}}, nil
}

// Archive uploads rec, replacing any earlier copy.
func (s *Store) Archive(ctx context.Context, rec interview.Record) error {
	if rec.ID == "" {
		return errors.New("archive: record has no id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	key := rec.ID + ".json"
	if err := s.up.Upload(key, "application/json", data); err != nil {
		return err
	}
	log.Printf("[%s] archived %d turns (%d bytes)", rec.ID, len(rec.History), len(data))
	return nil
}

// storageAPI is the part of the Supabase Storage client the bucket uses.
type storageAPI interface {
	UploadFile(bucketID, relativePath string, data io.Reader, opts ...storage_go.FileOptions) (storage_go.FileUploadResponse, error)
}

type bucket struct {
	files storageAPI
	name  string
}

// Upload creates the object, or overwrites it when it already exists.
func (b *bucket) Upload(key, contentType string, data []byte) error {
	upsert := true
	opts := storage_go.FileOptions{ContentType: &contentType, Upsert: &upsert}
	if _, err := b.files.UploadFile(b.name, key, bytes.NewReader(data), opts); err != nil {
		return fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	return nil
}
