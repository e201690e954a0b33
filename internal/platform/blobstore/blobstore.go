// Package blobstore stores uploaded files (doctor verification documents,
// medicine images) on local disk or in MinIO.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound     = errors.New("file not found")
	ErrNoFile       = errors.New("no file was uploaded")
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	ErrInvalidType  = errors.New("file type is not allowed")
	ErrStoreFailed  = errors.New("file could not be stored")
)

// UserMessage maps an upload error to text safe to show in a flash.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoFile):
		return "Please choose a file to upload."
	case errors.Is(err, ErrFileTooLarge):
		return "The uploaded file is too large."
	case errors.Is(err, ErrInvalidType):
		return "The uploaded file type is not allowed."
	default:
		return "The file could not be uploaded. Please try again."
	}
}

// IsUploadError reports whether err came from validating or storing an
// upload, as opposed to a later failure.
func IsUploadError(err error) bool {
	return errors.Is(err, ErrNoFile) || errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrInvalidType) || errors.Is(err, ErrStoreFailed)
}

// Store is the contract for upload backends. Keys are slash separated.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(ctx context.Context, key string) (string, error)
}

// Rules restrict one kind of upload.
type Rules struct {
	Prefix  string
	MaxSize int64
	// Types maps lower-case extensions to the MIME types sniffed content may have.
	Types map[string][]string
}

var (
	DocumentRules = Rules{
		Prefix:  "doctors/verification",
		MaxSize: 5 << 20,
		Types: map[string][]string{
			".pdf":  {"application/pdf"},
			".jpg":  {"image/jpeg"},
			".jpeg": {"image/jpeg"},
			".png":  {"image/png"},
		},
	}
	ImageRules = Rules{
		Prefix:  "medicines",
		MaxSize: 2 << 20,
		Types: map[string][]string{
			".jpg":  {"image/jpeg"},
			".jpeg": {"image/jpeg"},
			".png":  {"image/png"},
			".gif":  {"image/gif"},
			".webp": {"image/webp"},
		},
	}
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9]`)

// SanitizeFileName strips every non-alphanumeric character from the base
// name and suffixes the unix timestamp: "My Scan (1).PDF" -> "MyScan1_1714550400.pdf".
func SanitizeFileName(name string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(name))
	base := unsafeChars.ReplaceAllString(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)), "")
	if base == "" {
		base = "file"
	}
	if len(base) > 64 {
		base = base[:64]
	}
	ext = "." + unsafeChars.ReplaceAllString(strings.TrimPrefix(ext, "."), "")
	if ext == "." {
		ext = ""
	}
	return fmt.Sprintf("%s_%d%s", base, now.Unix(), ext)
}

// SaveUpload validates a multipart file against rules and stores it. It
// returns the storage key.
func SaveUpload(ctx context.Context, store Store, fh *multipart.FileHeader, rules Rules) (string, error) {
	if fh == nil || fh.Filename == "" || fh.Size == 0 {
		return "", ErrNoFile
	}
	if rules.MaxSize > 0 && fh.Size > rules.MaxSize {
		return "", ErrFileTooLarge
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	mimes, ok := rules.Types[ext]
	if !ok {
		return "", ErrInvalidType
	}

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open upload: %v", ErrStoreFailed, err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%w: read upload: %v", ErrStoreFailed, err)
	}
	head = head[:n]
	sniffed := http.DetectContentType(head)
	if !mimeAllowed(sniffed, mimes) {
		return "", ErrInvalidType
	}

	key := rules.Prefix + "/" + SanitizeFileName(fh.Filename, time.Now())
	body := io.MultiReader(bytes.NewReader(head), f)
	if err := store.Put(ctx, key, body, fh.Size, mimes[0]); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return key, nil
}

func mimeAllowed(sniffed string, allowed []string) bool {
	sniffed, _, _ = strings.Cut(sniffed, ";")
	for _, m := range allowed {
		if sniffed == m {
			return true
		}
	}
	return false
}

// MemoryStore is a thread-safe in-memory Store for tests and development.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading content: %w", err)
	}
	s.mu.Lock()
	s.blobs[key] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, key)
	return nil
}

func (s *MemoryStore) URL(_ context.Context, key string) (string, error) {
	return "/uploads/" + key, nil
}

// Has reports whether key is stored.
func (s *MemoryStore) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[key]
	return ok
}

// Keys lists the stored keys in no particular order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.blobs))
	for k := range s.blobs {
		out = append(out, k)
	}
	return out
}
