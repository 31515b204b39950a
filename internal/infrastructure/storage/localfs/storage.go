package localfs

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bbcollect/ap-docflow/internal/core/domain"
)

// Storage keeps document blobs on the local filesystem and hands out
// HMAC-signed locators served back through the API. A locator is valid
// for a fixed window (15 minutes by default) and grants read access only.
type Storage struct {
	basePath string
	baseURL  string
	secret   []byte
	ttl      time.Duration

	now func() time.Time
}

const DefaultURLTTL = 15 * time.Minute

func New(basePath, baseURL, signSecret string, ttl time.Duration) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if signSecret == "" {
		return nil, fmt.Errorf("blob sign secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
		secret:   []byte(signSecret),
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	if err := validateKey(key); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(s.basePath, key))
	if err != nil {
		return fmt.Errorf("create blob file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("write blob file: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.basePath, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "open blob", err)
		}
		return nil, fmt.Errorf("open blob file: %w", err)
	}
	return f, nil
}

// SignedURL returns a read-only locator for the blob, valid until the TTL
// elapses.
func (s *Storage) SignedURL(_ context.Context, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	expires := s.now().Add(s.ttl).Unix()
	sig := s.sign(key, expires)
	return fmt.Sprintf("%s/v1/blobs/%s?expires=%d&signature=%s",
		s.baseURL, url.PathEscape(key), expires, sig), nil
}

// Verify checks a presented expiry and signature for a key. Expired or
// tampered locators are rejected as unauthorized.
func (s *Storage) Verify(key string, expires int64, signature string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if s.now().Unix() > expires {
		return domain.WrapError(domain.ErrUnauthorized, "verify blob locator",
			fmt.Errorf("locator expired at %s", time.Unix(expires, 0).UTC().Format(time.RFC3339)))
	}
	want := s.sign(key, expires)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return domain.WrapError(domain.ErrUnauthorized, "verify blob locator",
			fmt.Errorf("signature mismatch for key %s", key))
	}
	return nil
}

func (s *Storage) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key))
	mac.Write([]byte(":"))
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Blob keys are flat: document ids produced at ingest. Anything that
// could escape the storage dir is rejected outright.
func validateKey(key string) error {
	if key == "" || strings.Contains(key, "/") || strings.Contains(key, "\\") || strings.Contains(key, "..") {
		return domain.WrapError(domain.ErrInvalidArgument, "validate blob key",
			fmt.Errorf("malformed key %q", key))
	}
	return nil
}
