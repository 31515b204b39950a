package localfs

import (
	"context"
	"io"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bbcollect/ap-docflow/internal/core/domain"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(t.TempDir(), "http://api.local", "test-secret", 15*time.Minute)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestSaveAndOpenRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	if err := s.Save(context.Background(), "doc-1.pdf", strings.NewReader("%PDF-1.7 body")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	rc, err := s.Open(context.Background(), "doc-1.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(raw) != "%PDF-1.7 body" {
		t.Fatalf("blob content = %q", raw)
	}
}

func TestOpenMissingBlobReturnsNotFound(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.Open(context.Background(), "missing.pdf"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestSignedURLVerifiesWithinWindow(t *testing.T) {
	s := newTestStorage(t)

	signed, err := s.SignedURL(context.Background(), "doc-1.pdf")
	if err != nil {
		t.Fatalf("SignedURL() error = %v", err)
	}

	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	expires, err := strconv.ParseInt(parsed.Query().Get("expires"), 10, 64)
	if err != nil {
		t.Fatalf("parse expires: %v", err)
	}
	signature := parsed.Query().Get("signature")

	if err := s.Verify("doc-1.pdf", expires, signature); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func TestVerifyRejectsExpiredLocator(t *testing.T) {
	s := newTestStorage(t)
	s.now = func() time.Time { return time.Unix(1_000_000, 0) }

	signed, err := s.SignedURL(context.Background(), "doc-1.pdf")
	if err != nil {
		t.Fatalf("SignedURL() error = %v", err)
	}
	parsed, _ := url.Parse(signed)
	expires, _ := strconv.ParseInt(parsed.Query().Get("expires"), 10, 64)
	signature := parsed.Query().Get("signature")

	// 15 minutes plus a second later.
	s.now = func() time.Time { return time.Unix(1_000_000+15*60+1, 0) }
	if err := s.Verify("doc-1.pdf", expires, signature); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired locator, got %v", err)
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	s := newTestStorage(t)

	expires := time.Now().Add(10 * time.Minute).Unix()
	if err := s.Verify("doc-1.pdf", expires, "deadbeef"); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for bad signature, got %v", err)
	}
}

func TestVerifyRejectsKeySwap(t *testing.T) {
	s := newTestStorage(t)

	signed, err := s.SignedURL(context.Background(), "doc-1.pdf")
	if err != nil {
		t.Fatalf("SignedURL() error = %v", err)
	}
	parsed, _ := url.Parse(signed)
	expires, _ := strconv.ParseInt(parsed.Query().Get("expires"), 10, 64)
	signature := parsed.Query().Get("signature")

	if err := s.Verify("doc-2.pdf", expires, signature); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for swapped key, got %v", err)
	}
}

func TestHostileKeysRejected(t *testing.T) {
	s := newTestStorage(t)
	for _, key := range []string{"", "../secrets", "a/b", `a\b`} {
		if err := s.Save(context.Background(), key, strings.NewReader("x")); !domain.IsKind(err, domain.ErrInvalidArgument) {
			t.Fatalf("Save(%q) error = %v, want ErrInvalidArgument", key, err)
		}
	}
}
