package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// Minimal valid headers for content sniffing.
var (
	pngHeader = []byte("\x89PNG\r\n\x1a\n" + "rest-of-image")
	gifHeader = []byte("GIF89a" + "rest-of-image")
	jpgHeader = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("rest-of-image")...)
)

func TestDetectImageType(t *testing.T) {
	cases := []struct {
		content []byte
		ext     string
		ok      bool
	}{
		{pngHeader, "png", true},
		{gifHeader, "gif", true},
		{jpgHeader, "jpg", true},
		{[]byte("%PDF-1.4 not an image"), "", false},
		{[]byte("plain text"), "", false},
	}
	for _, c := range cases {
		ext, ok := DetectImageType(c.content)
		if ok != c.ok || ext != c.ext {
			t.Fatalf("unexpected detection for %q: ext=%s ok=%v", c.content[:6], ext, ok)
		}
	}
}

func TestFSStoreSave(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir, "http://localhost:8080/storage/images/")
	if err != nil {
		t.Fatalf("new fs store: %v", err)
	}

	url, err := store.Save(context.Background(), "upload-1", pngHeader)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if url != "http://localhost:8080/storage/images/upload-1.png" {
		t.Fatalf("unexpected url: %s", url)
	}

	written, err := os.ReadFile(filepath.Join(dir, "upload-1.png"))
	if err != nil {
		t.Fatalf("read written file: %v", err)
	}
	if string(written) != string(pngHeader) {
		t.Fatalf("file content mismatch")
	}
}

func TestFSStoreRejectsUnsupportedFormat(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), "http://localhost")
	if err != nil {
		t.Fatalf("new fs store: %v", err)
	}
	if _, err := store.Save(context.Background(), "upload-1", []byte("not an image")); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
