package storage

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func pngBytes(size int) []byte {
	sig := []byte("\x89PNG\r\n\x1a\n")
	return append(sig, make([]byte, size)...)
}

func TestValidateFile(t *testing.T) {
	data, mime, err := ValidateFile(bytes.NewReader(pngBytes(64)), CategoryEvidence, 1024)
	if err != nil {
		t.Fatalf("ValidateFile: %v", err)
	}
	if mime != "image/png" {
		t.Errorf("mime = %s, want image/png", mime)
	}
	if len(data) != 72 {
		t.Errorf("len(data) = %d, want 72", len(data))
	}

	if _, _, err := ValidateFile(strings.NewReader(""), CategoryEvidence, 1024); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("empty file err = %v, want ErrEmptyFile", err)
	}
	if _, _, err := ValidateFile(bytes.NewReader(pngBytes(2048)), CategoryEvidence, 1024); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("oversized file err = %v, want ErrFileTooLarge", err)
	}
	// Content sniffing decides, the caller's file name does not.
	if _, _, err := ValidateFile(strings.NewReader("#!/bin/sh\necho hi\n"), CategoryEvidence, 1024); !errors.Is(err, ErrInvalidMimeType) {
		t.Errorf("script err = %v, want ErrInvalidMimeType", err)
	}
	if _, _, err := ValidateFile(bytes.NewReader(pngBytes(64)), "nope", 1024); err == nil {
		t.Error("unknown category should fail")
	}
}

func TestValidateAndBuffer(t *testing.T) {
	buf, mime, err := ValidateAndBuffer(bytes.NewReader(pngBytes(64)), CategoryEvidence)
	if err != nil {
		t.Fatalf("ValidateAndBuffer: %v", err)
	}
	if mime != "image/png" || buf.Len() != 72 {
		t.Errorf("got (%s, %d bytes), want (image/png, 72)", mime, buf.Len())
	}
}

func TestGetExtensionForMime(t *testing.T) {
	tests := map[string]string{
		"image/jpeg":      ".jpg",
		"image/png":       ".png",
		"image/webp":      ".webp",
		"application/pdf": ".pdf",
		"text/plain":      "",
	}
	for mime, want := range tests {
		if got := GetExtensionForMime(mime); got != want {
			t.Errorf("GetExtensionForMime(%s) = %q, want %q", mime, got, want)
		}
	}
}
