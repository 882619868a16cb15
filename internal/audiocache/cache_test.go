package audiocache

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
)

func TestAddFromReaderThenReadBack(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir)
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}

	payload := bytes.Repeat([]byte("x"), pkPrefixLen*2)
	pk, err := c.AddFromReader(context.Background(), bytes.NewReader(payload), nil)
	if err != nil {
		t.Fatalf("AddFromReader: %v", err)
	}

	complete, err := c.IsDownloadComplete(context.Background(), pk)
	if err != nil || !complete {
		t.Fatalf("IsDownloadComplete = (%v, %v), want (true, nil)", complete, err)
	}

	path, err := c.AudioFilePath(context.Background(), pk)
	if err != nil {
		t.Fatalf("AudioFilePath: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading cached file: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("cached file contents do not match the ingested payload")
	}
}

func TestIdenticalPayloadsDedup(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir)
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}

	payload := bytes.Repeat([]byte("y"), pkPrefixLen*2)
	pk1, err := c.AddFromReader(context.Background(), bytes.NewReader(payload), nil)
	if err != nil {
		t.Fatalf("first AddFromReader: %v", err)
	}
	pk2, err := c.AddFromReader(context.Background(), bytes.NewReader(payload), nil)
	if err != nil {
		t.Fatalf("second AddFromReader: %v", err)
	}
	if pk1 != pk2 {
		t.Fatalf("identical payloads produced different pks: %s != %s", pk1, pk2)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	flacFiles := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".flac") {
			flacFiles++
		}
	}
	if flacFiles != 1 {
		t.Fatalf("expected exactly one cached file after dedup, found %d", flacFiles)
	}
}

func TestUnknownPkIsAnError(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir)
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	if _, err := c.AudioFilePath(context.Background(), "nonexistent"); err == nil {
		t.Fatal("expected an error looking up an unknown pk")
	}
}
