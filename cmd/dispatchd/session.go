package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dispatchd/dispatchd/pkg/imaging"
)

// fileSession is the daemon binary's default imaging.Session: it stamps a
// JSON metadata blob alongside each image and writes both directly into its
// root directory, as <uuid><ext> and <uuid>.json. The encoder, metadata format, and storage backend are
// explicitly out of the dispatch core's own scope (pkg/imaging's doc
// comment); this type exists only so `dispatchd daemon start` has something
// to run against without a caller supplying its own Session.
type fileSession struct {
	root string
}

func newFileSession(root string) (*fileSession, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("imaging: creating %s: %w", root, err)
	}
	return &fileSession{root: root}, nil
}

func (s *fileSession) ApplyMetadata(ctx context.Context, image imaging.Image, input map[string]any, extras map[string]any, index int) (imaging.Image, imaging.Metadata, error) {
	blob := map[string]any{
		"input":  input,
		"extras": extras,
		"index":  index,
	}
	data, err := json.Marshal(blob)
	if err != nil {
		return image, "", fmt.Errorf("imaging: encoding metadata: %w", err)
	}
	return image, imaging.Metadata(data), nil
}

func (s *fileSession) SaveImage(ctx context.Context, image imaging.Image, metadata imaging.Metadata) (string, error) {
	name := uuid.NewString()
	ext := extensionForContentType(image.ContentType)

	imgPath := filepath.Join(s.root, name+ext)
	if err := os.WriteFile(imgPath, image.Data, 0o600); err != nil {
		return "", fmt.Errorf("imaging: writing image: %w", err)
	}

	metaPath := filepath.Join(s.root, name+".json")
	if err := os.WriteFile(metaPath, []byte(metadata), 0o600); err != nil {
		return "", fmt.Errorf("imaging: writing metadata: %w", err)
	}

	return imgPath, nil
}

func extensionForContentType(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
