// Package video provides frame sources for offline replay.
package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kozaktomas/gatewatch/internal/facematch"
)

// ErrVideoUnsupported is returned when opening a video file in a build
// without the gocv tag.
var ErrVideoUnsupported = errors.New("video decoding requires building with -tags gocv")

// Source yields frames in order. Next returns io.EOF after the last frame.
type Source interface {
	Next(ctx context.Context) (image.Image, error)
	// Len returns the number of frames, or -1 if unknown.
	Len() int
	Close() error
}

var frameExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".webp": true,
}

// Open returns a directory source for directories and a video source otherwise.
func Open(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	if info.IsDir() {
		return OpenDir(path)
	}
	return OpenVideo(path)
}

// DirSource reads image files of a directory in lexical order.
type DirSource struct {
	files []string
	pos   int
}

// OpenDir lists the frames in dir. Non-image files are ignored.
func OpenDir(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	slices.Sort(files)
	return &DirSource{files: files}, nil
}

// Next decodes the next frame.
func (d *DirSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.pos >= len(d.files) {
		return nil, io.EOF
	}
	path := d.files[d.pos]
	d.pos++

	data, err := os.ReadFile(path) //nolint:gosec // replay path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	img, err := facematch.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Len returns the number of frame files.
func (d *DirSource) Len() int { return len(d.files) }

// Close is a no-op.
func (d *DirSource) Close() error { return nil }
