// Package scratch - Temporary image storage shared by build stages
package scratch

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fogleman/gg"

	"terrain-build/internal/errors"
)

// Storage holds named scratch images for the lifetime of a build
type Storage interface {
	// NewImage allocates a transparent image, replacing any image with the same name
	NewImage(name string, width, height int) *image.RGBA

	// Image returns a stored image
	Image(name string) (*image.RGBA, bool)

	// Release drops a stored image
	Release(name string)

	// Names returns the stored image names, sorted
	Names() []string

	// SavePNG encodes a stored image as PNG
	SavePNG(name string, w io.Writer) error

	// Close drops every image
	Close() error
}

// MemoryStorage keeps scratch images in memory
type MemoryStorage struct {
	mu     sync.Mutex
	images map[string]*image.RGBA
}

// NewMemoryStorage creates an empty in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{images: make(map[string]*image.RGBA)}
}

// NewImage allocates a transparent image
func (s *MemoryStorage) NewImage(name string, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	s.mu.Lock()
	s.images[name] = img
	s.mu.Unlock()
	return img
}

// Image returns a stored image
func (s *MemoryStorage) Image(name string) (*image.RGBA, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[name]
	return img, ok
}

// Release drops a stored image
func (s *MemoryStorage) Release(name string) {
	s.mu.Lock()
	delete(s.images, name)
	s.mu.Unlock()
}

// Names returns the stored image names, sorted
func (s *MemoryStorage) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.images))
	for name := range s.images {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SavePNG encodes a stored image as PNG
func (s *MemoryStorage) SavePNG(name string, w io.Writer) error {
	img, ok := s.Image(name)
	if !ok {
		return errors.NotFound("scratch image", name)
	}
	return gg.NewContextForRGBA(img).EncodePNG(w)
}

// Close drops every image
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	s.images = make(map[string]*image.RGBA)
	s.mu.Unlock()
	return nil
}

// SaveAll writes every stored image as <dir>/<name>.png.
// Slashes in names become subdirectories.
func SaveAll(s Storage, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, name := range s.Names() {
		path := filepath.Join(dir, filepath.FromSlash(name)+".png")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := s.SavePNG(name, f); err != nil {
			f.Close()
			return fmt.Errorf("saving %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
