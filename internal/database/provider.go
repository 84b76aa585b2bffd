package database

import (
	"context"
	"fmt"
	"sync"
)

var (
	mu            sync.RWMutex
	backendName   string
	exitWriter    func() ExitWriter
	galleryWriter func() GalleryWriter
	closer        func() error
)

// RegisterBackend registers repository constructors for the active backend.
// This is called by the backend packages to avoid import cycles.
func RegisterBackend(name string, exits func() ExitWriter, gallery func() GalleryWriter, closeFn func() error) {
	mu.Lock()
	defer mu.Unlock()
	backendName = name
	exitWriter = exits
	galleryWriter = gallery
	closer = closeFn
}

// IsInitialized returns whether a backend has been registered.
func IsInitialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return backendName != ""
}

// BackendName returns the name of the registered backend.
func BackendName() string {
	mu.RLock()
	defer mu.RUnlock()
	return backendName
}

// Close closes the registered backend and unregisters it.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	var err error
	if closer != nil {
		err = closer()
	}
	backendName = ""
	exitWriter = nil
	galleryWriter = nil
	closer = nil
	return err
}

// GetExitWriter returns an ExitWriter from the registered backend
func GetExitWriter(ctx context.Context) (ExitWriter, error) {
	mu.RLock()
	defer mu.RUnlock()
	if backendName == "" {
		return nil, fmt.Errorf("database backend not initialized")
	}
	if exitWriter == nil {
		return nil, fmt.Errorf("%s exit log not registered", backendName)
	}
	return exitWriter(), nil
}

// GetExitReader returns an ExitReader from the registered backend
func GetExitReader(ctx context.Context) (ExitReader, error) {
	return GetExitWriter(ctx)
}

// GetGalleryWriter returns a GalleryWriter from the registered backend
func GetGalleryWriter(ctx context.Context) (GalleryWriter, error) {
	mu.RLock()
	defer mu.RUnlock()
	if backendName == "" {
		return nil, fmt.Errorf("database backend not initialized")
	}
	if galleryWriter == nil {
		return nil, fmt.Errorf("%s gallery not registered", backendName)
	}
	return galleryWriter(), nil
}

// GetGalleryReader returns a GalleryReader from the registered backend
func GetGalleryReader(ctx context.Context) (GalleryReader, error) {
	return GetGalleryWriter(ctx)
}
