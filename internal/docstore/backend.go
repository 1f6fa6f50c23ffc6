package docstore

import (
	"context"
	"sync"
)

// Backend persists documents. The Store serializes all writes, so a
// backend only needs to be safe for concurrent reads alongside one writer.
type Backend interface {
	Get(ctx context.Context, path string) (Document, error)
	List(ctx context.Context, collection string) ([]Document, error)
	Insert(ctx context.Context, doc Document) error
	Replace(ctx context.Context, doc Document) error
	Remove(ctx context.Context, path string) error
}

// MemoryBackend keeps documents in process memory.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string]map[string]Document)}
}

func (m *MemoryBackend) Get(_ context.Context, path string) (Document, error) {
	collection, id, err := splitDocPath(path)
	if err != nil {
		return Document{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.collections[collection][id]
	if !ok {
		return Document{}, newError(CodeNotFound, path, "document not found")
	}
	return doc.clone(), nil
}

func (m *MemoryBackend) List(_ context.Context, collection string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]Document, 0, len(m.collections[collection]))
	for _, doc := range m.collections[collection] {
		docs = append(docs, doc.clone())
	}
	return docs, nil
}

func (m *MemoryBackend) Insert(_ context.Context, doc Document) error {
	collection, id, err := splitDocPath(doc.Path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]Document)
		m.collections[collection] = docs
	}
	if _, exists := docs[id]; exists {
		return newError(CodeAlreadyExists, doc.Path, "document already exists")
	}
	docs[id] = doc.clone()
	return nil
}

func (m *MemoryBackend) Replace(_ context.Context, doc Document) error {
	collection, id, err := splitDocPath(doc.Path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.collections[collection][id]; !exists {
		return newError(CodeNotFound, doc.Path, "document not found")
	}
	m.collections[collection][id] = doc.clone()
	return nil
}

func (m *MemoryBackend) Remove(_ context.Context, path string) error {
	collection, id, err := splitDocPath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.collections[collection][id]; !exists {
		return newError(CodeNotFound, path, "document not found")
	}
	delete(m.collections[collection], id)
	return nil
}
