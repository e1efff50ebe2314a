package docstore

import (
	"context"
	"sync"
)

type MemoryStore struct {
	// dispatch serializes notifications so subscribers observe writes in
	// commit order.
	dispatch sync.Mutex
	mu       sync.Mutex
	docs     map[string]Document
	subs     map[string]map[uint64]ChangeFunc
	nextID   uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]Document),
		subs: make(map[string]map[uint64]ChangeFunc),
	}
}

func (m *MemoryStore) Get(_ context.Context, path string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[path]
	if !ok {
		return nil, ErrNotFound
	}

	return cloneDoc(doc), nil
}

func (m *MemoryStore) Set(_ context.Context, path string, data any, opts SetOptions) error {
	encoded, err := encode(data)
	if err != nil {
		return err
	}

	m.dispatch.Lock()
	defer m.dispatch.Unlock()

	m.mu.Lock()
	current, exists := m.docs[path]
	if opts.Merge && exists {
		if encoded, err = mergeObjects(current.Data, encoded); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	doc := Document{Path: path, Data: encoded, Version: current.Version + 1}
	m.docs[path] = doc
	fns := m.subscribersLocked(path)
	m.mu.Unlock()

	notify(fns, &doc)
	return nil
}

func (m *MemoryStore) CompareAndSet(_ context.Context, path string, expectedVersion int64, data any) error {
	encoded, err := encode(data)
	if err != nil {
		return err
	}

	m.dispatch.Lock()
	defer m.dispatch.Unlock()

	m.mu.Lock()
	current := m.docs[path]
	if current.Version != expectedVersion {
		m.mu.Unlock()
		return ErrConflict
	}
	doc := Document{Path: path, Data: encoded, Version: expectedVersion + 1}
	m.docs[path] = doc
	fns := m.subscribersLocked(path)
	m.mu.Unlock()

	notify(fns, &doc)
	return nil
}

func (m *MemoryStore) Subscribe(_ context.Context, path string, fn ChangeFunc) (Unsubscribe, error) {
	m.dispatch.Lock()
	defer m.dispatch.Unlock()

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	if m.subs[path] == nil {
		m.subs[path] = make(map[uint64]ChangeFunc)
	}
	m.subs[path][id] = fn
	doc, exists := m.docs[path]
	m.mu.Unlock()

	if exists {
		fn(cloneDoc(doc))
	} else {
		fn(nil)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()

			delete(m.subs[path], id)
			if len(m.subs[path]) == 0 {
				delete(m.subs, path)
			}
		})
	}, nil
}

func (m *MemoryStore) subscribers(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.subs[path])
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) subscribersLocked(path string) []ChangeFunc {
	fns := make([]ChangeFunc, 0, len(m.subs[path]))
	for _, fn := range m.subs[path] {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []ChangeFunc, doc *Document) {
	for _, fn := range fns {
		if doc == nil {
			fn(nil)
			continue
		}
		fn(cloneDoc(*doc))
	}
}

func cloneDoc(doc Document) *Document {
	data := make([]byte, len(doc.Data))
	copy(data, doc.Data)

	return &Document{Path: doc.Path, Data: data, Version: doc.Version}
}
