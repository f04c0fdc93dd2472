package memory

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Subscription is a cancellable change listener.
type Subscription interface {
	Cancel() error
}

// Store is a thread-safe working memory (blackboard) keyed by symbolic keys.
// Listeners registered with OnChange run synchronously on the goroutine that
// performed the write, after the store lock is released.
type Store struct {
	mu       sync.RWMutex
	data     map[Key]any
	watchers map[Key]map[uint64]func()
	nextID   uint64
	version  uint64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		data:     make(map[Key]any),
		watchers: make(map[Key]map[uint64]func()),
	}
}

// Get returns the value for key or nil.
func (s *Store) Get(key Key) any {
	v, _ := s.TryGet(key)
	return v
}

// TryGet returns the value for key and whether it was present.
func (s *Store) TryGet(key Key) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set assigns a value and notifies listeners when it actually changed.
func (s *Store) Set(key Key, value any) {
	s.mu.Lock()
	old, existed := s.data[key]
	if existed && sameValue(old, value) {
		s.mu.Unlock()
		return
	}
	s.data[key] = value
	s.version++
	fns := s.listenersLocked(key)
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Delete removes a key; listeners are notified if it was present.
func (s *Store) Delete(key Key) {
	s.mu.Lock()
	if _, ok := s.data[key]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.data, key)
	s.version++
	fns := s.listenersLocked(key)
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// OnChange registers fn to be called whenever key is written with a new value
// or deleted.
func (s *Store) OnChange(key Key, fn func()) (Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("memory: nil listener for %s", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[uint64]func())
	}
	s.watchers[key][id] = fn
	return &watch{store: s, key: key, id: id}, nil
}

// Keys returns a snapshot of present keys sorted by name.
func (s *Store) Keys() []Key {
	s.mu.RLock()
	keys := make([]Key, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name() < keys[j].Name() })
	return keys
}

// Version increments on every effective write.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Listeners returns the number of live change listeners.
func (s *Store) Listeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.watchers {
		n += len(m)
	}
	return n
}

// MarshalBinary encodes the store contents as canonical CBOR keyed by name.
func (s *Store) MarshalBinary() ([]byte, error) {
	s.mu.RLock()
	named := make(map[string]any, len(s.data))
	for k, v := range s.data {
		named[k.Name()] = v
	}
	s.mu.RUnlock()

	b, err := snapshotEncMode.Marshal(named)
	if err != nil {
		return nil, fmt.Errorf("memory: encode snapshot: %w", err)
	}
	return b, nil
}

// UnmarshalBinary replaces the store contents with a snapshot produced by
// MarshalBinary. Listeners stay registered and are notified for every key
// whose value changed.
func (s *Store) UnmarshalBinary(b []byte) error {
	var named map[string]any
	if err := cbor.Unmarshal(b, &named); err != nil {
		return fmt.Errorf("memory: decode snapshot: %w", err)
	}
	next := make(map[Key]any, len(named))
	for name, v := range named {
		k, err := parseKey(name)
		if err != nil {
			return err
		}
		next[k] = v
	}

	s.mu.Lock()
	var fns []func()
	for k, v := range next {
		if old, ok := s.data[k]; !ok || !sameValue(old, v) {
			fns = append(fns, s.listenersLocked(k)...)
		}
	}
	for k := range s.data {
		if _, ok := next[k]; !ok {
			fns = append(fns, s.listenersLocked(k)...)
		}
	}
	s.data = next
	s.version++
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return nil
}

func (s *Store) listenersLocked(key Key) []func() {
	m := s.watchers[key]
	if len(m) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(), len(ids))
	for i, id := range ids {
		fns[i] = m[id]
	}
	return fns
}

type watch struct {
	store *Store
	key   Key
	id    uint64
	once  sync.Once
}

func (w *watch) Cancel() error {
	w.once.Do(func() {
		w.store.mu.Lock()
		defer w.store.mu.Unlock()
		if m := w.store.watchers[w.key]; m != nil {
			delete(m, w.id)
			if len(m) == 0 {
				delete(w.store.watchers, w.key)
			}
		}
	})
	return nil
}

var snapshotEncMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
