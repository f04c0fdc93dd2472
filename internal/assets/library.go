package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/zeusync/npcbrain/internal/core/bt"
	"github.com/zeusync/npcbrain/internal/core/observability/log"
	"github.com/zeusync/npcbrain/pkg/concurrent"
)

// Library holds tree documents and compiles each at most once, on first use.
type Library struct {
	reg *bt.Registry
	log log.Log

	mu    sync.RWMutex
	docs  map[string]*Document
	trees map[string]*bt.CompiledTree
	group singleflight.Group
}

// NewLibrary creates an empty library compiling against reg.
func NewLibrary(reg *bt.Registry, logger log.Log) *Library {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Library{
		reg:   reg,
		log:   logger.Named("assets"),
		docs:  make(map[string]*Document),
		trees: make(map[string]*bt.CompiledTree),
	}
}

// Add registers a document under its name.
func (l *Library) Add(doc *Document) error {
	if doc.Name == "" {
		return fmt.Errorf("%w: document has no name", ErrInvalidNode)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.docs[doc.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, doc.Name)
	}
	l.docs[doc.Name] = doc
	return nil
}

// LoadFile parses path and adds it. Unnamed documents take the file's base
// name.
func (l *Library) LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := l.Add(doc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	l.log.Debug("tree loaded", log.String("tree", doc.Name), log.String("path", path))
	return doc, nil
}

// LoadDir loads every .yaml, .yml and .json file below dir.
func (l *Library) LoadDir(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !IsAsset(path) {
			return err
		}
		_, err = l.LoadFile(path)
		return err
	})
}

// IsAsset reports whether path has a tree document extension.
func IsAsset(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// Document returns the named document.
func (l *Library) Document(name string) (*Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	doc, ok := l.docs[name]
	return doc, ok
}

// Names lists the documents in the library.
func (l *Library) Names() []string {
	l.mu.RLock()
	names := make([]string, 0, len(l.docs))
	for name := range l.docs {
		names = append(names, name)
	}
	l.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Tree returns the compiled form of the named tree, compiling it on first
// request. Concurrent first requests share one compilation.
func (l *Library) Tree(name string) (*bt.CompiledTree, error) {
	l.mu.RLock()
	tree, ok := l.trees[name]
	doc, known := l.docs[name]
	l.mu.RUnlock()
	if ok {
		return tree, nil
	}
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	v, err, _ := l.group.Do(name, func() (any, error) {
		l.mu.RLock()
		tree, ok := l.trees[name]
		l.mu.RUnlock()
		if ok {
			return tree, nil
		}
		tree, err := bt.Compile(doc.Root, l.reg, bt.WithLogger(l.log))
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		l.mu.Lock()
		l.trees[name] = tree
		l.mu.Unlock()
		return tree, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*bt.CompiledTree), nil
}

// Validate compiles every document, in parallel, and reports all failures.
func (l *Library) Validate() error {
	return concurrent.ForEachAll(context.Background(), l.Names(), 0, func(_ context.Context, name string) error {
		_, err := l.Tree(name)
		return err
	})
}

// Release releases every compiled tree. Players must be stopped first.
func (l *Library) Release() error {
	l.mu.Lock()
	trees := l.trees
	l.trees = make(map[string]*bt.CompiledTree)
	l.mu.Unlock()

	var errs []error
	for name, tree := range trees {
		if err := tree.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
