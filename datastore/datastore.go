// Package datastore is an embedded document store with NeDB semantics:
// one JSON data file per collection, MongoDB-style queries and updates,
// and optional unique or sparse secondary indexes.
package datastore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/nedb-adapter/datastore/storage"
)

const fileFormatVersion = "1.0"

// Metadata is stored alongside the documents in the data file.
type Metadata struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type dataFile struct {
	Documents []Document     `json:"documents"`
	Indexes   []IndexOptions `json:"indexes,omitempty"`
	Metadata  Metadata       `json:"metadata"`
}

type entry struct {
	doc Document
	seq uint64
}

// RemoveOptions controls how many documents Remove deletes.
type RemoveOptions struct {
	Multi bool
}

// Datastore is a single collection. It is safe for concurrent use.
type Datastore struct {
	filename     string
	inMemoryOnly bool
	fs           FileSystem
	lockFactory  FileLockFactory
	fileLock     FileLock
	newID        func() string
	timeFunc     func() time.Time
	logger       zerolog.Logger
	locks        *storage.LockManager

	docs    map[string]*entry
	seq     uint64
	indexes map[string]*index
	meta    Metadata
	closed  bool
}

// New creates a datastore. Nothing is read from disk until LoadDatabase.
func New(opts ...Option) *Datastore {
	ds := &Datastore{
		fs:          OSFileSystem{},
		lockFactory: FlockFactory{},
		newID:       func() string { return uuid.NewString() },
		timeFunc:    time.Now,
		logger:      zerolog.Nop(),
		locks:       storage.NewLockManager(),
	}
	for _, opt := range opts {
		opt(ds)
	}
	if ds.filename == "" {
		ds.inMemoryOnly = true
	}
	if !ds.inMemoryOnly {
		ds.fileLock = ds.lockFactory.New(ds.filename + ".lock")
	}
	ds.logger = ds.logger.With().Str("component", "datastore").Str("file", ds.filename).Logger()
	ds.reset()
	return ds
}

func (ds *Datastore) reset() {
	now := ds.timeFunc()
	ds.docs = make(map[string]*entry)
	ds.indexes = map[string]*index{
		IDField: newIndex(IndexOptions{FieldName: IDField, Unique: true}),
	}
	ds.meta = Metadata{Version: fileFormatVersion, CreatedAt: now, UpdatedAt: now}
}

// Filename returns the data file path, empty for in-memory stores.
func (ds *Datastore) Filename() string {
	if ds.inMemoryOnly {
		return ""
	}
	return ds.filename
}

// InMemoryOnly reports whether the store never persists.
func (ds *Datastore) InMemoryOnly() bool {
	return ds.inMemoryOnly
}

// Exists reports whether the data file is present. In-memory stores never
// have one.
func (ds *Datastore) Exists() (bool, error) {
	if ds.inMemoryOnly {
		return false, nil
	}
	return fileExists(ds.fs, ds.filename)
}

// LoadDatabase reads the data file into memory, replacing the current state.
// A missing file is created empty.
func (ds *Datastore) LoadDatabase(ctx context.Context) error {
	return ds.locks.Execute(storage.WriteOperation, func() error {
		if ds.closed {
			return ErrClosed
		}
		ds.reset()
		if ds.inMemoryOnly {
			return nil
		}
		err := withFileLock(ctx, ds.fileLock, func() error {
			exists, err := fileExists(ds.fs, ds.filename)
			if err != nil {
				return fmt.Errorf("failed to stat data file: %w", err)
			}
			if !exists {
				return ds.save()
			}
			return ds.load()
		})
		if err != nil {
			ds.reset()
			return fmt.Errorf("failed to load %s: %w", ds.filename, err)
		}
		ds.logger.Debug().Int("documents", len(ds.docs)).Int("indexes", len(ds.indexes)).Msg("datastore loaded")
		return nil
	})
}

// load parses the data file. Caller holds both locks.
func (ds *Datastore) load() error {
	data, err := ds.fs.ReadFile(ds.filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var file dataFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	for _, opts := range file.Indexes {
		if opts.FieldName == "" || opts.FieldName == IDField {
			continue
		}
		ds.indexes[opts.FieldName] = newIndex(opts)
	}
	for _, doc := range file.Documents {
		if _, ok := doc[IDField].(string); !ok {
			return fmt.Errorf("%w: stored document without string _id", ErrInvalidDocument)
		}
		if err := ds.addToIndexes(doc); err != nil {
			return err
		}
		ds.seq++
		ds.docs[doc[IDField].(string)] = &entry{doc: doc, seq: ds.seq}
	}
	if file.Metadata.Version != "" {
		ds.meta = file.Metadata
	}
	return nil
}

// save writes the full state atomically. Caller holds both locks.
func (ds *Datastore) save() error {
	ds.meta.UpdatedAt = ds.timeFunc()
	file := dataFile{
		Documents: make([]Document, 0, len(ds.docs)),
		Metadata:  ds.meta,
	}
	for _, e := range ds.ordered() {
		file.Documents = append(file.Documents, e.doc)
	}
	for _, name := range slices.Sorted(maps.Keys(ds.indexes)) {
		if name != IDField {
			file.Indexes = append(file.Indexes, ds.indexes[name].opts)
		}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	tmp := ds.filename + ".tmp"
	if err := ds.fs.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := ds.fs.Rename(tmp, ds.filename); err != nil {
		_ = ds.fs.Remove(tmp)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// persist saves under the file lock. Caller holds the write lock.
func (ds *Datastore) persist(ctx context.Context) error {
	if ds.inMemoryOnly {
		return nil
	}
	return withFileLock(ctx, ds.fileLock, ds.save)
}

func (ds *Datastore) ordered() []*entry {
	out := slices.Collect(maps.Values(ds.docs))
	slices.SortFunc(out, func(a, b *entry) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}

// addToIndexes inserts doc into every index, _id first so a duplicate id is
// rejected before any other index holds an entry for it.
func (ds *Datastore) addToIndexes(doc Document) error {
	var done []*index
	names := slices.DeleteFunc(slices.Sorted(maps.Keys(ds.indexes)), func(n string) bool { return n == IDField })
	for _, name := range append([]string{IDField}, names...) {
		ix := ds.indexes[name]
		if err := ix.insert(doc); err != nil {
			for _, d := range done {
				d.remove(doc)
			}
			return err
		}
		done = append(done, ix)
	}
	return nil
}

func (ds *Datastore) removeFromIndexes(doc Document) {
	for _, ix := range ds.indexes {
		ix.remove(doc)
	}
}

// matching returns entries satisfying q in insertion order. Caller holds a lock.
func (ds *Datastore) matching(q Query) []*entry {
	var candidates []*entry
	if ids, ok := ds.indexedCandidates(q); ok {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if e, ok := ds.docs[id]; ok && !seen[id] {
				seen[id] = true
				candidates = append(candidates, e)
			}
		}
		slices.SortFunc(candidates, func(a, b *entry) int {
			switch {
			case a.seq < b.seq:
				return -1
			case a.seq > b.seq:
				return 1
			}
			return 0
		})
	} else {
		candidates = ds.ordered()
	}

	out := candidates[:0:0]
	for _, e := range candidates {
		if matchDocument(e.doc, q) {
			out = append(out, e)
		}
	}
	return out
}

// indexedCandidates narrows the scan using an index on a top-level
// equality or $in condition, looking one level into $and.
func (ds *Datastore) indexedCandidates(q Query) ([]string, bool) {
	for _, field := range slices.Sorted(maps.Keys(q)) {
		if field == "$and" {
			subs, _ := asQueryList(q[field])
			for _, sub := range subs {
				if ids, ok := ds.indexedCandidates(sub); ok {
					return ids, true
				}
			}
			continue
		}
		if strings.HasPrefix(field, "$") {
			continue
		}
		ix, ok := ds.indexes[field]
		if !ok {
			continue
		}
		values, ok := equalityValues(q[field])
		if !ok {
			continue
		}
		if ix.opts.Sparse && slices.Contains(values, nil) {
			continue
		}
		var ids []string
		for _, v := range values {
			ids = append(ids, ix.lookup(v)...)
		}
		return ids, true
	}
	return nil, false
}

func equalityValues(cond any) ([]any, bool) {
	if ops, ok := operatorDoc(cond); ok {
		if len(ops) != 1 {
			return nil, false
		}
		if arg, ok := ops["$eq"]; ok {
			return equalityValues(arg)
		}
		if arg, ok := ops["$in"]; ok {
			list, ok := toList(arg)
			if !ok {
				return nil, false
			}
			for _, v := range list {
				if !indexableScalar(v) {
					return nil, false
				}
			}
			return list, true
		}
		return nil, false
	}
	v := normalizeValue(cond)
	if !indexableScalar(v) {
		return nil, false
	}
	return []any{v}, true
}

func indexableScalar(v any) bool {
	switch v.(type) {
	case nil, string, float64, bool:
		return true
	}
	return false
}

func (ds *Datastore) prepare(doc Document) (Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	if raw, ok := doc[IDField]; ok && raw != nil {
		id, ok := raw.(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: _id must be a non-empty string", ErrInvalidDocument)
		}
	}
	out, err := normalizeDocument(doc)
	if err != nil {
		return nil, err
	}
	if id, _ := out[IDField].(string); id == "" {
		out[IDField] = ds.newID()
	}
	return out, nil
}

// Insert stores docs as one batch: either all are inserted or none are.
// Missing _id values are generated. The stored documents are returned.
func (ds *Datastore) Insert(ctx context.Context, docs ...Document) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prepared := make([]Document, 0, len(docs))
	for _, doc := range docs {
		p, err := ds.prepare(doc)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, p)
	}

	return storage.Query(ds.locks, storage.WriteOperation, func() ([]Document, error) {
		if ds.closed {
			return nil, ErrClosed
		}
		if err := ds.insertLocked(ctx, prepared); err != nil {
			return nil, err
		}
		out := make([]Document, len(prepared))
		for i, doc := range prepared {
			out[i] = cloneDocument(doc)
		}
		ds.logger.Debug().Int("count", len(prepared)).Msg("inserted documents")
		return out, nil
	})
}

func (ds *Datastore) insertLocked(ctx context.Context, docs []Document) error {
	for i, doc := range docs {
		if err := ds.addToIndexes(doc); err != nil {
			for _, added := range docs[:i] {
				ds.removeFromIndexes(added)
			}
			return err
		}
	}
	for _, doc := range docs {
		ds.seq++
		ds.docs[doc[IDField].(string)] = &entry{doc: doc, seq: ds.seq}
	}
	if err := ds.persist(ctx); err != nil {
		for _, doc := range docs {
			ds.removeFromIndexes(doc)
			delete(ds.docs, doc[IDField].(string))
		}
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

// Find starts a query. Errors surface from Exec.
func (ds *Datastore) Find(q Query) *Cursor {
	if q == nil {
		q = Query{}
	}
	return &Cursor{ds: ds, query: q}
}

// Count returns the number of documents matching q.
func (ds *Datastore) Count(ctx context.Context, q Query) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := validateQuery(q); err != nil {
		return 0, err
	}
	return storage.Query(ds.locks, storage.ReadOperation, func() (int, error) {
		if ds.closed {
			return 0, ErrClosed
		}
		return len(ds.matching(q)), nil
	})
}

// Update applies update to the documents matching q and returns how many
// were updated. update is either a modifier object ($set, $unset, $inc,
// $push, $addToSet, $pull, $min, $max) or a replacement document.
func (ds *Datastore) Update(ctx context.Context, q Query, update Document, opts UpdateOptions) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := validateQuery(q); err != nil {
		return 0, err
	}
	if err := validateUpdate(update); err != nil {
		return 0, err
	}

	return storage.Query(ds.locks, storage.WriteOperation, func() (int, error) {
		if ds.closed {
			return 0, ErrClosed
		}
		matched := ds.matching(q)
		if !opts.Multi && len(matched) > 1 {
			matched = matched[:1]
		}
		if len(matched) == 0 {
			if !opts.Upsert {
				return 0, nil
			}
			return ds.upsertLocked(ctx, q, update)
		}

		updated := make([]Document, len(matched))
		for i, e := range matched {
			next, err := applyUpdate(e.doc, update)
			if err != nil {
				return 0, err
			}
			updated[i] = next
		}

		for _, e := range matched {
			ds.removeFromIndexes(e.doc)
		}
		for i, doc := range updated {
			if err := ds.addToIndexes(doc); err != nil {
				for _, added := range updated[:i] {
					ds.removeFromIndexes(added)
				}
				for _, e := range matched {
					_ = ds.addToIndexes(e.doc)
				}
				return 0, err
			}
		}

		previous := make([]Document, len(matched))
		for i, e := range matched {
			previous[i] = e.doc
			e.doc = updated[i]
		}
		if err := ds.persist(ctx); err != nil {
			for i, e := range matched {
				ds.removeFromIndexes(updated[i])
				e.doc = previous[i]
			}
			for _, e := range matched {
				_ = ds.addToIndexes(e.doc)
			}
			return 0, fmt.Errorf("failed to save: %w", err)
		}
		ds.logger.Debug().Int("count", len(matched)).Msg("updated documents")
		return len(matched), nil
	})
}

func (ds *Datastore) upsertLocked(ctx context.Context, q Query, update Document) (int, error) {
	modifier, _ := isModifierUpdate(update)
	doc := update
	if modifier {
		next, err := applyUpdate(upsertBase(q), update)
		if err != nil {
			return 0, err
		}
		doc = next
	}
	prepared, err := ds.prepare(doc)
	if err != nil {
		return 0, err
	}
	if err := ds.insertLocked(ctx, []Document{prepared}); err != nil {
		return 0, err
	}
	return 1, nil
}

// Remove deletes the documents matching q and returns how many were removed.
func (ds *Datastore) Remove(ctx context.Context, q Query, opts RemoveOptions) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := validateQuery(q); err != nil {
		return 0, err
	}

	return storage.Query(ds.locks, storage.WriteOperation, func() (int, error) {
		if ds.closed {
			return 0, ErrClosed
		}
		matched := ds.matching(q)
		if !opts.Multi && len(matched) > 1 {
			matched = matched[:1]
		}
		if len(matched) == 0 {
			return 0, nil
		}
		for _, e := range matched {
			ds.removeFromIndexes(e.doc)
			delete(ds.docs, e.doc[IDField].(string))
		}
		if err := ds.persist(ctx); err != nil {
			for _, e := range matched {
				_ = ds.addToIndexes(e.doc)
				ds.docs[e.doc[IDField].(string)] = e
			}
			return 0, fmt.Errorf("failed to save: %w", err)
		}
		ds.logger.Debug().Int("count", len(matched)).Msg("removed documents")
		return len(matched), nil
	})
}

// EnsureIndex creates an index unless one already exists on the field.
// If existing documents violate a unique index, no index is created.
func (ds *Datastore) EnsureIndex(ctx context.Context, opts IndexOptions) error {
	if opts.FieldName == "" {
		return ErrNoFieldName
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ds.locks.Execute(storage.WriteOperation, func() error {
		if ds.closed {
			return ErrClosed
		}
		if _, ok := ds.indexes[opts.FieldName]; ok {
			return nil
		}
		ix := newIndex(opts)
		for _, e := range ds.ordered() {
			if err := ix.insert(e.doc); err != nil {
				return err
			}
		}
		ds.indexes[opts.FieldName] = ix
		if err := ds.persist(ctx); err != nil {
			delete(ds.indexes, opts.FieldName)
			return fmt.Errorf("failed to save: %w", err)
		}
		ds.logger.Debug().Str("field", opts.FieldName).Bool("unique", opts.Unique).Bool("sparse", opts.Sparse).Msg("index created")
		return nil
	})
}

// RemoveIndex drops the index on field. The _id index is permanent.
func (ds *Datastore) RemoveIndex(ctx context.Context, field string) error {
	if field == IDField {
		return fmt.Errorf("cannot remove the %s index", IDField)
	}
	return ds.locks.Execute(storage.WriteOperation, func() error {
		if ds.closed {
			return ErrClosed
		}
		ix, ok := ds.indexes[field]
		if !ok {
			return nil
		}
		delete(ds.indexes, field)
		if err := ds.persist(ctx); err != nil {
			ds.indexes[field] = ix
			return fmt.Errorf("failed to save: %w", err)
		}
		return nil
	})
}

// Indexes lists the declared indexes, _id included, ordered by field.
func (ds *Datastore) Indexes() []IndexOptions {
	out, _ := storage.Query(ds.locks, storage.ReadOperation, func() ([]IndexOptions, error) {
		list := make([]IndexOptions, 0, len(ds.indexes))
		for _, name := range slices.Sorted(maps.Keys(ds.indexes)) {
			list = append(list, ds.indexes[name].opts)
		}
		return list, nil
	})
	return out
}

// Drop deletes the data and lock files and empties the store. Declared
// indexes survive, empty. It fails with ErrDatastoreBusy if the file lock
// cannot be taken.
func (ds *Datastore) Drop(ctx context.Context) error {
	return ds.locks.Execute(storage.WriteOperation, func() error {
		if ds.closed {
			return ErrClosed
		}
		if !ds.inMemoryOnly {
			lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
			defer cancel()
			if err := acquireFileLock(lockCtx, ds.fileLock); err != nil {
				return fmt.Errorf("%w: %w", ErrDatastoreBusy, err)
			}
			err := removeIfExists(ds.fs, ds.filename)
			_ = ds.fileLock.Unlock()
			if err != nil {
				return fmt.Errorf("failed to remove data file: %w", err)
			}
			_ = removeIfExists(ds.fs, ds.filename+".lock")
		}
		declared := make([]IndexOptions, 0, len(ds.indexes))
		for name, ix := range ds.indexes {
			if name != IDField {
				declared = append(declared, ix.opts)
			}
		}
		ds.reset()
		for _, opts := range declared {
			ds.indexes[opts.FieldName] = newIndex(opts)
		}
		ds.logger.Info().Msg("datastore dropped")
		return nil
	})
}

// Close releases the store. Later calls fail with ErrClosed.
func (ds *Datastore) Close() error {
	return ds.locks.Execute(storage.WriteOperation, func() error {
		if ds.closed {
			return nil
		}
		ds.closed = true
		if !ds.inMemoryOnly {
			if err := removeIfExists(ds.fs, ds.filename+".lock"); err != nil {
				return fmt.Errorf("failed to remove lock file: %w", err)
			}
		}
		return nil
	})
}
