package core

import (
	"sort"
	"sync"
	"unicode"
)

// AliasRegistry maps human-friendly names to dataset ids.
//
// An alias is bound to exactly one dataset and may not shadow a dataset id.
// Batch operations validate every name before mutating anything.
type AliasRegistry struct {
	mu        sync.RWMutex
	byAlias   map[string]string
	byDataset map[string]map[string]struct{}

	// datasetExists is consulted under the registry lock: names are only
	// bound to a live dataset, and never while they equal a live dataset id.
	// A nil func skips both checks.
	datasetExists func(id string) bool
}

// NewAliasRegistry creates an empty registry. datasetExists may be nil.
func NewAliasRegistry(datasetExists func(id string) bool) *AliasRegistry {
	return &AliasRegistry{
		byAlias:       make(map[string]string),
		byDataset:     make(map[string]map[string]struct{}),
		datasetExists: datasetExists,
	}
}

// ValidAlias reports whether name is a non-empty run of Unicode letters and digits.
func ValidAlias(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Resolve returns the dataset id bound to alias.
func (r *AliasRegistry) Resolve(alias string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byAlias[alias]
	return id, ok
}

// List returns the aliases of a dataset in sorted order.
func (r *AliasRegistry) List(datasetID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(datasetID)
}

func (r *AliasRegistry) listLocked(datasetID string) []string {
	set := r.byDataset[datasetID]
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Add binds names to datasetID. Names already bound to datasetID are accepted.
// On any invalid or conflicting name nothing is bound.
func (r *AliasRegistry) Add(datasetID string, names []string) ([]string, error) {
	names = dedupe(names)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkLocked(datasetID, names); err != nil {
		return nil, err
	}
	r.bindLocked(datasetID, names)
	return r.listLocked(datasetID), nil
}

// Replace swaps the full alias set of datasetID. On any invalid or
// conflicting name the previous set is kept.
func (r *AliasRegistry) Replace(datasetID string, names []string) ([]string, error) {
	names = dedupe(names)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkLocked(datasetID, names); err != nil {
		return nil, err
	}
	r.unbindAllLocked(datasetID)
	r.bindLocked(datasetID, names)
	return r.listLocked(datasetID), nil
}

// DeleteAll removes every alias of datasetID. It is a no-op for unknown ids.
func (r *AliasRegistry) DeleteAll(datasetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unbindAllLocked(datasetID)
}

// Restore binds names without validation. Used when loading persisted state.
func (r *AliasRegistry) Restore(datasetID string, names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindLocked(datasetID, names)
}

func (r *AliasRegistry) checkLocked(datasetID string, names []string) error {
	for _, name := range names {
		if !ValidAlias(name) {
			return &InvalidAliasError{Alias: name}
		}
	}
	// The caller resolved datasetID before taking the lock; a concurrent
	// delete may have removed it since.
	if r.datasetExists != nil && !r.datasetExists(datasetID) {
		return ErrDatasetNotFound
	}
	for _, name := range names {
		if owner, ok := r.byAlias[name]; ok && owner != datasetID {
			return &AliasConflictError{Alias: name}
		}
		if r.datasetExists != nil && r.datasetExists(name) {
			return &AliasConflictError{Alias: name}
		}
	}
	return nil
}

func (r *AliasRegistry) bindLocked(datasetID string, names []string) {
	if len(names) == 0 {
		return
	}
	set := r.byDataset[datasetID]
	if set == nil {
		set = make(map[string]struct{}, len(names))
		r.byDataset[datasetID] = set
	}
	for _, name := range names {
		set[name] = struct{}{}
		r.byAlias[name] = datasetID
	}
}

func (r *AliasRegistry) unbindAllLocked(datasetID string) {
	for name := range r.byDataset[datasetID] {
		delete(r.byAlias, name)
	}
	delete(r.byDataset, datasetID)
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
