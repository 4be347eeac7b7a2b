package dedup

import (
	"github.com/rohmanhakim/saas-intel/pkg/urlutil"
)

/*
Index
  - Maps a normalized homepage URL to the storage key of the product that owns it
  - Maps a source-native id ("producthunt:ph_1") to the same storage key
  - Is a derivable cache: it can always be rebuilt from the products
  - Empty or unparsable URLs never enter it

Index is not safe for concurrent use. The store that owns it serialises
access.
*/
type Index struct {
	byURL map[string]string
	byID  map[string]string
}

// KeyVersion changes whenever urlutil.Normalize produces different keys, so
// a persisted snapshot taken under older rules is never adopted.
const KeyVersion = 2

func NewIndex() *Index {
	return &Index{
		byURL: make(map[string]string),
		byID:  make(map[string]string),
	}
}

// Entry is what Rebuild needs to know about one product.
type Entry struct {
	Key         string
	HomepageURL string
	SourceIDs   map[string]string
}

func sourceIDKey(source, id string) string {
	return source + ":" + id
}

// Lookup returns the key owning rawURL's normalized form.
func (ix *Index) Lookup(rawURL string) (string, bool) {
	norm := urlutil.Normalize(rawURL)
	if norm == "" {
		return "", false
	}
	key, ok := ix.byURL[norm]
	return key, ok
}

func (ix *Index) IsKnown(rawURL string) bool {
	_, ok := ix.Lookup(rawURL)
	return ok
}

// Put points rawURL at key. It reports false when the URL normalizes to
// nothing and was therefore not indexed.
func (ix *Index) Put(rawURL, key string) bool {
	norm := urlutil.Normalize(rawURL)
	if norm == "" || key == "" {
		return false
	}
	ix.byURL[norm] = key
	return true
}

// Remove drops rawURL only if it still points at key.
func (ix *Index) Remove(rawURL, key string) {
	norm := urlutil.Normalize(rawURL)
	if owner, ok := ix.byURL[norm]; ok && owner == key {
		delete(ix.byURL, norm)
	}
}

func (ix *Index) LookupSourceID(source, id string) (string, bool) {
	if id == "" {
		return "", false
	}
	key, ok := ix.byID[sourceIDKey(source, id)]
	return key, ok
}

func (ix *Index) PutSourceID(source, id, key string) {
	if id == "" || key == "" {
		return
	}
	ix.byID[sourceIDKey(source, id)] = key
}

// RemoveKey forgets every mapping that points at key.
func (ix *Index) RemoveKey(key string) {
	for k, v := range ix.byURL {
		if v == key {
			delete(ix.byURL, k)
		}
	}
	for k, v := range ix.byID {
		if v == key {
			delete(ix.byID, k)
		}
	}
}

// Rebuild discards everything and replays entries in order. A later entry
// wins a URL collision.
func (ix *Index) Rebuild(entries []Entry) {
	ix.byURL = make(map[string]string, len(entries))
	ix.byID = make(map[string]string, len(entries))
	for _, e := range entries {
		ix.Put(e.HomepageURL, e.Key)
		for source, id := range e.SourceIDs {
			ix.PutSourceID(source, id, e.Key)
		}
	}
}

// Snapshot returns a copy of the URL mappings for persistence.
func (ix *Index) Snapshot() map[string]string {
	out := make(map[string]string, len(ix.byURL))
	for k, v := range ix.byURL {
		out[k] = v
	}
	return out
}

// Restore adopts a persisted URL snapshot and replays source ids from
// entries. The caller vouches that snapshot is current; an empty one is
// rebuilt from entries instead. It reports whether a rebuild happened.
func (ix *Index) Restore(snapshot map[string]string, entries []Entry) bool {
	if len(snapshot) == 0 {
		ix.Rebuild(entries)
		return true
	}
	ix.byURL = make(map[string]string, len(snapshot))
	for k, v := range snapshot {
		ix.byURL[k] = v
	}
	ix.byID = make(map[string]string, len(entries))
	for _, e := range entries {
		for source, id := range e.SourceIDs {
			ix.PutSourceID(source, id, e.Key)
		}
	}
	return false
}

func (ix *Index) Len() int {
	return len(ix.byURL)
}
