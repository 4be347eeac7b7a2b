package dedup_test

import (
	"testing"

	"github.com/rohmanhakim/saas-intel/internal/dedup"
	"github.com/stretchr/testify/assert"
)

func TestIndex_EquivalentURLsShareAKey(t *testing.T) {
	// GIVEN an index holding one product URL
	ix := dedup.NewIndex()
	assert.True(t, ix.Put("https://Foo.com/", "foo"))

	// WHEN a differently spelled but equivalent URL is looked up
	key, ok := ix.Lookup("http://www.foo.com")

	// THEN it resolves to the same product
	assert.True(t, ok)
	assert.Equal(t, "foo", key)
	assert.True(t, ix.IsKnown("foo.com/en"))
}

func TestIndex_EmptyURLNeverIndexed(t *testing.T) {
	ix := dedup.NewIndex()

	assert.False(t, ix.Put("", "a"))
	assert.False(t, ix.Put("   ", "a"))
	assert.False(t, ix.IsKnown(""))
	assert.Equal(t, 0, ix.Len())
}

func TestIndex_RemoveOnlyWhenOwned(t *testing.T) {
	ix := dedup.NewIndex()
	ix.Put("https://foo.com", "a")

	ix.Remove("https://foo.com", "b")
	assert.True(t, ix.IsKnown("https://foo.com"))

	ix.Remove("https://foo.com", "a")
	assert.False(t, ix.IsKnown("https://foo.com"))
}

func TestIndex_SourceIDs(t *testing.T) {
	ix := dedup.NewIndex()
	ix.PutSourceID("producthunt", "ph_1", "notion")

	key, ok := ix.LookupSourceID("producthunt", "ph_1")
	assert.True(t, ok)
	assert.Equal(t, "notion", key)

	_, ok = ix.LookupSourceID("saashub", "ph_1")
	assert.False(t, ok)

	ix.RemoveKey("notion")
	_, ok = ix.LookupSourceID("producthunt", "ph_1")
	assert.False(t, ok)
}

func entries() []dedup.Entry {
	return []dedup.Entry{
		{Key: "a", HomepageURL: "https://a.io", SourceIDs: map[string]string{"saashub": "a"}},
		{Key: "b", HomepageURL: "", SourceIDs: map[string]string{"producthunt": "ph_b"}},
		{Key: "c", HomepageURL: "https://www.c.dev/en"},
	}
}

func TestIndex_RestoreRebuildsWhenEmpty(t *testing.T) {
	ix := dedup.NewIndex()

	rebuilt := ix.Restore(nil, entries())

	assert.True(t, rebuilt)
	assert.Equal(t, 2, ix.Len())
	key, _ := ix.Lookup("c.dev")
	assert.Equal(t, "c", key)
}

func TestIndex_RestoreAdoptsSnapshotWithoutReplay(t *testing.T) {
	// GIVEN a snapshot covering only one of the entries
	ix := dedup.NewIndex()
	snapshot := map[string]string{"a.io": "a"}

	// WHEN it is restored
	rebuilt := ix.Restore(snapshot, entries())

	// THEN the URLs come from the snapshot alone and ids from the entries
	assert.False(t, rebuilt)
	assert.Equal(t, 1, ix.Len())
	assert.False(t, ix.IsKnown("c.dev"))
	_, ok := ix.LookupSourceID("producthunt", "ph_b")
	assert.True(t, ok)
}

func TestIndex_RestoreTrustsConsistentSnapshot(t *testing.T) {
	source := dedup.NewIndex()
	source.Rebuild(entries())

	ix := dedup.NewIndex()
	rebuilt := ix.Restore(source.Snapshot(), entries())

	assert.False(t, rebuilt)
	assert.Equal(t, source.Snapshot(), ix.Snapshot())
	key, ok := ix.LookupSourceID("producthunt", "ph_b")
	assert.True(t, ok)
	assert.Equal(t, "b", key)
}
