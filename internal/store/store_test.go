package store_test

import (
	"os"
	"strings"
	"testing"

	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/internal/product"
	"github.com/rohmanhakim/saas-intel/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_InsertAppendsToJournal(t *testing.T) {
	// GIVEN an empty store
	path := tempStorePath(t)
	s, _ := openStore(t, path)

	// WHEN two distinct products are added
	r1, err := s.Add(saashubProduct("notion", "Notion", "https://notion.so"))
	require.NoError(t, err)
	r2, err := s.Add(saashubProduct("linear", "Linear", "https://linear.app"))
	require.NoError(t, err)

	// THEN both are inserted and the journal has one line each
	assert.Equal(t, store.Inserted, r1.Outcome)
	assert.Equal(t, store.Inserted, r2.Outcome)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
	assert.False(t, s.Dirty())

	got, ok := s.Get("notion")
	require.True(t, ok)
	assert.Equal(t, product.StatusPending, got.Status)
	assert.NotNil(t, got.DiscoveredAt)
	assert.True(t, got.HomepageDiscovered)
}

func TestAdd_CrossSourceURLCollisionMerges(t *testing.T) {
	// GIVEN a SaaSHub product
	s, _ := openStore(t, tempStorePath(t))
	_, err := s.Add(saashubProduct("foo", "Foo", "https://Foo.com/"))
	require.NoError(t, err)

	// WHEN Product Hunt reports the same homepage spelled differently
	res, err := s.Add(productHuntProduct("ph_9", "Foo App", "http://www.foo.com"))
	require.NoError(t, err)

	// THEN exactly one product remains and it is marked merged
	assert.Equal(t, store.Merged, res.Outcome)
	assert.True(t, res.CrossSource)
	assert.Equal(t, "foo", res.Key)
	assert.Equal(t, 1, s.Len())

	merged, _ := s.Get("foo")
	assert.Equal(t, product.SourceMerged, merged.Source)
	assert.Equal(t, "foo", merged.SourceIDs[product.SourceSaaSHub])
	assert.Equal(t, "ph_9", merged.SourceIDs[product.SourceProductHunt])
	assert.Contains(t, merged.SourceURLs, product.SourceProductHunt)
	assert.Equal(t, []string{"notes", "wiki", "productivity"}, merged.Topics)
	assert.Equal(t, "api tagline", merged.Tagline)
	require.NotNil(t, merged.Votes)
	assert.Equal(t, 321, *merged.Votes)
	// same normalized URL: spelling kept, provenance upgraded
	assert.Equal(t, "https://Foo.com/", merged.HomepageURL)
	assert.Equal(t, product.OriginAPI, merged.HomepageOrigin)
	assert.True(t, s.Dirty())
}

func TestAdd_MergeNeverDropsData(t *testing.T) {
	// GIVEN an API-sourced product with votes and a tagline
	s, _ := openStore(t, tempStorePath(t))
	_, err := s.Add(productHuntProduct("ph_1", "Foo", "https://foo.com"))
	require.NoError(t, err)

	// WHEN a scraped record with empty fields and other votes merges in
	scraped := saashubProduct("foo", "Foo", "https://foo.com/en")
	scraped.Tagline = ""
	scraped.Votes = intPtr(5)
	scraped.Topics = nil
	_, err = s.Add(scraped)
	require.NoError(t, err)

	// THEN nothing populated on the existing product is lost
	got, _ := s.Get("ph_1")
	assert.Equal(t, "api tagline", got.Tagline)
	assert.Equal(t, 321, *got.Votes)
	assert.Equal(t, []string{"wiki", "productivity"}, got.Topics)
	assert.Equal(t, "https://foo.com", got.HomepageURL)
	assert.Equal(t, "ph_1", got.SourceIDs[product.SourceProductHunt])
	assert.Equal(t, "foo", got.SourceIDs[product.SourceSaaSHub])
}

func TestAdd_SameKeyKeepsPopulatedURL(t *testing.T) {
	// GIVEN a product whose homepage was resolved by scraping
	s, _ := openStore(t, tempStorePath(t))
	_, err := s.Add(saashubProduct("foo", "Foo", "https://foo-landing.io"))
	require.NoError(t, err)

	// WHEN a record with the same storage key arrives with another URL
	res, err := s.Add(saashubProduct("foo", "Foo", "https://foo.com"))
	require.NoError(t, err)

	// THEN it is a duplicate by key and the populated URL is kept
	assert.Equal(t, store.DuplicateRejected, res.Outcome)
	got, _ := s.Get("foo")
	assert.Equal(t, "https://foo-landing.io", got.HomepageURL)
	assert.False(t, s.IsKnownURL("foo.com"))
}

func TestAdd_SameKeyFillsOnlyEmptyFields(t *testing.T) {
	s, _ := openStore(t, tempStorePath(t))
	first := saashubProduct("foo", "Foo", "")
	first.Description = "original"
	_, err := s.Add(first)
	require.NoError(t, err)

	second := saashubProduct("foo", "Foo", "https://foo.com")
	second.Description = "replacement"
	second.Tagline = "new"
	res, err := s.Add(second)
	require.NoError(t, err)

	assert.Equal(t, store.DuplicateRejected, res.Outcome)
	assert.False(t, res.CrossSource)
	got, _ := s.Get("foo")
	assert.Equal(t, "original", got.Description)
	assert.Equal(t, "scraped tagline", got.Tagline)
	assert.Equal(t, "https://foo.com", got.HomepageURL)
	assert.True(t, s.IsKnownURL("foo.com"))
}

func TestAdd_RepeatedMergeIsCountedOnce(t *testing.T) {
	// GIVEN two sources already merged
	s, _ := openStore(t, tempStorePath(t))
	_, _ = s.Add(saashubProduct("foo", "Foo", "https://foo.com"))
	res, _ := s.Add(productHuntProduct("ph_9", "Foo", "https://foo.com"))
	require.True(t, res.CrossSource)

	// WHEN the same Product Hunt record is seen again on a rerun
	again, err := s.Add(productHuntProduct("ph_9", "Foo", "https://foo.com"))

	// THEN it is a duplicate, not a second merge
	require.NoError(t, err)
	assert.Equal(t, store.DuplicateRejected, again.Outcome)
	assert.False(t, again.CrossSource)
	assert.Equal(t, 1, s.Len())
}

func TestAdd_KnownSourceIDWithoutURLIsDuplicate(t *testing.T) {
	s, _ := openStore(t, tempStorePath(t))
	_, _ = s.Add(saashubProduct("foo", "Foo", "https://foo.com"))
	_, _ = s.Add(productHuntProduct("ph_9", "Foo", "https://foo.com"))

	res, err := s.Add(productHuntProduct("ph_9", "Foo", ""))

	require.NoError(t, err)
	assert.Equal(t, store.DuplicateRejected, res.Outcome)
	assert.Equal(t, "foo", res.Key)
	assert.Equal(t, 1, s.Len())
}

func TestAdd_RejectsProductWithoutIdentity(t *testing.T) {
	s, _ := openStore(t, tempStorePath(t))

	_, err := s.Add(&product.Product{})

	var storeErr *store.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, store.ErrCauseInvalidEntity, storeErr.Cause)
}

func TestSetHomepage_CollisionMergesIntoOwner(t *testing.T) {
	// GIVEN an API product owning foo.com and a scraped product without URL
	s, _ := openStore(t, tempStorePath(t))
	_, _ = s.Add(productHuntProduct("ph_1", "Foo", "https://foo.com"))
	_, _ = s.Add(saashubProduct("foo", "Foo", ""))

	// WHEN resolution finds foo.com for the scraped one
	res, err := s.SetHomepage("foo", "https://www.foo.com/", product.OriginResolved)

	// THEN it is folded into the owner and removed
	require.NoError(t, err)
	assert.True(t, res.MergedInto)
	assert.True(t, res.CrossSource)
	assert.Equal(t, "ph_1", res.Key)
	assert.Equal(t, 1, s.Len())
	_, ok := s.Get("foo")
	assert.False(t, ok)
	owner, _ := s.Get("ph_1")
	assert.Equal(t, product.SourceMerged, owner.Source)
	assert.Equal(t, "https://foo.com", owner.HomepageURL)
	assert.Equal(t, "foo", owner.SourceIDs[product.SourceSaaSHub])
}

func TestSetHomepage_UpdatesIndex(t *testing.T) {
	s, _ := openStore(t, tempStorePath(t))
	_, _ = s.Add(saashubProduct("foo", "Foo", ""))

	res, err := s.SetHomepage("foo", "https://foo.com", product.OriginResolved)

	require.NoError(t, err)
	assert.False(t, res.MergedInto)
	got, ok := s.LookupURL("http://www.foo.com/")
	require.True(t, ok)
	assert.Equal(t, "foo", got.ID)
	assert.True(t, got.HomepageDiscovered)
	assert.NotNil(t, got.HomepageCheckedAt)
	assert.Empty(t, s.NeedingHomepage())
}

func TestSetHomepage_UnknownKey(t *testing.T) {
	s, _ := openStore(t, tempStorePath(t))
	_, err := s.SetHomepage("missing", "https://x.io", product.OriginResolved)
	assert.Error(t, err)
}

func TestMarkHomepageChecked_ExcludesFromResolution(t *testing.T) {
	s, _ := openStore(t, tempStorePath(t))
	_, _ = s.Add(saashubProduct("foo", "Foo", ""))
	require.Len(t, s.NeedingHomepage(), 1)

	require.NoError(t, s.MarkHomepageChecked("foo"))

	assert.Empty(t, s.NeedingHomepage())
	n, err := s.ResetAll()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, s.NeedingHomepage(), 1)
}

func TestStatusTransitions_RewriteAtomically(t *testing.T) {
	// GIVEN two pending products
	path := tempStorePath(t)
	s, sink := openStore(t, path)
	_, _ = s.Add(saashubProduct("a", "A", "https://a.io"))
	_, _ = s.Add(saashubProduct("b", "B", "https://b.io"))

	// WHEN one completes and one fails
	require.NoError(t, s.MarkCompleted("a"))
	require.NoError(t, s.MarkFailed("b", "parse failure"))

	// THEN a reopened store sees both transitions and no temp file remains
	reopened, _ := openStore(t, path)
	a, _ := reopened.Get("a")
	b, _ := reopened.Get("b")
	assert.Equal(t, product.StatusCompleted, a.Status)
	assert.True(t, a.Extracted)
	assert.Equal(t, 1, a.ExtractionAttempts)
	assert.Equal(t, product.StatusFailed, b.Status)
	assert.Equal(t, "parse failure", b.FailureReason)

	entries, err := os.ReadDir(strings.TrimSuffix(path, "/targets.jsonl"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.NotEmpty(t, sink.artifacts)
}

func TestRecordAttempt_LeavesPendingUntilFlush(t *testing.T) {
	path := tempStorePath(t)
	s, _ := openStore(t, path)
	_, _ = s.Add(saashubProduct("a", "A", "https://a.io"))

	require.NoError(t, s.RecordAttempt("a", "429"))
	got, _ := s.Get("a")
	assert.Equal(t, product.StatusPending, got.Status)
	assert.Equal(t, 1, got.ExtractionAttempts)
	assert.True(t, s.Dirty())

	require.NoError(t, s.Flush())
	assert.False(t, s.Dirty())
	reopened, _ := openStore(t, path)
	again, _ := reopened.Get("a")
	assert.Equal(t, 1, again.ExtractionAttempts)
}

func TestResetFailed(t *testing.T) {
	s, _ := openStore(t, tempStorePath(t))
	_, _ = s.Add(saashubProduct("a", "A", "https://a.io"))
	_, _ = s.Add(saashubProduct("b", "B", "https://b.io"))
	require.NoError(t, s.MarkFailed("a", "boom"))
	require.NoError(t, s.MarkCompleted("b"))

	n, err := s.ResetFailed()

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	stats := s.Stats()
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 0, stats.Failed)
}

func TestOpen_SkipsMalformedLines(t *testing.T) {
	// GIVEN a journal with a broken line between two good ones
	path := tempStorePath(t)
	s, _ := openStore(t, path)
	_, _ = s.Add(saashubProduct("a", "A", "https://a.io"))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n\n{}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	_, _ = s.Add(saashubProduct("b", "B", "https://b.io"))

	// WHEN it is reopened
	reopened, sink := openStore(t, path)

	// THEN good lines load and the bad ones are reported, not fatal
	assert.Equal(t, 2, reopened.Len())
	assert.Equal(t, 2, reopened.Skipped())
	require.Len(t, sink.errors, 2)
	assert.Equal(t, metadata.CauseContentInvalid, sink.errors[0].cause)
}

func TestOpen_MigratesLegacyRecords(t *testing.T) {
	// GIVEN a version 1 journal written before status and sources existed
	path := tempStorePath(t)
	require.NoError(t, os.MkdirAll(strings.TrimSuffix(path, "/targets.jsonl"), 0o755))
	legacy := `{"id":"ph_1","name":"Foo","homepage_url":"https://foo.com","extracted":false}` + "\n" +
		`{"name":"Bar Tool","extracted":true}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	// WHEN it is opened
	s, _ := openStore(t, path)

	// THEN records are upgraded and the store wants a rewrite
	foo, ok := s.Get("ph_1")
	require.True(t, ok)
	assert.Equal(t, product.SourceProductHunt, foo.Source)
	assert.Equal(t, product.StatusPending, foo.Status)
	assert.True(t, foo.HomepageDiscovered)
	bar, ok := s.Get("bar-tool")
	require.True(t, ok)
	assert.Equal(t, product.StatusCompleted, bar.Status)
	assert.True(t, s.Dirty())
	assert.True(t, s.IsKnownURL("foo.com"))
}

func TestOpen_UsesIndexCacheWhileJournalIsUnchanged(t *testing.T) {
	// GIVEN an index snapshot taken right after a write
	path := tempStorePath(t)
	s, _ := openStore(t, path)
	_, _ = s.Add(saashubProduct("a", "A", "https://a.io"))
	snapshot, fp := s.IndexSnapshot()
	require.NotEmpty(t, fp)

	// WHEN the journal is reopened untouched
	fresh, _ := openStore(t, path, store.WithIndexCache(snapshot, fp))

	// THEN the cache is adopted as is
	assert.False(t, fresh.IndexRebuilt())
	assert.True(t, fresh.IsKnownURL("a.io"))
}

func TestOpen_RebuildsIndexWhenJournalMoved(t *testing.T) {
	// GIVEN a snapshot, after which another product reached the journal
	path := tempStorePath(t)
	s, _ := openStore(t, path)
	_, _ = s.Add(saashubProduct("a", "A", "https://a.io"))
	snapshot, fp := s.IndexSnapshot()
	_, _ = s.Add(saashubProduct("b", "B", "https://b.io"))

	// WHEN the journal is reopened with the old cache
	stale, _ := openStore(t, path, store.WithIndexCache(snapshot, fp))

	// THEN the index is rebuilt and knows both homepages
	assert.True(t, stale.IndexRebuilt())
	assert.True(t, stale.IsKnownURL("a.io"))
	assert.True(t, stale.IsKnownURL("b.io"))
}

func TestOpen_RebuildsIndexWithoutFingerprint(t *testing.T) {
	path := tempStorePath(t)
	s, _ := openStore(t, path)
	_, _ = s.Add(saashubProduct("a", "A", "https://a.io"))

	reopened, _ := openStore(t, path, store.WithIndexCache(map[string]string{"x.io": "x"}, ""))

	assert.True(t, reopened.IndexRebuilt())
	assert.True(t, reopened.IsKnownURL("a.io"))
	assert.False(t, reopened.IsKnownURL("x.io"))
}

func TestNeedingExtraction_RespectsLimitAndOrder(t *testing.T) {
	s, _ := openStore(t, tempStorePath(t))
	_, _ = s.Add(saashubProduct("a", "A", "https://a.io"))
	_, _ = s.Add(saashubProduct("b", "B", ""))
	_, _ = s.Add(saashubProduct("c", "C", "https://c.io"))
	_, _ = s.Add(saashubProduct("d", "D", "https://d.io"))

	got := s.NeedingExtraction(2)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestStats_PerSource(t *testing.T) {
	s, _ := openStore(t, tempStorePath(t))
	_, _ = s.Add(saashubProduct("a", "A", "https://a.io"))
	_, _ = s.Add(productHuntProduct("ph_1", "B", ""))

	st := s.Stats()

	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.NoHomepage)
	assert.Equal(t, 1, st.PerSource[product.SourceSaaSHub])
	assert.Equal(t, 1, st.PerSource[product.SourceProductHunt])
}
