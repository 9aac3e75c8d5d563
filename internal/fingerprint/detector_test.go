package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/crawlcore/internal/models"
)

func hashOf(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

func TestShouldFetchNoParentFingerprint(t *testing.T) {
	decision := ShouldFetch("https://a.test/x", map[string]models.Fingerprint{}, nil)
	assert.Equal(t, Fetch, decision)
}

func TestShouldFetchNoProbe(t *testing.T) {
	parent := map[string]models.Fingerprint{
		"https://a.test/x": {URL: "https://a.test/x", ETag: `"abc"`},
	}
	assert.Equal(t, Fetch, ShouldFetch("https://a.test/x", parent, nil))
}

func TestShouldFetchStrongETagMatchSkips(t *testing.T) {
	parent := map[string]models.Fingerprint{
		"https://a.test/x": {URL: "https://a.test/x", ETag: `"abc"`},
	}
	decision := ShouldFetch("https://a.test/x", parent, &ProbeHeaders{ETag: `"abc"`})
	assert.Equal(t, SkipUnchanged, decision)
}

func TestShouldFetchWeakETagNeverMatches(t *testing.T) {
	parent := map[string]models.Fingerprint{
		"https://a.test/x": {URL: "https://a.test/x", ETag: `W/"abc"`},
	}
	decision := ShouldFetch("https://a.test/x", parent, &ProbeHeaders{ETag: `W/"abc"`})
	assert.Equal(t, Fetch, decision)
}

func TestShouldFetchLastModifiedSameInstantSkips(t *testing.T) {
	lm := "Tue, 15 Nov 1994 12:45:26 GMT"
	parent := map[string]models.Fingerprint{
		"https://a.test/x": {URL: "https://a.test/x", LastModified: lm},
	}
	decision := ShouldFetch("https://a.test/x", parent, &ProbeHeaders{LastModified: lm})
	assert.Equal(t, SkipUnchanged, decision)
}

func TestShouldFetchUnparseableLastModifiedFallsThroughToFetch(t *testing.T) {
	parent := map[string]models.Fingerprint{
		"https://a.test/x": {URL: "https://a.test/x", LastModified: "not-a-date"},
	}
	decision := ShouldFetch("https://a.test/x", parent, &ProbeHeaders{LastModified: "also-not-a-date"})
	assert.Equal(t, Fetch, decision)
}

func TestShouldFetchETagMismatchFallsThroughToLastModified(t *testing.T) {
	lm := "Tue, 15 Nov 1994 12:45:26 GMT"
	parent := map[string]models.Fingerprint{
		"https://a.test/x": {URL: "https://a.test/x", ETag: `"abc"`, LastModified: lm},
	}
	decision := ShouldFetch("https://a.test/x", parent, &ProbeHeaders{ETag: `"different"`, LastModified: lm})
	assert.Equal(t, SkipUnchanged, decision)
}

func TestClassifyNewWhenNoParentEntry(t *testing.T) {
	class, hash := Classify("https://a.test/x", []byte("body"), map[string]models.Fingerprint{})
	assert.Equal(t, models.ChangeNew, class)
	assert.Equal(t, hashOf("body"), hash)
}

func TestClassifyUnchangedWhenHashMatches(t *testing.T) {
	parent := map[string]models.Fingerprint{
		"https://a.test/x": {URL: "https://a.test/x", ContentHash: hashOf("body")},
	}
	class, hash := Classify("https://a.test/x", []byte("body"), parent)
	assert.Equal(t, models.ChangeUnchanged, class)
	assert.Equal(t, hashOf("body"), hash)
}

func TestClassifyModifiedWhenHashDiffers(t *testing.T) {
	parent := map[string]models.Fingerprint{
		"https://a.test/x": {URL: "https://a.test/x", ContentHash: hashOf("old-body")},
	}
	class, _ := Classify("https://a.test/x", []byte("new-body"), parent)
	assert.Equal(t, models.ChangeModified, class)
}

// TestChangeClassSoundness verifies change-class soundness: hash match is
// Unchanged, no parent entry is New, otherwise Modified.
func TestChangeClassSoundness(t *testing.T) {
	body := []byte("identical-bytes")
	hash := hashOf(string(body))

	parent := map[string]models.Fingerprint{"u": {URL: "u", ContentHash: hash}}
	class, _ := Classify("u", body, parent)
	assert.Equal(t, models.ChangeUnchanged, class)

	class, _ = Classify("u", body, map[string]models.Fingerprint{})
	assert.Equal(t, models.ChangeNew, class)

	parent = map[string]models.Fingerprint{"u": {URL: "u", ContentHash: hashOf("other")}}
	class, _ = Classify("u", body, parent)
	assert.Equal(t, models.ChangeModified, class)
}

// TestS1BaselineThenIncrementalOneModified covers the baseline-then-incremental
// scenario: baseline fetches A, B, C; incremental gets 304 for A and B (ShouldFetch
// skips), a fresh body for C (Classify -> Modified).
func TestS1BaselineThenIncrementalOneModified(t *testing.T) {
	baseline := map[string]models.Fingerprint{
		"A": {URL: "A", ContentHash: hashOf("a0"), ETag: `"eA"`},
		"B": {URL: "B", ContentHash: hashOf("b0"), ETag: `"eB"`},
		"C": {URL: "C", ContentHash: hashOf("c0"), ETag: `"eC"`},
	}

	assert.Equal(t, SkipUnchanged, ShouldFetch("A", baseline, &ProbeHeaders{ETag: `"eA"`}))
	assert.Equal(t, SkipUnchanged, ShouldFetch("B", baseline, &ProbeHeaders{ETag: `"eB"`}))
	assert.Equal(t, Fetch, ShouldFetch("C", baseline, &ProbeHeaders{ETag: `"different"`}))

	class, hash := Classify("C", []byte("c1"), baseline)
	assert.Equal(t, models.ChangeModified, class)
	assert.Equal(t, hashOf("c1"), hash)

	incremental := map[string]models.Fingerprint{
		"A": baseline["A"],
		"B": baseline["B"],
		"C": {URL: "C", ContentHash: hash},
	}
	seen := map[string]struct{}{"A": {}, "B": {}, "C": {}}
	assert.Empty(t, DeletedSet(baseline, seen))
	_ = incremental
}

func TestDeletedSetIsParentMinusCurrent(t *testing.T) {
	parent := map[string]models.Fingerprint{
		"A": {URL: "A"},
		"B": {URL: "B"},
		"C": {URL: "C"},
	}
	seen := map[string]struct{}{"A": {}, "C": {}}
	deleted := DeletedSet(parent, seen)
	assert.Equal(t, map[string]struct{}{"B": {}}, deleted)
}

func TestNewFingerprintBuildsCompositeKey(t *testing.T) {
	fp := NewFingerprint("iter-1", "https://a.test/x", hashOf("body"), `"etag"`, "", 4, time.Unix(0, 0), nil)
	assert.Equal(t, models.FingerprintKey("iter-1", "https://a.test/x"), fp.Key)
	assert.Equal(t, "iter-1", fp.IterationID)
	assert.Equal(t, uint64(4), fp.ByteSize)
}
