// Package fingerprint implements the fingerprint and change detector:
// deciding whether a URL needs fetching, and classifying a fetched document
// against the prior iteration's fingerprints.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/ternarybob/crawlcore/internal/models"
)

// Decision is the outcome of ShouldFetch.
type Decision int

const (
	Fetch Decision = iota
	SkipUnchanged
)

// ProbeHeaders carries the validators from a HEAD/conditional-GET probe, if
// one was performed ahead of the full fetch.
type ProbeHeaders struct {
	ETag         string
	LastModified string
}

// ShouldFetch implements the skip-or-fetch policy:
//   - no parent fingerprint for url -> Fetch
//   - parent has a non-empty ETag and probe ETag matches byte-for-byte -> Skip
//   - else parent has LastModified and probe LastModified parses to the
//     same instant -> Skip
//   - else -> Fetch
//
// ETag comparison is strong (no weak-tag matching); unparseable
// Last-Modified values fall through to Fetch.
func ShouldFetch(url string, parent map[string]models.Fingerprint, probe *ProbeHeaders) Decision {
	fp, ok := parent[url]
	if !ok {
		return Fetch
	}

	if probe == nil {
		return Fetch
	}

	if fp.ETag != "" && probe.ETag != "" && strongETagEqual(fp.ETag, probe.ETag) {
		return SkipUnchanged
	}

	if fp.LastModified != "" && probe.LastModified != "" {
		parentT, err1 := http.ParseTime(fp.LastModified)
		probeT, err2 := http.ParseTime(probe.LastModified)
		if err1 == nil && err2 == nil && parentT.Equal(probeT) {
			return SkipUnchanged
		}
	}

	return Fetch
}

// strongETagEqual implements strong ETag comparison (RFC 7232 §2.3.2): a
// weak validator ("W/" prefix) never matches, and the quoted values must be
// byte-for-byte identical.
func strongETagEqual(a, b string) bool {
	if len(a) >= 2 && a[0] == 'W' && a[1] == '/' {
		return false
	}
	if len(b) >= 2 && b[0] == 'W' && b[1] == '/' {
		return false
	}
	return a == b
}

// Classify computes SHA-256 of the body it is given and compares against the
// parent fingerprint. The executor passes the fetched body after
// Content-Encoding (gzip/br) decoding but before any content extraction, so
// classification is stable across extractor changes; the bytes as sent on
// the wire are not what is hashed.
func Classify(url string, rawBody []byte, parent map[string]models.Fingerprint) (models.ChangeClass, string) {
	hash := sha256Hex(rawBody)

	fp, ok := parent[url]
	if !ok {
		return models.ChangeNew, hash
	}
	if fp.ContentHash == hash {
		return models.ChangeUnchanged, hash
	}
	return models.ChangeModified, hash
}

func sha256Hex(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// DeletedSet computes parent keys minus current keys.
// Only meaningful at iteration completion.
func DeletedSet(parent map[string]models.Fingerprint, seenInCurrentIteration map[string]struct{}) map[string]struct{} {
	deleted := make(map[string]struct{})
	for url := range parent {
		if _, seen := seenInCurrentIteration[url]; !seen {
			deleted[url] = struct{}{}
		}
	}
	return deleted
}

// NewFingerprint builds a Fingerprint record for a successful fetch.
func NewFingerprint(iterationID, url, contentHash, etag, lastModified string, byteSize uint64, fetchedAt time.Time, extra map[string]string) models.Fingerprint {
	return models.Fingerprint{
		Key:          models.FingerprintKey(iterationID, url),
		IterationID:  iterationID,
		URL:          url,
		ContentHash:  contentHash,
		ETag:         etag,
		LastModified: lastModified,
		ByteSize:     byteSize,
		FetchedAt:    fetchedAt,
		Metadata:     extra,
	}
}
