package common

import (
	"github.com/google/uuid"
)

// NewDocumentID generates a unique document ID with the "doc_" prefix
// Format: doc_<uuid>
func NewDocumentID() string {
	return "doc_" + uuid.New().String()
}

// NewCrawlID generates a unique crawl ID. Format: crawl_<uuid>
func NewCrawlID() string {
	return "crawl_" + uuid.New().String()
}

// NewCheckpointID generates a unique checkpoint ID. Format: ckpt_<uuid>
func NewCheckpointID() string {
	return "ckpt_" + uuid.New().String()
}

// NewEventSubscriberID generates a unique subscriber ID for diagnostics.
// Format: sub_<uuid>
func NewEventSubscriberID() string {
	return "sub_" + uuid.New().String()
}
