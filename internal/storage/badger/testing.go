package badger

import "github.com/timshannon/badgerhold/v4"

// WrapStoreForTest builds a BadgerDB around an already-opened badgerhold
// Store (&BadgerDB{store: store}) for use from other packages' tests.
func WrapStoreForTest(store *badgerhold.Store) *BadgerDB {
	return &BadgerDB{store: store}
}
