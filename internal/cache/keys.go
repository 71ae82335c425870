// Package cache provides the deterministic cache keys and the memo stores
// for materialized objects and arrays.
package cache

import "fmt"

// Key grammar, stable and reproducible bit-for-bit:
//
//	file:   <file-uuid>:<path>
//	object: <file-uuid>:<path>;<cycle>
//	array:  <object-key>:<branch>(<type-id>):<interp-sig>:<start>-<stop>:<lib-tag>
//
// Two requests with identical semantic parameters produce identical keys;
// any differing parameter produces a different key. Entry ranges are part
// of the key, so a cached full-range array never implicitly satisfies a
// narrower request.

// FileKey returns the cache key of a file's root directory.
func FileKey(fileUUID string) string {
	return fileUUID + ":/"
}

// ObjectKey returns the cache key of one object (e.g. a tree) at a cycle.
// objectPath starts with "/".
func ObjectKey(fileUUID, objectPath string, cycle int) string {
	return fmt.Sprintf("%s:%s;%d", fileUUID, objectPath, cycle)
}

// BranchKey returns the cache key prefix for one branch of an object.
func BranchKey(objectKey, branchName string, typeID int) string {
	return fmt.Sprintf("%s:%s(%d)", objectKey, branchName, typeID)
}

// ArrayKey returns the cache key of a materialized array: one branch, one
// interpretation, one resolved (already normalized) entry range, one
// output library.
func ArrayKey(branchKey, interpID string, entryStart, entryStop int64, libraryTag string) string {
	return fmt.Sprintf("%s:%s:%d-%d:%s", branchKey, interpID, entryStart, entryStop, libraryTag)
}
