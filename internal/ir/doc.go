// Package ir holds the shared data model of planbuilder: fragments (Item),
// ordered snapshots, parent aggregates, pending updates and the sealed value
// family used for opaque payloads and change sets.
//
// ir imports nothing internal; every other package builds on it.
//
// Constraints:
//   - no float values anywhere; positions and counts are integers
//   - content hashes use MarshalCanonical only
//   - JSON tags are snake_case
package ir
