// Package sequence holds the local, optimistic ordering of a collection.
//
// A Model is the list the user sees. Gestures mutate it synchronously and
// never touch the network; the diff engine later compares it with the last
// state the remote store confirmed.
//
// At rest, positions are the dense permutation 0..n-1 and every item's
// position equals its index. Every operation preserves that.
package sequence
