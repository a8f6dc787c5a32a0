package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix leaves room for
// changing the algorithm later.
const (
	DomainSnapshot = "planbuilder/snapshot/v1"
	DomainBatch    = "planbuilder/batch/v1"
	DomainStep     = "planbuilder/step/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
// The separator keeps domain and data from running into each other.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotDigest hashes the ordered ids, positions and payloads of a snapshot.
// Two clients holding the same collection state compute the same digest.
func SnapshotDigest(s Snapshot) (string, error) {
	arr := make(IRArray, len(s))
	for i, it := range s {
		payload := it.Payload
		if payload == nil {
			payload = IRObject{}
		}
		arr[i] = IRObject{
			"id":       IRString(it.ID),
			"position": IRInt(it.Position),
			"payload":  payload,
		}
	}
	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("SnapshotDigest: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// BatchKey identifies a batch write by its collection and content. Retrying
// the identical batch yields the identical key, which a store can use for
// de-duplication.
func BatchKey(collectionID string, updates []PendingUpdate) (string, error) {
	arr := make(IRArray, len(updates))
	for i, u := range updates {
		changes := u.Changes
		if changes == nil {
			changes = IRObject{}
		}
		arr[i] = IRObject{
			"item_id": IRString(u.ItemID),
			"changes": changes,
		}
	}
	canonical, err := MarshalCanonical(IRObject{
		"collection_id": IRString(collectionID),
		"updates":       arr,
	})
	if err != nil {
		return "", fmt.Errorf("BatchKey: %w", err)
	}
	return hashWithDomain(DomainBatch, canonical), nil
}

// StepKey identifies one step of one saga run.
func StepKey(runToken, stepID string) string {
	canonical, err := MarshalCanonical(IRObject{
		"run_token": IRString(runToken),
		"step_id":   IRString(stepID),
	})
	if err != nil {
		// strings only; cannot fail
		panic(err)
	}
	return hashWithDomain(DomainStep, canonical)
}

// MustSnapshotDigest is SnapshotDigest that panics. Tests only.
func MustSnapshotDigest(s Snapshot) string {
	d, err := SnapshotDigest(s)
	if err != nil {
		panic(err)
	}
	return d
}
