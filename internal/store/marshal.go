package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/planbuilder/internal/ir"
)

// marshalPayload converts a payload to canonical JSON TEXT for storage.
func marshalPayload(payload ir.IRObject) (string, error) {
	if payload == nil {
		payload = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload parses stored JSON TEXT. ir.IRObject decodes numbers via
// json.Number so large integers survive.
func unmarshalPayload(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return obj, nil
}

// marshalUpdates encodes a batch for the batch log.
func marshalUpdates(updates []ir.PendingUpdate) (string, error) {
	arr := make(ir.IRArray, len(updates))
	for i, u := range updates {
		changes := u.Changes
		if changes == nil {
			changes = ir.IRObject{}
		}
		arr[i] = ir.IRObject{"item_id": ir.IRString(u.ItemID), "changes": changes}
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal updates: %w", err)
	}
	return string(data), nil
}
