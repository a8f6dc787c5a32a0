package remote

import (
	"github.com/roach88/planbuilder/internal/ir"
)

// ApplyItemChanges folds a change set into a copy of it. The position field
// moves the item; every other key is merged into the payload, with IRNull
// removing the key.
func ApplyItemChanges(op Op, it ir.Item, changes ir.IRObject) (ir.Item, error) {
	out := it.Clone()
	if out.Payload == nil {
		out.Payload = ir.IRObject{}
	}
	for _, k := range changes.SortedKeys() {
		v := changes[k]
		if k == ir.FieldPosition {
			n, ok := v.(ir.IRInt)
			if !ok || n < 0 {
				return ir.Item{}, NewError(CodeInvalid, op, it.ID, errInvalidPosition)
			}
			out.Position = int(n)
			continue
		}
		if _, isNull := v.(ir.IRNull); isNull {
			delete(out.Payload, k)
			continue
		}
		out.Payload[k] = v
	}
	return out, nil
}

// ValidateAggregateChanges rejects change sets an aggregate cannot take.
func ValidateAggregateChanges(id string, changes ir.IRObject) error {
	for k, v := range changes {
		switch k {
		case ir.FieldItemCount:
			n, ok := v.(ir.IRInt)
			if !ok || n < 0 {
				return NewError(CodeInvalid, OpUpdate, id, errInvalidItemCount)
			}
		case ir.FieldThumbnail:
			switch v.(type) {
			case ir.IRString, ir.IRNull:
			default:
				return NewError(CodeInvalid, OpUpdate, id, errInvalidThumbnail)
			}
		case ir.FieldTitle:
			if _, ok := v.(ir.IRString); !ok {
				return NewError(CodeInvalid, OpUpdate, id, errInvalidTitle)
			}
		default:
			return NewError(CodeInvalid, OpUpdate, id, &unknownFieldError{field: k})
		}
	}
	return nil
}
