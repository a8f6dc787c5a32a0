package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{"zebra": IRInt(1), "apple": IRInt(2), "A": IRInt(3), "aa": IRInt(4)}
	assert.Equal(t, []string{"A", "aa", "apple", "zebra"}, obj.SortedKeys())
	assert.Empty(t, IRObject{}.SortedKeys())
}

func TestIRObjectAccessors(t *testing.T) {
	obj := IRObject{"s": IRString("x"), "n": IRInt(3), "z": IRNull{}}

	s, ok := obj.GetString("s")
	assert.True(t, ok)
	assert.Equal(t, "x", s)
	_, ok = obj.GetString("n")
	assert.False(t, ok)

	n, ok := obj.GetInt("n")
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)
	_, ok = obj.GetInt("missing")
	assert.False(t, ok)

	assert.True(t, obj.IsNull("z"))
	assert.False(t, obj.IsNull("missing"))
}

func TestIRObjectMarshalJSONSorted(t *testing.T) {
	obj := IRObject{"b": IRInt(1), "a": IRArray{IRBool(true), IRNull{}}}
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[true,null],"b":1}`, string(data))
}

func TestIRObjectUnmarshalJSON(t *testing.T) {
	var obj IRObject
	require.NoError(t, json.Unmarshal([]byte(`{"n":12,"s":"x","nested":{"b":false},"list":[1,"two"],"z":null}`), &obj))

	assert.Equal(t, IRInt(12), obj["n"])
	assert.Equal(t, IRString("x"), obj["s"])
	assert.Equal(t, IRObject{"b": IRBool(false)}, obj["nested"])
	assert.Equal(t, IRArray{IRInt(1), IRString("two")}, obj["list"])
	assert.Equal(t, IRNull{}, obj["z"])
}

func TestIRObjectUnmarshalRejectsFloatsAndNonObjects(t *testing.T) {
	var obj IRObject
	err := json.Unmarshal([]byte(`{"n":1.5}`), &obj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float")

	err = json.Unmarshal([]byte(`[1]`), &obj)
	require.Error(t, err)

	var arr IRArray
	require.NoError(t, json.Unmarshal([]byte(`[1,"a"]`), &arr))
	assert.Len(t, arr, 2)
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"title":   "Warmup",
		"minutes": 10,
		"whole":   float64(4),
		"tags":    []any{"a", true},
		"none":    nil,
	})
	require.NoError(t, err)

	obj := v.(IRObject)
	assert.Equal(t, IRString("Warmup"), obj["title"])
	assert.Equal(t, IRInt(10), obj["minutes"])
	assert.Equal(t, IRInt(4), obj["whole"], "integral floats from YAML decode as ints")
	assert.Equal(t, IRArray{IRString("a"), IRBool(true)}, obj["tags"])
	assert.Equal(t, IRNull{}, obj["none"])

	_, err = FromGo(map[string]any{"x": 2.5})
	require.Error(t, err)

	_, err = FromGo(struct{}{})
	require.Error(t, err)
}

func TestObjectFromGoNil(t *testing.T) {
	obj, err := ObjectFromGo(nil)
	require.NoError(t, err)
	assert.Equal(t, IRObject{}, obj)
}

func TestToGoRoundTrip(t *testing.T) {
	in := map[string]any{
		"s":    "x",
		"n":    int64(3),
		"b":    true,
		"list": []any{int64(1), "two"},
		"obj":  map[string]any{"k": nil},
	}
	v, err := FromGo(in)
	require.NoError(t, err)
	assert.Equal(t, in, ToGo(v))
}

func TestIRObjectClone(t *testing.T) {
	obj := IRObject{"nested": IRObject{"k": IRString("v")}}
	c := obj.Clone()
	c["nested"].(IRObject)["k"] = IRString("changed")
	assert.Equal(t, IRString("v"), obj["nested"].(IRObject)["k"])
	assert.Nil(t, IRObject(nil).Clone())
}
