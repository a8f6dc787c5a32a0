package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"max int64", IRInt(9223372036854775807), "9223372036854775807"},
		{"bool", IRBool(true), "true"},
		{"explicit null", IRNull{}, "null"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"array of ints", IRArray{IRInt(1), IRInt(2), IRInt(3)}, "[1,2,3]"},
		{"plain go int", 7, "7"},
		{"plain go map", map[string]any{"b": "x", "a": int64(1)}, `{"a":1,"b":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := IRObject{
		"z": IRObject{"b": IRInt(1), "a": IRInt(2)},
		"a": IRInt(3),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as the surrogate pair D800 DC00, which sorts before E000.
	obj := IRObject{
		"\uE000":     IRInt(1),
		"\U00010000": IRInt(2),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"`+"\U00010000"+`":2,"`+"\uE000"+`":1}`, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(IRString("<b>fish & chips</b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<b>fish & chips</b>"`, string(result))
	assert.NotContains(t, string(result), `\u003c`)
	assert.NotContains(t, string(result), `\u0026`)
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical(IRString("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	// an escaped backslash followed by the letters u2028 stays as written
	result, err = MarshalCanonical(IRString("x\\u2028"))
	require.NoError(t, err)
	assert.Equal(t, `"x\\u2028"`, string(result))
}

func TestMarshalCanonicalEscapesControlCharacters(t *testing.T) {
	result, err := MarshalCanonical(IRString("tab\there\nquote\"slash\\"))
	require.NoError(t, err)
	assert.Equal(t, `"tab\there\nquote\"slash\\"`, string(result))
}

func TestMarshalCanonicalRejects(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"float64", float64(3.14), "float"},
		{"float32", float32(1.5), "float"},
		{"nil", nil, "null"},
		{"nested nil", IRObject{"a": IRArray{IRInt(1)}, "b": nil}, "null"},
		{"unsupported", struct{}{}, "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"

	r1, err := MarshalCanonical(IRObject{composed: IRString(composed)})
	require.NoError(t, err)
	r2, err := MarshalCanonical(IRObject{decomposed: IRString(decomposed)})
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
}

func TestMarshalCanonicalDeterministic(t *testing.T) {
	obj := IRObject{
		"title":     IRString("Warmup"),
		"thumbnail": IRString("img/warmup.png"),
		"tags":      IRArray{IRString("cardio"), IRString("easy")},
		"minutes":   IRInt(10),
	}

	first, err := MarshalCanonical(obj)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
