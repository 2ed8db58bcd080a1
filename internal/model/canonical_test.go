package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeJSON_SortsKeys(t *testing.T) {
	out, err := CanonicalizeJSON([]byte(`{"b":1,"a":{"z":true,"y":null},"c":[3,"x"]}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"y":null,"z":true},"b":1,"c":[3,"x"]}`, string(out))
}

func TestCanonicalizeJSON_FieldOrderIndependent(t *testing.T) {
	a, err := CanonicalizeJSON([]byte(`{"memo":"rent","amount":"1200.00"}`))
	require.NoError(t, err)
	b, err := CanonicalizeJSON([]byte(`{ "amount": "1200.00", "memo": "rent" }`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCanonicalizeJSON_RejectsFloats(t *testing.T) {
	_, err := CanonicalizeJSON([]byte(`{"balance":12.5}`))
	assert.ErrorIs(t, err, ErrFloatAttribute)

	_, err = CanonicalizeJSON([]byte(`{"balance":1e3}`))
	assert.ErrorIs(t, err, ErrFloatAttribute)
}

func TestCanonicalizeJSON_NoHTMLEscape(t *testing.T) {
	out, err := CanonicalizeJSON([]byte(`{"memo":"a<b>&c"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"memo":"a<b>&c"}`, string(out))
}

func TestCanonicalizeJSON_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to the precomposed form.
	decomposed, err := CanonicalizeJSON([]byte("{\"memo\":\"cafe\u0301\"}"))
	require.NoError(t, err)
	composed, err := CanonicalizeJSON([]byte("{\"memo\":\"caf\u00e9\"}"))
	require.NoError(t, err)
	assert.Equal(t, string(composed), string(decomposed))
}

func TestCanonicalizeJSON_LineSeparators(t *testing.T) {
	out, err := CanonicalizeJSON([]byte("{\"memo\":\"a\u2028b\"}"))
	require.NoError(t, err)
	assert.Equal(t, "{\"memo\":\"a\u2028b\"}", string(out))

	// An escaped backslash followed by the text u2028 stays as it was.
	out, err = CanonicalizeJSON([]byte(`{"memo":"a\\u2028b"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"memo":"a\\u2028b"}`, string(out))
}

func TestCanonicalizeJSON_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as the surrogate pair D83D DE00, which sorts before
	// U+FF61 in UTF-16 even though its UTF-8 bytes sort after.
	out, err := CanonicalizeJSON([]byte("{\"\uFF61\":1,\"\U0001F600\":2}"))
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uFF61\":1}", string(out))
}
