package core

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPayloadCanonicalOrder(t *testing.T) {
	p := Payload{
		Amount: 5,
		To:     "0x0000->0x0000",
		Extra:  map[string]any{"memo": "hi", "fee": 1.5, "meta": map[string]any{"z": 1, "a": 2}},
	}

	data, err := p.Canonical()
	require.NoError(t, err)
	require.Equal(t, `{"amount":5,"to":"0x0000->0x0000","fee":1.5,"memo":"hi","meta":{"a":2,"z":1}}`, string(data))

	again, err := p.Canonical()
	require.NoError(t, err)
	require.Equal(t, data, again)
}

func TestPayloadRoundTrip(t *testing.T) {
	p := Payload{Amount: 2.25, To: "bob", Extra: map[string]any{"memo": "rent"}}
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var out Payload
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, p, out)

	back, err := out.Canonical()
	require.NoError(t, err)
	require.Equal(t, data, back)
}

func TestPayloadEncodingErrors(t *testing.T) {
	_, err := Payload{Amount: math.NaN()}.Canonical()
	require.ErrorIs(t, err, ErrEncoding)

	_, err = Payload{Amount: math.Inf(1)}.Canonical()
	require.ErrorIs(t, err, ErrEncoding)

	cyclic := map[string]any{}
	cyclic["self"] = cyclic
	_, err = Payload{Extra: map[string]any{"loop": cyclic}}.Canonical()
	require.ErrorIs(t, err, ErrEncoding)

	_, err = Payload{Extra: map[string]any{"to": "shadow"}}.Canonical()
	require.ErrorIs(t, err, ErrEncoding)
}

func TestPayloadWith(t *testing.T) {
	base := Payload{Amount: 0, To: "alice"}

	p, err := base.With("amount", " 12.5 ")
	require.NoError(t, err)
	require.Equal(t, 12.5, p.Amount)
	require.Equal(t, "alice", p.To)
	require.Equal(t, 0.0, base.Amount)

	p, err = base.With("recipient", "bob")
	require.NoError(t, err)
	require.Equal(t, "bob", p.To)

	p, err = base.With("to", "carol")
	require.NoError(t, err)
	require.Equal(t, "carol", p.To)

	p, err = base.With("memo", "lunch")
	require.NoError(t, err)
	require.Equal(t, "lunch", p.Extra["memo"])
	require.Nil(t, base.Extra)

	for _, bad := range []string{"", "abc", "NaN", "Inf", "1e999"} {
		_, err = base.With("amount", bad)
		require.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
}

func TestPayloadCloneIsIndependent(t *testing.T) {
	p := Payload{Extra: map[string]any{"tags": []any{"a"}}}
	c, err := p.Clone()
	require.NoError(t, err)

	c.Extra["tags"] = []any{"b"}
	require.Equal(t, []any{"a"}, p.Extra["tags"])
}

func TestPayloadCanonicalNoHTMLEscape(t *testing.T) {
	p := Payload{To: "a<b>&c", Extra: map[string]any{"note": map[string]any{"x": "->"}}}
	data, err := p.Canonical()
	require.NoError(t, err)
	require.Equal(t, `{"amount":0,"to":"a<b>&c","note":{"x":"->"}}`, string(data))
}

func TestPayloadLargeIntegerRoundTrip(t *testing.T) {
	p := Payload{To: "a", Extra: map[string]any{"id": int64(9007199254740993)}}
	data, err := p.Canonical()
	require.NoError(t, err)
	require.Equal(t, `{"amount":0,"to":"a","id":9007199254740993}`, string(data))

	c, err := p.Clone()
	require.NoError(t, err)
	require.Equal(t, json.Number("9007199254740993"), c.Extra["id"])

	back, err := c.Canonical()
	require.NoError(t, err)
	require.Equal(t, data, back)
}
