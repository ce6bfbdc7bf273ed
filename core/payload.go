package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Payload is the data record carried by a block.
type Payload struct {
	Amount float64
	To     string
	// Extra holds any additional JSON-encodable fields.
	Extra map[string]any
}

// Canonical returns the deterministic JSON encoding hashed into a block:
// amount, then to, then extra keys in ascending order.
func (p Payload) Canonical() ([]byte, error) {
	if math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) {
		return nil, fmt.Errorf("%w: amount %v is not finite", ErrEncoding, p.Amount)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"amount":`)
	amount, err := encodeValue(p.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	buf.Write(amount)

	buf.WriteString(`,"to":`)
	to, err := encodeValue(p.To)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	buf.Write(to)

	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		if k == "amount" || k == "to" {
			return nil, fmt.Errorf("%w: extra field %q shadows a fixed field", ErrEncoding, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key, err := encodeValue(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
		}
		// Nested maps are key-sorted by encoding/json.
		val, err := encodeValue(p.Extra[k])
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrEncoding, k, err)
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// encodeValue marshals v without HTML escaping and without the trailing
// newline json.Encoder appends.
func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// MarshalJSON encodes p in its canonical form.
func (p Payload) MarshalJSON() ([]byte, error) {
	return p.Canonical()
}

// UnmarshalJSON decodes a payload object. Extra numbers are kept as
// json.Number so they re-encode byte for byte.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	out := Payload{}
	for k, v := range raw {
		switch k {
		case "amount":
			num, ok := v.(json.Number)
			if !ok {
				return fmt.Errorf("%w: amount must be a number", ErrInvalidAmount)
			}
			n, err := num.Float64()
			if err != nil || math.IsInf(n, 0) {
				return fmt.Errorf("%w: %s", ErrInvalidAmount, num)
			}
			out.Amount = n
		case "to":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("%w: to must be a string", ErrEncoding)
			}
			out.To = s
		default:
			if out.Extra == nil {
				out.Extra = make(map[string]any)
			}
			out.Extra[k] = v
		}
	}
	*p = out
	return nil
}

// Clone returns a deep copy of p. The copy shares nothing with p, so
// mutating caller-held maps cannot reach a block's hashed state.
func (p Payload) Clone() (Payload, error) {
	data, err := p.Canonical()
	if err != nil {
		return Payload{}, err
	}
	var out Payload
	if err := json.Unmarshal(data, &out); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return out, nil
}

// With returns a copy of p with one field replaced from user input.
// "amount" must parse as a finite number; "to" and "recipient" set the
// recipient; any other name is stored as a string extra field.
func (p Payload) With(field, value string) (Payload, error) {
	out, err := p.Clone()
	if err != nil {
		return Payload{}, err
	}

	switch strings.ToLower(strings.TrimSpace(field)) {
	case "amount":
		n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return Payload{}, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
		}
		out.Amount = n
	case "to", "recipient":
		out.To = value
	case "":
		return Payload{}, fmt.Errorf("%w: empty field name", ErrEncoding)
	default:
		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[field] = value
	}
	return out, nil
}
