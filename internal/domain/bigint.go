package domain

import (
	"encoding/json"
	"math/big"
)

// BigInt wraps math/big.Int so monetary amounts in the smallest token unit
// never touch a float on the hot path (spec.md §3), while still supporting
// the canonical JSON encoding the idempotence property (spec.md §8) needs:
// the same value always marshals to the same decimal string.
type BigInt struct {
	v big.Int
}

// NewBigInt wraps an int64 value.
func NewBigInt(v int64) *BigInt {
	b := &BigInt{}
	b.v.SetInt64(v)
	return b
}

// NewBigIntFromBig wraps an existing *big.Int, copying it so the caller's
// value and the wrapped one never alias — needed when the value comes back
// from an ABI-decoded chain call, which owns its own *big.Int.
func NewBigIntFromBig(v *big.Int) *BigInt {
	b := &BigInt{}
	if v != nil {
		b.v.Set(v)
	}
	return b
}

// ParseBigInt parses a base-10 string into a BigInt.
func ParseBigInt(s string) (*BigInt, bool) {
	b := &BigInt{}
	_, ok := b.v.SetString(s, 10)
	return b, ok
}

// Int returns the underlying *big.Int. Callers must not mutate it.
func (b *BigInt) Int() *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return &b.v
}

// String renders the canonical base-10 representation.
func (b *BigInt) String() string {
	if b == nil {
		return "0"
	}
	return b.v.String()
}

// Cmp compares b to other, nil-safe (nil behaves as zero).
func (b *BigInt) Cmp(other *BigInt) int {
	return b.Int().Cmp(other.Int())
}

// Add returns a new BigInt holding b+other.
func (b *BigInt) Add(other *BigInt) *BigInt {
	r := &BigInt{}
	r.v.Add(b.Int(), other.Int())
	return r
}

// Sub returns a new BigInt holding b-other.
func (b *BigInt) Sub(other *BigInt) *BigInt {
	r := &BigInt{}
	r.v.Sub(b.Int(), other.Int())
	return r
}

// MulBps returns b * bps / 10000, truncating toward zero — the standard way
// to apply a basis-point rate to an integer smallest-unit amount without
// floating point.
func (b *BigInt) MulBps(bps int64) *BigInt {
	r := &BigInt{}
	num := new(big.Int).Mul(b.Int(), big.NewInt(bps))
	r.v.Quo(num, big.NewInt(10000))
	return r
}

// IsZero reports whether the value is zero (nil is treated as zero).
func (b *BigInt) IsZero() bool { return b.Int().Sign() == 0 }

// MarshalJSON encodes as a JSON string so values beyond float64 precision
// survive round-trips unchanged.
func (b *BigInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON decodes from a JSON string.
func (b *BigInt) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseBigInt(s)
	if !ok {
		parsed = NewBigInt(0)
	}
	b.v = parsed.v
	return nil
}
