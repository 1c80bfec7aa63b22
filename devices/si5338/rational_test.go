// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package si5338

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReduce(t *testing.T) {
	assert.Equal(t, Rate{Integer: 3, Num: 1, Den: 2}, Rate{Integer: 1, Num: 10, Den: 4}.Reduce())
	assert.Equal(t, Rate{Integer: 7, Num: 0, Den: 1}, Rate{Integer: 7, Num: 0, Den: 9}.Reduce())
	assert.Equal(t, Rate{Integer: 2, Num: 0, Den: 1}, Rate{Integer: 0, Num: 6, Den: 3}.Reduce())
	assert.Equal(t, Rate{Integer: 0, Num: 4, Den: 5}, Rate{Num: 12672, Den: 15840}.Reduce())
}

func TestReduce_invariants(t *testing.T) {
	for num := uint64(0); num < 200; num += 3 {
		for den := uint64(1); den < 150; den += 7 {
			r := Rate{Integer: 11, Num: num, Den: den}.Reduce()
			if r.Num >= r.Den {
				t.Fatalf("%d/%d: %s: num >= den", num, den, r)
			}
			if r.Num == 0 {
				assert.Equal(t, uint64(1), r.Den)
			} else {
				assert.Equal(t, uint64(1), gcd(r.Num, r.Den), "%d/%d", num, den)
			}
			assert.Equal(t, r, r.Reduce(), "Reduce must be idempotent")
			// The value is preserved.
			assert.Equal(t, (11*den+num)*r.Den, (r.Integer*r.Den+r.Num)*den)
		}
	}
}

func TestDouble(t *testing.T) {
	assert.Equal(t, Rate{Integer: 3, Num: 0, Den: 1}, Rate{Integer: 1, Num: 1, Den: 2}.Double())
	assert.Equal(t, Rate{Integer: 2000000, Num: 0, Den: 1}, Hz(1000000).Double())
	assert.Equal(t, Rate{Integer: 0, Num: 2, Den: 3}, Rate{Num: 1, Den: 3}.Double())
}

func TestGCD(t *testing.T) {
	assert.Equal(t, uint64(6), gcd(12, 18))
	assert.Equal(t, uint64(7), gcd(0, 7))
	assert.Equal(t, uint64(1), gcd(13, 8))
	assert.Equal(t, uint64(0), gcd(0, 0))
}

func TestRate_String(t *testing.T) {
	assert.Equal(t, "1000000Hz", Hz(1000000).String())
	assert.Equal(t, "1+1/3Hz", Rate{Integer: 1, Num: 1, Den: 3}.String())
}
