// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package si5338

import "fmt"

// Rate is a frequency expressed as Integer + Num/Den Hz.
type Rate struct {
	Integer uint64
	Num     uint64
	Den     uint64
}

// Hz returns a Rate of exactly hz.
func Hz(hz uint64) Rate {
	return Rate{Integer: hz, Den: 1}
}

func (r Rate) String() string {
	if r.Num == 0 {
		return fmt.Sprintf("%dHz", r.Integer)
	}
	return fmt.Sprintf("%d+%d/%dHz", r.Integer, r.Num, r.Den)
}

// Reduce moves whole multiples of Den into Integer and reduces Num/Den to
// lowest terms.
//
// After reduction Num < Den, and either Num is 0 or gcd(Num, Den) is 1. A zero
// Num always reduces to 0/1.
func (r Rate) Reduce() Rate {
	if r.Den > 0 && r.Num >= r.Den {
		whole := r.Num / r.Den
		r.Integer += whole
		r.Num -= whole * r.Den
	}
	if v := gcd(r.Num, r.Den); v > 0 {
		r.Num /= v
		r.Den /= v
	}
	return r
}

// Double returns 2*r, reduced.
func (r Rate) Double() Rate {
	r.Integer *= 2
	r.Num *= 2
	return r.Reduce()
}

// gcd is Euclid's algorithm.
func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
