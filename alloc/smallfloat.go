package alloc

import "math/bits"

// Size classes are encoded as a tiny floating point number: a 5-bit exponent
// and a 3-bit mantissa. Sizes below mantissaValue are the denormal range and
// are stored exactly, so every class below 240 decodes to a distinct size.
const (
	mantissaBits  = 3
	mantissaValue = 1 << mantissaBits
	mantissaMask  = mantissaValue - 1
)

// RoundUp returns the smallest size class whose lower bound is >= size.
//
// Decode(RoundUp(x)) >= x holds for every x.
func RoundUp(size uint32) uint32 {
	if size < mantissaValue {
		return size
	}

	highestSetBit := uint32(31 - bits.LeadingZeros32(size))
	mantissaStartBit := highestSetBit - mantissaBits
	exp := mantissaStartBit + 1
	mantissa := (size >> mantissaStartBit) & mantissaMask

	lowBitsMask := uint32(1)<<mantissaStartBit - 1
	if size&lowBitsMask != 0 {
		// Addition (not OR) lets a full mantissa carry into the exponent.
		mantissa++
	}

	return exp<<mantissaBits + mantissa
}

// RoundDown returns the largest size class whose lower bound is <= size.
//
// Decode(RoundDown(x)) <= x holds for every x.
func RoundDown(size uint32) uint32 {
	if size < mantissaValue {
		return size
	}

	highestSetBit := uint32(31 - bits.LeadingZeros32(size))
	mantissaStartBit := highestSetBit - mantissaBits
	exp := mantissaStartBit + 1
	mantissa := (size >> mantissaStartBit) & mantissaMask

	return exp<<mantissaBits | mantissa
}

// Decode returns the lower bound of a size class.
//
// Classes >= 240 do not fit in 32 bits and decode to a truncated value;
// RoundDown never produces them. Use ClassSize for a wide result.
func Decode(class uint32) uint32 {
	exp := class >> mantissaBits
	mantissa := class & mantissaMask
	if exp == 0 {
		return mantissa
	}
	return (mantissa | mantissaValue) << (exp - 1)
}

// ClassSize is Decode without 32-bit truncation.
func ClassSize(class uint32) uint64 {
	exp := class >> mantissaBits
	mantissa := uint64(class & mantissaMask)
	if exp == 0 {
		return mantissa
	}
	return (mantissa | mantissaValue) << (exp - 1)
}
