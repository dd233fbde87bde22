package lib

// Bit32 alias for uint32, provides bit twiddling methods on 32-bit number.
type Bit32 uint32

func (b Bit32) Ones() int8 {
	b = b - ((b >> 1) & 0x55555555)
	b = (b & 0x33333333) + ((b >> 2) & 0x33333333)
	return int8((((b + (b >> 4)) & 0x0F0F0F0F) * 0x01010101) >> 24)
}

func (b Bit32) Zeros() int8 {
	return 32 - b.Ones()
}

// Setbit returns b with bit `n` set.
func (b Bit32) Setbit(n uint8) Bit32 {
	return b | (1 << n)
}

// Clearbit returns b with bit `n` cleared.
func (b Bit32) Clearbit(n uint8) Bit32 {
	return b &^ (1 << n)
}

// Findfirstset returns the index of the least significant set bit, -1 if
// none are set.
func (b Bit32) Findfirstset() int8 {
	if b == 0 {
		return -1
	}
	n := int8(0)
	for (b & 1) == 0 {
		b >>= 1
		n++
	}
	return n
}

// Findlastset returns the index of the most significant set bit, -1 if
// none are set. Used for bin-index computation in the tree allocator.
func (b Bit32) Findlastset() int8 {
	if b == 0 {
		return -1
	}
	n := int8(31)
	for (b & 0x80000000) == 0 {
		b <<= 1
		n--
	}
	return n
}
