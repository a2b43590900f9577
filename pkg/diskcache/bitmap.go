package diskcache

// bitmap tracks which frames of a sequence are present.
type bitmap struct {
	bits []byte
	n    int
	set  int
}

func newBitmap(n int) *bitmap {
	return &bitmap{bits: make([]byte, bitmapLen(n)), n: n}
}

func bitmapFrom(bits []byte, n int) *bitmap {
	b := newBitmap(n)
	copy(b.bits, bits)
	for i := 0; i < n; i++ {
		if b.has(i) {
			b.set++
		}
	}
	return b
}

func bitmapLen(n int) int {
	return (n + 7) / 8
}

func (b *bitmap) has(i int) bool {
	if i < 0 || i >= b.n {
		return false
	}
	return b.bits[i/8]&(1<<uint(i%8)) != 0
}

func (b *bitmap) mark(i int) {
	if i < 0 || i >= b.n || b.has(i) {
		return
	}
	b.bits[i/8] |= 1 << uint(i%8)
	b.set++
}

func (b *bitmap) unmark(i int) {
	if !b.has(i) {
		return
	}
	b.bits[i/8] &^= 1 << uint(i%8)
	b.set--
}

func (b *bitmap) full() bool {
	return b.n > 0 && b.set == b.n
}
