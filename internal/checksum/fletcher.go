package checksum

// fletcher is the byte-wise Fletcher checksum family. Each input byte is one
// block; sums run modulo 2^(bits/2)-1 and start at zero.
type fletcher struct {
	bits int
	mod  uint64
	sumA uint64
	sumB uint64
}

func newFletcher(bits int) *fletcher {
	return &fletcher{bits: bits, mod: (uint64(1) << (bits / 2)) - 1}
}

func (f *fletcher) Write(p []byte) (int, error) {
	a, b := f.sumA, f.sumB
	for _, c := range p {
		a = (a + uint64(c)) % f.mod
		b = (b + a) % f.mod
	}
	f.sumA, f.sumB = a, b
	return len(p), nil
}

func (f *fletcher) value() uint64 {
	return f.sumB<<(f.bits/2) | f.sumA
}

func (f *fletcher) Sum(b []byte) []byte {
	return digestBytes(b, f.value(), f.Size())
}

func (f *fletcher) Reset() {
	f.sumA, f.sumB = 0, 0
}

func (f *fletcher) Size() int { return f.bits / 8 }

func (f *fletcher) BlockSize() int { return 1 }
