package storage

// ConstBufferSequence is a list of byte slices uploaded as one contiguous
// range. The slices themselves are never modified.
type ConstBufferSequence [][]byte

func NewConstBufferSequence(buffers ...[]byte) ConstBufferSequence {
	return buffers
}

func (s ConstBufferSequence) TotalBytes() uint64 {
	var total uint64
	for _, b := range s {
		total += uint64(len(b))
	}
	return total
}

// PopFrontBytes returns the sequence without its first n bytes. Popping more
// bytes than available yields an empty sequence.
func (s ConstBufferSequence) PopFrontBytes(n uint64) ConstBufferSequence {
	result := make(ConstBufferSequence, 0, len(s))
	for i, b := range s {
		if n == 0 {
			return append(result, s[i:]...)
		}

		if uint64(len(b)) <= n {
			n -= uint64(len(b))
			continue
		}

		result = append(result, b[n:])
		n = 0
	}
	return result
}

func (s ConstBufferSequence) Bytes() []byte {
	result := make([]byte, 0, s.TotalBytes())
	for _, b := range s {
		result = append(result, b...)
	}
	return result
}
