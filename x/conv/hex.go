package conv

const hexLower = "0123456789abcdef"

// AppendHex appends the lowercase hex form of src to dst.
// No fmt/encoding dependency; dst can be a stack buffer.
func AppendHex(dst, src []byte) []byte {
	for _, b := range src {
		dst = append(dst, hexLower[b>>4], hexLower[b&0x0F])
	}
	return dst
}

// LastHex returns the final n hex digits of src (all of them if shorter).
func LastHex(src []byte, n int) string {
	var buf [32]byte
	h := AppendHex(buf[:0], src)
	if n < len(h) {
		h = h[len(h)-n:]
	}
	return string(h)
}
