package identity

import (
	"errors"
	"strings"
)

const base91Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!#$%&()*+,./:;<=>?@[]^_`{|}~\""

var ErrInvalidBase91 = errors.New("invalid base91 input")

var base91Decode = func() [256]int {
	var table [256]int
	for i := range table {
		table[i] = -1
	}
	for i := 0; i < len(base91Alphabet); i++ {
		table[base91Alphabet[i]] = i
	}

	return table
}()

// EncodeBase91 кодирует данные в basE91
func EncodeBase91(data []byte) string {
	var sb strings.Builder

	var b uint32
	var n uint

	for _, c := range data {
		b |= uint32(c) << n
		n += 8

		if n > 13 {
			v := b & 8191
			if v > 88 {
				b >>= 13
				n -= 13
			} else {
				v = b & 16383
				b >>= 14
				n -= 14
			}

			sb.WriteByte(base91Alphabet[v%91])
			sb.WriteByte(base91Alphabet[v/91])
		}
	}

	if n > 0 {
		sb.WriteByte(base91Alphabet[b%91])
		if n > 7 || b > 90 {
			sb.WriteByte(base91Alphabet[b/91])
		}
	}

	return sb.String()
}

// DecodeBase91 декодирует строку basE91
func DecodeBase91(s string) ([]byte, error) {
	out := make([]byte, 0, len(s)*13/16+1)

	var b uint32
	var n uint
	v := -1

	for i := 0; i < len(s); i++ {
		c := base91Decode[s[i]]
		if c < 0 {
			return nil, ErrInvalidBase91
		}

		if v < 0 {
			v = c
			continue
		}

		v += c * 91
		b |= uint32(v) << n
		if v&8191 > 88 {
			n += 13
		} else {
			n += 14
		}

		for n > 7 {
			out = append(out, byte(b))
			b >>= 8
			n -= 8
		}

		v = -1
	}

	if v >= 0 {
		out = append(out, byte(b|uint32(v)<<n))
	}

	return out, nil
}
