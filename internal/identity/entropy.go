package identity

import "math"

const (
	minBitsEntropy    = 128
	minShannonEntropy = 4
)

// Score - оценка энтропии токена
type Score struct {
	HasEnoughEntropy bool    `json:"has_enough_entropy"`
	BitsEntropy      float64 `json:"bits_entropy"`
	ShannonEntropy   float64 `json:"shannon_entropy"`
}

// Entropy оценивает энтропию токена.
// BitsEntropy = длина * log2(число уникальных символов).
func Entropy(token string) Score {
	counts := make(map[rune]int)
	length := 0

	for _, r := range token {
		counts[r]++
		length++
	}

	if length == 0 {
		return Score{}
	}

	var shannon float64
	for _, c := range counts {
		p := float64(c) / float64(length)
		shannon -= p * math.Log2(p)
	}

	bits := float64(length) * math.Log2(float64(len(counts)))

	return Score{
		HasEnoughEntropy: bits > minBitsEntropy && shannon > minShannonEntropy,
		BitsEntropy:      bits,
		ShannonEntropy:   shannon,
	}
}
