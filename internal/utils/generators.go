package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
)

// GenerateVariableSymbol returns a random decimal bank reference of the given
// length without a leading zero, so it survives banks that strip zeros.
func GenerateVariableSymbol(digits int) (string, error) {
	if digits < 1 || digits > 18 {
		return "", fmt.Errorf("variable symbol length %d out of range 1..18", digits)
	}
	low := int64(1)
	for i := 1; i < digits; i++ {
		low *= 10
	}
	n, err := rand.Int(rand.Reader, big.NewInt(9*low))
	if err != nil {
		return "", fmt.Errorf("reading random source: %w", err)
	}
	return strconv.FormatInt(n.Int64()+low, 10), nil
}
