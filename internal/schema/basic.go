package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Price is a scaled integer. The scale is defined per security.
type Price int64

func (p Price) AppendString(priceScale int, buf []byte) []byte {
	return appendScaledInt(buf, int64(p), priceScale)
}

// Quantity is a scaled integer. The scale is defined per security.
type Quantity int64

func (q Quantity) AppendString(quantityScale int, buf []byte) []byte {
	return appendScaledInt(buf, int64(q), quantityScale)
}

// ParsePrice parses a decimal string into a Price at the given scale.
// Fractional digits beyond the scale are truncated.
func ParsePrice(s string, priceScale int) (Price, error) {
	v, err := parseScaledInt(s, priceScale)
	return Price(v), err
}

// ParseQuantity parses a decimal string into a Quantity at the given scale.
func ParseQuantity(s string, quantityScale int) (Quantity, error) {
	v, err := parseScaledInt(s, quantityScale)
	return Quantity(v), err
}

func appendScaledInt(buf []byte, value int64, scale int) []byte {
	if scale <= 0 {
		return strconv.AppendInt(buf, value, 10)
	}

	neg := value < 0
	u := uint64(value)
	if neg {
		u = uint64(^value) + 1
	}

	var tmp [32]byte
	digits := strconv.AppendUint(tmp[:0], u, 10)

	if neg {
		buf = append(buf, '-')
	}

	if len(digits) <= scale {
		buf = append(buf, '0', '.')
		for i := 0; i < scale-len(digits); i++ {
			buf = append(buf, '0')
		}
		buf = append(buf, digits...)
		return buf
	}

	idx := len(digits) - scale
	buf = append(buf, digits[:idx]...)
	buf = append(buf, '.')
	buf = append(buf, digits[idx:]...)
	return buf
}

func parseScaledInt(s string, scale int) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty scaled value")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" && fracPart == "" {
		return 0, fmt.Errorf("invalid scaled value: %q", s)
	}
	if intPart == "" {
		intPart = "0"
	}
	if scale < 0 {
		scale = 0
	}
	if len(fracPart) > scale {
		fracPart = fracPart[:scale]
	}
	for len(fracPart) < scale {
		fracPart += "0"
	}

	v, err := strconv.ParseInt(intPart+fracPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid scaled value: %q", s)
	}
	if neg {
		v = -v
	}
	return v, nil
}
