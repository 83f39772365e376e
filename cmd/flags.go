package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// siValue is a numeric flag that accepts k, M and G suffixes, e.g. "2.4M".
type siValue struct {
	v *uint32
}

func (s siValue) String() string {
	if s.v == nil {
		return "0"
	}
	return strconv.FormatUint(uint64(*s.v), 10)
}

func (s siValue) Set(value string) error {
	f, err := parseSI(value)
	if err != nil {
		return err
	}
	if f < 0 || f > math.MaxUint32 {
		return fmt.Errorf("%s is out of range", value)
	}
	*s.v = uint32(math.Round(f))
	return nil
}

func (s siValue) Type() string {
	return "hz"
}

func parseSI(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty value")
	}

	// the suffix becomes an exponent so "2.4M" parses as exactly 2.4e6
	exp := ""
	switch value[len(value)-1] {
	case 'k', 'K':
		exp = "e3"
	case 'M', 'm':
		exp = "e6"
	case 'G', 'g':
		exp = "e9"
	}
	if exp != "" {
		value = value[:len(value)-1]
		if strings.ContainsAny(value, "eE") {
			return 0, fmt.Errorf("invalid number %q", value)
		}
	}

	f, err := strconv.ParseFloat(value+exp, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", value, err)
	}
	return f, nil
}
