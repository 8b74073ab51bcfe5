package models

import (
	"fmt"
	"strings"
)

// Pair represents a trading pair between a key currency and the settlement currency
// it is bought and sold with, e.g. btc_jpy.
type Pair struct {
	Key        string
	Settlement string
}

// ParsePair parses a "key_settlement" token.
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("invalid pair %q, want key_settlement", s)
	}
	return Pair{Key: parts[0], Settlement: parts[1]}, nil
}

func (p Pair) String() string {
	return p.Key + "_" + p.Settlement
}

// WithSettlement returns the pair of another currency against the same settlement currency.
func (p Pair) WithSettlement(key string) string {
	return key + "_" + p.Settlement
}
