package trader

import (
	"errors"
	"fmt"
)

// ErrPollExhausted is returned when a poll ran out of attempts before its condition held.
var ErrPollExhausted = errors.New("poll attempts exhausted")

// TooShortError reports a series that is shorter than a computation requires.
type TooShortError struct {
	Name     string
	Len      int
	Required int
}

func (e *TooShortError) Error() string {
	return fmt.Sprintf("%s is too short, len:%d < required:%d", e.Name, e.Len, e.Required)
}

// KeyNotFoundError reports a currency or pair missing from a snapshot map.
type KeyNotFoundError struct {
	Key        string
	Collection string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %q not found in %s", e.Key, e.Collection)
}
