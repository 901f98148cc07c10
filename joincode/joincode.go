/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package joincode generates and normalizes the short codes devices use to
// share a sync room.
package joincode

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	// Alphabet excludes the easily confused i, l, o, 0 and 1.
	Alphabet = "abcdefghjkmnpqrstuvwxyz23456789"

	// Length of generated codes.
	Length = 6
)

// Normalize maps equivalent user input onto a single room identifier.
func Normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Generate returns a fresh crypto-random code.
func Generate() (string, error) {
	out := make([]byte, 0, Length)
	buf := make([]byte, Length*2)

	for len(out) < Length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}

		for _, b := range buf {
			c, ok := pick(b)
			if !ok {
				continue
			}

			out = append(out, c)
			if len(out) == Length {
				break
			}
		}
	}

	return string(out), nil
}

// unbiased is the largest multiple of len(Alphabet) that fits in a byte.
const unbiased = 256 - 256%len(Alphabet)

// pick maps b onto the alphabet, rejecting the bytes that would favour its
// first letters.
func pick(b byte) (byte, bool) {
	if int(b) >= unbiased {
		return 0, false
	}

	return Alphabet[int(b)%len(Alphabet)], true
}

// Valid reports whether code, once normalized, is usable as a room identifier.
// Codes of other lengths are accepted so that user-chosen codes keep working;
// only empty codes and characters outside [a-z0-9] are refused.
func Valid(code string) bool {
	code = Normalize(code)
	if code == "" || len(code) > 64 {
		return false
	}

	for _, r := range code {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}

	return true
}
