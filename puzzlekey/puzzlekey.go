/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package puzzlekey derives and validates the identifiers used for a single
// day's puzzle in a single language, e.g. "en-2024-01-14" or "en-gb-2024-01-14".
package puzzlekey

import (
	"regexp"
	"strings"
)

const (
	// StoragePrefix namespaces puzzle entries in a device's local storage.
	StoragePrefix = "pangrum-"

	// IncorrectMarker appears in the storage keys holding rejected guesses,
	// which are never synced.
	IncorrectMarker = "-incorrect-"

	// DefaultLang is used when a language cannot be recovered from a key.
	DefaultLang = "en"
)

var keyPattern = regexp.MustCompile(`^([a-z]{2}(?:-[a-z]{2})?)-(\d{4}-\d{2}-\d{2})$`)

// Derive returns the puzzle key for lang and date (YYYY-MM-DD).
func Derive(lang, date string) string {
	return lang + "-" + date
}

// Valid reports whether key matches the date-based puzzle key grammar.
func Valid(key string) bool {
	return keyPattern.MatchString(key)
}

// Parse splits a puzzle key into its language (including any region) and date.
func Parse(key string) (lang, date string, ok bool) {
	m := keyPattern.FindStringSubmatch(key)
	if m == nil {
		return "", "", false
	}

	return m[1], m[2], true
}

// Lang returns the language of key, or DefaultLang if key does not parse.
func Lang(key string) string {
	lang, _, ok := Parse(key)
	if !ok {
		return DefaultLang
	}

	return lang
}

// StorageKey returns the local storage key holding the words for key.
func StorageKey(key string) string {
	return StoragePrefix + key
}

// FromStorageKey strips the storage prefix, reporting whether it was present.
func FromStorageKey(storageKey string) (string, bool) {
	if !strings.HasPrefix(storageKey, StoragePrefix) {
		return "", false
	}

	return strings.TrimPrefix(storageKey, StoragePrefix), true
}

// IsSyncEligible reports whether a local storage key holds a puzzle that may
// be synced. Legacy letter-based keys and incorrect-guess entries are rejected.
func IsSyncEligible(storageKey string) bool {
	key, ok := FromStorageKey(storageKey)
	if !ok {
		return false
	}

	if strings.Contains(storageKey, IncorrectMarker) {
		return false
	}

	return Valid(key)
}
