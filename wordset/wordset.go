/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package wordset merges the grow-only sets of words found for a puzzle.
package wordset

import "sort"

// Result of merging a remote word list into a local one.
type Result struct {
	Merged []string
	Added  int
}

// Merge returns the union of local and remote. Added counts the words from
// remote that local did not already hold. Merged is sorted.
func Merge(local, remote []string) Result {
	set := make(map[string]struct{}, len(local)+len(remote))
	for _, w := range local {
		set[w] = struct{}{}
	}

	added := 0
	for _, w := range remote {
		if _, ok := set[w]; ok {
			continue
		}
		set[w] = struct{}{}
		added++
	}

	return Result{Merged: Sorted(set), Added: added}
}

// Contains reports whether words holds w.
func Contains(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}

	return false
}

// Sorted returns the members of set in ascending order.
func Sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	sort.Strings(out)

	return out
}
