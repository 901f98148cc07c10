/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package protocol defines the JSON messages exchanged between a device's
// sync session and its room. Every frame is a single object discriminated by
// its "type" field.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	TypeSyncAll    = "sync-all"
	TypeSyncPuzzle = "sync-puzzle"
	TypeWord       = "word"
	TypeSyncStatus = "sync-status"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrInvalid     = errors.New("invalid message")
)

// Message is implemented by every frame type.
type Message interface {
	MessageType() string
}

// PuzzleRef points at the puzzle a device is viewing.
type PuzzleRef struct {
	PuzzleKey string `json:"puzzleKey"`
	Date      string `json:"date"`
	Lang      string `json:"lang"`
}

// SyncAll carries a full puzzle map. Devices send it on connect with
// CurrentPuzzle set; the room replies with LastActivePuzzle set.
type SyncAll struct {
	Type             string              `json:"type"`
	Puzzles          map[string][]string `json:"puzzles"`
	CurrentPuzzle    *PuzzleRef          `json:"currentPuzzle,omitempty"`
	LastActivePuzzle *PuzzleRef          `json:"lastActivePuzzle,omitempty"`
}

// SyncPuzzle pushes the full merged word list for one puzzle.
type SyncPuzzle struct {
	Type      string   `json:"type"`
	PuzzleKey string   `json:"puzzleKey"`
	Words     []string `json:"words"`
}

// Word announces a single newly found word. Date is only sent by devices.
type Word struct {
	Type      string `json:"type"`
	PuzzleKey string `json:"puzzleKey"`
	Word      string `json:"word"`
	Date      string `json:"date,omitempty"`
}

// SyncStatus reports room membership.
type SyncStatus struct {
	Type          string `json:"type"`
	Count         int    `json:"count"`
	HasEverSynced bool   `json:"hasEverSynced"`
}

func (SyncAll) MessageType() string    { return TypeSyncAll }
func (SyncPuzzle) MessageType() string { return TypeSyncPuzzle }
func (Word) MessageType() string       { return TypeWord }
func (SyncStatus) MessageType() string { return TypeSyncStatus }

func NewSyncAll(puzzles map[string][]string) SyncAll {
	if puzzles == nil {
		puzzles = map[string][]string{}
	}

	return SyncAll{Type: TypeSyncAll, Puzzles: puzzles}
}

func NewSyncPuzzle(puzzleKey string, words []string) SyncPuzzle {
	if words == nil {
		words = []string{}
	}

	return SyncPuzzle{Type: TypeSyncPuzzle, PuzzleKey: puzzleKey, Words: words}
}

func NewWord(puzzleKey, word, date string) Word {
	return Word{Type: TypeWord, PuzzleKey: puzzleKey, Word: word, Date: date}
}

func NewSyncStatus(count int, hasEverSynced bool) SyncStatus {
	return SyncStatus{Type: TypeSyncStatus, Count: count, HasEverSynced: hasEverSynced}
}

type envelope struct {
	Type string `json:"type"`
}

// Decode parses one frame. Unknown types return ErrUnknownType; structurally
// unusable frames return ErrInvalid. Callers drop the frame on any error.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	switch env.Type {
	case TypeSyncAll:
		var m SyncAll
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if m.Puzzles == nil {
			m.Puzzles = map[string][]string{}
		}
		for key, words := range m.Puzzles {
			if words == nil {
				m.Puzzles[key] = []string{}
			}
		}
		if m.CurrentPuzzle != nil && m.CurrentPuzzle.PuzzleKey == "" {
			m.CurrentPuzzle = nil
		}

		return m, nil
	case TypeSyncPuzzle:
		var m SyncPuzzle
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if m.PuzzleKey == "" {
			return nil, fmt.Errorf("%w: missing puzzle key", ErrInvalid)
		}

		return m, nil
	case TypeWord:
		var m Word
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if m.PuzzleKey == "" || m.Word == "" {
			return nil, fmt.Errorf("%w: word frame needs puzzleKey and word", ErrInvalid)
		}

		return m, nil
	case TypeSyncStatus:
		var m SyncStatus
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}

		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}
