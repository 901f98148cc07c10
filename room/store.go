/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"time"

	"github.com/danielroe/pangrum/protocol"
)

// LastActive is the most recently reported current puzzle in a room.
type LastActive struct {
	protocol.PuzzleRef
	Timestamp time.Time
}

// Store is the durable state of every room, namespaced by room ID. A given
// room's state is only ever touched by that room's actor.
type Store interface {
	Words(ctx context.Context, room, puzzleKey string) ([]string, error)
	SetWords(ctx context.Context, room, puzzleKey string, words []string) error
	PuzzleKeys(ctx context.Context, room string) ([]string, error)
	LastActivePuzzle(ctx context.Context, room string) (*LastActive, error)
	SetLastActivePuzzle(ctx context.Context, room string, ref protocol.PuzzleRef, at time.Time) error
	HasEverSynced(ctx context.Context, room string) (bool, error)
	MarkSynced(ctx context.Context, room string) error
}
