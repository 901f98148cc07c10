/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielroe/pangrum/protocol"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PuzzleWords holds the merged word set of one puzzle in one room.
type PuzzleWords struct {
	ID        uint           `gorm:"primaryKey"`
	Room      string         `gorm:"not null;uniqueIndex:idx_room_puzzle"`
	PuzzleKey string         `gorm:"not null;uniqueIndex:idx_room_puzzle"`
	Words     datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

// RoomState holds the per-room sync metadata.
type RoomState struct {
	Room          string `gorm:"primaryKey"`
	HasEverSynced bool   `gorm:"not null;default:false"`
	LastPuzzleKey string
	LastDate      string
	LastLang      string
	LastActiveAt  *time.Time
	UpdatedAt     time.Time
}

// GormStore persists rooms in sqlite or postgres.
type GormStore struct {
	db *gorm.DB
}

// OpenGormStore opens and migrates the store. kind is "sqlite" or "postgres";
// dsn is a file path for sqlite and a connection string for postgres.
func OpenGormStore(kind, dsn string, logf Logf) (*GormStore, error) {
	var dialector gorm.Dialector

	switch kind {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported store %q", kind)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger(logf)})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", kind, err)
	}

	if kind == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return NewGormStore(db)
}

// NewGormStore wraps an open database, migrating the room tables.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&PuzzleWords{}, &RoomState{}); err != nil {
		return nil, fmt.Errorf("migrate room tables: %w", err)
	}

	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

func (s *GormStore) Words(ctx context.Context, room, puzzleKey string) ([]string, error) {
	var row PuzzleWords

	err := s.db.WithContext(ctx).
		Where("room = ? AND puzzle_key = ?", room, puzzleKey).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load words for %s/%s: %w", room, puzzleKey, err)
	}

	words := []string{}
	if err := json.Unmarshal(row.Words, &words); err != nil {
		return nil, fmt.Errorf("decode words for %s/%s: %w", room, puzzleKey, err)
	}

	return words, nil
}

func (s *GormStore) SetWords(ctx context.Context, room, puzzleKey string, words []string) error {
	if words == nil {
		words = []string{}
	}

	data, err := json.Marshal(words)
	if err != nil {
		return err
	}

	row := PuzzleWords{
		Room:      room,
		PuzzleKey: puzzleKey,
		Words:     datatypes.JSON(data),
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room"}, {Name: "puzzle_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"words", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store words for %s/%s: %w", room, puzzleKey, err)
	}

	return nil
}

func (s *GormStore) PuzzleKeys(ctx context.Context, room string) ([]string, error) {
	keys := []string{}

	err := s.db.WithContext(ctx).
		Model(&PuzzleWords{}).
		Where("room = ?", room).
		Order("puzzle_key").
		Pluck("puzzle_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("list puzzles for %s: %w", room, err)
	}

	return keys, nil
}

func (s *GormStore) state(ctx context.Context, room string) (*RoomState, error) {
	var st RoomState

	err := s.db.WithContext(ctx).Where("room = ?", room).Take(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state for %s: %w", room, err)
	}

	return &st, nil
}

func (s *GormStore) LastActivePuzzle(ctx context.Context, room string) (*LastActive, error) {
	st, err := s.state(ctx, room)
	if err != nil || st == nil || st.LastActiveAt == nil {
		return nil, err
	}

	return &LastActive{
		PuzzleRef: protocol.PuzzleRef{
			PuzzleKey: st.LastPuzzleKey,
			Date:      st.LastDate,
			Lang:      st.LastLang,
		},
		Timestamp: *st.LastActiveAt,
	}, nil
}

func (s *GormStore) SetLastActivePuzzle(ctx context.Context, room string, ref protocol.PuzzleRef, at time.Time) error {
	row := RoomState{
		Room:          room,
		LastPuzzleKey: ref.PuzzleKey,
		LastDate:      ref.Date,
		LastLang:      ref.Lang,
		LastActiveAt:  &at,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_puzzle_key", "last_date", "last_lang", "last_active_at", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store last active puzzle for %s: %w", room, err)
	}

	return nil
}

func (s *GormStore) HasEverSynced(ctx context.Context, room string) (bool, error) {
	st, err := s.state(ctx, room)
	if err != nil || st == nil {
		return false, err
	}

	return st.HasEverSynced, nil
}

func (s *GormStore) MarkSynced(ctx context.Context, room string) error {
	row := RoomState{
		Room:          room,
		HasEverSynced: true,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room"}},
		DoUpdates: clause.AssignmentColumns([]string{"has_ever_synced", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("mark %s synced: %w", room, err)
	}

	return nil
}
