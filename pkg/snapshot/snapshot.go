// Copyright 2020-2021 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package snapshot persists and restores the engine's full state as a
// single JSON document behind an embedded key-value store. The document
// round-trips: restore(snapshot(engine)) reproduces the engine modulo
// runtime timestamps.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"lumenart/pkg/artnet"
	"lumenart/pkg/clipregistry"
	"lumenart/pkg/player"
	"lumenart/pkg/sequence"
)

// Document is the complete persisted engine state.
type Document struct {
	SavedAt   int64                            `json:"savedAt"` // unix ms, informational only
	Players   []player.PlayerSnapshot          `json:"players"`
	Clips     []clipregistry.Clip              `json:"clips"`
	Sequences []sequence.Config                `json:"sequences"`
	ArtNet    map[string]artnet.ConfigSnapshot `json:"artnet"` // keyed by player id
}

// Engine is the set of stateful objects a snapshot covers.
type Engine struct {
	Players   *player.Manager
	Clips     *clipregistry.Registry
	Sequences *sequence.Manager
}

// Take captures the engine's current state into a Document.
func Take(e Engine) Document {
	doc := Document{
		SavedAt:   time.Now().UnixMilli(),
		Players:   e.Players.Snapshot(),
		Clips:     e.Clips.Dump(),
		Sequences: e.Sequences.Configs(),
		ArtNet:    make(map[string]artnet.ConfigSnapshot),
	}
	for _, id := range e.Players.List() {
		p, ok := e.Players.Get(id)
		if !ok {
			continue
		}
		if cfg := p.ArtNetConfig(); cfg != nil {
			doc.ArtNet[id] = *cfg
		}
	}
	return doc
}

// Restore applies a Document to the engine: clips first so player
// LoadClip calls resolve, then Art-Net config, then player transport
// state, then sequences.
func Restore(ctx context.Context, e Engine, doc Document) error {
	e.Clips.RestoreAll(doc.Clips)

	for id, cfg := range doc.ArtNet {
		p, ok := e.Players.Get(id)
		if !ok {
			continue
		}
		p.ApplyArtNetConfig(cfg)
	}

	if err := e.Players.Restore(ctx, doc.Players); err != nil {
		return fmt.Errorf("restore players: %w", err)
	}
	if err := e.Sequences.Restore(doc.Sequences); err != nil {
		return fmt.Errorf("restore sequences: %w", err)
	}
	return nil
}

var (
	bucketName = []byte("snapshot")
	docKey     = []byte("engine")
)

// Store persists documents to a bbolt file.
type Store struct {
	db *bbolt.DB
}

// NewStore opens or creates the store file at path.
func NewStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open snapshot store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("could not create snapshot bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the store file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save serializes doc and writes it as the current engine snapshot.
func (s *Store) Save(doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("could not marshal snapshot: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(docKey, data)
	})
}

// ErrNoSnapshot is returned by Load when no snapshot has been saved.
var ErrNoSnapshot = fmt.Errorf("no snapshot saved")

// Load reads and parses the current engine snapshot.
func (s *Store) Load() (Document, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(docKey)
		if v != nil {
			data = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	if data == nil {
		return Document{}, ErrNoSnapshot
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("could not unmarshal snapshot: %w", err)
	}
	return doc, nil
}
