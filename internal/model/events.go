package model

import (
	"encoding/json"
	"fmt"
)

// Collection names a synchronized record collection
type Collection string

const (
	CollectionPlayers Collection = "players"
	CollectionMatches Collection = "matches"
)

// Collections lists every collection carried by the change feed
func Collections() []Collection {
	return []Collection{CollectionPlayers, CollectionMatches}
}

// ChangeKind identifies what happened to a record
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
	// ChangeReload is emitted locally by the cache after a snapshot is applied
	ChangeReload ChangeKind = "reload"
)

// ChangeEvent describes a write applied to a remote collection.
// Old is set for deletes, New for inserts and updates.
type ChangeEvent struct {
	Kind       ChangeKind      `json:"kind"`
	Collection Collection      `json:"collection"`
	Seq        int64           `json:"seq"`
	Old        json.RawMessage `json:"old,omitempty"`
	New        json.RawMessage `json:"new,omitempty"`
}

// recordRef is the subset of fields every record shares
type recordRef struct {
	ID string `json:"id"`
}

// RecordID returns the identity of the record the event refers to
func (e ChangeEvent) RecordID() (string, error) {
	raw := e.New
	if e.Kind == ChangeDelete || len(raw) == 0 {
		raw = e.Old
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: no record payload", ErrMalformedEvent)
	}
	var ref recordRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ref.ID == "" {
		return "", fmt.Errorf("%w: record has no id", ErrMalformedEvent)
	}
	return ref.ID, nil
}

// DecodePlayer decodes the event's current player record
func (e ChangeEvent) DecodePlayer() (*Player, error) {
	var p Player
	if err := json.Unmarshal(e.New, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return &p, nil
}

// DecodeMatch decodes the event's current match record
func (e ChangeEvent) DecodeMatch() (*Match, error) {
	var m Match
	if err := json.Unmarshal(e.New, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return &m, nil
}

// NewPlayerEvent builds a change event for a player write
func NewPlayerEvent(kind ChangeKind, seq int64, p *Player) (ChangeEvent, error) {
	return newEvent(CollectionPlayers, kind, seq, p)
}

// NewMatchEvent builds a change event for a match write
func NewMatchEvent(kind ChangeKind, seq int64, m *Match) (ChangeEvent, error) {
	return newEvent(CollectionMatches, kind, seq, m)
}

// newEvent always fills in the envelope so a failed encode can still be logged
func newEvent(collection Collection, kind ChangeKind, seq int64, record any) (ChangeEvent, error) {
	ev := ChangeEvent{Kind: kind, Collection: collection, Seq: seq}
	data, err := json.Marshal(record)
	if err != nil {
		return ev, err
	}
	if kind == ChangeDelete {
		ev.Old = data
	} else {
		ev.New = data
	}
	return ev, nil
}
