package models

import (
	"time"

	id "tracecore/pkg/domain"
)

// StatusCreated is the status of the checkpoint appended at registration.
const StatusCreated = "created"

// GeoPoint is a WGS84 coordinate in decimal degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Environment carries optional readings taken at a checkpoint.
type Environment struct {
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Coordinates *GeoPoint `json:"coordinates,omitempty"`
}

// Checkpoint is one entry of an entity's append-only log. Seq is 0-based and
// gapless per entity; the store assigns it.
type Checkpoint struct {
	EntityID    id.EntityID  `json:"entity_id"`
	Seq         uint64       `json:"seq"`
	Timestamp   time.Time    `json:"timestamp"`
	Location    string       `json:"location"`
	Actor       id.ActorID   `json:"actor"`
	Status      string       `json:"status"`
	Environment *Environment `json:"environment,omitempty"`
	Note        string       `json:"note,omitempty"`
	EditedAt    *time.Time   `json:"edited_at,omitempty"`
}

// NewCheckpoint builds an unsequenced checkpoint.
func NewCheckpoint(entityID id.EntityID, in CheckpointInput, actor id.ActorID, now time.Time) *Checkpoint {
	return &Checkpoint{
		EntityID:    entityID,
		Timestamp:   StoredTime(now),
		Location:    in.Location,
		Actor:       actor,
		Status:      in.Status,
		Environment: in.Environment,
		Note:        in.Note,
	}
}

// ApplyEdit changes the free-text fields of a committed checkpoint.
func (c *Checkpoint) ApplyEdit(edit CheckpointEdit, now time.Time) {
	if edit.Location != nil {
		c.Location = *edit.Location
	}
	if edit.Note != nil {
		c.Note = *edit.Note
	}
	t := StoredTime(now)
	c.EditedAt = &t
}

// NextTimestamp is the commit time of a checkpoint appended after prev. It
// never precedes prev, so elapsed times along the log are non-negative.
func NextTimestamp(prev *Checkpoint, now time.Time) time.Time {
	now = StoredTime(now)
	if prev != nil && now.Before(prev.Timestamp) {
		return prev.Timestamp
	}
	return now
}

// StoredTime matches timestamptz precision so memory and Postgres backends
// hold identical values.
func StoredTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Clone returns a deep copy.
func (c *Checkpoint) Clone() *Checkpoint {
	cp := *c
	if c.Environment != nil {
		env := *c.Environment
		if env.Temperature != nil {
			t := *env.Temperature
			env.Temperature = &t
		}
		if env.Humidity != nil {
			h := *env.Humidity
			env.Humidity = &h
		}
		if env.Coordinates != nil {
			g := *env.Coordinates
			env.Coordinates = &g
		}
		cp.Environment = &env
	}
	if c.EditedAt != nil {
		t := *c.EditedAt
		cp.EditedAt = &t
	}
	return &cp
}

// Stakeholder is a member of an entity's authorization set.
type Stakeholder struct {
	EntityID id.EntityID `json:"entity_id"`
	Actor    id.ActorID  `json:"actor"`
	AddedBy  id.ActorID  `json:"added_by"`
	AddedAt  time.Time   `json:"added_at"`
}

// Members flattens a stakeholder list into actor ids.
func Members(rows []Stakeholder) []id.ActorID {
	out := make([]id.ActorID, len(rows))
	for i, r := range rows {
		out[i] = r.Actor
	}
	return out
}

// Registration is one entity to create together with its genesis checkpoint.
// The store assigns Entity.ID, sets Genesis.EntityID and seeds the owner into
// the authorization set, all in one commit.
type Registration struct {
	Entity  *Entity
	Genesis *Checkpoint
}
