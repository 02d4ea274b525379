package models

import (
	"math"
	"time"
)

const earthRadiusKm = 6371.0

// TraceLink connects two consecutive checkpoints.
type TraceLink struct {
	FromSeq      uint64        `json:"from_seq"`
	ToSeq        uint64        `json:"to_seq"`
	FromLocation string        `json:"from_location"`
	ToLocation   string        `json:"to_location"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	DistanceKm   *float64      `json:"distance_km,omitempty"`
}

// TraceChain is the ordered checkpoint log of an entity with the links
// between consecutive entries.
type TraceChain struct {
	Checkpoints []*Checkpoint `json:"checkpoints"`
	Links       []TraceLink   `json:"links"`
}

// BuildTraceChain derives links from checkpoints ordered by Seq.
func BuildTraceChain(cps []*Checkpoint) *TraceChain {
	chain := &TraceChain{Checkpoints: cps, Links: []TraceLink{}}
	for i := 1; i < len(cps); i++ {
		prev, cur := cps[i-1], cps[i]
		link := TraceLink{
			FromSeq:      prev.Seq,
			ToSeq:        cur.Seq,
			FromLocation: prev.Location,
			ToLocation:   cur.Location,
			Elapsed:      cur.Timestamp.Sub(prev.Timestamp),
		}
		if a, b := coordinates(prev), coordinates(cur); a != nil && b != nil {
			d := Haversine(*a, *b)
			link.DistanceKm = &d
		}
		chain.Links = append(chain.Links, link)
	}
	return chain
}

func coordinates(c *Checkpoint) *GeoPoint {
	if c.Environment == nil {
		return nil
	}
	return c.Environment.Coordinates
}

// Haversine returns the great-circle distance between a and b in kilometres.
func Haversine(a, b GeoPoint) float64 {
	lat1, lat2 := rad(a.Lat), rad(b.Lat)
	dLat := lat2 - lat1
	dLon := rad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

func rad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Summary is a one-call overview of an entity.
type Summary struct {
	Entity          *Entity     `json:"entity"`
	CheckpointCount int         `json:"checkpoint_count"`
	ActorCount      int         `json:"actor_count"`
	Latest          *Checkpoint `json:"latest_checkpoint,omitempty"`
	Expired         bool        `json:"expired"`
}
