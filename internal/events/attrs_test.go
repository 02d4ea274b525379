package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	id "tracecore/pkg/domain"
)

func TestFromAttrs(t *testing.T) {
	e := FromAttrs(CheckpointAdded,
		"entity_id", id.EntityID(4),
		"actor", id.ActorID("carrier"),
		"seq", uint64(2),
		"status", "shipped",
	)
	assert.Equal(t, CheckpointAdded, e.Type)
	assert.Equal(t, id.EntityID(4), e.EntityID)
	assert.Equal(t, id.ActorID("carrier"), e.Actor)
	assert.Equal(t, map[string]any{"seq": uint64(2), "status": "shipped"}, e.Payload)

	r := FromAttrs(RuleAdded, "rule_id", id.RuleID("R1"))
	assert.Equal(t, id.RuleID("R1"), r.RuleID)
	assert.Nil(t, r.Payload)
}
