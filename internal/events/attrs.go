package events

import (
	"tracecore/pkg/attrs"
	id "tracecore/pkg/domain"
)

// reserved attribute keys map onto envelope fields instead of the payload.
var reserved = map[string]struct{}{
	"entity_id":  {},
	"rule_id":    {},
	"actor":      {},
	"request_id": {},
	"event":      {},
	"log_type":   {},
}

// FromAttrs builds an event from the key-value attributes a service logs for
// the same mutation. entity_id, rule_id and actor fill the envelope; every
// other pair lands in Payload.
func FromAttrs(t Type, attributes ...any) Event {
	e := Event{
		Type:     t,
		EntityID: attrs.ExtractEntityID(attributes, "entity_id"),
		RuleID:   id.RuleID(attrs.ExtractString(attributes, "rule_id")),
		Actor:    id.ActorID(attrs.ExtractString(attributes, "actor")),
	}
	for i := 0; i+1 < len(attributes); i += 2 {
		k, ok := attributes[i].(string)
		if !ok {
			continue
		}
		if _, skip := reserved[k]; skip {
			continue
		}
		if e.Payload == nil {
			e.Payload = make(map[string]any)
		}
		e.Payload[k] = attributes[i+1]
	}
	return e
}
