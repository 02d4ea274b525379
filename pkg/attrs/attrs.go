package attrs

import id "tracecore/pkg/domain"

// ExtractString extracts a string value from a key-value attribute slice
// formatted as [key1, value1, key2, value2, ...]. Returns "" when absent.
func ExtractString(attrs []any, key string) string {
	for i := 0; i+1 < len(attrs); i += 2 {
		if k, ok := attrs[i].(string); ok && k == key {
			switch v := attrs[i+1].(type) {
			case string:
				return v
			case id.ActorID:
				return string(v)
			case id.RuleID:
				return string(v)
			}
		}
	}
	return ""
}

// ExtractEntityID extracts an entity id from a key-value attribute slice.
// Returns the zero id when absent.
func ExtractEntityID(attrs []any, key string) id.EntityID {
	for i := 0; i+1 < len(attrs); i += 2 {
		if k, ok := attrs[i].(string); ok && k == key {
			if v, ok := attrs[i+1].(id.EntityID); ok {
				return v
			}
		}
	}
	return 0
}
