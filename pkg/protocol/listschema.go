package protocol

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrNotJSON is returned by ParseJSON for documents that are not a single
// JSON value.
var ErrNotJSON = errors.New("not a JSON document")

// ParseJSON decodes a JSON document the way packet payloads are decoded:
// numbers are normalized and list schemas keep the server's field order.
func ParseJSON(s string) (any, error) {
	v, ok := parseJSON(s)
	if !ok {
		return nil, ErrNotJSON
	}
	return v, nil
}

// orderListSchema rewrites the schema of a schema-compressed "rdata" list
// so that every nested group holds a single key. Groups sent with several
// keys, such as {"u": [...], "m": [...]}, are split in document order, which
// a decoded map no longer knows.
func orderListSchema(v any, raw string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	rdata, ok := m["rdata"].([]any)
	if !ok || len(rdata) == 0 {
		return v
	}
	schema, ok := rdata[0].([]any)
	if !ok {
		return v
	}

	elems := gjson.Get(raw, "rdata.0").Array()
	if len(elems) != len(schema) {
		return v
	}
	out := make([]any, 0, len(schema))
	split := false
	for i, prop := range schema {
		group, ok := prop.(map[string]any)
		if !ok || len(group) < 2 || !elems[i].IsObject() {
			out = append(out, prop)
			continue
		}
		split = true
		elems[i].ForEach(func(key, _ gjson.Result) bool {
			name := key.String()
			if fields, ok := group[name]; ok {
				out = append(out, map[string]any{name: fields})
				delete(group, name)
			}
			return true
		})
	}
	if split {
		rdata[0] = out
	}
	return v
}
