package fantasy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Yahoo's JSON rendering of its XML resources has two quirks handled here:
// collections are objects keyed "0", "1", ... plus a "count" member, and a
// resource is an array whose first element holds its own fields and whose
// later elements hold sub-resources.

// collection returns the members of a numbered collection in index order.
// An empty collection may arrive as [] instead of {}.
func collection(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || raw[0] == '[' {
		return nil, nil
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, fmt.Errorf("decoding collection: %w", err)
	}

	type entry struct {
		idx int
		raw json.RawMessage
	}

	entries := make([]entry, 0, len(members))

	for k, v := range members {
		idx, err := strconv.Atoi(k)
		if err != nil {
			continue // "count" and friends
		}

		entries = append(entries, entry{idx: idx, raw: v})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })

	out := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		out[i] = e.raw
	}

	return out, nil
}

// resourceParts splits a resource array into its elements.
func resourceParts(raw json.RawMessage) ([]json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("decoding resource: %w", err)
	}

	return parts, nil
}

// resourceFields merges the field objects in the first element of a
// resource. Yahoo sometimes splits them across an array of one-key objects.
func resourceFields(first json.RawMessage) (map[string]json.RawMessage, error) {
	first = bytes.TrimSpace(first)
	fields := map[string]json.RawMessage{}

	if len(first) > 0 && first[0] == '[' {
		var pieces []json.RawMessage
		if err := json.Unmarshal(first, &pieces); err != nil {
			return nil, fmt.Errorf("decoding resource fields: %w", err)
		}

		for _, p := range pieces {
			var m map[string]json.RawMessage
			if json.Unmarshal(p, &m) != nil {
				continue // Yahoo pads with [] entries
			}

			for k, v := range m {
				fields[k] = v
			}
		}

		return fields, nil
	}

	if err := json.Unmarshal(first, &fields); err != nil {
		return nil, fmt.Errorf("decoding resource fields: %w", err)
	}

	return fields, nil
}

// subresource finds the named member in the elements after the first.
func subresource(parts []json.RawMessage, name string) json.RawMessage {
	for _, p := range parts[min(1, len(parts)):] {
		var m map[string]json.RawMessage
		if json.Unmarshal(p, &m) != nil {
			continue
		}

		if v, ok := m[name]; ok {
			return v
		}
	}

	return nil
}

// flexString decodes a JSON string or number as a string.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = flexString(str)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}

	*s = flexString(num.String())

	return nil
}

// flexInt decodes a JSON number or numeric string. Empty strings decode as 0.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}

	if s == "" {
		*n = 0
		return nil
	}

	v, err := strconv.Atoi(string(s))
	if err != nil {
		return fmt.Errorf("expected integer, got %s", b)
	}

	*n = flexInt(v)

	return nil
}
