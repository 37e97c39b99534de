package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Extra holds descriptor fields the registry does not interpret. Clients may
// attach anything there (an image URL, viewer counts); it round-trips as-is.
type Extra map[string]json.RawMessage

// String returns the extra field key when it holds a JSON string.
func (e Extra) String(key string) string {
	var s string
	if raw, ok := e[key]; ok && json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	return ""
}

var (
	singleKeys = keySet("kind", "platform", "playback_ref", "room_id", "display_name", "title",
		"thumbnail", "streaming_url", "started_at", "meta")
	memberKeys = keySet("platform", "playback_ref", "room_id", "display_name")
	multiKeys  = keySet("kind", "members", "title", "meta")
)

func keySet(keys ...string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}

// decodeWithExtra decodes data into v and returns the top-level keys that
// are not in known.
func decodeWithExtra(data []byte, v any, known map[string]bool) (Extra, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	var extra Extra
	for k, raw := range fields {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = Extra{}
		}
		extra[k] = raw
	}
	return extra, nil
}

// encodeWithExtra marshals v, adds extra keys that v does not already set,
// then overwrites the keys in set.
func encodeWithExtra(v any, extra Extra, set map[string]any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil || (len(extra) == 0 && len(set) == 0) {
		return b, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, taken := fields[k]; !taken {
			fields[k] = raw
		}
	}
	for k, val := range set {
		enc, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		fields[k] = enc
	}
	return json.Marshal(fields)
}

func (s SingleStream) MarshalJSON() ([]byte, error) {
	type plain SingleStream
	return encodeWithExtra(plain(s), s.Extra, nil)
}

func (s *SingleStream) UnmarshalJSON(data []byte) error {
	type plain SingleStream
	var p plain
	extra, err := decodeWithExtra(data, &p, singleKeys)
	if err != nil {
		return err
	}
	p.Extra = extra
	*s = SingleStream(p)
	return nil
}

func (m StreamMember) MarshalJSON() ([]byte, error) {
	type plain StreamMember
	return encodeWithExtra(plain(m), m.Extra, nil)
}

func (m *StreamMember) UnmarshalJSON(data []byte) error {
	type plain StreamMember
	var p plain
	extra, err := decodeWithExtra(data, &p, memberKeys)
	if err != nil {
		return err
	}
	p.Extra = extra
	*m = StreamMember(p)
	return nil
}

func (m MultiStream) MarshalJSON() ([]byte, error) {
	type plain MultiStream
	return encodeWithExtra(plain(m), m.Extra, nil)
}

func (m *MultiStream) UnmarshalJSON(data []byte) error {
	type plain MultiStream
	var p plain
	extra, err := decodeWithExtra(data, &p, multiKeys)
	if err != nil {
		return err
	}
	p.Extra = extra
	*m = MultiStream(p)
	return nil
}

// Clone returns a deep copy of d that shares no maps, slices or variant
// pointers with the original.
func (d StreamDescriptor) Clone() StreamDescriptor {
	out := StreamDescriptor{Kind: d.Kind}
	if d.Single != nil {
		s := *d.Single
		s.Meta = cloneMeta(s.Meta)
		s.Extra = s.Extra.clone()
		out.Single = &s
	}
	if d.Multi != nil {
		m := *d.Multi
		m.Meta = cloneMeta(m.Meta)
		m.Extra = m.Extra.clone()
		if m.Members != nil {
			m.Members = make([]StreamMember, len(d.Multi.Members))
			for i, member := range d.Multi.Members {
				member.Extra = member.Extra.clone()
				m.Members[i] = member
			}
		}
		out.Multi = &m
	}
	return out
}

func (e Extra) clone() Extra {
	if e == nil {
		return nil
	}
	out := make(Extra, len(e))
	for k, raw := range e {
		out[k] = bytes.Clone(raw)
	}
	return out
}

func cloneMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMeta(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
