package model

import (
	"maps"

	"github.com/omochice/fcchat/pkg/protocol"
)

// Session is one login session of a model. Fields holds every merged field,
// including "sid" and "vs".
type Session struct {
	ID     int
	Fields map[string]any
}

func placeholder(uid int) Session {
	return Session{
		ID: 0,
		Fields: map[string]any{
			"sid": int64(0),
			"uid": int64(uid),
			"vs":  int64(protocol.StateOffline),
		},
	}
}

func (s Session) clone() Session {
	return Session{ID: s.ID, Fields: maps.Clone(s.Fields)}
}

// Get returns the raw value of field.
func (s Session) Get(field string) (any, bool) {
	v, ok := s.Fields[field]
	return v, ok
}

// Int returns field as an integer.
func (s Session) Int(field string) (int, bool) {
	return protocol.AsInt(s.Fields[field])
}

// Text returns field as a string.
func (s Session) Text(field string) (string, bool) {
	return protocol.AsString(s.Fields[field])
}

// Flag reports whether field holds a truthy value.
func (s Session) Flag(field string) bool {
	return truthy(s.Fields[field])
}

// VideoState returns the session's video state. Sessions without one count
// as Offline.
func (s Session) VideoState() protocol.State {
	n, ok := s.Int("vs")
	if !ok {
		return protocol.StateOffline
	}
	return protocol.State(n)
}

// Level returns the user level, or -1 when unknown.
func (s Session) Level() int {
	n, ok := s.Int("lv")
	if !ok {
		return -1
	}
	return n
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		if n, ok := protocol.AsInt(v); ok {
			return n != 0
		}
		return true
	}
}

// Snapshot is a copy of a model's visible state.
type Snapshot struct {
	UID  int
	Name string
	Tags []string
	Best Session
}

// VideoState returns the video state of the best session.
func (s Snapshot) VideoState() protocol.State {
	return s.Best.VideoState()
}

// Change reports that a field of a model's best session changed. Removed
// fields have a nil New value. Tag changes use the field "tags" with
// []string values.
type Change struct {
	UID   int
	Field string
	Old   any
	New   any
}

// Update reports a merge that was visible on the model's best session.
type Update struct {
	UID      int
	Fragment Fragment
}
