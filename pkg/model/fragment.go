// Package model keeps the in-memory view of every model seen on the chat
// servers and reconciles their concurrent sessions into one best session.
package model

import (
	"sort"

	"github.com/omochice/fcchat/pkg/protocol"
)

// Fragment is a partial update for one model, usually the payload of a
// DETAILS or SESSIONSTATE packet.
type Fragment struct {
	SID        *int
	UID        *int
	Name       *string
	Level      *int
	VideoState *protocol.State

	// User, Model and Session hold the "u", "m" and "s" detail groups.
	User    map[string]any
	Model   map[string]any
	Session map[string]any
	// Ext holds the "x" group keyed by site name.
	Ext map[string]map[string]any
	// Extra holds every other top level field.
	Extra map[string]any
}

// FragmentFromMap builds a Fragment from a decoded payload. Fields of an
// unexpected type are kept in Extra.
func FragmentFromMap(m map[string]any) Fragment {
	var f Fragment
	for k, v := range m {
		switch k {
		case "sid":
			if n, ok := protocol.AsInt(v); ok {
				f.SID = &n
				continue
			}
		case "uid":
			if n, ok := protocol.AsInt(v); ok {
				f.UID = &n
				continue
			}
		case "lv":
			if n, ok := protocol.AsInt(v); ok {
				f.Level = &n
				continue
			}
		case "vs":
			if n, ok := protocol.AsInt(v); ok {
				vs := protocol.State(n)
				f.VideoState = &vs
				continue
			}
		case "nm":
			if s, ok := v.(string); ok {
				f.Name = &s
				continue
			}
		case "u":
			if g, ok := v.(map[string]any); ok {
				f.User = g
				continue
			}
		case "m":
			if g, ok := v.(map[string]any); ok {
				f.Model = g
				continue
			}
		case "s":
			if g, ok := v.(map[string]any); ok {
				f.Session = g
				continue
			}
		case "x":
			if sites, ok := v.(map[string]any); ok {
				for site, fields := range sites {
					if g, ok := fields.(map[string]any); ok {
						if f.Ext == nil {
							f.Ext = make(map[string]map[string]any)
						}
						f.Ext[site] = g
					}
				}
				continue
			}
		}
		if f.Extra == nil {
			f.Extra = make(map[string]any)
		}
		f.Extra[k] = v
	}
	return f
}

// OfflineFragment is the update that marks session sid of uid as Offline.
func OfflineFragment(uid, sid int) Fragment {
	vs := protocol.StateOffline
	return Fragment{SID: &sid, UID: &uid, VideoState: &vs}
}

type fieldWrite struct {
	field string
	value any
}

// flatten turns the fragment into flat session field writes sorted by field
// name. Group fields override top level ones of the same name.
func (f Fragment) flatten() []fieldWrite {
	flat := make(map[string]any)
	for k, v := range f.Extra {
		flat[k] = v
	}
	if f.SID != nil {
		flat["sid"] = *f.SID
	}
	if f.UID != nil {
		flat["uid"] = *f.UID
	}
	if f.Name != nil {
		flat["nm"] = *f.Name
	}
	if f.Level != nil {
		flat["lv"] = *f.Level
	}
	if f.VideoState != nil {
		flat["vs"] = int(*f.VideoState)
	}
	for _, g := range []map[string]any{f.User, f.Model, f.Session} {
		for k, v := range g {
			flat[k] = v
		}
	}
	if raw, ok := f.Model["flags"]; ok {
		if flags, ok := protocol.AsInt(raw); ok {
			flat["truepvt"] = bit(flags, protocol.OptTruePvt)
			flat["guests_muted"] = bit(flags, protocol.OptGuestMute)
			flat["basics_muted"] = bit(flags, protocol.OptBasicMute)
			flat["model_sw"] = bit(flags, protocol.OptModelSW)
		}
	}
	for site, g := range f.Ext {
		for k, v := range g {
			flat[site+"_"+k] = v
		}
	}

	writes := make([]fieldWrite, 0, len(flat))
	for k, v := range flat {
		writes = append(writes, fieldWrite{field: k, value: protocol.Normalize(v)})
	}
	sort.Slice(writes, func(i, j int) bool { return writes[i].field < writes[j].field })
	return writes
}

func bit(flags, mask int) int {
	if flags&mask != 0 {
		return 1
	}
	return 0
}
