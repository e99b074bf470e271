package model

import (
	"reflect"
	"slices"
	"sort"

	"github.com/omochice/fcchat/pkg/protocol"
)

// Model is one broadcaster and all of its known sessions. Its state is
// guarded by the owning Registry.
type Model struct {
	reg      *Registry
	uid      int
	name     string
	tags     []string
	sessions map[int]map[string]any

	changes  subscribers[ChangeFunc]
	updates  subscribers[UpdateFunc]
	watchers watchers
}

func newModel(reg *Registry, uid int) *Model {
	return &Model{
		reg:      reg,
		uid:      uid,
		sessions: make(map[int]map[string]any),
	}
}

// UID returns the model's user id.
func (m *Model) UID() int {
	return m.uid
}

// Name returns the model's display name.
func (m *Model) Name() string {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	return m.name
}

// Tags returns the model's sorted tags.
func (m *Model) Tags() []string {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	return slices.Clone(m.tags)
}

// BestSession returns a copy of the session that represents the model.
func (m *Model) BestSession() Session {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	return m.bestLocked().clone()
}

// Sessions returns copies of all known sessions ordered by id.
func (m *Model) Sessions() []Session {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	ids := make([]int, 0, len(m.sessions))
	for sid := range m.sessions {
		ids = append(ids, sid)
	}
	sort.Ints(ids)
	out := make([]Session, len(ids))
	for i, sid := range ids {
		out[i] = Session{ID: sid, Fields: m.sessions[sid]}.clone()
	}
	return out
}

// Snapshot returns a copy of the model's visible state.
func (m *Model) Snapshot() Snapshot {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Model) snapshotLocked() Snapshot {
	return Snapshot{
		UID:  m.uid,
		Name: m.name,
		Tags: slices.Clone(m.tags),
		Best: m.bestLocked().clone(),
	}
}

// Merge applies f to the model.
func (m *Model) Merge(f Fragment) {
	m.reg.mu.Lock()
	calls := m.reg.mergeLocked(m, f)
	m.reg.mu.Unlock()
	run(calls)
}

// MergeTags adds tags to the model.
func (m *Model) MergeTags(tags []string) {
	m.reg.mu.Lock()
	calls := m.reg.mergeTagsLocked(m, tags)
	m.reg.mu.Unlock()
	run(calls)
}

// Reset marks the model Offline.
func (m *Model) Reset() {
	m.reg.mu.Lock()
	calls := m.reg.resetLocked(m)
	m.reg.mu.Unlock()
	run(calls)
}

// OnChange subscribes fn to field changes of this model.
func (m *Model) OnChange(fn ChangeFunc) func() {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	id := m.changes.add(fn)
	return func() {
		m.reg.mu.Lock()
		defer m.reg.mu.Unlock()
		m.changes.remove(id)
	}
}

// OnAny subscribes fn to every visible merge of this model.
func (m *Model) OnAny(fn UpdateFunc) func() {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	id := m.updates.add(fn)
	return func() {
		m.reg.mu.Lock()
		defer m.reg.mu.Unlock()
		m.updates.remove(id)
	}
}

// When watches this model only. The model is evaluated immediately.
func (m *Model) When(pred Predicate, onTrue, onFalse WatchFunc) func() {
	m.reg.mu.Lock()
	wt := m.watchers.add(pred, onTrue, onFalse)
	single := watchers{list: []*watcher{wt}}
	calls := single.eval(m.snapshotLocked())
	m.reg.mu.Unlock()
	run(calls)

	return func() {
		m.reg.mu.Lock()
		defer m.reg.mu.Unlock()
		m.watchers.remove(wt.id)
	}
}

// bestIDLocked picks the best session: Offline sessions never qualify,
// sessions broadcasting with the model software beat the others and the
// highest session id wins within a tier. 0 means none qualifies.
func (m *Model) bestIDLocked() int {
	best := 0
	bestSW := false
	for sid, fields := range m.sessions {
		s := Session{ID: sid, Fields: fields}
		if s.VideoState() == protocol.StateOffline {
			continue
		}
		sw := s.Flag("model_sw")
		switch {
		case sw && !bestSW:
			best, bestSW = sid, true
		case sw == bestSW && sid > best:
			best = sid
		}
	}
	return best
}

func (m *Model) bestLocked() Session {
	sid := m.bestIDLocked()
	if fields, ok := m.sessions[sid]; ok {
		return Session{ID: sid, Fields: fields}
	}
	return placeholder(m.uid)
}

func (r *Registry) mergeLocked(m *Model, f Fragment) []func() {
	if f.Level != nil && *f.Level != protocol.LevelModel {
		if prev := m.bestLocked(); prev.Level() == protocol.LevelModel {
			r.logger.Warn("model changed level, removing it", "uid", m.uid, "level", *f.Level)
		} else {
			r.logger.Debug("not a model, removing it", "uid", m.uid, "level", *f.Level)
		}
		r.removeLocked(m)
		return nil
	}

	prev := m.bestLocked().clone()
	sid := 0
	if f.SID != nil {
		sid = *f.SID
	}
	cur, ok := m.sessions[sid]
	if !ok {
		cur = map[string]any{
			"sid": int64(sid),
			"uid": int64(m.uid),
			"vs":  int64(protocol.StateOffline),
		}
		m.sessions[sid] = cur
	}

	var changes []Change
	for _, w := range f.flatten() {
		changes = append(changes, Change{UID: m.uid, Field: w.field, Old: prev.Fields[w.field], New: w.value})
		cur[w.field] = w.value
	}
	if sid != prev.ID {
		for _, name := range sortedKeys(prev.Fields) {
			if _, ok := cur[name]; !ok {
				changes = append(changes, Change{UID: m.uid, Field: name, Old: prev.Fields[name]})
			}
		}
	}

	var calls []func()
	bestID := m.bestIDLocked()
	if bestID == sid || (bestID == 0 && sid != 0) {
		if nm, ok := m.bestLocked().Text("nm"); ok && nm != m.name {
			m.name = nm
		}
		snap := m.snapshotLocked()
		modelFns, regFns := m.changes.fns(), r.changes.fns()
		for _, c := range changes {
			if reflect.DeepEqual(c.Old, c.New) {
				continue
			}
			for _, fn := range modelFns {
				calls = append(calls, func() { fn(snap, c) })
			}
			for _, fn := range regFns {
				calls = append(calls, func() { fn(snap, c) })
			}
		}
		u := Update{UID: m.uid, Fragment: f}
		for _, fn := range append(m.updates.fns(), r.updates.fns()...) {
			calls = append(calls, func() { fn(snap, u) })
		}
		calls = append(calls, m.watchers.eval(snap)...)
		calls = append(calls, r.watchers.eval(snap)...)
	}

	m.purgeLocked()
	return calls
}

func (m *Model) purgeLocked() {
	for sid, fields := range m.sessions {
		if (Session{ID: sid, Fields: fields}).VideoState() == protocol.StateOffline {
			delete(m.sessions, sid)
		}
	}
}

func (r *Registry) mergeTagsLocked(m *Model, tags []string) []func() {
	old := slices.Clone(m.tags)
	merged := append(slices.Clone(m.tags), tags...)
	sort.Strings(merged)
	merged = slices.Compact(merged)

	var calls []func()
	if !slices.Equal(old, merged) {
		m.tags = merged
		snap := m.snapshotLocked()
		c := Change{UID: m.uid, Field: "tags", Old: old, New: slices.Clone(merged)}
		for _, fn := range append(m.changes.fns(), r.changes.fns()...) {
			calls = append(calls, func() { fn(snap, c) })
		}
	}
	snap := m.snapshotLocked()
	calls = append(calls, m.watchers.eval(snap)...)
	calls = append(calls, r.watchers.eval(snap)...)
	return calls
}

func (r *Registry) resetLocked(m *Model) []func() {
	bestID := m.bestIDLocked()
	for sid, fields := range m.sessions {
		if sid != bestID {
			fields["vs"] = int64(protocol.StateOffline)
		}
	}
	return r.mergeLocked(m, OfflineFragment(m.uid, bestID))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
