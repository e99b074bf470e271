package model

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry holds every known model. One Registry is shared by all clients
// of a process. Callbacks never run while the registry is locked.
type Registry struct {
	mu       sync.Mutex
	models   map[int]*Model
	changes  subscribers[ChangeFunc]
	updates  subscribers[UpdateFunc]
	watchers watchers
	loggedIn int
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry. A nil logger means slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		models: make(map[int]*Model),
		logger: logger,
	}
}

// Get returns the model with the given uid.
func (r *Registry) Get(uid int) (*Model, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.models[uid]
	return m, ok
}

// GetOrCreate returns the model with the given uid, creating it if needed.
func (r *Registry) GetOrCreate(uid int) *Model {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(uid)
}

func (r *Registry) getOrCreateLocked(uid int) *Model {
	m, ok := r.models[uid]
	if !ok {
		m = newModel(r, uid)
		r.models[uid] = m
		r.logger.Debug("creating model", "uid", uid)
	}
	return m
}

// Models returns every known model ordered by uid.
func (r *Registry) Models() []*Model {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked()
}

func (r *Registry) sortedLocked() []*Model {
	out := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].uid < out[j].uid })
	return out
}

// Find returns the models whose snapshot matches pred, ordered by uid.
func (r *Registry) Find(pred Predicate) []*Model {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Model
	for _, m := range r.sortedLocked() {
		if pred(m.snapshotLocked()) {
			out = append(out, m)
		}
	}
	return out
}

// Snapshots returns a snapshot of every known model ordered by uid.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	models := r.sortedLocked()
	out := make([]Snapshot, len(models))
	for i, m := range models {
		out[i] = m.snapshotLocked()
	}
	return out
}

// Len returns the number of known models.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.models)
}

// Merge applies f to the model with the given uid, creating it if needed.
func (r *Registry) Merge(uid int, f Fragment) {
	r.mu.Lock()
	calls := r.mergeLocked(r.getOrCreateLocked(uid), f)
	r.mu.Unlock()
	run(calls)
}

// MergeTags adds tags to the model with the given uid, creating it if
// needed.
func (r *Registry) MergeTags(uid int, tags []string) {
	r.mu.Lock()
	calls := r.mergeTagsLocked(r.getOrCreateLocked(uid), tags)
	r.mu.Unlock()
	run(calls)
}

// Reset marks every model Offline. Sessions other than the best one are
// forced Offline first, then the best session is merged Offline so that
// subscribers see the change.
func (r *Registry) Reset() {
	r.mu.Lock()
	var calls []func()
	for _, m := range r.sortedLocked() {
		calls = append(calls, r.resetLocked(m)...)
	}
	r.mu.Unlock()
	run(calls)
}

// OnChange subscribes fn to field changes of every model. The returned
// func unsubscribes.
func (r *Registry) OnChange(fn ChangeFunc) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.changes.add(fn)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.changes.remove(id)
	}
}

// OnAny subscribes fn to every visible merge of every model.
func (r *Registry) OnAny(fn UpdateFunc) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.updates.add(fn)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.updates.remove(id)
	}
}

// When calls onTrue each time a model starts matching pred and onFalse,
// when not nil, each time a matching model stops matching. Existing models
// are evaluated immediately.
func (r *Registry) When(pred Predicate, onTrue, onFalse WatchFunc) func() {
	r.mu.Lock()
	wt := r.watchers.add(pred, onTrue, onFalse)
	var calls []func()
	single := watchers{list: []*watcher{wt}}
	for _, m := range r.sortedLocked() {
		calls = append(calls, single.eval(m.snapshotLocked())...)
	}
	r.mu.Unlock()
	run(calls)

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.watchers.remove(wt.id)
	}
}

// Attach counts one more logged in connection.
func (r *Registry) Attach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loggedIn++
}

// Detach counts one logged in connection less and returns how many remain.
func (r *Registry) Detach() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loggedIn > 0 {
		r.loggedIn--
	}
	return r.loggedIn
}

// LoggedIn returns the number of logged in connections.
func (r *Registry) LoggedIn() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loggedIn
}

func (r *Registry) removeLocked(m *Model) {
	if r.models[m.uid] == m {
		delete(r.models, m.uid)
	}
	m.changes.clear()
	m.updates.clear()
	m.watchers = watchers{}
	r.watchers.forget(m.uid)
}

func run(calls []func()) {
	for _, fn := range calls {
		fn()
	}
}
