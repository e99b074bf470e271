package model

// ChangeFunc receives field change notifications.
type ChangeFunc func(Snapshot, Change)

// UpdateFunc receives one notification per visible merge.
type UpdateFunc func(Snapshot, Update)

// Predicate selects models for a watcher. It runs while the registry is
// locked and must not call back into it.
type Predicate func(Snapshot) bool

// WatchFunc is called when a model starts or stops matching a Predicate.
type WatchFunc func(Snapshot)

type subscriber[F any] struct {
	id int
	fn F
}

// subscribers is an ordered listener list. Callers hold the registry lock.
type subscribers[F any] struct {
	next int
	list []subscriber[F]
}

func (s *subscribers[F]) add(fn F) int {
	s.next++
	s.list = append(s.list, subscriber[F]{id: s.next, fn: fn})
	return s.next
}

func (s *subscribers[F]) remove(id int) {
	for i, sub := range s.list {
		if sub.id == id {
			s.list = append(s.list[:i:i], s.list[i+1:]...)
			return
		}
	}
}

func (s *subscribers[F]) fns() []F {
	out := make([]F, len(s.list))
	for i, sub := range s.list {
		out[i] = sub.fn
	}
	return out
}

func (s *subscribers[F]) clear() {
	s.list = nil
}

type watcher struct {
	id      int
	pred    Predicate
	onTrue  WatchFunc
	onFalse WatchFunc
	matched map[int]struct{}
}

type watchers struct {
	next int
	list []*watcher
}

func (w *watchers) add(pred Predicate, onTrue, onFalse WatchFunc) *watcher {
	w.next++
	wt := &watcher{id: w.next, pred: pred, onTrue: onTrue, onFalse: onFalse, matched: make(map[int]struct{})}
	w.list = append(w.list, wt)
	return wt
}

func (w *watchers) remove(id int) {
	for i, wt := range w.list {
		if wt.id == id {
			w.list = append(w.list[:i:i], w.list[i+1:]...)
			return
		}
	}
}

// eval runs every watcher against snap and returns the callbacks to fire.
func (w *watchers) eval(snap Snapshot) []func() {
	var calls []func()
	for _, wt := range w.list {
		_, was := wt.matched[snap.UID]
		if wt.pred(snap) {
			if !was {
				wt.matched[snap.UID] = struct{}{}
				if wt.onTrue != nil {
					fn := wt.onTrue
					calls = append(calls, func() { fn(snap) })
				}
			}
			continue
		}
		if was {
			delete(wt.matched, snap.UID)
			if wt.onFalse != nil {
				fn := wt.onFalse
				calls = append(calls, func() { fn(snap) })
			}
		}
	}
	return calls
}

func (w *watchers) forget(uid int) {
	for _, wt := range w.list {
		delete(wt.matched, uid)
	}
}
