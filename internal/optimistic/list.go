// Package optimistic applies local edits to the event list before the
// calendar confirms them, and resynchronizes by refetching on failure.
package optimistic

import (
	"sync"

	"github.com/dukerupert/famboard/internal/model"
)

// EventList holds the current event snapshot. Every change installs a new
// slice, so a snapshot handed to a renderer never changes underneath it.
type EventList struct {
	mu      sync.RWMutex
	events  []model.CalendarEvent
	version uint64
}

func NewEventList() *EventList {
	return &EventList{}
}

// Snapshot returns the current events. Callers must not modify the slice.
func (l *EventList) Snapshot() []model.CalendarEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.events
}

// Version increases on every change.
func (l *EventList) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

func (l *EventList) Replace(events []model.CalendarEvent) {
	cp := make([]model.CalendarEvent, len(events))
	copy(cp, events)
	l.mu.Lock()
	l.events = cp
	l.version++
	l.mu.Unlock()
}

func (l *EventList) Get(key model.EventKey) (model.CalendarEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, ev := range l.events {
		if ev.Key() == key {
			return ev, true
		}
	}
	return model.CalendarEvent{}, false
}

// Update replaces the event with key by fn(event). It reports false when
// no event has that key.
func (l *EventList) Update(key model.EventKey, fn func(model.CalendarEvent) model.CalendarEvent) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i, ev := range l.events {
		if ev.Key() == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	next := make([]model.CalendarEvent, len(l.events))
	copy(next, l.events)
	next[idx] = fn(next[idx])
	l.events = next
	l.version++
	return true
}

func (l *EventList) Insert(ev model.CalendarEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := make([]model.CalendarEvent, len(l.events), len(l.events)+1)
	copy(next, l.events)
	l.events = append(next, ev)
	l.version++
}

func (l *EventList) Remove(key model.EventKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := make([]model.CalendarEvent, 0, len(l.events))
	for _, ev := range l.events {
		if ev.Key() != key {
			next = append(next, ev)
		}
	}
	if len(next) == len(l.events) {
		return false
	}
	l.events = next
	l.version++
	return true
}

// Swap replaces the event at oldKey with ev in one step, keeping its
// position. An event already listed under ev's key is replaced instead of
// duplicated. If neither key is listed, ev is appended.
func (l *EventList) Swap(oldKey model.EventKey, ev model.CalendarEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	newKey := ev.Key()
	next := make([]model.CalendarEvent, 0, len(l.events)+1)
	placed := false
	for _, cur := range l.events {
		switch cur.Key() {
		case oldKey, newKey:
			if !placed {
				next = append(next, ev)
				placed = true
			}
		default:
			next = append(next, cur)
		}
	}
	if !placed {
		next = append(next, ev)
	}
	l.events = next
	l.version++
}

// PendingSet holds keys of events with a remote write in flight.
type PendingSet struct {
	mu   sync.RWMutex
	keys map[model.EventKey]struct{}
}

func NewPendingSet() *PendingSet {
	return &PendingSet{keys: make(map[model.EventKey]struct{})}
}

// Add reports false if the key was already pending.
func (p *PendingSet) Add(key model.EventKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.keys[key]; ok {
		return false
	}
	p.keys[key] = struct{}{}
	return true
}

func (p *PendingSet) Remove(key model.EventKey) {
	p.mu.Lock()
	delete(p.keys, key)
	p.mu.Unlock()
}

func (p *PendingSet) Has(key model.EventKey) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.keys[key]
	return ok
}

func (p *PendingSet) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.keys)
}

// Keys returns a copy of the pending keys in no particular order.
func (p *PendingSet) Keys() []model.EventKey {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.EventKey, 0, len(p.keys))
	for k := range p.keys {
		out = append(out, k)
	}
	return out
}
