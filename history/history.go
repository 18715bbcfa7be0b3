// Package history implements a bounded undo log.
//
// History is a ring buffer: once full, pushing a new entry silently evicts
// the oldest one. A capacity of zero disables recording entirely.
package history

// History is a bounded LIFO of entries, oldest evicted first.
type History[T any] struct {
	Capacity int // Maximum number of retained entries.

	WriteIndex int // Slot of the next push.
	Size       int // Number of retained entries.
	Data       []T
	Evicted    int // Entries dropped since the last Reset.
}

// New creates an empty history that retains up to 'capacity' entries.
func New[T any](capacity int) (hist *History[T]) {
	hist = &History[T]{Capacity: max(capacity, 0)}
	hist.Reset()
	return
}

// Reset empties the history, reallocating storage at the current capacity.
func (hist *History[T]) Reset() {
	hist.WriteIndex = 0
	hist.Size = 0
	hist.Evicted = 0
	hist.Data = make([]T, hist.Capacity)
}

// Len returns the number of retained entries.
func (hist *History[T]) Len() int {
	return hist.Size
}

// Empty returns true if there is nothing to pop.
func (hist *History[T]) Empty() bool {
	return hist.Size == 0
}

// Push appends an entry, evicting the oldest when full.
func (hist *History[T]) Push(entry T) {
	if hist.Capacity == 0 {
		return
	}

	hist.Data[hist.WriteIndex] = entry
	hist.WriteIndex++
	if hist.WriteIndex == hist.Capacity {
		hist.WriteIndex = 0
	}

	if hist.Size == hist.Capacity {
		hist.Evicted++
	} else {
		hist.Size++
	}
}

// Pop removes and returns the newest entry.
func (hist *History[T]) Pop() (entry T, ok bool) {
	entry, ok = hist.Peek()
	if !ok {
		return
	}

	var zero T
	hist.WriteIndex = hist.newest()
	hist.Data[hist.WriteIndex] = zero
	hist.Size--

	return
}

// Peek returns the newest entry without removing it.
func (hist *History[T]) Peek() (entry T, ok bool) {
	if hist.Size == 0 {
		return
	}

	return hist.Data[hist.newest()], true
}

// newest is the slot of the most recent push.
func (hist *History[T]) newest() int {
	if hist.WriteIndex == 0 {
		return hist.Capacity - 1
	}
	return hist.WriteIndex - 1
}
