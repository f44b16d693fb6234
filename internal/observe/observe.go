// Package observe provides small publish/subscribe primitives used to expose
// permission and session state to any number of listeners.
package observe

import "sync"

// Feed fans values out to subscribers. Sends never block: when a
// subscriber's buffer is full the oldest buffered value is dropped.
type Feed[T any] struct {
	mu   sync.Mutex
	subs map[int]chan T
	next int
}

// Subscribe returns a channel receiving every value sent after the call and
// a function that unsubscribes and closes the channel.
func (f *Feed[T]) Subscribe(buf int) (<-chan T, func()) {
	return f.subscribe(buf)
}

func (f *Feed[T]) subscribe(buf int) (chan T, func()) {
	if buf <= 0 {
		buf = 1
	}
	ch := make(chan T, buf)

	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[int]chan T)
	}
	id := f.next
	f.next++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Send delivers v to all current subscribers.
func (f *Feed[T]) Send(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		deliver(ch, v)
	}
}

// Len returns the number of active subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func deliver[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	// Buffer full: drop the oldest value so the latest always lands.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

// Value holds a current value and publishes every change to subscribers.
type Value[T any] struct {
	mu   sync.Mutex
	cur  T
	feed Feed[T]
}

// NewValue returns a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{cur: initial}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Set stores x and publishes it.
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = x
	v.feed.Send(x)
}

// Update applies fn to the current value under the lock and publishes the
// result. fn must not call back into v.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = fn(v.cur)
	v.feed.Send(v.cur)
	return v.cur
}

// Subscribe returns a channel that first receives the current value and then
// every subsequent one.
func (v *Value[T]) Subscribe(buf int) (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ch, cancel := v.feed.subscribe(buf)
	deliver(ch, v.cur)
	return ch, cancel
}
