package identity

import "sync"

// authState fans out sign-in and sign-out transitions to registered
// observers. A nil user means signed out.
type authState struct {
	mu       sync.Mutex
	nextID   int64
	watchers map[int64]func(*User)
	current  *User
}

// OnAuthStateChange registers an observer. The observer is invoked
// immediately with the current state and again on every transition. The
// returned function removes the observer and is safe to call more than once.
func (a *authState) OnAuthStateChange(fn func(*User)) func() {
	a.mu.Lock()
	if a.watchers == nil {
		a.watchers = make(map[int64]func(*User))
	}
	a.nextID++
	id := a.nextID
	a.watchers[id] = fn
	current := a.current
	a.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.watchers, id)
			a.mu.Unlock()
		})
	}
}

func (a *authState) broadcast(user *User) {
	a.mu.Lock()
	a.current = user
	watchers := make([]func(*User), 0, len(a.watchers))
	for _, fn := range a.watchers {
		watchers = append(watchers, fn)
	}
	a.mu.Unlock()

	for _, fn := range watchers {
		fn(user)
	}
}
