package engine

import "sync"

// Notifier tells in-process subscribers when a task's result is committed.
// It is safe for concurrent use; a nil *Notifier ignores publishes.
//
// Topics are removed on publish, so a subscriber must check the store after
// subscribing to avoid missing a result committed just before.
type Notifier struct {
	mu     sync.Mutex
	topics map[string]*doneTopic
}

type doneTopic struct {
	subs   map[int]chan struct{}
	nextID int
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		topics: make(map[string]*doneTopic),
	}
}

// Subscribe returns a channel that is closed once taskID is published, and a
// function that cancels the subscription.
func (n *Notifier) Subscribe(taskID string) (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	t, ok := n.topics[taskID]
	if !ok {
		t = &doneTopic{subs: make(map[int]chan struct{})}
		n.topics[taskID] = t
	}

	ch := make(chan struct{})
	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := t.subs[id]; !ok {
			return
		}
		delete(t.subs, id)
		if len(t.subs) == 0 && n.topics[taskID] == t {
			delete(n.topics, taskID)
		}
	}
}

// Publish wakes every subscriber waiting on taskID.
func (n *Notifier) Publish(taskID string) {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	t, ok := n.topics[taskID]
	if !ok {
		return
	}
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
	delete(n.topics, taskID)
}

// Pending returns the number of tasks with active subscribers.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.topics)
}
