package internal

// EventHook is a single admission-lifecycle observer, replacing the
// teacher's separate event/node/state subscriber interfaces with one
// surface metrics and logging can both implement (§9 Design Notes).
// Every method must return quickly: it is invoked synchronously from the
// owning actor's mailbox goroutine.
type EventHook interface {
	// OnAdmitted fires when a message is freshly admitted into a node's
	// seen cache and forwarded.
	OnAdmitted(nodeUID uint64, m Message)
	// OnDuplicate fires when a fresh (non-expired) message is dropped
	// because its id was already in the seen cache.
	OnDuplicate(nodeUID uint64, m Message)
	// OnExpired fires when a message is dropped for being soft- or
	// hard-expired.
	OnExpired(nodeUID uint64, m Message, hard bool)
	// OnConnectionOpened fires when a Socket Owner is inserted into the
	// Connection Registry.
	OnConnectionOpened(peer string)
	// OnConnectionClosed fires when a Socket Owner tears down.
	OnConnectionClosed(peer string)
}

// NoopEventHook implements EventHook with no-ops, the default when a
// caller does not care to observe admission events.
type NoopEventHook struct{}

func (NoopEventHook) OnAdmitted(uint64, Message)          {}
func (NoopEventHook) OnDuplicate(uint64, Message)         {}
func (NoopEventHook) OnExpired(uint64, Message, bool)     {}
func (NoopEventHook) OnConnectionOpened(string)           {}
func (NoopEventHook) OnConnectionClosed(string)           {}

// MultiEventHook fans a single event out to several hooks, so metrics and
// structured logging can both observe the same admission stream.
type MultiEventHook []EventHook

func (m MultiEventHook) OnAdmitted(uid uint64, msg Message) {
	for _, h := range m {
		h.OnAdmitted(uid, msg)
	}
}

func (m MultiEventHook) OnDuplicate(uid uint64, msg Message) {
	for _, h := range m {
		h.OnDuplicate(uid, msg)
	}
}

func (m MultiEventHook) OnExpired(uid uint64, msg Message, hard bool) {
	for _, h := range m {
		h.OnExpired(uid, msg, hard)
	}
}

func (m MultiEventHook) OnConnectionOpened(peer string) {
	for _, h := range m {
		h.OnConnectionOpened(peer)
	}
}

func (m MultiEventHook) OnConnectionClosed(peer string) {
	for _, h := range m {
		h.OnConnectionClosed(peer)
	}
}
