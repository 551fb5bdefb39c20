package chat

// Event identifies which slice of the projection changed.
type Event int

const (
	// EventConversations: the conversation list (or current id) changed.
	EventConversations Event = iota
	// EventMessages: the current message list changed.
	EventMessages
)

// Watch returns a channel that receives an Event after every projection
// change. Delivery is best-effort: a watcher that falls behind misses
// events rather than blocking mutations.
func (c *Chat) Watch() <-chan Event {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	ch := make(chan Event, 16)
	c.watchers = append(c.watchers, ch)
	return ch
}

func (c *Chat) notify(ev Event) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	for _, ch := range c.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}
