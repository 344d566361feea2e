package trigger

// Subscription lets a subscriber detach from the dispatcher.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	dispatcher *Dispatcher
	eventName  string
	id         int64
	handler    Handler
}

func (s *subscription) Unsubscribe() {
	d := s.dispatcher
	d.mu.Lock()
	defer d.mu.Unlock()

	handlers := d.handlers[s.eventName]
	newList := make([]*subscription, 0, len(handlers))
	for _, h := range handlers {
		if h.id != s.id {
			newList = append(newList, h)
		}
	}
	d.handlers[s.eventName] = newList
}
