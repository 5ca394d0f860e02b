package push

// Subscriber receives every message read from the push channel. Payload is
// the decoded JSON value, or the raw text when the frame is not JSON.
//
// Subscribers are compared by identity, so implementations should be
// pointer types.
type Subscriber interface {
	HandleMessage(payload any)
}

// SubscriberFunc adapts a function to Subscriber. Use a pointer obtained
// from NewSubscriberFunc; two wrappers around the same function are
// distinct subscribers.
type SubscriberFunc struct {
	fn func(payload any)
}

// NewSubscriberFunc wraps fn.
func NewSubscriberFunc(fn func(payload any)) *SubscriberFunc {
	return &SubscriberFunc{fn: fn}
}

// HandleMessage calls the wrapped function.
func (f *SubscriberFunc) HandleMessage(payload any) {
	f.fn(payload)
}
