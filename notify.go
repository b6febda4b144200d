package vigil

// Notifier receives the alerts raised by a Monitor.
// Implementations must not block the frame processing loop.
type Notifier interface {
	Notify(Alert)
}

// NotifierFunc adapts an ordinary function to the Notifier interface.
type NotifierFunc func(Alert)

// Notify calls f(a).
func (f NotifierFunc) Notify(a Alert) { f(a) }

// Notifiers fans out an alert to every notifier in the list.
type Notifiers []Notifier

// Notify forwards the alert to each notifier in order.
func (ns Notifiers) Notify(a Alert) {
	for _, n := range ns {
		if n != nil {
			n.Notify(a)
		}
	}
}

// Discard is a Notifier which ignores every alert.
var Discard Notifier = NotifierFunc(func(Alert) {})
