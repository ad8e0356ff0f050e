package switches

import (
	"errors"
	"fmt"
	"sort"
)

// Listener reacts to a topic.
type Listener func() error

// Subscription identifies one Watch call.
type Subscription uint64

type subscriber struct {
	sub Subscription
	fn  Listener
}

// Dispatch is a topic registry. Notify only records the topic; listeners run
// on Flush, which the engine calls after the tree update so that a listener
// never runs in the middle of an agent loop.
type Dispatch struct {
	next    Subscription
	topics  map[string][]subscriber
	owner   map[Subscription]string
	pending []string
	queued  map[string]bool
}

func NewDispatch() *Dispatch {
	return &Dispatch{
		topics: map[string][]subscriber{},
		owner:  map[Subscription]string{},
		queued: map[string]bool{},
	}
}

func (d *Dispatch) Watch(topic string, fn Listener) Subscription {
	d.next++
	d.topics[topic] = append(d.topics[topic], subscriber{sub: d.next, fn: fn})
	d.owner[d.next] = topic
	return d.next
}

// WatchRule evaluates r whenever topic is flushed while r's world is active.
func (d *Dispatch) WatchRule(topic string, r *Rule) Subscription {
	return d.Watch(topic, func() error {
		if !r.tree.Active(r.world) {
			return nil
		}
		return r.Evaluate()
	})
}

// StopListening reports whether sub was live.
func (d *Dispatch) StopListening(sub Subscription) bool {
	topic, ok := d.owner[sub]
	if !ok {
		return false
	}
	delete(d.owner, sub)
	subs := d.topics[topic]
	for i, s := range subs {
		if s.sub == sub {
			d.topics[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(d.topics[topic]) == 0 {
		delete(d.topics, topic)
	}
	return true
}

// Notify marks topic for the next Flush. Repeated notifications before a
// Flush collapse into one.
func (d *Dispatch) Notify(topic string) {
	if d.queued[topic] {
		return
	}
	d.queued[topic] = true
	d.pending = append(d.pending, topic)
}

// Flush delivers pending topics in notification order. Listeners of one topic
// run in Watch order. Topics notified during a Flush wait for the next one.
func (d *Dispatch) Flush() error {
	if len(d.pending) == 0 {
		return nil
	}
	topics := d.pending
	d.pending = nil
	d.queued = map[string]bool{}

	var errs []error
	for _, topic := range topics {
		for _, s := range append([]subscriber(nil), d.topics[topic]...) {
			if err := s.fn(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", topic, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Topics lists topics with at least one listener.
func (d *Dispatch) Topics() []string {
	out := make([]string, 0, len(d.topics))
	for t := range d.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
