// Package trace provides types for OSAL event collection.
package trace

import (
	"sync"
	"time"
)

// Tag represents a trace event category.
// Tags are stored without # prefix; the prefix is added on rendering.
type Tag string

// Standard tags for trace events.
const (
	Thread    Tag = "thread"
	Lifecycle Tag = "lifecycle"
	Handshake Tag = "handshake"
	Join      Tag = "join"
	Mutex     Tag = "mutex"
	Semaphore Tag = "semaphore"
	Cancel    Tag = "cancel"
	TLS       Tag = "tls"
	Libc      Tag = "libc"
	Init      Tag = "init"
	Fatal     Tag = "fatal"
)

// Tags is a collection of tags with helper methods.
type Tags []Tag

// Has returns true if the tag collection contains the given tag.
func (t Tags) Has(tag Tag) bool {
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

// Add adds a tag if not already present.
func (t *Tags) Add(tag Tag) {
	if !t.Has(tag) {
		*t = append(*t, tag)
	}
}

// Strings returns tags as strings with # prefix for display.
func (t Tags) Strings() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = "#" + string(tag)
	}
	return out
}

// Annotations holds key-value metadata for trace events.
type Annotations map[string]string

// Event is one OSAL operation as seen by a trace consumer.
type Event struct {
	TID         int32       // Kernel id of the thread the event concerns
	Tags        Tags        // Multiple hashtags, first is primary
	Name        string      // Operation name (e.g., "create", "pend")
	Detail      string      // Additional detail (e.g., "stack=4096")
	Annotations Annotations // Key-value metadata
	Timestamp   time.Time   // When the event occurred
}

// NewEvent creates a new trace event with the given parameters.
func NewEvent(tid int32, category, name, detail string) *Event {
	return &Event{
		TID:         tid,
		Tags:        Tags{Tag(category)},
		Name:        name,
		Detail:      detail,
		Annotations: make(Annotations),
		Timestamp:   time.Now(),
	}
}

// AddTag adds a tag to the event.
func (e *Event) AddTag(tag Tag) {
	e.Tags.Add(tag)
}

// Annotate sets an annotation on the event.
func (e *Event) Annotate(k, v string) {
	if e.Annotations == nil {
		e.Annotations = make(Annotations)
	}
	e.Annotations[k] = v
}

// DefaultEnricher adds secondary tags based on category and name.
func DefaultEnricher(e *Event) {
	if len(e.Tags) == 0 {
		return
	}

	switch e.Tags[0] {
	case Thread:
		switch e.Name {
		case "create", "exit", "delete":
			e.AddTag(Lifecycle)
		case "start", "released":
			e.AddTag(Handshake)
		case "join":
			e.AddTag(Join)
		case "abort":
			e.AddTag(Fatal)
		}
	case Semaphore:
		if e.Name == "cancellable-pend" {
			e.AddTag(Cancel)
		}
	}
}

// Collector accumulates events from concurrent threads.
type Collector struct {
	mu     sync.Mutex
	events []*Event
}

// Add records an event.
func (c *Collector) Add(e *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

// GetAndClear returns the recorded events and resets the collector.
func (c *Collector) GetAndClear() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := c.events
	c.events = nil
	return events
}

// Count returns how many recorded events carry tag.
func (c *Collector) Count(tag Tag) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Tags.Has(tag) {
			n++
		}
	}
	return n
}
