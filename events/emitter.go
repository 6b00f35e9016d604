package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// EventType labels what happened.
type EventType string

const (
	EventCallExecuted    EventType = "call_executed"
	EventValueTransfer   EventType = "value_transfer"
	EventQuestionCreated EventType = "question_created"
	EventAnswerCreated   EventType = "answer_created"
	EventAnswerUpvoted   EventType = "answer_upvoted"
	EventAnswerAccepted  EventType = "answer_accepted"
)

// Event carries a typed payload emitted after a call succeeded.
type Event struct {
	Type   EventType      `json:"type"`
	CallID string         `json:"call_id"`
	Data   map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	log      logrus.FieldLogger
}

// NewEmitter creates an Emitter with no subscribers. A nil logger falls back
// to the logrus standard logger.
func NewEmitter(log logrus.FieldLogger) *Emitter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Emitter{handlers: make(map[EventType][]Handler), log: log}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// A panicking subscriber is logged and skipped.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.WithFields(logrus.Fields{
						"event":   ev.Type,
						"call_id": ev.CallID,
						"panic":   r,
					}).Error("event handler panicked")
				}
			}()
			h(ev)
		}()
	}
}
