// Package events carries the observable side effects of the payment module.
package events

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/logger"
)

// Kind names an event
type Kind string

const (
	PaymentScheduled          Kind = "PaymentScheduled"
	ScheduledPaymentCancelled Kind = "ScheduledPaymentCancelled"
	ScheduledPaymentExecuted  Kind = "ScheduledPaymentExecuted"
	ConfigSet                 Kind = "ConfigSet"
	ScheduledPaymentSetup     Kind = "ScheduledPaymentSetup"
)

// Event is one emitted log entry
type Event struct {
	Kind Kind
	Hash common.Hash
	// Nonce is the legacy schedule counter value, set on PaymentScheduled
	Nonce uint64
	// Address is the config address on ConfigSet
	Address common.Address
	// Setup carries the module wiring on ScheduledPaymentSetup
	Setup *Setup
}

// Setup describes the addresses a module was created with
type Setup struct {
	Owner  common.Address
	Avatar common.Address
	Target common.Address
	Config common.Address
}

// Sink receives events once the operation that emitted them succeeded
type Sink interface {
	Emit(e Event)
}

// Recorder keeps every event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

var _ Sink = (*Recorder)(nil)

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns the recorded events of the given kind
func (r *Recorder) OfKind(kind Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops every recorded event
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// LogSink writes events to a logger
type LogSink struct {
	Logger logger.Logger
}

var _ Sink = (*LogSink)(nil)

func (s *LogSink) Emit(e Event) {
	switch e.Kind {
	case PaymentScheduled:
		s.Logger.NoticeWithPayment(e.Hash, "%s nonce=%d", e.Kind, e.Nonce)
	case ConfigSet:
		s.Logger.Notice("%s config=%s", e.Kind, e.Address.Hex())
	case ScheduledPaymentSetup:
		if e.Setup != nil {
			s.Logger.Notice("%s owner=%s avatar=%s target=%s config=%s", e.Kind,
				e.Setup.Owner.Hex(), e.Setup.Avatar.Hex(), e.Setup.Target.Hex(), e.Setup.Config.Hex())
		}
	default:
		s.Logger.NoticeWithPayment(e.Hash, "%s", e.Kind)
	}
}

// Multi fans events out to several sinks
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// Buffer collects events during an operation so they can be dropped on failure
type Buffer struct {
	pending []Event
}

// Add queues an event
func (b *Buffer) Add(e Event) {
	b.pending = append(b.pending, e)
}

// Flush hands the queued events to sink and clears the buffer
func (b *Buffer) Flush(sink Sink) {
	if sink != nil {
		for _, e := range b.pending {
			sink.Emit(e)
		}
	}
	b.pending = nil
}

// Discard drops the queued events
func (b *Buffer) Discard() {
	b.pending = nil
}

// Len returns the number of queued events
func (b *Buffer) Len() int {
	return len(b.pending)
}
