package net

import (
	"sync"
)

// FaultRule selects inbound deliveries that a FaultyTransport loses. Counters
// are owned by the rule, so that every test builds its own.
type FaultRule struct {
	// Op restricts the rule to one operation, "" matches every command.
	Op string
	// From restricts the rule to one sender, "" matches every sender.
	From string
	// Skip lets the first Skip matching deliveries through.
	Skip int
	// Count is the number of matching deliveries lost after Skip.
	Count int
	// Hold keeps lost deliveries aside instead of dropping them. They are
	// delivered by FaultyTransport.Release.
	Hold bool

	l       sync.Mutex
	matched int
	lost    int
}

func (r *FaultRule) matches(rpc RPC) bool {
	return (r.Op == "" || r.Op == Op(rpc.Command)) &&
		(r.From == "" || r.From == rpc.From)
}

// Lost returns the number of deliveries the rule dropped or held.
func (r *FaultRule) Lost() int {
	r.l.Lock()
	defer r.l.Unlock()
	return r.lost
}

// Matched returns the number of deliveries the rule matched.
func (r *FaultRule) Matched() int {
	r.l.Lock()
	defer r.l.Unlock()
	return r.matched
}

// hit counts a matching delivery and reports whether it is lost.
func (r *FaultRule) hit() bool {
	r.l.Lock()
	defer r.l.Unlock()
	r.matched++
	if r.matched > r.Skip && r.lost < r.Count {
		r.lost++
		return true
	}
	return false
}

// InboundTransport is a Transport that can also be delivered to directly.
type InboundTransport interface {
	Transport
	Receiver
}

// FaultyTransport wraps the inbound side of a transport and loses deliveries
// according to its rules. Peers must be connected to the FaultyTransport, not
// to the wrapped transport, for the rules to apply.
type FaultyTransport struct {
	InboundTransport

	l     sync.Mutex
	rules []*FaultRule
	held  []RPC
}

// NewFaultyTransport wraps inner.
func NewFaultyTransport(inner InboundTransport) *FaultyTransport {
	return &FaultyTransport{
		InboundTransport: inner,
	}
}

// AddRule registers a rule and returns it so that callers can inspect its
// counters.
func (f *FaultyTransport) AddRule(rule *FaultRule) *FaultRule {
	f.l.Lock()
	defer f.l.Unlock()
	f.rules = append(f.rules, rule)
	return rule
}

// Receive implements the Receiver interface. Lost deliveries are reported as
// successful, like a network would.
func (f *FaultyTransport) Receive(rpc RPC) error {
	f.l.Lock()
	for _, r := range f.rules {
		if !r.matches(rpc) {
			continue
		}
		if r.hit() {
			if r.Hold {
				f.held = append(f.held, rpc)
			}
			f.l.Unlock()
			return nil
		}
	}
	f.l.Unlock()

	return f.InboundTransport.Receive(rpc)
}

// Release delivers the held RPCs, in arrival order, and returns how many
// there were.
func (f *FaultyTransport) Release() int {
	f.l.Lock()
	held := f.held
	f.held = nil
	f.l.Unlock()

	for _, rpc := range held {
		f.InboundTransport.Receive(rpc)
	}
	return len(held)
}

// Lost returns the total number of lost deliveries.
func (f *FaultyTransport) Lost() int {
	f.l.Lock()
	defer f.l.Unlock()
	total := 0
	for _, r := range f.rules {
		total += r.Lost()
	}
	return total
}
