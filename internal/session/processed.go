package session

import "sync"

// ProcessedSet tracks which items each consumer already handled in the
// current session, preventing re-entrant loops when a consumer's own writes
// fire new events for the same item.
//
// Example loop:
//
//	Directorio item edited → inbound consumer applies diff to CV entity
//	→ CV entity modify event → outbound consumer submits correction
//	→ ... → Directorio item modify event → inbound consumer (again!)
//
// CRITICAL DISTINCTION from the event log:
//   - Event log: "Was this (item, kind, version) event dispatched?" (persistent)
//   - ProcessedSet: "Has this consumer handled this item in this session?" (in-memory)
//
// The set is never persisted and is cleared when the session ends.
type ProcessedSet struct {
	mu   sync.Mutex
	seen map[string]map[string]struct{} // map[consumer]map[item_id]
}

// NewProcessedSet creates an empty set.
func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{seen: make(map[string]map[string]struct{})}
}

// Claim records that consumer is handling itemID.
// Returns false if consumer already claimed itemID in this session.
func (p *ProcessedSet) Claim(consumer, itemID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	items := p.seen[consumer]
	if items == nil {
		items = make(map[string]struct{})
		p.seen[consumer] = items
	}
	if _, ok := items[itemID]; ok {
		return false
	}
	items[itemID] = struct{}{}
	return true
}

// Contains reports whether consumer already claimed itemID.
func (p *ProcessedSet) Contains(consumer, itemID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.seen[consumer][itemID]
	return ok
}

// Len returns the number of items claimed by consumer.
func (p *ProcessedSet) Len(consumer string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen[consumer])
}

// Clear forgets every claim.
func (p *ProcessedSet) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = make(map[string]map[string]struct{})
}
