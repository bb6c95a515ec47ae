package matchmaking

import (
	"slices"

	"github.com/samber/lo"
)

// waitingPool is a FIFO queue of sessions seeking a partner.
// A session appears at most once.
type waitingPool struct {
	members []SessionID
	index   map[SessionID]struct{}
}

func newWaitingPool() *waitingPool {
	return &waitingPool{index: make(map[SessionID]struct{})}
}

// push appends id unless it is already queued. Returns false for a duplicate.
func (p *waitingPool) push(id SessionID) bool {
	if _, ok := p.index[id]; ok {
		return false
	}
	p.members = append(p.members, id)
	p.index[id] = struct{}{}
	return true
}

// pop removes and returns the earliest queued session.
func (p *waitingPool) pop() (SessionID, bool) {
	if len(p.members) == 0 {
		return "", false
	}
	id := p.members[0]
	p.members[0] = ""
	p.members = p.members[1:]
	delete(p.index, id)
	return id, true
}

// popExcept removes and returns the earliest queued session other than avoid.
// avoid keeps its place in the queue.
func (p *waitingPool) popExcept(avoid SessionID) (SessionID, bool) {
	if avoid == "" || !p.contains(avoid) {
		return p.pop()
	}
	for i, id := range p.members {
		if id == avoid {
			continue
		}
		p.members = slices.Delete(p.members, i, i+1)
		delete(p.index, id)
		return id, true
	}
	return "", false
}

// remove drops id from the pool. Absent ids are ignored.
func (p *waitingPool) remove(id SessionID) bool {
	if _, ok := p.index[id]; !ok {
		return false
	}
	delete(p.index, id)
	if i := lo.IndexOf(p.members, id); i >= 0 {
		p.members = slices.Delete(p.members, i, i+1)
	}
	return true
}

func (p *waitingPool) contains(id SessionID) bool {
	_, ok := p.index[id]
	return ok
}

func (p *waitingPool) len() int {
	return len(p.members)
}

// snapshot returns the queue in order, oldest first.
func (p *waitingPool) snapshot() []SessionID {
	return slices.Clone(p.members)
}

// waitingPools holds one pool per attribute value.
type waitingPools struct {
	a *waitingPool
	b *waitingPool
}

func newWaitingPools() waitingPools {
	return waitingPools{a: newWaitingPool(), b: newWaitingPool()}
}

// pool returns the pool for attr, or nil for AttributeNone.
func (w waitingPools) pool(attr Attribute) *waitingPool {
	switch attr {
	case AttributeA:
		return w.a
	case AttributeB:
		return w.b
	default:
		return nil
	}
}

// removeAll drops id from both pools.
func (w waitingPools) removeAll(id SessionID) {
	w.a.remove(id)
	w.b.remove(id)
}
