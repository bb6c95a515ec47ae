package matchmaking

// participantRegistry is the connection registry plus the identity index.
// Not safe for concurrent use; only the coordinator goroutine touches it.
type participantRegistry struct {
	participants map[SessionID]*Participant
	identities   map[string]SessionID // normalized identity -> session
}

func newParticipantRegistry() *participantRegistry {
	return &participantRegistry{
		participants: make(map[SessionID]*Participant),
		identities:   make(map[string]SessionID),
	}
}

// add installs a participant and its identity binding.
// The caller must have evicted any previous holder of the identity.
func (r *participantRegistry) add(p *Participant) {
	r.participants[p.ID] = p
	r.identities[p.Identity] = p.ID
}

// lookup returns the participant for a session.
func (r *participantRegistry) lookup(id SessionID) (*Participant, bool) {
	p, ok := r.participants[id]
	return p, ok
}

// lookupByIdentity returns the session bound to a normalized identity.
func (r *participantRegistry) lookupByIdentity(identity string) (SessionID, bool) {
	id, ok := r.identities[identity]
	return id, ok
}

// unbindIdentity removes the identity binding if it still points at p.
func (r *participantRegistry) unbindIdentity(p *Participant) {
	if r.identities[p.Identity] == p.ID {
		delete(r.identities, p.Identity)
	}
}

// remove deletes the participant record.
func (r *participantRegistry) remove(id SessionID) {
	delete(r.participants, id)
}

func (r *participantRegistry) len() int {
	return len(r.participants)
}
