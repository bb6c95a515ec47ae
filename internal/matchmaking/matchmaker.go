package matchmaking

// attemptMatch pairs id with the longest-waiting participant of the
// complementary attribute, or queues it if nobody is waiting.
// avoid is skipped (but stays queued) so a just-separated pair is not rejoined.
// Must only be called from the coordinator goroutine.
func (c *Coordinator) attemptMatch(id SessionID, avoid SessionID) {
	p, ok := c.registry.lookup(id)
	if !ok || p.Paired() {
		return
	}

	others := c.pools.pool(p.Attribute.Complement())
	partnerID, found := others.popExcept(avoid)
	if !found {
		c.enqueue(p)
		return
	}

	partner, ok := c.registry.lookup(partnerID)
	if !ok {
		// Stale pool entry; the popped id is dropped, not retried.
		c.logger.Debug("dropped stale pool entry", "session", partnerID)
		c.enqueue(p)
		return
	}

	c.pair(p, partner)
}

// enqueue places p in its own attribute's pool and tells it to wait.
func (c *Coordinator) enqueue(p *Participant) {
	c.pools.pool(p.Attribute).push(p.ID)
	c.emit(p.ID, WaitingEvent{})
}

// pair links two unpaired participants and notifies both.
func (c *Coordinator) pair(p, q *Participant) {
	conv := &conversation{
		id:        c.newConversationID(),
		startedAt: c.now(),
		attrs:     [2]Attribute{p.Attribute, q.Attribute},
	}

	p.Partner = q.ID
	q.Partner = p.ID
	p.conversation = conv
	q.conversation = conv
	c.started++

	c.logger.Info("chat started", "conversation", conv.id, "a", p.ID, "b", q.ID)

	c.emit(p.ID, ChatStartedEvent{PartnerID: q.ID, ConversationID: conv.id})
	c.emit(q.ID, ChatStartedEvent{PartnerID: p.ID, ConversationID: conv.id})
}

// unpair clears both sides of p's pairing, tells the partner, and closes the
// conversation. Returns the former partner's ID and whether its record still exists.
func (c *Coordinator) unpair(p *Participant, reason EndReason) (SessionID, bool) {
	partnerID := p.Partner
	if partnerID == "" {
		return "", false
	}

	c.emit(partnerID, PartnerLeftEvent{})

	partner, exists := c.registry.lookup(partnerID)
	if exists && partner.Partner == p.ID {
		partner.Partner = ""
		partner.conversation = nil
	}

	c.endConversation(p.conversation, reason)
	p.Partner = ""
	p.conversation = nil

	return partnerID, exists
}
