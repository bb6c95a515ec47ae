package matchmaking

import (
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/vovakirdan/tui-campuschat/internal/identity"
)

// CoordinatorConfig holds configuration for the coordinator.
type CoordinatorConfig struct {
	Labels          AttributeLabels
	QueueSize       int           // Inbound message buffer
	NotifyDisplaced bool          // Send DisplacedEvent before evicting a session
	RequeuePartner  bool          // Put the abandoned partner back into matching
	StatsInterval   time.Duration // How often to log stats (0 disables)
}

// DefaultCoordinatorConfig returns sensible defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Labels:        DefaultAttributeLabels(),
		QueueSize:     256,
		StatsInterval: time.Minute,
	}
}

// Coordinator owns participants, identity bindings and waiting pools.
// All of that state is read and written only by the processMessages
// goroutine, one message at a time, so no lock guards it.
type Coordinator struct {
	config   CoordinatorConfig
	policy   identity.Policy
	sessions *SessionRegistry
	saver    ConversationSaver // Optional, can be nil
	logger   *log.Logger

	registry *participantRegistry
	pools    waitingPools
	started  int // Conversations started

	now               func() time.Time
	newConversationID func() ConversationID

	msgChan  chan CoordinatorMessage
	done     chan struct{}
	stopOnce sync.Once
}

// NewCoordinator creates a new coordinator.
func NewCoordinator(cfg CoordinatorConfig, policy identity.Policy, sessions *SessionRegistry) *Coordinator {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 256
	}
	return &Coordinator{
		config:   cfg,
		policy:   policy,
		sessions: sessions,
		logger:   log.New(io.Discard),
		registry: newParticipantRegistry(),
		pools:    newWaitingPools(),
		now:      time.Now,
		newConversationID: func() ConversationID {
			return ConversationID(uuid.NewString())
		},
		msgChan: make(chan CoordinatorMessage, cfg.QueueSize),
		done:    make(chan struct{}),
	}
}

// SetConversationSaver sets the optional conversation log.
func (c *Coordinator) SetConversationSaver(saver ConversationSaver) {
	c.saver = saver
}

// SetLogger replaces the default discard logger.
func (c *Coordinator) SetLogger(logger *log.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Sessions returns the session registry used to address events.
func (c *Coordinator) Sessions() *SessionRegistry {
	return c.sessions
}

// Labels returns the attribute labels clients must use.
func (c *Coordinator) Labels() AttributeLabels {
	return c.config.Labels
}

// Start begins the coordinator's background processing.
func (c *Coordinator) Start() {
	go c.processMessages()
	if c.config.StatsInterval > 0 {
		go c.statsLoop()
	}
}

// Stop shuts down the coordinator. Safe to call multiple times.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

// Send sends a message to the coordinator for async processing.
func (c *Coordinator) Send(msg CoordinatorMessage) {
	select {
	case c.msgChan <- msg:
	case <-c.done:
	}
}

// Stats returns a snapshot taken by the coordinator goroutine.
// Returns zero Stats once the coordinator is stopped.
func (c *Coordinator) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case c.msgChan <- statsMsg{reply: reply}:
	case <-c.done:
		return Stats{}
	}
	select {
	case s := <-reply:
		return s
	case <-c.done:
		return Stats{}
	}
}

// processMessages handles incoming messages.
func (c *Coordinator) processMessages() {
	for {
		select {
		case msg := <-c.msgChan:
			c.handleMessage(msg)
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) handleMessage(msg CoordinatorMessage) {
	switch m := msg.(type) {
	case ConnectMsg:
		c.handleConnect(m)
	case RegisterMsg:
		c.handleRegister(m)
	case ChatMessageMsg:
		c.handleChatMessage(m)
	case NextMsg:
		c.handleNext(m)
	case SessionDisconnectedMsg:
		c.handleSessionDisconnected(m)
	case statsMsg:
		m.reply <- c.stats()
	}
}

func (c *Coordinator) handleConnect(msg ConnectMsg) {
	if msg.Session == nil {
		return
	}
	c.sessions.Register(msg.Session)
	c.logger.Debug("session connected", "session", msg.Session.ID())
}

func (c *Coordinator) handleRegister(msg RegisterMsg) {
	if _, ok := c.sessions.Get(msg.SessionID); !ok {
		c.logger.Debug("register from unknown session", "session", msg.SessionID)
		return
	}

	if err := c.policy.Validate(msg.Identity); err != nil {
		c.emit(msg.SessionID, ErrorEvent{Message: err.Error()})
		return
	}
	attr, err := c.config.Labels.Parse(msg.Attribute)
	if err != nil {
		c.emit(msg.SessionID, ErrorEvent{Message: err.Error()})
		return
	}

	// A live participant registering again starts over on the same connection.
	if _, ok := c.registry.lookup(msg.SessionID); ok {
		c.disconnect(msg.SessionID, EndReasonReregister)
	}

	p := c.registerOrReplace(msg.SessionID, identity.Normalize(msg.Identity), attr)
	c.logger.Info("participant registered", "session", p.ID, "attribute", c.config.Labels.Label(attr))

	c.attemptMatch(p.ID, "")
}

// registerOrReplace evicts any other session holding identity, then installs
// a fresh participant for id. Both happen in the same coordinator step.
func (c *Coordinator) registerOrReplace(id SessionID, normalized string, attr Attribute) *Participant {
	if holder, ok := c.registry.lookupByIdentity(normalized); ok && holder != id {
		c.evict(holder)
	}

	p := &Participant{
		ID:        id,
		Identity:  normalized,
		Attribute: attr,
	}
	c.registry.add(p)
	return p
}

// evict fully disconnects a session whose identity was claimed elsewhere and
// closes its connection.
func (c *Coordinator) evict(id SessionID) {
	c.disconnect(id, EndReasonDisplaced)

	session, ok := c.sessions.Get(id)
	if !ok {
		return
	}
	if c.config.NotifyDisplaced {
		session.Send(DisplacedEvent{})
	}
	session.Close()
	c.sessions.Unregister(id)

	c.logger.Info("evicted displaced session", "session", id)
}

func (c *Coordinator) handleChatMessage(msg ChatMessageMsg) {
	p, ok := c.registry.lookup(msg.SessionID)
	if !ok || !p.Paired() {
		c.logger.Debug("dropped message from unpaired session", "session", msg.SessionID)
		return
	}

	c.emit(p.Partner, ChatMessageEvent{Text: msg.Text})
	if p.conversation != nil {
		p.conversation.messages++
	}
}

func (c *Coordinator) handleNext(msg NextMsg) {
	p, ok := c.registry.lookup(msg.SessionID)
	if !ok || !p.Paired() {
		c.logger.Debug("ignored next from unpaired session", "session", msg.SessionID)
		return
	}

	partnerID, partnerExists := c.unpair(p, EndReasonNext)
	c.attemptMatch(p.ID, partnerID)

	if c.config.RequeuePartner && partnerExists {
		c.attemptMatch(partnerID, p.ID)
	}
}

func (c *Coordinator) handleSessionDisconnected(msg SessionDisconnectedMsg) {
	c.disconnect(msg.SessionID, EndReasonDisconnect)
	c.sessions.Unregister(msg.SessionID)
	c.logger.Debug("session disconnected", "session", msg.SessionID)
}

// disconnect is the single cleanup primitive: it removes the identity
// binding, releases the partner, drops the session from both pools and
// deletes the participant. Unknown sessions are a no-op.
func (c *Coordinator) disconnect(id SessionID, reason EndReason) {
	p, ok := c.registry.lookup(id)
	if !ok {
		return
	}

	c.registry.unbindIdentity(p)
	partnerID, partnerExists := c.unpair(p, reason)
	c.pools.removeAll(id)
	c.registry.remove(id)

	if c.config.RequeuePartner && partnerExists {
		c.attemptMatch(partnerID, "")
	}
}

// emit sends an event to a session if it is still connected.
func (c *Coordinator) emit(id SessionID, evt SessionEvent) {
	if session, ok := c.sessions.Get(id); ok {
		session.Send(evt)
	}
}

// endConversation hands a finished conversation to the saver.
func (c *Coordinator) endConversation(conv *conversation, reason EndReason) {
	if conv == nil {
		return
	}

	duration := c.now().Sub(conv.startedAt)
	c.logger.Info("chat ended", "conversation", conv.id, "reason", reason, "messages", conv.messages)

	if c.saver == nil {
		return
	}
	record := ConversationRecord{
		ConversationID: string(conv.id),
		AttributeA:     c.config.Labels.Label(conv.attrs[0]),
		AttributeB:     c.config.Labels.Label(conv.attrs[1]),
		Messages:       conv.messages,
		EndReason:      reason.String(),
		StartedAt:      conv.startedAt,
		DurationSecs:   int(duration / time.Second),
	}
	// Best effort, never blocks the coordinator.
	go func() {
		if err := c.saver.SaveConversation(record); err != nil {
			c.logger.Warn("could not save conversation", "conversation", record.ConversationID, "error", err)
		}
	}()
}

// stateOf reports where a session is in the protocol state machine.
func (c *Coordinator) stateOf(id SessionID) State {
	p, ok := c.registry.lookup(id)
	switch {
	case !ok:
		return StateUnregistered
	case p.Paired():
		return StatePaired
	default:
		return StateWaiting
	}
}

func (c *Coordinator) stats() Stats {
	s := Stats{
		Online:        c.sessions.Count(),
		Registered:    c.registry.len(),
		WaitingA:      c.pools.a.len(),
		WaitingB:      c.pools.b.len(),
		Conversations: c.started,
	}
	for _, p := range c.registry.participants {
		if p.Paired() {
			s.Paired++
		}
	}
	return s
}

func (c *Coordinator) statsLoop() {
	ticker := time.NewTicker(c.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s := c.Stats()
			c.logger.Info("stats",
				"online", s.Online,
				"registered", s.Registered,
				"waiting_"+c.config.Labels.A, s.WaitingA,
				"waiting_"+c.config.Labels.B, s.WaitingB,
				"paired", s.Paired,
				"conversations", s.Conversations,
			)
		case <-c.done:
			return
		}
	}
}
