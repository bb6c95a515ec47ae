package matchmaking

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/vovakirdan/tui-campuschat/internal/identity"
)

// recordingSession captures events for synchronous coordinator tests.
type recordingSession struct {
	id     SessionID
	events []SessionEvent
	closed bool
	done   chan struct{}
}

func newRecordingSession(id SessionID) *recordingSession {
	return &recordingSession{id: id, done: make(chan struct{})}
}

func (s *recordingSession) ID() SessionID         { return s.id }
func (s *recordingSession) Done() <-chan struct{} { return s.done }

func (s *recordingSession) Send(evt SessionEvent) {
	if s.closed {
		return
	}
	s.events = append(s.events, evt)
}

func (s *recordingSession) Close() {
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

// last returns the most recent event, or nil.
func (s *recordingSession) last() SessionEvent {
	if len(s.events) == 0 {
		return nil
	}
	return s.events[len(s.events)-1]
}

func (s *recordingSession) reset() {
	s.events = nil
}

func (s *recordingSession) count(match func(SessionEvent) bool) int {
	n := 0
	for _, evt := range s.events {
		if match(evt) {
			n++
		}
	}
	return n
}

func isPartnerLeft(evt SessionEvent) bool {
	_, ok := evt.(PartnerLeftEvent)
	return ok
}

func isChatMessage(evt SessionEvent) bool {
	_, ok := evt.(ChatMessageEvent)
	return ok
}

func newTestCoordinator(t *testing.T, cfg CoordinatorConfig) *Coordinator {
	t.Helper()
	policy, err := identity.NewSuffixPolicy()
	if err != nil {
		t.Fatalf("NewSuffixPolicy() failed: %v", err)
	}
	cfg.StatsInterval = 0
	c := NewCoordinator(cfg, policy, NewSessionRegistry())
	n := 0
	c.newConversationID = func() ConversationID {
		n++
		return ConversationID(fmt.Sprintf("conv-%d", n))
	}
	return c
}

func connect(c *Coordinator, id SessionID) *recordingSession {
	s := newRecordingSession(id)
	c.handleMessage(ConnectMsg{Session: s})
	return s
}

func register(c *Coordinator, id SessionID, email, attr string) {
	c.handleMessage(RegisterMsg{SessionID: id, Identity: email, Attribute: attr})
}

// checkInvariants fails the test on any broken core invariant.
func checkInvariants(t *testing.T, c *Coordinator) {
	t.Helper()

	// Identity index is a bijection onto live participants.
	if len(c.registry.identities) != len(c.registry.participants) {
		t.Fatalf("identity index has %d entries for %d participants",
			len(c.registry.identities), len(c.registry.participants))
	}
	for ident, id := range c.registry.identities {
		p, ok := c.registry.participants[id]
		if !ok {
			t.Fatalf("identity %q bound to missing session %s", ident, id)
		}
		if p.Identity != ident {
			t.Fatalf("identity %q bound to %s which holds %q", ident, id, p.Identity)
		}
	}

	for id, p := range c.registry.participants {
		if p.ID != id {
			t.Fatalf("participant keyed %s has ID %s", id, p.ID)
		}

		// Partner symmetry.
		if p.Paired() {
			q, ok := c.registry.participants[p.Partner]
			if !ok {
				t.Fatalf("%s paired with missing %s", id, p.Partner)
			}
			if q.Partner != id {
				t.Fatalf("asymmetric pairing: %s -> %s but %s -> %q", id, p.Partner, q.ID, q.Partner)
			}
			if p.Attribute == q.Attribute {
				t.Fatalf("%s and %s paired with the same attribute", id, q.ID)
			}
			if p.conversation == nil || p.conversation != q.conversation {
				t.Fatalf("%s and %s do not share a conversation", id, q.ID)
			}
		} else if p.conversation != nil {
			t.Fatalf("unpaired %s still holds a conversation", id)
		}

		// Pool exclusivity.
		inA, inB := c.pools.a.contains(id), c.pools.b.contains(id)
		if inA && inB {
			t.Fatalf("%s is in both pools", id)
		}
		if (inA || inB) && p.Paired() {
			t.Fatalf("%s is queued while paired", id)
		}
		if inA && p.Attribute != AttributeA || inB && p.Attribute != AttributeB {
			t.Fatalf("%s is queued in the wrong pool", id)
		}
	}

	for _, pool := range []*waitingPool{c.pools.a, c.pools.b} {
		seen := make(map[SessionID]bool)
		for _, id := range pool.members {
			if seen[id] {
				t.Fatalf("%s queued twice", id)
			}
			seen[id] = true
			if _, ok := c.registry.participants[id]; !ok {
				t.Fatalf("pool holds unregistered %s", id)
			}
		}
		if len(seen) != len(pool.index) {
			t.Fatalf("pool index out of sync: %d members, %d indexed", len(seen), len(pool.index))
		}
	}
}

func TestRegisterPairsComplementaryAttributes(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	a := connect(c, "h1")
	b := connect(c, "h2")

	register(c, "h1", "a@uni.edu", "male")
	if _, ok := a.last().(WaitingEvent); !ok {
		t.Fatalf("Expected first participant to wait, got %#v", a.last())
	}

	register(c, "h2", "b@uni.edu", "female")
	checkInvariants(t, c)

	startA, ok := a.last().(ChatStartedEvent)
	if !ok {
		t.Fatalf("Expected chatStart for h1, got %#v", a.last())
	}
	startB, ok := b.last().(ChatStartedEvent)
	if !ok {
		t.Fatalf("Expected chatStart for h2, got %#v", b.last())
	}
	if startA.PartnerID != "h2" || startB.PartnerID != "h1" {
		t.Errorf("Partner refs wrong: h1 -> %s, h2 -> %s", startA.PartnerID, startB.PartnerID)
	}
	if startA.ConversationID != startB.ConversationID {
		t.Errorf("Conversation IDs differ: %s vs %s", startA.ConversationID, startB.ConversationID)
	}
	if c.stateOf("h1") != StatePaired || c.stateOf("h2") != StatePaired {
		t.Errorf("Expected both paired, got %v and %v", c.stateOf("h1"), c.stateOf("h2"))
	}
}

func TestRegisterAloneWaits(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	a := connect(c, "h1")

	register(c, "h1", "a@uni.edu", "a")
	checkInvariants(t, c)

	if len(a.events) != 1 {
		t.Fatalf("Expected exactly one event, got %d", len(a.events))
	}
	if _, ok := a.events[0].(WaitingEvent); !ok {
		t.Errorf("Expected waiting, got %#v", a.events[0])
	}
	if c.stateOf("h1") != StateWaiting {
		t.Errorf("Expected waiting state, got %v", c.stateOf("h1"))
	}

	// Another A does not pair with the first.
	connect(c, "h2")
	register(c, "h2", "c@uni.edu", "a")
	checkInvariants(t, c)
	if c.stateOf("h1") != StateWaiting || c.stateOf("h2") != StateWaiting {
		t.Error("Expected same-attribute participants to stay waiting")
	}
}

func TestFIFOFairness(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	for i := 1; i <= 3; i++ {
		id := SessionID(fmt.Sprintf("a%d", i))
		connect(c, id)
		register(c, id, fmt.Sprintf("a%d@uni.edu", i), "a")
	}
	b := connect(c, "b1")
	register(c, "b1", "b1@uni.edu", "b")
	checkInvariants(t, c)

	start, ok := b.last().(ChatStartedEvent)
	if !ok {
		t.Fatalf("Expected chatStart, got %#v", b.last())
	}
	if start.PartnerID != "a1" {
		t.Errorf("Expected earliest waiter a1 to be matched, got %s", start.PartnerID)
	}

	queue := c.pools.a.snapshot()
	if len(queue) != 2 || queue[0] != "a2" || queue[1] != "a3" {
		t.Errorf("Expected remaining queue [a2 a3], got %v", queue)
	}

	connect(c, "b2")
	register(c, "b2", "b2@uni.edu", "b")
	if p, _ := c.registry.lookup("b2"); p.Partner != "a2" {
		t.Errorf("Expected a2 to be matched next, got %q", p.Partner)
	}
}

func TestNextNotifiesPartnerWithoutRequeue(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	p := connect(c, "p")
	q := connect(c, "q")
	register(c, "p", "p@uni.edu", "a")
	register(c, "q", "q@uni.edu", "b")
	p.reset()
	q.reset()

	c.handleMessage(NextMsg{SessionID: "p"})
	checkInvariants(t, c)

	if len(q.events) != 1 || !isPartnerLeft(q.events[0]) {
		t.Fatalf("Expected partner to get exactly partnerLeft, got %#v", q.events)
	}
	if _, ok := p.last().(WaitingEvent); !ok {
		t.Errorf("Expected requester to wait, got %#v", p.last())
	}
	if c.pools.b.contains("q") {
		t.Error("Departed partner must not be re-queued automatically")
	}
	if c.stateOf("q") != StateWaiting {
		t.Errorf("Expected q unpaired, got %v", c.stateOf("q"))
	}

	// A new B arrives and pairs with p, not with the idle q.
	r := connect(c, "r")
	register(c, "r", "r@uni.edu", "b")
	checkInvariants(t, c)
	if start, ok := r.last().(ChatStartedEvent); !ok || start.PartnerID != "p" {
		t.Errorf("Expected r to pair with p, got %#v", r.last())
	}
}

func TestNextRematchesImmediately(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	p := connect(c, "p")
	connect(c, "q")
	connect(c, "r")
	register(c, "p", "p@uni.edu", "a")
	register(c, "q", "q@uni.edu", "b")
	register(c, "r", "r@uni.edu", "b")

	c.handleMessage(NextMsg{SessionID: "p"})
	checkInvariants(t, c)

	if start, ok := p.last().(ChatStartedEvent); !ok || start.PartnerID != "r" {
		t.Errorf("Expected p to pair with waiting r, got %#v", p.last())
	}
}

func TestNextWhileUnpairedIsIgnored(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	a := connect(c, "h1")
	register(c, "h1", "a@uni.edu", "a")
	a.reset()

	c.handleMessage(NextMsg{SessionID: "h1"})
	c.handleMessage(NextMsg{SessionID: "ghost"})
	checkInvariants(t, c)

	if len(a.events) != 0 {
		t.Errorf("Expected no events, got %#v", a.events)
	}
	if queue := c.pools.a.snapshot(); len(queue) != 1 {
		t.Errorf("Expected h1 to stay queued once, got %v", queue)
	}
}

func TestReRegisterEvictsStaleSession(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	old := connect(c, "h1")
	partner := connect(c, "q")
	register(c, "h1", "a@uni.edu", "a")
	register(c, "q", "q@uni.edu", "b")
	old.reset()
	partner.reset()

	fresh := connect(c, "h2")
	register(c, "h2", "A@Uni.Edu", "a")
	checkInvariants(t, c)

	if !old.closed {
		t.Error("Expected stale session to be force-closed")
	}
	if len(old.events) != 0 {
		t.Errorf("Expected no explicit notice to the stale session, got %#v", old.events)
	}
	if _, ok := c.sessions.Get("h1"); ok {
		t.Error("Expected stale session to be unregistered")
	}
	if c.stateOf("h1") != StateUnregistered {
		t.Errorf("Expected stale participant removed, got %v", c.stateOf("h1"))
	}
	if len(partner.events) != 1 || !isPartnerLeft(partner.events[0]) {
		t.Errorf("Expected partner to get partnerLeft, got %#v", partner.events)
	}
	if id, ok := c.registry.lookupByIdentity("a@uni.edu"); !ok || id != "h2" {
		t.Errorf("Expected identity bound to h2, got %q", id)
	}
	// q is idle (not queued), so h2 waits.
	if _, ok := fresh.last().(WaitingEvent); !ok {
		t.Errorf("Expected new session to wait, got %#v", fresh.last())
	}

	// The transport later reports the closed connection; nothing changes.
	c.handleMessage(SessionDisconnectedMsg{SessionID: "h1"})
	checkInvariants(t, c)
	if c.stateOf("h2") != StateWaiting {
		t.Errorf("Late disconnect of evicted session affected h2: %v", c.stateOf("h2"))
	}
}

func TestReRegisterNotifiesDisplacedWhenEnabled(t *testing.T) {
	cfg := DefaultCoordinatorConfig()
	cfg.NotifyDisplaced = true
	c := newTestCoordinator(t, cfg)
	old := connect(c, "h1")
	register(c, "h1", "a@uni.edu", "a")
	old.reset()

	connect(c, "h2")
	register(c, "h2", "a@uni.edu", "a")

	if len(old.events) != 1 {
		t.Fatalf("Expected one event before close, got %#v", old.events)
	}
	if _, ok := old.events[0].(DisplacedEvent); !ok {
		t.Errorf("Expected displaced event, got %#v", old.events[0])
	}
	if !old.closed {
		t.Error("Expected stale session to be closed")
	}
}

func TestReRegisterSameSessionStartsOver(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	p := connect(c, "p")
	q := connect(c, "q")
	register(c, "p", "p@uni.edu", "a")
	register(c, "q", "q@uni.edu", "b")
	p.reset()
	q.reset()

	register(c, "p", "p@uni.edu", "a")
	checkInvariants(t, c)

	if p.closed {
		t.Error("Re-registering on the same connection must not close it")
	}
	if len(q.events) != 1 || !isPartnerLeft(q.events[0]) {
		t.Errorf("Expected partnerLeft for q, got %#v", q.events)
	}
	if _, ok := p.last().(WaitingEvent); !ok {
		t.Errorf("Expected p to wait again, got %#v", p.last())
	}

	// q, idle after its partner left, asks again and is matched with p.
	register(c, "q", "q@uni.edu", "b")
	checkInvariants(t, c)
	if start, ok := q.last().(ChatStartedEvent); !ok || start.PartnerID != "p" {
		t.Errorf("Expected q to pair with p, got %#v", q.last())
	}
}

func TestRegisterWithDifferentIdentityOnSameSession(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	connect(c, "p")
	register(c, "p", "old@uni.edu", "a")
	register(c, "p", "new@uni.edu", "b")
	checkInvariants(t, c)

	if _, ok := c.registry.lookupByIdentity("old@uni.edu"); ok {
		t.Error("Expected old identity binding to be released")
	}
	if c.pools.a.contains("p") || !c.pools.b.contains("p") {
		t.Error("Expected p to move to the B pool")
	}
}

func TestInvalidIdentityIsRejected(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	a := connect(c, "h1")

	register(c, "h1", "a@nonuni.com", "a")
	checkInvariants(t, c)

	errEvt, ok := a.last().(ErrorEvent)
	if !ok {
		t.Fatalf("Expected error event, got %#v", a.last())
	}
	if errEvt.Message == "" {
		t.Error("Expected a user-facing error message")
	}
	if c.registry.len() != 0 || c.pools.a.len() != 0 || c.pools.b.len() != 0 {
		t.Error("Rejected registration must not mutate state")
	}
	if c.stateOf("h1") != StateUnregistered {
		t.Errorf("Expected unregistered, got %v", c.stateOf("h1"))
	}
}

func TestInvalidIdentityKeepsExistingRegistration(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	connect(c, "p")
	connect(c, "q")
	register(c, "p", "p@uni.edu", "a")
	register(c, "q", "q@uni.edu", "b")

	register(c, "p", "p@gmail.com", "a")
	checkInvariants(t, c)

	if c.stateOf("p") != StatePaired {
		t.Errorf("Expected p to remain paired after a rejected re-register, got %v", c.stateOf("p"))
	}
}

func TestUnknownAttributeIsRejected(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	a := connect(c, "h1")

	register(c, "h1", "a@uni.edu", "robot")

	if _, ok := a.last().(ErrorEvent); !ok {
		t.Fatalf("Expected error event, got %#v", a.last())
	}
	if c.registry.len() != 0 {
		t.Error("Expected no participant after bad attribute")
	}
}

func TestRegisterFromUnknownSessionIsIgnored(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	register(c, "ghost", "a@uni.edu", "a")
	if c.registry.len() != 0 {
		t.Error("Expected register without connect to be ignored")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	connect(c, "p")
	q := connect(c, "q")
	register(c, "p", "p@uni.edu", "a")
	register(c, "q", "q@uni.edu", "b")
	q.reset()

	c.handleMessage(SessionDisconnectedMsg{SessionID: "p"})
	checkInvariants(t, c)
	after := c.stats()

	c.handleMessage(SessionDisconnectedMsg{SessionID: "p"})
	checkInvariants(t, c)

	if c.stats() != after {
		t.Errorf("Second disconnect changed state: %+v vs %+v", c.stats(), after)
	}
	if n := q.count(isPartnerLeft); n != 1 {
		t.Errorf("Expected exactly one partnerLeft, got %d", n)
	}
	if _, ok := c.registry.lookupByIdentity("p@uni.edu"); ok {
		t.Error("Expected identity binding removed")
	}
	if c.stateOf("q") != StateWaiting || c.pools.b.contains("q") {
		t.Error("Expected q unpaired and not queued")
	}
}

func TestDisconnectWhileWaitingLeavesPool(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	connect(c, "a1")
	connect(c, "a2")
	register(c, "a1", "a1@uni.edu", "a")
	register(c, "a2", "a2@uni.edu", "a")

	c.handleMessage(SessionDisconnectedMsg{SessionID: "a1"})
	checkInvariants(t, c)

	b := connect(c, "b1")
	register(c, "b1", "b1@uni.edu", "b")
	if start, ok := b.last().(ChatStartedEvent); !ok || start.PartnerID != "a2" {
		t.Errorf("Expected b1 to skip departed a1 and pair with a2, got %#v", b.last())
	}
}

func TestMessageRelayScoping(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	p := connect(c, "p")
	r := connect(c, "r")
	q := connect(c, "q")
	bystander := connect(c, "x")

	register(c, "p", "p@uni.edu", "a")
	register(c, "r", "r@uni.edu", "b")
	register(c, "x", "x@uni.edu", "a")

	c.handleMessage(ChatMessageMsg{SessionID: "p", Text: "hi r"})
	if n := r.count(isChatMessage); n != 1 {
		t.Fatalf("Expected r to receive 1 message, got %d", n)
	}

	// r leaves; p is re-paired with q.
	c.handleMessage(SessionDisconnectedMsg{SessionID: "r"})
	register(c, "q", "q@uni.edu", "b")
	checkInvariants(t, c)
	if pp, _ := c.registry.lookup("q"); pp.Partner != "x" {
		// x was queued first; p is idle after r left.
		t.Fatalf("Expected q to pair with queued x, got %q", pp.Partner)
	}

	// p asks again and waits; q moves on to p via next.
	register(c, "p", "p@uni.edu", "a")
	c.handleMessage(NextMsg{SessionID: "q"})
	checkInvariants(t, c)
	if pp, _ := c.registry.lookup("p"); pp.Partner != "q" {
		t.Fatalf("Expected p paired with q, got %q", pp.Partner)
	}

	r.reset()
	bystander.reset()
	q.reset()
	p.reset()

	c.handleMessage(ChatMessageMsg{SessionID: "p", Text: "hello q"})

	if len(q.events) != 1 {
		t.Fatalf("Expected q to receive exactly one event, got %#v", q.events)
	}
	if msg, ok := q.events[0].(ChatMessageEvent); !ok || msg.Text != "hello q" {
		t.Errorf("Expected verbatim payload, got %#v", q.events[0])
	}
	if len(r.events) != 0 || len(bystander.events) != 0 || len(p.events) != 0 {
		t.Errorf("Message leaked: r=%v x=%v p=%v", r.events, bystander.events, p.events)
	}
}

func TestMessageWhileUnpairedIsIgnored(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	a := connect(c, "a")
	other := connect(c, "b")
	register(c, "a", "a@uni.edu", "a")
	a.reset()

	c.handleMessage(ChatMessageMsg{SessionID: "a", Text: "anyone?"})
	c.handleMessage(ChatMessageMsg{SessionID: "b", Text: "not registered"})
	c.handleMessage(ChatMessageMsg{SessionID: "ghost", Text: "gone"})

	if len(a.events) != 0 || len(other.events) != 0 {
		t.Errorf("Expected no events, got a=%v b=%v", a.events, other.events)
	}
}

func TestStalePoolEntryIsDropped(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	c.pools.a.push("vanished")

	b := connect(c, "b1")
	register(c, "b1", "b@uni.edu", "b")

	if _, ok := b.last().(WaitingEvent); !ok {
		t.Fatalf("Expected waiting after stale entry, got %#v", b.last())
	}
	if c.pools.a.contains("vanished") {
		t.Error("Expected stale entry to be removed, not retried")
	}
	if !c.pools.b.contains("b1") {
		t.Error("Expected requester queued in its own pool")
	}
	checkInvariants(t, c)
}

func TestRequeuePartnerOption(t *testing.T) {
	cfg := DefaultCoordinatorConfig()
	cfg.RequeuePartner = true
	c := newTestCoordinator(t, cfg)
	p := connect(c, "p")
	q := connect(c, "q")
	register(c, "p", "p@uni.edu", "a")
	register(c, "q", "q@uni.edu", "b")
	p.reset()
	q.reset()

	c.handleMessage(NextMsg{SessionID: "p"})
	checkInvariants(t, c)

	if c.stateOf("p") != StateWaiting || c.stateOf("q") != StateWaiting {
		t.Fatalf("Expected separated pair not to rejoin, got p=%v q=%v", c.stateOf("p"), c.stateOf("q"))
	}
	if !c.pools.a.contains("p") || !c.pools.b.contains("q") {
		t.Error("Expected both sides queued")
	}
	if _, ok := q.last().(WaitingEvent); !ok {
		t.Errorf("Expected q to be told to wait, got %#v", q.last())
	}

	// Disconnect also requeues the survivor.
	connect(c, "r")
	register(c, "r", "r@uni.edu", "b") // pairs with p
	c.handleMessage(SessionDisconnectedMsg{SessionID: "r"})
	checkInvariants(t, c)
	if c.stateOf("p") != StatePaired {
		t.Errorf("Expected p to be re-matched with queued q, got %v", c.stateOf("p"))
	}
}

type chanSaver struct {
	records chan ConversationRecord
}

func (s chanSaver) SaveConversation(r ConversationRecord) error {
	s.records <- r
	return nil
}

func TestConversationSaver(t *testing.T) {
	c := newTestCoordinator(t, DefaultCoordinatorConfig())
	saver := chanSaver{records: make(chan ConversationRecord, 4)}
	c.SetConversationSaver(saver)

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := start
	c.now = func() time.Time { return now }

	connect(c, "p")
	connect(c, "q")
	register(c, "p", "p@uni.edu", "a")
	register(c, "q", "q@uni.edu", "b")
	c.handleMessage(ChatMessageMsg{SessionID: "p", Text: "1"})
	c.handleMessage(ChatMessageMsg{SessionID: "q", Text: "2"})
	c.handleMessage(ChatMessageMsg{SessionID: "p", Text: "3"})

	now = start.Add(90 * time.Second)
	c.handleMessage(NextMsg{SessionID: "q"})

	select {
	case rec := <-saver.records:
		if rec.ConversationID != "conv-1" {
			t.Errorf("Expected conv-1, got %s", rec.ConversationID)
		}
		if rec.Messages != 3 {
			t.Errorf("Expected 3 messages, got %d", rec.Messages)
		}
		if rec.EndReason != "next" {
			t.Errorf("Expected reason next, got %s", rec.EndReason)
		}
		if rec.DurationSecs != 90 {
			t.Errorf("Expected 90s, got %d", rec.DurationSecs)
		}
		// q registered second, so it is the requester and listed first.
		if rec.AttributeA != "female" || rec.AttributeB != "male" {
			t.Errorf("Unexpected attribute labels %q/%q", rec.AttributeA, rec.AttributeB)
		}
		if !rec.StartedAt.Equal(start) {
			t.Errorf("Expected start %v, got %v", start, rec.StartedAt)
		}
	case <-time.After(time.Second):
		t.Fatal("Conversation was not saved")
	}
}

func TestRandomChurnKeepsInvariants(t *testing.T) {
	cfg := DefaultCoordinatorConfig()
	for _, requeue := range []bool{false, true} {
		cfg.RequeuePartner = requeue
		c := newTestCoordinator(t, cfg)
		rng := rand.New(rand.NewSource(42))

		const handles = 12
		const identities = 6
		connected := make(map[SessionID]bool)

		for step := 0; step < 3000; step++ {
			id := SessionID(fmt.Sprintf("h%d", rng.Intn(handles)))
			switch op := rng.Intn(6); {
			case !connected[id]:
				connect(c, id)
				connected[id] = true
			case op == 0 || op == 1:
				email := fmt.Sprintf("u%d@uni.edu", rng.Intn(identities))
				attr := []string{"a", "b"}[rng.Intn(2)]
				register(c, id, email, attr)
			case op == 2:
				c.handleMessage(ChatMessageMsg{SessionID: id, Text: "x"})
			case op == 3:
				c.handleMessage(NextMsg{SessionID: id})
			default:
				c.handleMessage(SessionDisconnectedMsg{SessionID: id})
				connected[id] = false
			}
			checkInvariants(t, c)
		}

		// Any session that was evicted is closed and unregistered; reconnect state is consistent.
		for id := range c.registry.participants {
			if _, ok := c.sessions.Get(id); !ok {
				t.Fatalf("participant %s has no addressable session", id)
			}
		}
	}
}

func TestStartStopAndStats(t *testing.T) {
	policy, _ := identity.NewSuffixPolicy()
	cfg := DefaultCoordinatorConfig()
	cfg.StatsInterval = 0
	c := NewCoordinator(cfg, policy, NewSessionRegistry())
	c.Start()
	defer c.Stop()

	a := NewChannelSession("a", 8)
	b := NewChannelSession("b", 8)
	w := NewChannelSession("w", 8)
	c.Send(ConnectMsg{Session: a})
	c.Send(ConnectMsg{Session: b})
	c.Send(ConnectMsg{Session: w})
	c.Send(RegisterMsg{SessionID: "a", Identity: "a@uni.edu", Attribute: "male"})
	c.Send(RegisterMsg{SessionID: "b", Identity: "b@uni.edu", Attribute: "female"})
	c.Send(RegisterMsg{SessionID: "w", Identity: "w@uni.edu", Attribute: "male"})

	s := c.Stats()
	want := Stats{Online: 3, Registered: 3, WaitingA: 1, WaitingB: 0, Paired: 2, Conversations: 1}
	if s != want {
		t.Errorf("Expected stats %+v, got %+v", want, s)
	}

	select {
	case evt := <-a.Events():
		if _, ok := evt.(WaitingEvent); !ok {
			t.Errorf("Expected waiting first, got %#v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("No event delivered")
	}

	c.Stop()
	c.Stop()
	if got := c.Stats(); got != (Stats{}) {
		t.Errorf("Expected zero stats after stop, got %+v", got)
	}
	c.Send(NextMsg{SessionID: "a"}) // must not block
}
