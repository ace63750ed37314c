package actor

import (
	"bytes"
	"encoding/gob"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
)

// discoveryMsgKind discriminates the two point-to-point discovery
// messages exchanged beyond the gossiped ANNOUNCE/LEAVE membership
// events: SEARCH and ANSWER.
type discoveryMsgKind uint8

const (
	discoverySearch discoveryMsgKind = iota
	discoveryAnswer
)

// discoveryWireMsg is the gob envelope carried over
// memberlist.Delegate.NotifyMsg / Memberlist.SendReliable.
type discoveryWireMsg struct {
	Kind      discoveryMsgKind
	SearchID  string
	Bare      string
	Found     bool
	FullAID   string
	Container ContainerRef
}

// announceMeta is what this container gossips as its memberlist node
// metadata: its own NetInfo plus the AIDs it currently hosts. ANNOUNCE
// rides memberlist's gossiped node metadata rather than a bespoke
// message type.
type announceMeta struct {
	Container ContainerRef
	AIDs      []string
}

// Discovery maintains this container's LOCAL/REMOTE registry entries by
// participating in a memberlist gossip cluster: a small struct wrapping
// the third-party client with thin gob-encoded wire structs, matching
// remote.go's naming register.
type Discovery struct {
	registry *Registry
	self     ContainerRef
	log      Logger

	ml *memberlist.Memberlist

	mu          sync.Mutex
	pending     map[string]chan *discoveryWireMsg
	researchTTL time.Duration
}

// NewDiscovery starts a memberlist gossip agent bound to
// bindAddr:bindPort, joining any seeds already reachable, and
// announcing self's hosted AIDs (queried live from registry via
// registry.Snapshot) to the cluster.
func NewDiscovery(bindAddr string, bindPort int, self ContainerRef, registry *Registry, seeds []string, log Logger) (*Discovery, error) {
	d := &Discovery{
		registry:    registry,
		self:        self,
		log:         log,
		pending:     make(map[string]chan *discoveryWireMsg),
		researchTTL: 2 * time.Second,
	}
	cfg := memberlist.DefaultLocalConfig()
	cfg.Name = self.ID
	if bindAddr != "" {
		cfg.BindAddr = bindAddr
	}
	if bindPort != 0 {
		cfg.BindPort = bindPort
		cfg.AdvertisePort = bindPort
	}
	cfg.Delegate = &discoveryDelegate{d: d}
	cfg.Events = &discoveryEvents{d: d}

	ml, err := memberlist.Create(cfg)
	if err != nil {
		return nil, err
	}
	d.ml = ml
	if len(seeds) > 0 {
		if _, err := ml.Join(seeds); err != nil {
			log.Warn("discovery join failed", "seeds", seeds, "err", err)
		}
	}
	return d, nil
}

// Stop leaves the cluster and shuts the local gossip agent down.
func (d *Discovery) Stop() error {
	if err := d.ml.Leave(2 * time.Second); err != nil {
		return err
	}
	return d.ml.Shutdown()
}

// SetSeeds joins the given addresses without disturbing existing
// membership.
func (d *Discovery) SetSeeds(seeds []string) error {
	if len(seeds) == 0 {
		return nil
	}
	_, err := d.ml.Join(seeds)
	return err
}

// notifyAnnounce forces an immediate re-gossip of this container's
// current AID snapshot, called after AddActor/RemoveActor so peers pick
// up new hosted actors without waiting for memberlist's own periodic
// push/pull cycle.
func (d *Discovery) notifyAnnounce() {
	d.ml.UpdateNode(time.Second)
}

// search runs the SEARCH/ANSWER exchange: broadcasts a SEARCH for bare
// to every known member, and waits up to researchTTL (an explicit
// research timeout, independent of the caller's own request deadline)
// for a matching ANSWER. Returns ok=false on timeout or when no answer
// resolves the bare id.
func (d *Discovery) search(bare string) (full string, ref ContainerRef, ok bool) {
	searchID := newCorrelationID()
	ch := make(chan *discoveryWireMsg, 1)
	d.mu.Lock()
	d.pending[searchID] = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.pending, searchID)
		d.mu.Unlock()
	}()

	msg := &discoveryWireMsg{Kind: discoverySearch, SearchID: searchID, Bare: bare}
	payload, err := encodeDiscoveryMsg(msg)
	if err != nil {
		return "", ContainerRef{}, false
	}
	for _, m := range d.ml.Members() {
		if m.Name == d.self.ID {
			continue
		}
		_ = d.ml.SendReliable(m, payload)
	}

	timer := time.NewTimer(d.researchTTL)
	defer timer.Stop()
	select {
	case ans := <-ch:
		if ans.Found {
			return ans.FullAID, ans.Container, true
		}
		return "", ContainerRef{}, false
	case <-timer.C:
		return "", ContainerRef{}, false
	}
}

func encodeDiscoveryMsg(m *discoveryWireMsg) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeDiscoveryMsg(b []byte) (*discoveryWireMsg, error) {
	var m discoveryWireMsg
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// discoveryDelegate implements memberlist.Delegate.
type discoveryDelegate struct {
	d *Discovery
}

func (dl *discoveryDelegate) NodeMeta(limit int) []byte {
	meta := announceMeta{Container: dl.d.self, AIDs: dl.d.registry.Snapshot()}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(meta); err != nil {
		return nil
	}
	if buf.Len() > limit {
		dl.d.log.Warn("discovery node metadata truncated", "size", buf.Len(), "limit", limit)
		return buf.Bytes()[:limit]
	}
	return buf.Bytes()
}

func (dl *discoveryDelegate) NotifyMsg(raw []byte) {
	msg, err := decodeDiscoveryMsg(raw)
	if err != nil {
		return
	}
	switch msg.Kind {
	case discoverySearch:
		dl.d.handleSearch(msg)
	case discoveryAnswer:
		dl.d.handleAnswer(msg)
	}
}

func (dl *discoveryDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (dl *discoveryDelegate) LocalState(join bool) []byte                { return nil }
func (dl *discoveryDelegate) MergeRemoteState(buf []byte, join bool)     {}

// handleSearch answers a SEARCH addressed to the whole cluster: if this
// container hosts an AID matching the requested bare role, it sends an
// ANSWER carrying that full AID to every member; only the container
// waiting on that search id acts on it. Non-matches are simply dropped:
// only a positive match gets an ANSWER.
func (d *Discovery) handleSearch(msg *discoveryWireMsg) {
	for _, aid := range d.registry.Snapshot() {
		if BareOf(aid) != msg.Bare {
			continue
		}
		ans := &discoveryWireMsg{Kind: discoveryAnswer, SearchID: msg.SearchID, Found: true, FullAID: aid, Container: d.self}
		payload, err := encodeDiscoveryMsg(ans)
		if err != nil {
			return
		}
		for _, m := range d.ml.Members() {
			_ = d.ml.SendReliable(m, payload)
		}
		return
	}
}

func (d *Discovery) handleAnswer(msg *discoveryWireMsg) {
	d.mu.Lock()
	ch, ok := d.pending[msg.SearchID]
	d.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

// discoveryEvents implements memberlist.EventDelegate: NotifyJoin and
// NotifyUpdate both re-sync a peer's announced AIDs into the registry
// (ANNOUNCE), NotifyLeave tears them all down (LEAVE).
type discoveryEvents struct {
	d *Discovery
}

func (e *discoveryEvents) NotifyJoin(n *memberlist.Node)   { e.d.syncNode(n) }
func (e *discoveryEvents) NotifyUpdate(n *memberlist.Node) { e.d.syncNode(n) }
func (e *discoveryEvents) NotifyLeave(n *memberlist.Node) {
	e.d.registry.RemoveContainer(n.Name)
}

func (d *Discovery) syncNode(n *memberlist.Node) {
	if n.Name == d.self.ID || len(n.Meta) == 0 {
		return
	}
	var meta announceMeta
	if err := gob.NewDecoder(bytes.NewReader(n.Meta)).Decode(&meta); err != nil {
		d.log.Warn("discovery could not decode node metadata", "node", n.Name, "err", err)
		return
	}
	scope := ScopeRemote
	if meta.Container.NetInfo.IP == d.self.NetInfo.IP {
		scope = ScopeLocal
	}
	d.registry.RemoveContainer(n.Name)
	for _, aid := range meta.AIDs {
		d.registry.Add(&actorEntry{id: aid, scope: scope, container: meta.Container})
	}
}
