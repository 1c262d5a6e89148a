package peer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ledgerforge/ledgerforge/internal/block"
	"github.com/ledgerforge/ledgerforge/internal/entry"
	"go.uber.org/zap"
)

// ChainAPI is the narrow surface PeerService needs from Blockchain,
// injected per design notes §9 rather than sharing the mutable aggregate.
type ChainAPI interface {
	ValidateBlock(b block.Block) (bool, error)
	AddPeerBlock(b block.Block) (bool, error)
	ReplaceChain(newChain []block.Block) (bool, error)
	Chain() []block.Block
	SubmitEntry(e entry.Entry) error
}

type conn struct {
	ws      *websocket.Conn
	remote  SenderConfig
	writeMu sync.Mutex
}

func (c *conn) send(env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(env)
}

// Service is the WebSocket mesh of §4.7: it accepts inbound connections,
// dials seed peers, performs handshake, deduplicates and forwards gossip,
// and serves full-chain sync.
type Service struct {
	self     SenderConfig
	chain    ChainAPI
	dedup    *Dedup
	upgrader websocket.Upgrader
	log      *zap.SugaredLogger

	mu    sync.Mutex
	peers map[string]*conn
}

// NewService constructs a Service identified by self, backed by chain.
func NewService(self SenderConfig, chain ChainAPI, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		self:  self,
		chain: chain,
		dedup: NewDedup(),
		log:   logger,
		peers: make(map[string]*conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades an inbound HTTP request to a WebSocket connection and
// services it. Wire it to the configured §6.4 port, e.g.
// http.HandleFunc("/", svc.HandleWS).
func (s *Service) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "err", err)
		return
	}
	s.serve(ws)
}

// DialSeeds dials each seed peer URL once at startup (§6.2: "no
// reconnection"), sending our handshake first.
func (s *Service) DialSeeds(seeds []string) {
	for _, addr := range seeds {
		go s.dialSeed(addr)
	}
}

func (s *Service) dialSeed(addr string) {
	ws, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		s.log.Warnw("dial seed peer failed", "addr", addr, "err", err)
		return
	}
	c := &conn{ws: ws}
	hs, err := NewHandshake(s.self)
	if err != nil {
		s.log.Errorw("build handshake failed", "err", err)
		return
	}
	if err := c.send(hs); err != nil {
		s.log.Warnw("send handshake failed", "addr", addr, "err", err)
		return
	}
	s.serve(ws)
}

func (s *Service) serve(ws *websocket.Conn) {
	c := &conn{ws: ws}
	defer s.removeByConn(c)
	defer ws.Close()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			// §7: peer socket errors remove the peer; others unaffected.
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		s.handle(c, env)
	}
}

func (s *Service) handle(c *conn, env Envelope) {
	if env.Type == MessageHandshake {
		s.handleHandshake(c, env)
		return
	}

	// §7: duplicate gossip message silently dropped. Handshakes are
	// exempt (§4.7: "not gossiped").
	if s.dedup.SeenOrRecord(env.MessageID) {
		return
	}

	switch env.Type {
	case MessageNewEntry:
		s.handleNewEntry(env)
	case MessageNewBlock:
		s.handleNewBlock(c, env)
	case MessageRequestFullChain:
		s.handleRequestFullChain(c)
	case MessageFullChain:
		s.handleFullChain(env)
	default:
		s.log.Warnw("unknown message type", "type", env.Type)
	}
}

func (s *Service) handleHandshake(c *conn, env Envelope) {
	c.remote = env.SenderConfig

	s.mu.Lock()
	_, known := s.peers[env.SenderConfig.ID]
	s.peers[env.SenderConfig.ID] = c
	s.mu.Unlock()

	if known {
		return
	}
	reply, err := NewHandshake(s.self)
	if err != nil {
		s.log.Errorw("build handshake reply failed", "err", err)
		return
	}
	if err := c.send(reply); err != nil {
		s.log.Warnw("send handshake reply failed", "err", err)
	}
}

func (s *Service) handleNewEntry(env Envelope) {
	e, err := env.DecodeEntry()
	if err != nil {
		return
	}
	// Malformed entries are dropped by the pool's own validation (§7);
	// the message is still gossiped onward regardless, mirroring the
	// "gossip onward even if locally invalid" rule §4.7.1 specifies for
	// blocks (load-bearing for mesh reachability).
	if err := s.chain.SubmitEntry(e); err != nil {
		s.log.Warnw("submit gossiped entry failed", "err", err)
	}
	s.broadcast(env)
}

func (s *Service) handleNewBlock(c *conn, env Envelope) {
	b, err := env.DecodeBlock()
	if err != nil {
		return
	}

	local := s.chain.Chain()
	tipIndex := local[len(local)-1].Index

	if b.Index > tipIndex+1 {
		// Sender is ahead of us; ask it to catch us up, and keep the
		// block flowing through the mesh (§4.7.1).
		req, err := NewRequestFullChainMessage(s.self)
		if err == nil {
			if err := c.send(req); err != nil {
				s.log.Warnw("send requestFullChain failed", "err", err)
			}
		}
		s.broadcast(env)
		return
	}

	valid, err := s.chain.ValidateBlock(b)
	if err != nil {
		s.log.Warnw("validate peer block failed", "err", err)
	} else if valid {
		if _, err := s.chain.AddPeerBlock(b); err != nil {
			s.log.Warnw("accept peer block failed", "err", err)
		}
	}
	// Invalid or not: gossip onward regardless (§4.7.1, §9).
	s.broadcast(env)
}

func (s *Service) handleRequestFullChain(c *conn) {
	msg, err := NewFullChainMessage(s.self, s.chain.Chain())
	if err != nil {
		s.log.Errorw("build fullChain response failed", "err", err)
		return
	}
	if err := c.send(msg); err != nil {
		s.log.Warnw("send fullChain response failed", "err", err)
	}
}

func (s *Service) handleFullChain(env Envelope) {
	peerChain, err := env.DecodeChain()
	if err != nil {
		return
	}
	if _, err := s.chain.ReplaceChain(peerChain); err != nil {
		s.log.Warnw("replace chain failed", "err", err)
	}
}

// broadcast sends env to every known peer except the one identified by
// env.SenderConfig.ID (§4.7.2).
func (s *Service) broadcast(env Envelope) {
	s.mu.Lock()
	targets := make([]*conn, 0, len(s.peers))
	for id, p := range s.peers {
		if id == env.SenderConfig.ID {
			continue
		}
		targets = append(targets, p)
	}
	s.mu.Unlock()

	for _, p := range targets {
		if err := p.send(env); err != nil {
			s.log.Warnw("broadcast send failed", "peer", p.remote.ID, "err", err)
		}
	}
}

// BroadcastEntry originates a newEntry gossip message for a locally
// submitted entry (§4.8).
func (s *Service) BroadcastEntry(e entry.Entry) error {
	env, err := NewEntryMessage(s.self, e)
	if err != nil {
		return fmt.Errorf("peer: build entry message: %w", err)
	}
	s.broadcast(env)
	return nil
}

// BroadcastBlock originates a newBlock gossip message for a locally mined
// block (§4.8).
func (s *Service) BroadcastBlock(b block.Block) error {
	env, err := NewBlockMessage(s.self, b)
	if err != nil {
		return fmt.Errorf("peer: build block message: %w", err)
	}
	s.broadcast(env)
	return nil
}

func (s *Service) removeByConn(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.peers {
		if p == c {
			delete(s.peers, id)
		}
	}
}

// PeerCount reports the number of connected, handshaken peers.
func (s *Service) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}
