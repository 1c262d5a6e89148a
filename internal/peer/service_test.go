package peer

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ledgerforge/ledgerforge/internal/block"
	"github.com/ledgerforge/ledgerforge/internal/entry"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChain struct {
	mu sync.Mutex

	chain         []block.Block
	validateBlock bool
	addPeerBlock  bool
	replaceChain  bool

	validateCalls []block.Block
	addedBlocks   []block.Block
	replacedWith  [][]block.Block
	submitted     []entry.Entry
}

func newFakeChain(tipIndex uint64) *fakeChain {
	return &fakeChain{
		chain:         []block.Block{{Index: tipIndex}},
		validateBlock: true,
		addPeerBlock:  true,
		replaceChain:  true,
	}
}

func (f *fakeChain) ValidateBlock(b block.Block) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validateCalls = append(f.validateCalls, b)
	return f.validateBlock, nil
}

func (f *fakeChain) AddPeerBlock(b block.Block) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addedBlocks = append(f.addedBlocks, b)
	return f.addPeerBlock, nil
}

func (f *fakeChain) ReplaceChain(newChain []block.Block) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replacedWith = append(f.replacedWith, newChain)
	return f.replaceChain, nil
}

func (f *fakeChain) Chain() []block.Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]block.Block(nil), f.chain...)
}

func (f *fakeChain) SubmitEntry(e entry.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, e)
	return nil
}

func newTestServer(t *testing.T, chain ChainAPI) (*Service, string) {
	t.Helper()
	svc := NewService(SenderConfig{ID: "server"}, chain, zap.NewNop().Sugar())
	server := httptest.NewServer(http.HandlerFunc(svc.HandleWS))
	t.Cleanup(server.Close)
	return svc, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dialAndHandshake(t *testing.T, url, id string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	hs, err := NewHandshake(SenderConfig{ID: id})
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(hs))

	var reply Envelope
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&reply))
	require.Equal(t, MessageHandshake, reply.Type)
	return ws
}

func TestHandshakeRegistersPeer(t *testing.T) {
	svc, url := newTestServer(t, newFakeChain(0))
	dialAndHandshake(t, url, "client-1")

	require.Eventually(t, func() bool { return svc.PeerCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHandleNewBlockValidExtensionIsAccepted(t *testing.T) {
	chain := newFakeChain(0)
	svc, url := newTestServer(t, chain)
	ws := dialAndHandshake(t, url, "client-1")

	env, err := NewBlockMessage(SenderConfig{ID: "client-1"}, block.Block{Index: 1})
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(env))

	require.Eventually(t, func() bool {
		chain.mu.Lock()
		defer chain.mu.Unlock()
		return len(chain.addedBlocks) == 1
	}, time.Second, 5*time.Millisecond)
	_ = svc
}

func TestHandleNewBlockInvalidIsDroppedLocallyButNotFatal(t *testing.T) {
	chain := newFakeChain(0)
	chain.validateBlock = false
	_, url := newTestServer(t, chain)
	ws := dialAndHandshake(t, url, "client-1")

	env, err := NewBlockMessage(SenderConfig{ID: "client-1"}, block.Block{Index: 1})
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(env))

	require.Eventually(t, func() bool {
		chain.mu.Lock()
		defer chain.mu.Unlock()
		return len(chain.validateCalls) == 1
	}, time.Second, 5*time.Millisecond)

	chain.mu.Lock()
	defer chain.mu.Unlock()
	require.Empty(t, chain.addedBlocks)
}

func TestHandleNewBlockAheadOfTipRequestsFullChain(t *testing.T) {
	chain := newFakeChain(0)
	_, url := newTestServer(t, chain)
	ws := dialAndHandshake(t, url, "client-1")

	env, err := NewBlockMessage(SenderConfig{ID: "client-1"}, block.Block{Index: 5})
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(env))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply Envelope
	require.NoError(t, ws.ReadJSON(&reply))
	require.Equal(t, MessageRequestFullChain, reply.Type)

	chain.mu.Lock()
	defer chain.mu.Unlock()
	require.Empty(t, chain.validateCalls)
}

func TestHandleRequestFullChainRespondsWithChain(t *testing.T) {
	chain := newFakeChain(3)
	_, url := newTestServer(t, chain)
	ws := dialAndHandshake(t, url, "client-1")

	req, err := NewRequestFullChainMessage(SenderConfig{ID: "client-1"})
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(req))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply Envelope
	require.NoError(t, ws.ReadJSON(&reply))
	require.Equal(t, MessageFullChain, reply.Type)

	decoded, err := reply.DecodeChain()
	require.NoError(t, err)
	require.Len(t, decoded, 1)
}

func TestHandleFullChainInvokesReplaceChain(t *testing.T) {
	chain := newFakeChain(0)
	_, url := newTestServer(t, chain)
	ws := dialAndHandshake(t, url, "client-1")

	msg, err := NewFullChainMessage(SenderConfig{ID: "client-1"}, []block.Block{{Index: 0}, {Index: 1}})
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(msg))

	require.Eventually(t, func() bool {
		chain.mu.Lock()
		defer chain.mu.Unlock()
		return len(chain.replacedWith) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHandleNewEntrySubmitsToChain(t *testing.T) {
	chain := newFakeChain(0)
	_, url := newTestServer(t, chain)
	ws := dialAndHandshake(t, url, "client-1")

	e := entry.Entry{EntryID: "e1", From: entry.SenderICO, To: "x", Amount: 1, Type: "crypto", InitiationTimestamp: time.Now().UnixMilli()}
	require.NoError(t, e.Finalize())
	msg, err := NewEntryMessage(SenderConfig{ID: "client-1"}, e)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(msg))

	require.Eventually(t, func() bool {
		chain.mu.Lock()
		defer chain.mu.Unlock()
		return len(chain.submitted) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBroadcastExcludesOriginatingPeer(t *testing.T) {
	chain := newFakeChain(0)
	_, url := newTestServer(t, chain)
	a := dialAndHandshake(t, url, "peer-a")
	b := dialAndHandshake(t, url, "peer-b")

	env, err := NewBlockMessage(SenderConfig{ID: "peer-a"}, block.Block{Index: 1})
	require.NoError(t, err)
	require.NoError(t, a.WriteJSON(env))

	require.NoError(t, b.SetReadDeadline(time.Now().Add(2*time.Second)))
	var forwarded Envelope
	require.NoError(t, b.ReadJSON(&forwarded))
	require.Equal(t, MessageNewBlock, forwarded.Type)
	require.Equal(t, env.MessageID, forwarded.MessageID)

	require.NoError(t, a.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var stray Envelope
	err = a.ReadJSON(&stray)
	require.Error(t, err, "originating peer must not receive its own gossiped message back")
}
