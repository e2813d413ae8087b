package ingester

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/chain"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/registry"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testAddress(n int64) common.Address {
	return common.BigToAddress(big.NewInt(n))
}

func testHash(tag string) common.Hash {
	return common.BytesToHash([]byte(tag))
}

func newTestBlock(height int64, tag string, parent common.Hash, miner common.Address) *model.Block {
	return &model.Block{
		Height:     big.NewInt(height),
		Hash:       testHash(tag),
		ParentHash: parent,
		Timestamp:  time.Unix(1_500_000_000+height*15, 0).UTC(),
		Miner:      miner,
		Difficulty: big.NewInt(131_072),
		GasLimit:   big.NewInt(8_000_000),
		GasUsed:    big.NewInt(0),
		Size:       540,
	}
}

// fakeNode serves a mutable chain the way a node's JSON-RPC API would.
type fakeNode struct {
	mu       sync.Mutex
	syncing  bool
	chain    []*model.Block
	byHash   map[common.Hash]*model.Block
	uncles   map[common.Hash][]model.UncleBlock
	receipts map[common.Hash]model.Receipt
	subs     chan *fakeSubscription
	froms    []*big.Int
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		byHash:   make(map[common.Hash]*model.Block),
		uncles:   make(map[common.Hash][]model.UncleBlock),
		receipts: make(map[common.Hash]model.Receipt),
		subs:     make(chan *fakeSubscription, 8),
	}
}

// serve makes blocks the node's canonical chain at their heights and drops anything above the last one.
func (n *fakeNode) serve(blocks ...*model.Block) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, b := range blocks {
		n.byHash[b.Hash] = b
		h := int(b.Height.Int64())
		for len(n.chain) <= h {
			n.chain = append(n.chain, nil)
		}
		n.chain[h] = b
		n.chain = n.chain[:h+1]
	}
}

// know makes blocks fetchable by hash without changing the canonical chain.
func (n *fakeNode) know(blocks ...*model.Block) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, b := range blocks {
		n.byHash[b.Hash] = b
	}
}

func (n *fakeNode) addTransaction(block *model.Block, tx model.Transaction, receipt *model.Receipt) {
	n.mu.Lock()
	defer n.mu.Unlock()
	tx.Index = uint64(len(block.Transactions))
	block.Transactions = append(block.Transactions, tx)
	if receipt != nil {
		receipt.TxHash = tx.Hash
		n.receipts[tx.Hash] = *receipt
	}
}

func (n *fakeNode) addReceipt(txHash common.Hash, receipt model.Receipt) {
	n.mu.Lock()
	defer n.mu.Unlock()
	receipt.TxHash = txHash
	n.receipts[txHash] = receipt
}

func (n *fakeNode) addUncle(block *model.Block, uncle model.UncleBlock) {
	n.mu.Lock()
	defer n.mu.Unlock()
	uncle.Index = len(block.UncleHashes)
	block.UncleHashes = append(block.UncleHashes, uncle.Hash)
	n.uncles[block.Hash] = append(n.uncles[block.Hash], uncle)
}

func (n *fakeNode) HeadHeight(context.Context) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.chain) == 0 {
		return nil, fmt.Errorf("head: %w", model.ErrNotFound)
	}
	return big.NewInt(int64(len(n.chain) - 1)), nil
}

func (n *fakeNode) IsSyncing(context.Context) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.syncing, nil
}

func (n *fakeNode) BlockByHeight(_ context.Context, height *big.Int) (*model.Block, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !height.IsInt64() || height.Int64() >= int64(len(n.chain)) {
		return nil, fmt.Errorf("block %s: %w", height, model.ErrNotFound)
	}
	return n.chain[height.Int64()], nil
}

func (n *fakeNode) BlockByHash(_ context.Context, hash common.Hash) (*model.Block, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	b, ok := n.byHash[hash]
	if !ok {
		return nil, fmt.Errorf("block %s: %w", hash, model.ErrNotFound)
	}
	return b, nil
}

func (n *fakeNode) UncleByBlockHashAndIndex(_ context.Context, hash common.Hash, index int) (*model.UncleBlock, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	uncles := n.uncles[hash]
	if index >= len(uncles) {
		return nil, fmt.Errorf("uncle %d of %s: %w", index, hash, model.ErrNotFound)
	}
	u := uncles[index]
	return &u, nil
}

func (n *fakeNode) TransactionReceipt(_ context.Context, txHash common.Hash) (*model.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.receipts[txHash]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", txHash, model.ErrNotFound)
	}
	return &r, nil
}

func (n *fakeNode) SubscribeNewBlocks(_ context.Context, from *big.Int) (chain.Subscription, error) {
	sub := &fakeSubscription{
		blocks: make(chan *model.Block, 16),
		errs:   make(chan error, 1),
	}
	n.mu.Lock()
	n.froms = append(n.froms, new(big.Int).Set(from))
	n.mu.Unlock()
	n.subs <- sub
	return sub, nil
}

func (n *fakeNode) subscription(t *testing.T) *fakeSubscription {
	t.Helper()
	select {
	case sub := <-n.subs:
		return sub
	case <-time.After(5 * time.Second):
		t.Fatal("no subscription was opened")
		return nil
	}
}

func (n *fakeNode) subscribedFrom() []*big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*big.Int(nil), n.froms...)
}

type fakeSubscription struct {
	mu     sync.Mutex
	closed bool
	blocks chan *model.Block
	errs   chan error
}

func (s *fakeSubscription) Blocks() <-chan *model.Block { return s.blocks }
func (s *fakeSubscription) Err() <-chan error           { return s.errs }

func (s *fakeSubscription) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.blocks)
	}
}

func (s *fakeSubscription) push(blocks ...*model.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range blocks {
		if !s.closed {
			s.blocks <- b
		}
	}
}

func (s *fakeSubscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.errs <- err
		s.closed = true
		close(s.blocks)
	}
}

type fakeRow struct {
	id      int64
	block   model.Block
	minerID int64
	forked  bool
}

type fakeState struct {
	nextID       int64
	addresses    map[common.Address]model.Address
	blocks       []*fakeRow
	uncles       int
	transactions []chain.TransactionRow
	balances     []model.BalanceSnapshot
}

func (s *fakeState) clone() *fakeState {
	c := &fakeState{
		nextID:       s.nextID,
		addresses:    make(map[common.Address]model.Address, len(s.addresses)),
		blocks:       make([]*fakeRow, 0, len(s.blocks)),
		uncles:       s.uncles,
		transactions: append([]chain.TransactionRow(nil), s.transactions...),
		balances:     append([]model.BalanceSnapshot(nil), s.balances...),
	}
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	for _, row := range s.blocks {
		copied := *row
		c.blocks = append(c.blocks, &copied)
	}
	return c
}

// fakeLedger keeps the ledger tables in memory and enforces the same constraints as the schema.
// Each WithinTx works on a copy that replaces the state only when fn succeeds.
type fakeLedger struct {
	mu    sync.Mutex
	state *fakeState
	txs   int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{state: &fakeState{nextID: 1, addresses: make(map[common.Address]model.Address)}}
}

func (l *fakeLedger) MaxBlockHeight(context.Context) (*big.Int, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var maxHeight *big.Int
	for _, row := range l.state.blocks {
		if !row.forked && (maxHeight == nil || row.block.Height.Cmp(maxHeight) > 0) {
			maxHeight = row.block.Height
		}
	}
	if maxHeight == nil {
		return nil, false, nil
	}
	return new(big.Int).Set(maxHeight), true, nil
}

func (l *fakeLedger) WithinTx(ctx context.Context, fn func(context.Context, chain.LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	work := l.state.clone()
	if err := fn(ctx, &fakeTx{s: work}); err != nil {
		return err
	}
	l.state = work
	l.txs++
	return nil
}

func (l *fakeLedger) canonical(t *testing.T) []model.Block {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	byHeight := make(map[int64]model.Block)
	for _, row := range l.state.blocks {
		if row.forked {
			continue
		}
		h := row.block.Height.Int64()
		_, dup := byHeight[h]
		require.False(t, dup, "two canonical blocks at height %d", h)
		byHeight[h] = row.block
	}
	out := make([]model.Block, 0, len(byHeight))
	for h := int64(0); h < int64(len(byHeight)); h++ {
		b, ok := byHeight[h]
		require.True(t, ok, "canonical chain has a gap at height %d", h)
		if h > 0 {
			require.Equal(t, out[h-1].Hash, b.ParentHash, "canonical block %d does not extend its predecessor", h)
		}
		out = append(out, b)
	}
	return out
}

func (l *fakeLedger) canonicalHashes(t *testing.T) []common.Hash {
	t.Helper()
	blocks := l.canonical(t)
	out := make([]common.Hash, len(blocks))
	for i, b := range blocks {
		out[i] = b.Hash
	}
	return out
}

func (l *fakeLedger) canonicalHashAt(height int64) (common.Hash, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, row := range l.state.blocks {
		if !row.forked && row.block.Height.Int64() == height {
			return row.block.Hash, true
		}
	}
	return common.Hash{}, false
}

func (l *fakeLedger) forkedHashes() []common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []common.Hash
	for _, row := range l.state.blocks {
		if row.forked {
			out = append(out, row.block.Hash)
		}
	}
	return out
}

// balances returns the latest canonical balance of every address that has one.
func (l *fakeLedger) balances() map[common.Address]*big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	heights := make(map[int64]*big.Int)
	for _, row := range l.state.blocks {
		if !row.forked {
			heights[row.id] = row.block.Height
		}
	}
	type latest struct {
		height  *big.Int
		balance *big.Int
	}
	byID := make(map[int64]latest)
	for _, snap := range l.state.balances {
		h, ok := heights[snap.BlockID]
		if !ok {
			continue
		}
		if cur, ok := byID[snap.AddressID]; !ok || h.Cmp(cur.height) > 0 {
			byID[snap.AddressID] = latest{height: h, balance: snap.Balance}
		}
	}
	out := make(map[common.Address]*big.Int)
	for address, a := range l.state.addresses {
		if b, ok := byID[a.ID]; ok {
			out[address] = b.balance
		}
	}
	return out
}

func (l *fakeLedger) balanceOf(address common.Address) *big.Int {
	if b, ok := l.balances()[address]; ok {
		return b
	}
	return new(big.Int)
}

func (l *fakeLedger) supply() *big.Int {
	sum := new(big.Int)
	for _, b := range l.balances() {
		sum.Add(sum, b)
	}
	return sum
}

func (l *fakeLedger) address(address common.Address) (model.Address, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.state.addresses[address]
	return a, ok
}

func (l *fakeLedger) rows() (blocks, transactions, balances, commits int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.state.blocks), len(l.state.transactions), len(l.state.balances), l.txs
}

type fakeTx struct {
	s *fakeState
}

var _ chain.LedgerTx = (*fakeTx)(nil)

func (tx *fakeTx) AddressByHash(_ context.Context, address common.Address) (model.Address, bool, error) {
	a, ok := tx.s.addresses[address]
	return a, ok, nil
}

func (tx *fakeTx) InsertAddress(_ context.Context, address common.Address, kind model.AddressKind) (int64, error) {
	if _, ok := tx.s.addresses[address]; ok {
		return 0, fmt.Errorf("address %s already stored", address)
	}
	id := tx.s.nextID
	tx.s.nextID++
	tx.s.addresses[address] = model.Address{ID: id, Hash: address, Kind: kind}
	return id, nil
}

func (tx *fakeTx) BlocksByHeightAndHash(_ context.Context, height *big.Int, hash common.Hash) ([]model.StoredBlock, error) {
	var out []model.StoredBlock
	for _, row := range tx.s.blocks {
		if row.block.Height.Cmp(height) == 0 && row.block.Hash == hash {
			out = append(out, model.StoredBlock{
				ID:         row.id,
				Height:     new(big.Int).Set(row.block.Height),
				Hash:       row.block.Hash,
				ParentHash: row.block.ParentHash,
				Forked:     row.forked,
			})
		}
	}
	return out, nil
}

func (tx *fakeTx) MarkForkedFrom(_ context.Context, height *big.Int) (int64, error) {
	var n int64
	for _, row := range tx.s.blocks {
		if !row.forked && row.block.Height.Cmp(height) >= 0 {
			row.forked = true
			n++
		}
	}
	return n, nil
}

func (tx *fakeTx) MarkForkedAt(_ context.Context, height *big.Int) (int64, error) {
	var n int64
	for _, row := range tx.s.blocks {
		if !row.forked && row.block.Height.Cmp(height) == 0 {
			row.forked = true
			n++
		}
	}
	return n, nil
}

func (tx *fakeTx) MarkCanonical(_ context.Context, height *big.Int, blockID int64) (int64, error) {
	var n int64
	for _, row := range tx.s.blocks {
		if row.block.Height.Cmp(height) != 0 {
			continue
		}
		switch {
		case row.id == blockID && row.forked:
			row.forked = false
			n++
		case row.id != blockID && !row.forked:
			row.forked = true
			n++
		}
	}
	return n, nil
}

func (tx *fakeTx) InsertBlock(_ context.Context, block model.Block, minerID int64) (int64, error) {
	parentFound := block.Height.Sign() == 0
	for _, row := range tx.s.blocks {
		if row.block.Height.Cmp(block.Height) == 0 && row.block.Hash == block.Hash {
			return 0, fmt.Errorf("block %s already stored: %w", block.Hash, model.ErrIllegalLedgerState)
		}
		if !row.forked && row.block.Height.Cmp(block.Height) == 0 {
			return 0, fmt.Errorf("height %s already has a canonical block: %w", block.Height, model.ErrStorageInconsistency)
		}
		if !row.forked && row.block.Hash == block.ParentHash && new(big.Int).Sub(block.Height, row.block.Height).Cmp(big.NewInt(1)) == 0 {
			parentFound = true
		}
	}
	if !parentFound {
		return 0, fmt.Errorf("block %s has no canonical parent: %w", block.Hash, model.ErrIllegalLedgerState)
	}
	id := tx.s.nextID
	tx.s.nextID++
	tx.s.blocks = append(tx.s.blocks, &fakeRow{id: id, block: block, minerID: minerID})
	return id, nil
}

func (tx *fakeTx) InsertUncle(context.Context, int64, model.UncleBlock, int64) error {
	tx.s.uncles++
	return nil
}

func (tx *fakeTx) InsertTransaction(_ context.Context, row chain.TransactionRow) error {
	if (row.ToID == nil) == (row.ContractID == nil) {
		return fmt.Errorf("transaction %s target: %w", row.Tx.Hash, model.ErrIllegalLedgerState)
	}
	tx.s.transactions = append(tx.s.transactions, row)
	return nil
}

func (tx *fakeTx) LatestBalanceBefore(_ context.Context, addressID int64, height *big.Int) (*big.Int, bool, error) {
	heights := make(map[int64]*big.Int)
	for _, row := range tx.s.blocks {
		if !row.forked && row.block.Height.Cmp(height) < 0 {
			heights[row.id] = row.block.Height
		}
	}
	var (
		best    *big.Int
		balance *big.Int
	)
	for _, snap := range tx.s.balances {
		h, ok := heights[snap.BlockID]
		if !ok || snap.AddressID != addressID {
			continue
		}
		if best == nil || h.Cmp(best) > 0 {
			best, balance = h, snap.Balance
		}
	}
	if balance == nil {
		return nil, false, nil
	}
	return new(big.Int).Set(balance), true, nil
}

func (tx *fakeTx) InsertBalance(_ context.Context, snapshot model.BalanceSnapshot) error {
	if snapshot.Balance == nil || snapshot.Balance.Sign() < 0 {
		return fmt.Errorf("balance %v: %w", snapshot.Balance, model.ErrIllegalLedgerState)
	}
	tx.s.balances = append(tx.s.balances, snapshot)
	return nil
}

type nopLookupMetrics struct{}

func (nopLookupMetrics) ObserveLookup(string) {}

// recordingMetrics counts what the orchestrator reports.
type recordingMetrics struct {
	mu           sync.Mutex
	states       []string
	blocks       map[string]int
	failures     int
	dropped      int
	resubscribes int
	flipped      int64
	backfilled   int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{blocks: make(map[string]int)}
}

func (m *recordingMetrics) ObserveBlock(phase string, err error, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[phase]++
	if err != nil {
		m.failures++
	}
}

func (m *recordingMetrics) ObserveReorg(flipped int64, backfilled int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flipped += flipped
	m.backfilled += backfilled
}

func (m *recordingMetrics) ObserveDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
}

func (m *recordingMetrics) ObserveResubscribe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resubscribes++
}

func (m *recordingMetrics) SetState(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
}

func (m *recordingMetrics) SetHeights(*big.Int, *big.Int) {}

func (m *recordingMetrics) snapshot() recordingMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return recordingMetrics{
		states:       append([]string(nil), m.states...),
		failures:     m.failures,
		dropped:      m.dropped,
		resubscribes: m.resubscribes,
		flipped:      m.flipped,
		backfilled:   m.backfilled,
	}
}

// stateRecorder forwards every state change to a channel.
type stateRecorder struct {
	ch chan State
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{ch: make(chan State, 16)}
}

func (r *stateRecorder) OnStateChange(state State) {
	r.ch <- state
}

func (r *stateRecorder) waitFor(t *testing.T, want State) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-r.ch:
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("state %s was never reached", want)
		}
	}
}

type harness struct {
	t        *testing.T
	ledger   *fakeLedger
	node     *fakeNode
	metrics  *recordingMetrics
	states   *stateRecorder
	sync     *SyncOrchestrator
	done     chan error
}

func newHarness(t *testing.T, ledger *fakeLedger, node *fakeNode, premine map[common.Address]*big.Int) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		ledger:  ledger,
		node:    node,
		metrics: newRecordingMetrics(),
		states:  newStateRecorder(),
	}
	reg, err := registry.NewRegistry(64, nopLookupMetrics{})
	require.NoError(t, err)
	o, err := NewSyncOrchestrator(ledger, node, reg, h.metrics, Options{
		Premine:   premine,
		Listeners: []StateListener{h.states},
	}, model.ETH, model.Mainnet, zap.NewNop())
	require.NoError(t, err)
	o.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	h.sync = o
	return h
}

func (h *harness) start() {
	h.done = make(chan error, 1)
	go func() { h.done <- h.sync.Run(context.Background()) }()
}

func (h *harness) wait() error {
	h.t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(5 * time.Second):
		h.t.Fatal("orchestrator did not return")
		return nil
	}
}

func (h *harness) stop() {
	h.t.Helper()
	h.sync.Stop()
	require.NoError(h.t, h.wait())
	require.Equal(h.t, StateStopped, h.sync.State())
}

func (h *harness) eventuallyCanonical(height int64, hash common.Hash) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		got, ok := h.ledger.canonicalHashAt(height)
		return ok && got == hash
	}, 5*time.Second, 5*time.Millisecond, "block %s never became canonical at %d", hash, height)
}
