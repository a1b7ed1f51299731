package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fanshares/exchange-core/internal/model"
)

// memData is one immutable-once-published version of the store contents.
// Maps hold values, not pointers, so a shallow map copy is a full snapshot.
type memData struct {
	accounts map[string]model.Account
	holdings map[string]model.Holding // userID|assetID
	journal  []model.JournalEntry
	orders   map[string]model.Order
	trades   []model.Trade
	players  map[string]model.Player
	games    map[string]model.Game
	stats    map[string]model.PlayerGameStat // playerID|gameID
	vesting  map[string]model.VestingState
	claims   []model.VestingClaim
	contests map[string]model.Contest
	entries  map[string]model.ContestEntry
	lineups  map[string]model.ContestLineup
}

func newMemData() *memData {
	return &memData{
		accounts: make(map[string]model.Account),
		holdings: make(map[string]model.Holding),
		orders:   make(map[string]model.Order),
		players:  make(map[string]model.Player),
		games:    make(map[string]model.Game),
		stats:    make(map[string]model.PlayerGameStat),
		vesting:  make(map[string]model.VestingState),
		contests: make(map[string]model.Contest),
		entries:  make(map[string]model.ContestEntry),
		lineups:  make(map[string]model.ContestLineup),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies the snapshot. Slices are capped so that appends in the clone
// reallocate instead of writing into the published backing array.
func (d *memData) clone() *memData {
	return &memData{
		accounts: cloneMap(d.accounts),
		holdings: cloneMap(d.holdings),
		journal:  d.journal[:len(d.journal):len(d.journal)],
		orders:   cloneMap(d.orders),
		trades:   d.trades[:len(d.trades):len(d.trades)],
		players:  cloneMap(d.players),
		games:    cloneMap(d.games),
		stats:    cloneMap(d.stats),
		vesting:  cloneMap(d.vesting),
		claims:   d.claims[:len(d.claims):len(d.claims)],
		contests: cloneMap(d.contests),
		entries:  cloneMap(d.entries),
		lineups:  cloneMap(d.lineups),
	}
}

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// Transactions are serialized by a single writer lock and commit by
// swapping in the modified snapshot, so a failed transaction leaves no trace.
type MemoryStore struct {
	txMu sync.Mutex // one writer at a time

	mu   sync.RWMutex // guards data pointer
	data *memData
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

func (s *MemoryStore) snapshot() *memData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// InTx runs fn against a private copy and publishes it on success.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.snapshot().clone()
	if err := fn(&memTx{memReader{work}}); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = work
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// --- Reads outside a transaction see the last committed snapshot ---

func (s *MemoryStore) r() memReader { return memReader{s.snapshot()} }

func (s *MemoryStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	return s.r().GetAccount(ctx, userID)
}

func (s *MemoryStore) GetHolding(ctx context.Context, userID, assetID string) (*model.Holding, error) {
	return s.r().GetHolding(ctx, userID, assetID)
}

func (s *MemoryStore) ListHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	return s.r().ListHoldings(ctx, userID)
}

func (s *MemoryStore) ListJournal(ctx context.Context, userID string) ([]model.JournalEntry, error) {
	return s.r().ListJournal(ctx, userID)
}

func (s *MemoryStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return s.r().GetOrder(ctx, id)
}

func (s *MemoryStore) ListRestingOrders(ctx context.Context) ([]model.Order, error) {
	return s.r().ListRestingOrders(ctx)
}

func (s *MemoryStore) MaxOrderSeq(ctx context.Context) (int64, error) {
	return s.r().MaxOrderSeq(ctx)
}

func (s *MemoryStore) ListTradesByPlayer(ctx context.Context, playerID string, limit int) ([]model.Trade, error) {
	return s.r().ListTradesByPlayer(ctx, playerID, limit)
}

func (s *MemoryStore) GetPlayer(ctx context.Context, id string) (*model.Player, error) {
	return s.r().GetPlayer(ctx, id)
}

func (s *MemoryStore) ListGamesByDate(ctx context.Context, date time.Time) ([]model.Game, error) {
	return s.r().ListGamesByDate(ctx, date)
}

func (s *MemoryStore) SumFantasyPoints(ctx context.Context, playerID string, gameIDs []string) (decimal.Decimal, error) {
	return s.r().SumFantasyPoints(ctx, playerID, gameIDs)
}

func (s *MemoryStore) GetVestingState(ctx context.Context, userID string) (*model.VestingState, error) {
	return s.r().GetVestingState(ctx, userID)
}

func (s *MemoryStore) ListVestingClaims(ctx context.Context, userID string) ([]model.VestingClaim, error) {
	return s.r().ListVestingClaims(ctx, userID)
}

func (s *MemoryStore) GetContest(ctx context.Context, id string) (*model.Contest, error) {
	return s.r().GetContest(ctx, id)
}

func (s *MemoryStore) ListContestsByStatus(ctx context.Context, status model.ContestStatus) ([]model.Contest, error) {
	return s.r().ListContestsByStatus(ctx, status)
}

func (s *MemoryStore) ListEntries(ctx context.Context, contestID string) ([]model.ContestEntry, error) {
	return s.r().ListEntries(ctx, contestID)
}

func (s *MemoryStore) ListLineups(ctx context.Context, contestID string) ([]model.ContestLineup, error) {
	return s.r().ListLineups(ctx, contestID)
}

// memReader reads one snapshot.
type memReader struct {
	d *memData
}

func holdingKey(userID, assetID string) string { return userID + "|" + assetID }

func (r memReader) GetAccount(_ context.Context, userID string) (*model.Account, error) {
	a, ok := r.d.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	return &a, nil
}

func (r memReader) GetHolding(_ context.Context, userID, assetID string) (*model.Holding, error) {
	h, ok := r.d.holdings[holdingKey(userID, assetID)]
	if !ok {
		return nil, fmt.Errorf("holding %s/%s: %w", userID, assetID, ErrNotFound)
	}
	return &h, nil
}

func (r memReader) ListHoldings(_ context.Context, userID string) ([]model.Holding, error) {
	var out []model.Holding
	for _, h := range r.d.holdings {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

func (r memReader) ListJournal(_ context.Context, userID string) ([]model.JournalEntry, error) {
	var out []model.JournalEntry
	for _, e := range r.d.journal {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memReader) GetOrder(_ context.Context, id string) (*model.Order, error) {
	o, ok := r.d.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return &o, nil
}

func (r memReader) ListRestingOrders(_ context.Context) ([]model.Order, error) {
	var out []model.Order
	for _, o := range r.d.orders {
		if o.Type == model.OrderLimit && !o.Status.Terminal() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (r memReader) MaxOrderSeq(_ context.Context) (int64, error) {
	var top int64
	for _, o := range r.d.orders {
		if o.Seq > top {
			top = o.Seq
		}
	}
	return top, nil
}

func (r memReader) ListTradesByPlayer(_ context.Context, playerID string, limit int) ([]model.Trade, error) {
	var out []model.Trade
	for i := len(r.d.trades) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if t := r.d.trades[i]; t.PlayerID == playerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r memReader) GetPlayer(_ context.Context, id string) (*model.Player, error) {
	p, ok := r.d.players[id]
	if !ok {
		return nil, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (r memReader) ListGamesByDate(_ context.Context, date time.Time) ([]model.Game, error) {
	day := model.DateOnly(date)
	var out []model.Game
	for _, g := range r.d.games {
		if model.DateOnly(g.GameDate).Equal(day) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memReader) SumFantasyPoints(_ context.Context, playerID string, gameIDs []string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, gid := range gameIDs {
		if st, ok := r.d.stats[playerID+"|"+gid]; ok {
			total = total.Add(st.FantasyPoints)
		}
	}
	return total, nil
}

func (r memReader) GetVestingState(_ context.Context, userID string) (*model.VestingState, error) {
	v, ok := r.d.vesting[userID]
	if !ok {
		return nil, fmt.Errorf("vesting state %s: %w", userID, ErrNotFound)
	}
	return &v, nil
}

func (r memReader) ListVestingClaims(_ context.Context, userID string) ([]model.VestingClaim, error) {
	var out []model.VestingClaim
	for _, c := range r.d.claims {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r memReader) GetContest(_ context.Context, id string) (*model.Contest, error) {
	c, ok := r.d.contests[id]
	if !ok {
		return nil, fmt.Errorf("contest %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

func (r memReader) ListContestsByStatus(_ context.Context, status model.ContestStatus) ([]model.Contest, error) {
	var out []model.Contest
	for _, c := range r.d.contests {
		if c.Status == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndsAt.Before(out[j].EndsAt) })
	return out, nil
}

func (r memReader) ListEntries(_ context.Context, contestID string) ([]model.ContestEntry, error) {
	var out []model.ContestEntry
	for _, e := range r.d.entries {
		if e.ContestID == contestID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r memReader) ListLineups(_ context.Context, contestID string) ([]model.ContestLineup, error) {
	var out []model.ContestLineup
	for _, l := range r.d.lineups {
		if l.ContestID == contestID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// memTx writes into the transaction's private snapshot.
type memTx struct {
	memReader
}

// LockAccount needs no row lock here: transactions already run one at a
// time. A missing account comes back zero-valued and is not stored.
func (t *memTx) LockAccount(_ context.Context, userID string) (*model.Account, error) {
	a, ok := t.d.accounts[userID]
	if !ok {
		a = model.Account{UserID: userID}
	}
	return &a, nil
}

func (t *memTx) LockHolding(_ context.Context, userID, assetID string, assetType model.AssetType) (*model.Holding, error) {
	h, ok := t.d.holdings[holdingKey(userID, assetID)]
	if !ok {
		h = model.Holding{UserID: userID, AssetID: assetID, AssetType: assetType}
	}
	return &h, nil
}

func (t *memTx) PutAccount(_ context.Context, a *model.Account) error {
	t.d.accounts[a.UserID] = *a
	return nil
}

func (t *memTx) PutHolding(_ context.Context, h *model.Holding) error {
	if h.Quantity < 0 || h.LockedQuantity < 0 || h.LockedQuantity > h.Quantity {
		return fmt.Errorf("holding %s/%s: invalid quantities %d/%d", h.UserID, h.AssetID, h.Quantity, h.LockedQuantity)
	}
	t.d.holdings[holdingKey(h.UserID, h.AssetID)] = *h
	return nil
}

func (t *memTx) InsertJournal(_ context.Context, e *model.JournalEntry) error {
	t.d.journal = append(t.d.journal, *e)
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, o *model.Order) error {
	if _, exists := t.d.orders[o.ID]; exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	t.d.orders[o.ID] = *o
	return nil
}

func (t *memTx) UpdateOrder(_ context.Context, o *model.Order) error {
	cur, ok := t.d.orders[o.ID]
	if !ok {
		return fmt.Errorf("order %s: %w", o.ID, ErrNotFound)
	}
	cur.FilledQuantity = o.FilledQuantity
	cur.Status = o.Status
	cur.UpdatedAt = o.UpdatedAt
	t.d.orders[o.ID] = cur
	return nil
}

func (t *memTx) InsertTrade(_ context.Context, tr *model.Trade) error {
	t.d.trades = append(t.d.trades, *tr)
	return nil
}

func (t *memTx) PutPlayer(_ context.Context, p *model.Player) error {
	t.d.players[p.ID] = *p
	return nil
}

func (t *memTx) UpdatePlayerPrices(_ context.Context, playerID string, lastTrade decimal.Decimal) error {
	p, ok := t.d.players[playerID]
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}
	p.LastTradePrice = lastTrade
	p.CurrentPrice = lastTrade
	t.d.players[playerID] = p
	return nil
}

func (t *memTx) PutGame(_ context.Context, g *model.Game) error {
	t.d.games[g.ID] = *g
	return nil
}

func (t *memTx) PutPlayerGameStat(_ context.Context, st *model.PlayerGameStat) error {
	t.d.stats[st.PlayerID+"|"+st.GameID] = *st
	return nil
}

func (t *memTx) PutVestingState(_ context.Context, v *model.VestingState) error {
	t.d.vesting[v.UserID] = *v
	return nil
}

func (t *memTx) InsertVestingClaim(_ context.Context, c *model.VestingClaim) error {
	cp := *c
	cp.Distribution = append([]model.Allocation(nil), c.Distribution...)
	t.d.claims = append(t.d.claims, cp)
	return nil
}

func (t *memTx) InsertContest(_ context.Context, c *model.Contest) error {
	if _, exists := t.d.contests[c.ID]; exists {
		return fmt.Errorf("contest %s already exists", c.ID)
	}
	t.d.contests[c.ID] = *c
	return nil
}

func (t *memTx) UpdateContest(_ context.Context, c *model.Contest) error {
	cur, ok := t.d.contests[c.ID]
	if !ok {
		return fmt.Errorf("contest %s: %w", c.ID, ErrNotFound)
	}
	cur.Status = c.Status
	cur.EntryCount = c.EntryCount
	cur.SettledAt = c.SettledAt
	t.d.contests[c.ID] = cur
	return nil
}

func (t *memTx) InsertEntry(_ context.Context, e *model.ContestEntry) error {
	t.d.entries[e.ID] = *e
	return nil
}

func (t *memTx) UpdateEntry(_ context.Context, e *model.ContestEntry) error {
	cur, ok := t.d.entries[e.ID]
	if !ok {
		return fmt.Errorf("entry %s: %w", e.ID, ErrNotFound)
	}
	cur.TotalScore = e.TotalScore
	cur.Rank = e.Rank
	cur.Payout = e.Payout
	t.d.entries[e.ID] = cur
	return nil
}

func (t *memTx) InsertLineup(_ context.Context, l *model.ContestLineup) error {
	t.d.lineups[l.ID] = *l
	return nil
}

func (t *memTx) UpdateLineup(_ context.Context, l *model.ContestLineup) error {
	cur, ok := t.d.lineups[l.ID]
	if !ok {
		return fmt.Errorf("lineup %s: %w", l.ID, ErrNotFound)
	}
	cur.FantasyPoints = l.FantasyPoints
	cur.EarnedScore = l.EarnedScore
	t.d.lineups[l.ID] = cur
	return nil
}
