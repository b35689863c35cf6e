// Package trade is the service around the trading core. It owns the
// venue books and the per-wallet states, turns commands into events,
// persists them and fans them out to subscribers.
//
// All monetary values use shopspring/decimal, never float64.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/book"
	"github.com/shokenteam/shoken-core/internal/coreerr"
	"github.com/shokenteam/shoken-core/internal/engine"
	"github.com/shokenteam/shoken-core/internal/market"
	"github.com/shokenteam/shoken-core/internal/matching"
	"github.com/shokenteam/shoken-core/internal/metrics"
	"github.com/shokenteam/shoken-core/internal/model"
	"github.com/shokenteam/shoken-core/internal/order"
	"github.com/shokenteam/shoken-core/internal/portfolio"
	"github.com/shokenteam/shoken-core/internal/position"
	"github.com/shokenteam/shoken-core/internal/publish"
	"github.com/shokenteam/shoken-core/internal/risk"
	"github.com/shokenteam/shoken-core/internal/store"
)

var (
	ErrMarketNotFound = errors.New("trade: market not found")
	ErrMarketExists   = errors.New("trade: market already exists")
	ErrOrderNotFound  = errors.New("trade: order not found")
)

// Options tunes matching and book intake.
type Options struct {
	// FeeBps is the taker fee in basis points of quote.
	FeeBps decimal.Decimal
	// RejectCrossedBooks refuses book snapshots whose best bid is at or
	// above the best ask.
	RejectCrossedBooks bool
	Impact             book.ImpactOptions
}

// Service serializes every command under one mutex (single instance).
// A command reduces its events into a scratch copy of the wallet state,
// appends them to the store, and only then installs the new state and book.
type Service struct {
	store     store.Store
	limiter   *risk.ExposureLimiter
	publisher publish.Publisher
	wsHub     *WSHub // optional WebSocket hub for real-time broadcasts
	opts      Options

	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	markets map[string]model.Market
	books   map[string]book.Book // venue liquidity only
	wallets map[string]engine.State
	resting map[restingKey]restingOrder
}

// restingOrder is a GTC remainder posted by a wallet. Remainders are shown
// in the book but never matched by takers here; they shrink only through
// venue-reported fills and cancels.
type restingKey struct {
	wallet, orderID string
}

type restingOrder struct {
	marketID string
	side     book.Side
	price    decimal.Decimal
	size     decimal.Decimal
}

// NewService creates a trade service. limiter, pub and hub may be nil.
// pub is called while commands hold the service lock, so a publisher that
// talks to a broker should be wrapped in publish.Async.
func NewService(st store.Store, limiter *risk.ExposureLimiter, pub publish.Publisher, hub *WSHub, opts Options) *Service {
	if pub == nil {
		pub = publish.Nop{}
	}
	return &Service{
		store:     st,
		limiter:   limiter,
		publisher: pub,
		wsHub:     hub,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		markets:   make(map[string]model.Market),
		books:     make(map[string]book.Book),
		wallets:   make(map[string]engine.State),
		resting:   make(map[restingKey]restingOrder),
	}
}

// PlaceResult is the outcome of one order placement.
type PlaceResult struct {
	Order model.OrderState
	Fills []model.Fill
	// Canceled is the quantity dropped by IOC or MARKET orders.
	Canceled decimal.Decimal
	Position *model.PerpPosition
}

// --- Markets ---

// RegisterMarket validates and stores a new market. An empty status means
// ACTIVE.
func (s *Service) RegisterMarket(ctx context.Context, m model.Market) (model.Market, error) {
	if m.Status == "" {
		m.Status = model.StatusActive
	}
	if err := market.Validate(m); err != nil {
		return model.Market{}, err
	}
	if err := validStatus(m.Status); err != nil {
		return model.Market{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; ok {
		return model.Market{}, fmt.Errorf("%w: %s", ErrMarketExists, m.ID)
	}
	if err := s.store.SaveMarket(ctx, &m); err != nil {
		return model.Market{}, fmt.Errorf("save market %s: %w", m.ID, err)
	}
	s.markets[m.ID] = m
	s.refreshActiveMarkets()

	slog.Info("market registered",
		"id", m.ID,
		"type", m.Type,
		"symbol", m.Symbol,
		"tick", m.TickSize.String(),
		"lot", m.LotSize.String(),
	)
	return m, nil
}

// SetMarketStatus halts, reopens or closes a market.
func (s *Service) SetMarketStatus(ctx context.Context, marketID string, status model.MarketStatus) (model.Market, error) {
	if err := validStatus(status); err != nil {
		return model.Market{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.market(marketID)
	if err != nil {
		return model.Market{}, err
	}
	if m.ResolvedAs != "" && status != model.StatusClosed {
		return model.Market{}, coreerr.New(coreerr.CodeValidation, "resolved market cannot reopen",
			"marketId", marketID, "status", string(status))
	}
	m.Status = status
	if err := s.store.SaveMarket(ctx, &m); err != nil {
		return model.Market{}, fmt.Errorf("save market %s: %w", m.ID, err)
	}
	s.markets[m.ID] = m
	s.refreshActiveMarkets()

	slog.Info("market status changed", "id", m.ID, "status", status)
	return m, nil
}

// Market returns a registered market.
func (s *Service) Market(marketID string) (model.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.market(marketID)
}

// Markets returns every registered market ordered by id.
func (s *Service) Markets() []model.Market {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Market, 0, len(s.markets))
	for _, id := range slices.Sorted(maps.Keys(s.markets)) {
		out = append(out, s.markets[id])
	}
	return out
}

// --- Books ---

// LoadBook replaces the venue snapshot for marketID. Wallet remainders
// resting in the market stay on top of the new snapshot.
func (s *Service) LoadBook(marketID string, bids, asks []book.Level, ts time.Time) (book.Book, error) {
	if ts.IsZero() {
		ts = s.now()
	}
	b := book.Normalize(bids, asks, ts)
	if s.opts.RejectCrossedBooks {
		if err := book.RequireUncrossed(b); err != nil {
			return book.Book{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.market(marketID); err != nil {
		return book.Book{}, err
	}
	s.books[marketID] = b
	if b.Crossed() {
		slog.Warn("crossed book loaded", "market", marketID)
	}
	shown := s.displayBook(marketID)
	s.broadcastTop(marketID, shown)
	return shown, nil
}

// Book returns a copy of the current book for marketID, venue levels plus
// resting wallet remainders. A market without a snapshot has an empty book.
func (s *Service) Book(marketID string) (book.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.market(marketID); err != nil {
		return book.Book{}, err
	}
	return s.displayBook(marketID), nil
}

// --- Orders ---

// PlaceOrder validates o, matches it against the market's book and records
// the resulting events for wallet. An empty order id is assigned.
func (s *Service) PlaceOrder(ctx context.Context, wallet string, o model.Order) (PlaceResult, error) {
	start := time.Now()
	if err := requireWallet(wallet); err != nil {
		return PlaceResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.placeOrder(ctx, wallet, o)
	if err != nil {
		metrics.OrderRejections.WithLabelValues(rejectLabel(err)).Inc()
		return PlaceResult{}, err
	}
	metrics.MatchLatency.WithLabelValues(string(o.Side)).Observe(time.Since(start).Seconds())
	return res, nil
}

func (s *Service) placeOrder(ctx context.Context, wallet string, o model.Order) (PlaceResult, error) {
	m, err := s.market(o.MarketID)
	if err != nil {
		return PlaceResult{}, err
	}
	now := s.now()
	if o.ID == "" {
		o.ID = s.newID()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}

	if err := market.AssertActive(m); err != nil {
		return PlaceResult{}, err
	}
	if err := order.Validate(o, m); err != nil {
		return PlaceResult{}, err
	}

	st := s.walletState(wallet)
	if _, dup := st.Orders[o.ID]; dup {
		return PlaceResult{}, coreerr.New(coreerr.CodeInvalidOrder, "duplicate order id", "orderId", o.ID)
	}

	b := s.books[m.ID]
	if err := checkOrderFlags(o, b, st); err != nil {
		return PlaceResult{}, err
	}
	if err := s.checkExposure(st, o.MarketID, o.Side, o.Quantity, referencePrice(o, b)); err != nil {
		return PlaceResult{}, err
	}

	res, err := matching.Match(o, b, now, s.opts.FeeBps)
	if err != nil {
		return PlaceResult{}, err
	}

	events := make([]engine.Event, 0, len(res.Fills)+2)
	events = append(events, engine.OrderPlaced{Order: o})
	for _, f := range res.Fills {
		events = append(events, engine.OrderFilled{Fill: f})
	}
	if res.RemainingQty.IsPositive() {
		events = append(events, engine.OrderCanceled{OrderID: o.ID, At: now})
	}

	next, err := s.commit(ctx, wallet, events)
	if err != nil {
		return PlaceResult{}, err
	}

	// The venue keeps only what was taken from it; a rested remainder moves
	// to the wallet overlay.
	venue := res.NextBook
	os := next.Orders[o.ID]
	if o.Type == model.LimitOrder && o.TimeInForce == model.GTC && !os.Terminal() {
		r := restingOrder{marketID: m.ID, side: book.Bids, price: o.Price.Decimal, size: os.Remaining()}
		if o.Side == model.Sell {
			r.side = book.Asks
		}
		venue = venue.WithSide(r.side, book.RemoveLevelSize(venue.Levels(r.side), r.price, r.size))
		s.resting[restingKey{wallet, o.ID}] = r
	}
	s.books[m.ID] = venue

	metrics.OrdersTotal.WithLabelValues(string(o.Side), string(o.Type), string(o.TimeInForce)).Inc()
	for _, f := range res.Fills {
		s.recordFillMetrics(f)
		s.broadcastFill(wallet, f)
	}
	s.broadcastTop(m.ID, s.displayBook(m.ID))

	slog.Info("order placed",
		"wallet", wallet,
		"order_id", o.ID,
		"market", m.ID,
		"side", o.Side,
		"type", o.Type,
		"tif", o.TimeInForce,
		"qty", o.Quantity.String(),
		"filled", res.FilledQty().String(),
		"fills", len(res.Fills),
		"status", os.Status,
	)

	out := PlaceResult{Order: os, Fills: res.Fills, Canceled: res.RemainingQty}
	if pos, ok := next.Perps[m.ID]; ok {
		out.Position = &pos
	}
	return out, nil
}

// CancelOrder cancels an order of wallet. Canceling a canceled order is a
// no-op; canceling a filled one is an error.
func (s *Service) CancelOrder(ctx context.Context, wallet, orderID string) (model.OrderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.walletState(wallet)
	prev, ok := st.Orders[orderID]
	if !ok {
		return model.OrderState{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if prev.Status == model.OrderCanceled {
		return prev, nil
	}

	next, err := s.commit(ctx, wallet, []engine.Event{engine.OrderCanceled{OrderID: orderID, At: s.now()}})
	if err != nil {
		return model.OrderState{}, err
	}
	s.releaseResting(wallet, orderID, prev.Remaining())

	slog.Info("order canceled", "wallet", wallet, "order_id", orderID, "remaining", prev.Remaining().String())
	return next.Orders[orderID], nil
}

// RecordFill applies a venue-reported fill to a tracked order of wallet.
// Missing id, timestamp and quote are derived.
func (s *Service) RecordFill(ctx context.Context, wallet string, f model.Fill) (model.OrderState, model.PerpPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.walletState(wallet)
	os, ok := st.Orders[f.OrderID]
	if !ok {
		return model.OrderState{}, model.PerpPosition{}, fmt.Errorf("%w: %s", ErrOrderNotFound, f.OrderID)
	}
	if f.ID == "" {
		f.ID = s.newID()
	}
	if f.MarketID == "" {
		f.MarketID = os.Order.MarketID
	}
	if f.Side == "" {
		f.Side = os.Order.Side
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = s.now()
	}
	if f.Quote.IsZero() {
		f.Quote = f.Price.Mul(f.Quantity)
	}

	next, err := s.commit(ctx, wallet, []engine.Event{engine.OrderFilled{Fill: f}})
	if err != nil {
		return model.OrderState{}, model.PerpPosition{}, err
	}
	s.releaseResting(wallet, f.OrderID, f.Quantity)

	s.recordFillMetrics(f)
	s.broadcastFill(wallet, f)
	return next.Orders[f.OrderID], next.Perps[f.MarketID], nil
}

// UpdateMark sets the mark price of marketID on every wallet holding a
// position there and returns how many were updated.
func (s *Service) UpdateMark(ctx context.Context, marketID string, price decimal.Decimal) (int, error) {
	if !price.IsPositive() {
		return 0, coreerr.New(coreerr.CodeInvalidPrice, "markPrice must be > 0",
			"marketId", marketID, "markPrice", price.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.market(marketID); err != nil {
		return 0, err
	}
	holders := s.holders(func(st engine.State) bool {
		_, ok := st.Perps[marketID]
		return ok
	})
	ev := engine.MarkPriceUpdated{MarketID: marketID, MarkPrice: price, At: s.now()}
	for _, w := range holders {
		if _, err := s.commit(ctx, w, []engine.Event{ev}); err != nil {
			return 0, err
		}
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: "mark", MarketID: marketID, Price: price.String()})
	}
	slog.Debug("mark updated", "market", marketID, "price", price.String(), "wallets", len(holders))
	return len(holders), nil
}

// --- Prediction markets ---

// RecordPredictionFill adds shares of one outcome to wallet's position.
func (s *Service) RecordPredictionFill(ctx context.Context, wallet string, f engine.PredictionFilled) (model.PredictionPosition, error) {
	if err := requireWallet(wallet); err != nil {
		return model.PredictionPosition{}, err
	}
	if !f.Outcome.Valid() {
		return model.PredictionPosition{}, coreerr.New(coreerr.CodeValidation, "outcome must be YES or NO",
			"outcome", string(f.Outcome))
	}
	if err := position.AssertProbability(f.Price); err != nil {
		return model.PredictionPosition{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.predictionMarket(f.MarketID)
	if err != nil {
		return model.PredictionPosition{}, err
	}
	if err := market.AssertActive(m); err != nil {
		return model.PredictionPosition{}, err
	}
	if f.At.IsZero() {
		f.At = s.now()
	}

	st := s.walletState(wallet)
	if err := s.checkExposure(st, f.MarketID, model.Buy, f.Shares, decimal.NewNullDecimal(f.Price)); err != nil {
		return model.PredictionPosition{}, err
	}

	next, err := s.commit(ctx, wallet, []engine.Event{f})
	if err != nil {
		return model.PredictionPosition{}, err
	}
	metrics.PredictionFillsTotal.WithLabelValues(f.MarketID, string(f.Outcome)).Inc()

	slog.Info("prediction fill",
		"wallet", wallet,
		"market", f.MarketID,
		"outcome", f.Outcome,
		"price", f.Price.String(),
		"shares", f.Shares.String(),
	)
	return next.Predictions[model.PredictionKey{MarketID: f.MarketID, Outcome: f.Outcome}], nil
}

// UpdatePredictionPrice sets the last price of one outcome on every wallet
// holding it unresolved.
func (s *Service) UpdatePredictionPrice(ctx context.Context, marketID string, outcome model.Outcome, price decimal.Decimal) (int, error) {
	if !outcome.Valid() {
		return 0, coreerr.New(coreerr.CodeValidation, "outcome must be YES or NO", "outcome", string(outcome))
	}
	if err := position.AssertProbability(price); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.predictionMarket(marketID); err != nil {
		return 0, err
	}
	key := model.PredictionKey{MarketID: marketID, Outcome: outcome}
	holders := s.holders(func(st engine.State) bool {
		pos, ok := st.Predictions[key]
		return ok && pos.ResolvedAs == ""
	})
	ev := engine.PredictionPriceUpdated{MarketID: marketID, Outcome: outcome, Price: price, At: s.now()}
	for _, w := range holders {
		if _, err := s.commit(ctx, w, []engine.Event{ev}); err != nil {
			return 0, err
		}
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "prediction_price",
			MarketID: marketID,
			Outcome:  string(outcome),
			Price:    price.String(),
		})
	}
	return len(holders), nil
}

// ResolveMarket settles every position in a prediction market, records the
// outcome on the market and closes it. It returns the number of wallets
// settled. Resolving again with the same outcome settles nothing; a
// different outcome is rejected.
func (s *Service) ResolveMarket(ctx context.Context, marketID string, outcome model.Outcome) (int, error) {
	if !outcome.Valid() {
		return 0, coreerr.New(coreerr.CodeValidation, "resolved outcome must be YES or NO",
			"marketId", marketID, "outcome", string(outcome))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.predictionMarket(marketID)
	if err != nil {
		return 0, err
	}
	if m.ResolvedAs != "" {
		if m.ResolvedAs != outcome {
			return 0, coreerr.New(coreerr.CodeValidation, "market already resolved",
				"marketId", marketID, "resolvedAs", string(m.ResolvedAs), "outcome", string(outcome))
		}
		return 0, nil
	}
	holders := s.holders(func(st engine.State) bool {
		for _, o := range []model.Outcome{model.Yes, model.No} {
			if _, ok := st.Predictions[model.PredictionKey{MarketID: marketID, Outcome: o}]; ok {
				return true
			}
		}
		return false
	})
	ev := engine.PredictionMarketResolved{MarketID: marketID, Outcome: outcome, At: s.now()}
	for _, w := range holders {
		if _, err := s.commit(ctx, w, []engine.Event{ev}); err != nil {
			return 0, err
		}
	}

	m.Status = model.StatusClosed
	m.ResolvedAs = outcome
	if err := s.store.SaveMarket(ctx, &m); err != nil {
		return 0, fmt.Errorf("save market %s: %w", m.ID, err)
	}
	s.markets[m.ID] = m
	s.refreshActiveMarkets()

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: "resolved", MarketID: marketID, Outcome: string(outcome)})
	}
	slog.Info("market resolved", "market", marketID, "outcome", outcome, "wallets", len(holders))
	return len(holders), nil
}

// --- Wallets ---

// Wallet returns the current state of wallet. Unknown wallets are empty.
func (s *Service) Wallet(wallet string) engine.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walletState(wallet)
}

// Portfolio summarizes wallet.
func (s *Service) Portfolio(wallet string) portfolio.Summary {
	return portfolio.Summarize(s.Wallet(wallet))
}

// Events returns wallet's persisted log after afterSeq.
func (s *Service) Events(ctx context.Context, wallet string, afterSeq uint64) ([]store.Record, error) {
	return s.store.Events(ctx, wallet, afterSeq)
}

// Recover loads markets and rebuilds every wallet by replaying its log.
// Venue books start empty; open GTC limit orders rest again.
func (s *Service) Recover(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	markets, err := s.store.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("list markets: %w", err)
	}
	for _, m := range markets {
		s.markets[m.ID] = m
	}

	wallets, err := s.store.Wallets(ctx)
	if err != nil {
		return fmt.Errorf("list wallets: %w", err)
	}
	events := 0
	for _, w := range wallets {
		recs, err := s.store.Events(ctx, w, 0)
		if err != nil {
			return fmt.Errorf("load events for %s: %w", w, err)
		}
		envs, err := store.Envelopes(recs)
		if err != nil {
			return fmt.Errorf("decode events for %s: %w", w, err)
		}
		st, err := engine.Replay(w, envs)
		if err != nil {
			return fmt.Errorf("replay %s: %w", w, err)
		}
		s.wallets[w] = st
		s.restoreResting(st)
		events += len(recs)
	}
	s.refreshActiveMarkets()

	slog.Info("state recovered", "markets", len(markets), "wallets", len(wallets), "events", events)
	return nil
}

// --- Internals (callers hold s.mu) ---

// commit reduces events into a scratch copy of wallet's state, appends them
// to the store and then installs the result. On any error nothing changes.
func (s *Service) commit(ctx context.Context, wallet string, events []engine.Event) (engine.State, error) {
	cur := s.walletState(wallet)
	next := cur
	recs := make([]store.Record, 0, len(events))
	for _, ev := range events {
		env := engine.Envelope{Seq: next.LastSeq + 1, Event: ev}
		applied, err := engine.Apply(next, env)
		if err != nil {
			return cur, err
		}
		rec, err := store.FromEnvelope(s.newID(), wallet, env)
		if err != nil {
			return cur, err
		}
		next = applied
		recs = append(recs, rec)
	}

	if err := s.store.Append(ctx, wallet, recs); err != nil {
		metrics.StoreErrors.Inc()
		return cur, fmt.Errorf("append events for %s: %w", wallet, err)
	}
	s.wallets[wallet] = next
	for _, r := range recs {
		metrics.EventsAppended.WithLabelValues(r.Kind).Inc()
	}

	if err := s.publisher.Publish(ctx, wallet, recs); err != nil {
		metrics.PublishErrors.Inc()
		slog.Warn("event publish failed", "wallet", wallet, "events", len(recs), "err", err)
	}
	return next, nil
}

func (s *Service) walletState(wallet string) engine.State {
	if st, ok := s.wallets[wallet]; ok {
		return st
	}
	return engine.NewState(wallet)
}

// holders returns the wallets matching keep, in lexical order.
func (s *Service) holders(keep func(engine.State) bool) []string {
	var out []string
	for _, w := range slices.Sorted(maps.Keys(s.wallets)) {
		if keep(s.wallets[w]) {
			out = append(out, w)
		}
	}
	return out
}

func (s *Service) market(id string) (model.Market, error) {
	m, ok := s.markets[id]
	if !ok {
		return model.Market{}, fmt.Errorf("%w: %s", ErrMarketNotFound, id)
	}
	return m, nil
}

func (s *Service) predictionMarket(id string) (model.Market, error) {
	m, err := s.market(id)
	if err != nil {
		return model.Market{}, err
	}
	if m.Type != model.MarketPrediction {
		return model.Market{}, coreerr.New(coreerr.CodeValidation, "not a prediction market",
			"marketId", id, "type", string(m.Type))
	}
	return m, nil
}

// releaseResting takes qty off a wallet's resting remainder.
func (s *Service) releaseResting(wallet, orderID string, qty decimal.Decimal) {
	key := restingKey{wallet, orderID}
	r, ok := s.resting[key]
	if !ok {
		return
	}
	r.size = r.size.Sub(qty)
	if st := s.wallets[wallet]; st.Orders[orderID].Terminal() || r.size.LessThanOrEqual(model.LevelEpsilon) {
		delete(s.resting, key)
	} else {
		s.resting[key] = r
	}
	s.broadcastTop(r.marketID, s.displayBook(r.marketID))
}

// restoreResting puts the open GTC limit orders of st back on the overlay.
func (s *Service) restoreResting(st engine.State) {
	for _, id := range st.OrderIDs() {
		os := st.Orders[id]
		o := os.Order
		if o.Type != model.LimitOrder || o.TimeInForce != model.GTC || os.Terminal() {
			continue
		}
		r := restingOrder{marketID: o.MarketID, side: book.Bids, price: o.Price.Decimal, size: os.Remaining()}
		if o.Side == model.Sell {
			r.side = book.Asks
		}
		s.resting[restingKey{st.WalletAddress, id}] = r
	}
}

// displayBook is the venue book of marketID with resting wallet remainders
// merged into its levels.
func (s *Service) displayBook(marketID string) book.Book {
	b := s.books[marketID].Clone()
	for _, r := range s.resting {
		if r.marketID != marketID {
			continue
		}
		b = b.WithSide(r.side, book.InsertLevel(b.Levels(r.side), book.Level{Price: r.price, Size: r.size}, r.side))
	}
	return b
}

// checkExposure runs the limiter for a trade of qty at ref. Trades without
// a reference price (market orders on an empty side) are not checked.
func (s *Service) checkExposure(st engine.State, marketID string, side model.Side, qty decimal.Decimal, ref decimal.NullDecimal) error {
	if s.limiter == nil || !ref.Valid {
		return nil
	}
	delta := qty.Mul(ref.Decimal)
	if side == model.Sell {
		delta = delta.Neg()
	}
	err := s.limiter.CheckLimit(marketID, delta, risk.Exposures(st))
	if err != nil {
		label := "per_market"
		if errors.Is(err, risk.ErrCorrelatedLimitExceeded) {
			label = "correlated"
		}
		metrics.LimitRejections.WithLabelValues(label).Inc()
	}
	return err
}

func (s *Service) refreshActiveMarkets() {
	n := 0
	for _, m := range s.markets {
		if m.Status == model.StatusActive {
			n++
		}
	}
	metrics.ActiveMarkets.Set(float64(n))
}

func (s *Service) recordFillMetrics(f model.Fill) {
	qty, _ := f.Quantity.Float64()
	metrics.FillsTotal.WithLabelValues(f.MarketID, string(f.Side)).Inc()
	metrics.MarketVolume.WithLabelValues(f.MarketID, string(f.Side)).Add(qty)
}

func (s *Service) broadcastFill(wallet string, f model.Fill) {
	if s.wsHub == nil {
		return
	}
	s.wsHub.Broadcast(WSMessage{
		Type:     "fill",
		MarketID: f.MarketID,
		Wallet:   wallet,
		OrderID:  f.OrderID,
		Side:     string(f.Side),
		Price:    f.Price.String(),
		Quantity: f.Quantity.String(),
	})
}

func (s *Service) broadcastTop(marketID string, b book.Book) {
	if s.wsHub == nil {
		return
	}
	top := book.Top(b)
	msg := WSMessage{Type: "book", MarketID: marketID}
	if top.BestBid != nil {
		msg.BestBid = top.BestBid.Price.String()
	}
	if top.BestAsk != nil {
		msg.BestAsk = top.BestAsk.Price.String()
	}
	s.wsHub.Broadcast(msg)
}

// referencePrice is the price used for the exposure check: the limit price,
// or the best opposite level for market orders.
func referencePrice(o model.Order, b book.Book) decimal.NullDecimal {
	if o.Type == model.LimitOrder {
		return o.Price
	}
	top := book.Top(b)
	best := top.BestAsk
	if o.Side == model.Sell {
		best = top.BestBid
	}
	if best == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(best.Price)
}

// checkOrderFlags enforces post-only against the book and reduce-only
// against the wallet's perp position.
func checkOrderFlags(o model.Order, b book.Book, st engine.State) error {
	if o.PostOnly {
		if o.Type != model.LimitOrder || o.TimeInForce != model.GTC {
			return coreerr.New(coreerr.CodeInvalidOrder, "post-only requires a GTC LIMIT order", "orderId", o.ID)
		}
		top := book.Top(b)
		price := o.Price.Decimal
		if (o.Side == model.Buy && top.BestAsk != nil && price.GreaterThanOrEqual(top.BestAsk.Price)) ||
			(o.Side == model.Sell && top.BestBid != nil && price.LessThanOrEqual(top.BestBid.Price)) {
			return coreerr.New(coreerr.CodeInvalidOrder, "post-only order would take liquidity",
				"orderId", o.ID, "price", price.String())
		}
	}
	if o.ReduceOnly {
		size := st.Perps[o.MarketID].Size
		reduces := (o.Side == model.Sell && size.IsPositive()) || (o.Side == model.Buy && size.IsNegative())
		if !reduces || o.Quantity.GreaterThan(size.Abs()) {
			return coreerr.New(coreerr.CodeInvalidOrder, "reduce-only order would increase position",
				"orderId", o.ID, "positionSize", size.String(), "quantity", o.Quantity.String())
		}
	}
	return nil
}

func validStatus(st model.MarketStatus) error {
	switch st {
	case model.StatusActive, model.StatusHalted, model.StatusClosed:
		return nil
	}
	return coreerr.New(coreerr.CodeValidation, "market.status must be ACTIVE, HALTED or CLOSED",
		"status", string(st))
}

func requireWallet(wallet string) error {
	if wallet == "" {
		return coreerr.New(coreerr.CodeValidation, "wallet is required")
	}
	return nil
}

func rejectLabel(err error) string {
	switch {
	case errors.Is(err, risk.ErrPerMarketLimitExceeded), errors.Is(err, risk.ErrCorrelatedLimitExceeded):
		return "LIMIT_EXCEEDED"
	case errors.Is(err, ErrMarketNotFound):
		return "MARKET_NOT_FOUND"
	}
	if code := coreerr.CodeOf(err); code != "" {
		return string(code)
	}
	return "INTERNAL"
}
