package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/book"
	"github.com/shokenteam/shoken-core/internal/coreerr"
	"github.com/shokenteam/shoken-core/internal/engine"
	"github.com/shokenteam/shoken-core/internal/market"
	"github.com/shokenteam/shoken-core/internal/model"
	"github.com/shokenteam/shoken-core/internal/risk"
	"github.com/shokenteam/shoken-core/internal/store"
)

// Routes registers the API under r (mounted at /api/v1 by the server).
func (s *Service) Routes(r chi.Router) {
	// Market management.
	r.Get("/markets", s.ListMarkets)
	r.Post("/markets", s.CreateMarket)
	r.Get("/markets/{marketID}", s.GetMarket)
	r.Post("/markets/{marketID}/status", s.SetStatus)

	// Books and analytics.
	r.Put("/markets/{marketID}/book", s.PutBook)
	r.Get("/markets/{marketID}/book", s.GetBook)
	r.Get("/markets/{marketID}/top", s.GetTop)
	r.Get("/markets/{marketID}/vwap", s.GetVWAP)
	r.Get("/markets/{marketID}/impact", s.GetImpact)

	// Price feeds and settlement.
	r.Post("/markets/{marketID}/mark", s.PostMark)
	r.Post("/markets/{marketID}/prediction-price", s.PostPredictionPrice)
	r.Post("/markets/{marketID}/resolve", s.PostResolve)

	// Wallet commands and queries.
	r.Post("/wallets/{wallet}/orders", s.PostOrder)
	r.Delete("/wallets/{wallet}/orders/{orderID}", s.DeleteOrder)
	r.Post("/wallets/{wallet}/fills", s.PostFill)
	r.Post("/wallets/{wallet}/prediction-fills", s.PostPredictionFill)
	r.Get("/wallets/{wallet}", s.GetWallet)
	r.Get("/wallets/{wallet}/portfolio", s.GetPortfolio)
	r.Get("/wallets/{wallet}/events", s.GetEvents)
}

// --- Markets ---

// CreateMarket handles POST /api/v1/markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if !decode(w, r, &req) {
		return
	}

	var m model.Market
	if req.Symbol != "" {
		parsed, err := market.FromSymbol(req.Symbol, req.Venue, req.TickSize, req.LotSize)
		if err != nil {
			writeErr(w, err)
			return
		}
		m = parsed
		if req.Status != "" {
			m.Status = model.MarketStatus(req.Status)
		}
	} else {
		m = model.Market{
			ID:         req.ID,
			Type:       model.MarketType(req.Type),
			Status:     model.MarketStatus(req.Status),
			BaseAsset:  req.BaseAsset,
			QuoteAsset: req.QuoteAsset,
			TickSize:   req.TickSize,
			LotSize:    req.LotSize,
			Venue:      req.Venue,
		}
	}

	created, err := s.RegisterMarket(r.Context(), m)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, marketView(created))
}

// ListMarkets handles GET /api/v1/markets
// Optionally filtered by ?type=PERP|SPOT|PREDICTION.
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	typ := r.URL.Query().Get("type")
	out := []MarketView{}
	for _, m := range s.Markets() {
		if typ != "" && string(m.Type) != typ {
			continue
		}
		out = append(out, marketView(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetMarket handles GET /api/v1/markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.Market(chi.URLParam(r, "marketID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, marketView(m))
}

// SetStatus handles POST /api/v1/markets/{marketID}/status
func (s *Service) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := s.SetMarketStatus(r.Context(), chi.URLParam(r, "marketID"), model.MarketStatus(req.Status))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, marketView(m))
}

// --- Books ---

// PutBook handles PUT /api/v1/markets/{marketID}/book
func (s *Service) PutBook(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if !decode(w, r, &req) {
		return
	}
	marketID := chi.URLParam(r, "marketID")
	b, err := s.LoadBook(marketID, book.ParseLevels(req.Bids), book.ParseLevels(req.Asks), req.Timestamp)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookView(marketID, b, 0))
}

// GetBook handles GET /api/v1/markets/{marketID}/book?depth=N
func (s *Service) GetBook(w http.ResponseWriter, r *http.Request) {
	depth := 0
	if raw := r.URL.Query().Get("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, "depth must be a non-negative integer", http.StatusBadRequest)
			return
		}
		depth = n
	}
	marketID := chi.URLParam(r, "marketID")
	b, err := s.Book(marketID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookView(marketID, b, depth))
}

// GetTop handles GET /api/v1/markets/{marketID}/top
func (s *Service) GetTop(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	b, err := s.Book(marketID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topView(marketID, book.Top(b)))
}

// GetVWAP handles GET /api/v1/markets/{marketID}/vwap?side=BUY&size=N
// BUY walks the asks, SELL walks the bids.
func (s *Service) GetVWAP(w http.ResponseWriter, r *http.Request) {
	side, ok := querySide(w, r)
	if !ok {
		return
	}
	size, ok := queryDecimal(w, r, "size")
	if !ok {
		return
	}
	marketID := chi.URLParam(r, "marketID")
	b, err := s.Book(marketID)
	if err != nil {
		writeErr(w, err)
		return
	}

	walk := book.Asks
	if side == model.Sell {
		walk = book.Bids
	}
	res, err := book.VWAPForSize(b, walk, size)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VWAPView{
		MarketID:      marketID,
		Side:          string(side),
		FilledSize:    res.FilledSize,
		AvgPrice:      res.AvgPrice,
		Cost:          res.Cost,
		RemainingSize: res.RemainingSize,
	})
}

// GetImpact handles GET /api/v1/markets/{marketID}/impact?side=BUY&notional=N
func (s *Service) GetImpact(w http.ResponseWriter, r *http.Request) {
	side, ok := querySide(w, r)
	if !ok {
		return
	}
	notional, ok := queryDecimal(w, r, "notional")
	if !ok {
		return
	}
	marketID := chi.URLParam(r, "marketID")
	b, err := s.Book(marketID)
	if err != nil {
		writeErr(w, err)
		return
	}

	imp := book.EstimateImpact(b, side, notional, s.opts.Impact)
	writeJSON(w, http.StatusOK, ImpactView{
		MarketID:    marketID,
		Side:        string(imp.Direction),
		Notional:    imp.Notional,
		FilledPct:   imp.FilledPct,
		SlippagePct: imp.SlippagePct,
		AvgPrice:    imp.AvgPrice,
		WorstPrice:  imp.WorstPrice,
		Warning:     imp.Warning,
	})
}

// --- Price feeds and settlement ---

// PostMark handles POST /api/v1/markets/{marketID}/mark
func (s *Service) PostMark(w http.ResponseWriter, r *http.Request) {
	var req MarkRequest
	if !decode(w, r, &req) {
		return
	}
	marketID := chi.URLParam(r, "marketID")
	n, err := s.UpdateMark(r.Context(), marketID, req.Price)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdatedResponse{MarketID: marketID, Wallets: n})
}

// PostPredictionPrice handles POST /api/v1/markets/{marketID}/prediction-price
func (s *Service) PostPredictionPrice(w http.ResponseWriter, r *http.Request) {
	var req PredictionPriceRequest
	if !decode(w, r, &req) {
		return
	}
	marketID := chi.URLParam(r, "marketID")
	n, err := s.UpdatePredictionPrice(r.Context(), marketID, model.Outcome(req.Outcome), req.Price)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdatedResponse{MarketID: marketID, Wallets: n})
}

// PostResolve handles POST /api/v1/markets/{marketID}/resolve
func (s *Service) PostResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !decode(w, r, &req) {
		return
	}
	marketID := chi.URLParam(r, "marketID")
	n, err := s.ResolveMarket(r.Context(), marketID, model.Outcome(req.Outcome))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdatedResponse{MarketID: marketID, Wallets: n})
}

// --- Wallets ---

// PostOrder handles POST /api/v1/wallets/{wallet}/orders
// Validates, matches against the current book and returns fills and the
// updated position.
func (s *Service) PostOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := s.PlaceOrder(r.Context(), chi.URLParam(r, "wallet"), req.order())
	if err != nil {
		writeErr(w, err)
		return
	}

	resp := PlaceOrderResponse{
		Order:    orderView(res.Order),
		Fills:    fillViews(res.Fills),
		Canceled: res.Canceled,
	}
	if res.Position != nil {
		pv := perpView(*res.Position)
		resp.Position = &pv
	}
	writeJSON(w, http.StatusCreated, resp)
}

// DeleteOrder handles DELETE /api/v1/wallets/{wallet}/orders/{orderID}
func (s *Service) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	st, err := s.CancelOrder(r.Context(), chi.URLParam(r, "wallet"), chi.URLParam(r, "orderID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderView(st))
}

// PostFill handles POST /api/v1/wallets/{wallet}/fills
func (s *Service) PostFill(w http.ResponseWriter, r *http.Request) {
	var req FillRequest
	if !decode(w, r, &req) {
		return
	}
	st, pos, err := s.RecordFill(r.Context(), chi.URLParam(r, "wallet"), model.Fill{
		ID:        req.FillID,
		OrderID:   req.OrderID,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Fee:       req.Fee,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FillResponse{Order: orderView(st), Position: perpView(pos)})
}

// PostPredictionFill handles POST /api/v1/wallets/{wallet}/prediction-fills
func (s *Service) PostPredictionFill(w http.ResponseWriter, r *http.Request) {
	var req PredictionFillRequest
	if !decode(w, r, &req) {
		return
	}
	pos, err := s.RecordPredictionFill(r.Context(), chi.URLParam(r, "wallet"), engine.PredictionFilled{
		MarketID: req.MarketID,
		Outcome:  model.Outcome(req.Outcome),
		Price:    req.Price,
		Shares:   req.Shares,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, predictionView(pos))
}

// GetWallet handles GET /api/v1/wallets/{wallet}
func (s *Service) GetWallet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, walletView(s.Wallet(chi.URLParam(r, "wallet"))))
}

// GetPortfolio handles GET /api/v1/wallets/{wallet}/portfolio
// Returns equity, PnL, exposure and position counts.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Portfolio(chi.URLParam(r, "wallet")))
}

// GetEvents handles GET /api/v1/wallets/{wallet}/events?after=SEQ
func (s *Service) GetEvents(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, "after must be a sequence number", http.StatusBadRequest)
			return
		}
		after = n
	}
	recs, err := s.Events(r.Context(), chi.URLParam(r, "wallet"), after)
	if err != nil {
		writeErr(w, err)
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// --- Helpers ---

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func querySide(w http.ResponseWriter, r *http.Request) (model.Side, bool) {
	side := model.Side(r.URL.Query().Get("side"))
	if !side.Valid() {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return "", false
	}
	return side, true
}

func queryDecimal(w http.ResponseWriter, r *http.Request, key string) (decimal.Decimal, bool) {
	v, err := decimal.NewFromString(r.URL.Query().Get(key))
	if err != nil {
		writeError(w, key+" must be a decimal", http.StatusBadRequest)
		return decimal.Decimal{}, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// errorBody carries the core error code and metadata when there is one.
type errorBody struct {
	Error string         `json:"error"`
	Code  string         `json:"code,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// writeErr maps err to a status and writes it. Server-side failures are
// logged and their details withheld.
func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		writeError(w, "internal error", status)
		return
	}

	body := errorBody{Error: err.Error()}
	var ce *coreerr.Error
	if errors.As(err, &ce) {
		body.Code = string(ce.Code)
		body.Meta = ce.Meta
		slog.Debug("request rejected", "err", ce)
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMarketNotFound), errors.Is(err, ErrOrderNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMarketExists), errors.Is(err, store.ErrSeqConflict),
		errors.Is(err, risk.ErrPerMarketLimitExceeded), errors.Is(err, risk.ErrCorrelatedLimitExceeded),
		errors.Is(err, coreerr.ErrInsufficientLiquidity), errors.Is(err, coreerr.ErrMarketNotActive):
		return http.StatusConflict
	}
	if coreerr.CodeOf(err) != "" {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
