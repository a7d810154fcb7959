package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"swapScope/internal/catalog"
	"swapScope/internal/format"
	"swapScope/internal/model"
	"swapScope/internal/swap"
	"swapScope/internal/urlstate"
)

type formattedQuote struct {
	SourceAmount string `json:"source_amount"`
	TargetAmount string `json:"target_amount"`
	USDAmount    string `json:"usd_amount"`
}

type quoteResponse struct {
	Quote     *model.Quote    `json:"quote"`
	Formatted *formattedQuote `json:"formatted,omitempty"`
	Mirror    string          `json:"mirror"`
}

type tokensResponse struct {
	Page            int           `json:"page"`
	NextPage        *int          `json:"next_page"`
	Tokens          []model.Token `json:"tokens"`
	TotalCandidates int           `json:"total_candidates"`
}

type sessionResponse struct {
	ID       string        `json:"id"`
	Snapshot swap.Snapshot `json:"snapshot"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sel := urlstate.Decode(s.deps.Catalog, r.URL.Query())
	if sel.Source == nil || sel.Target == nil {
		writeError(w, http.StatusBadRequest, &model.ValidationError{Field: "token", Reason: "from and to must name configured tokens"})
		return
	}
	usd, err := strconv.ParseFloat(sel.Amount, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, &model.ValidationError{Field: "usd amount", Reason: "must be a positive number"})
		return
	}

	source := s.deps.Metadata.FetchOne(ctx, *sel.Source)
	target := s.deps.Metadata.FetchOne(ctx, *sel.Target)
	quote, err := s.deps.Quoter.Quote(ctx, usd, &source, &target)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	resp := quoteResponse{
		Quote:  quote,
		Mirror: urlstate.Encode(s.deps.Catalog, urlstate.Selection{Amount: sel.Amount, Source: &source, Target: &target}).Encode(),
	}
	if quote != nil {
		resp.Formatted = formatQuote(quote)
		if err := s.deps.Journal.Append(ctx, *quote); err != nil {
			s.logger.Warn("journal quote failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotFound, errors.New("quote history is not configured"))
		return
	}
	sel := urlstate.Decode(s.deps.Catalog, r.URL.Query())
	if sel.Source == nil || sel.Target == nil {
		writeError(w, http.StatusBadRequest, &model.ValidationError{Field: "token", Reason: "from and to must name configured tokens"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.deps.History.RecentQuotes(r.Context(),
		sel.Source.ChainID, sel.Source.Symbol, sel.Target.ChainID, sel.Target.Symbol, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotes": records})
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := 0
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, &model.ValidationError{Field: "page", Reason: "must be a non-negative integer"})
			return
		}
		page = n
	}
	total := s.pager.TotalCandidates()
	var result model.CatalogPage
	if total > 0 {
		if page*s.deps.PageSize >= total {
			writeError(w, http.StatusNotFound, errors.New("page not found"))
			return
		}
		var err error
		result, err = s.pager.FetchPage(r.Context(), page)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	}

	var exclude *model.Token
	if tok, ok := urlstate.DecodeToken(s.deps.Catalog, q.Get("exclude")); ok {
		exclude = &tok
	}
	writeJSON(w, http.StatusOK, tokensResponse{
		Page:            page,
		NextPage:        result.NextPage,
		Tokens:          catalog.Filter(result.Tokens, q.Get("chain"), exclude),
		TotalCandidates: total,
	})
}

func (s *Server) handleLazyTokens(w http.ResponseWriter, r *http.Request) {
	list := catalog.NewLazyList(s.deps.Catalog, s.deps.Metadata, s.deps.InitialTokenCount)
	if open, _ := strconv.ParseBool(r.URL.Query().Get("open")); open {
		list.Expand()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"expanded": list.Expanded(),
		"entries":  list.Entries(r.Context()),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := swap.NewSession(s.deps.Quoter, s.deps.Catalog, s.deps.Refresh, s.logger)
	sess.Restore(r.Context(), r.URL.RawQuery, s.deps.Metadata)
	sess.Wait()
	id := s.sessions.Add(sess)
	s.logger.Info("session opened", zap.String("session", id), zap.String("mirror", sess.Mirror()))
	writeJSON(w, http.StatusCreated, sessionResponse{ID: id, Snapshot: sess.Snapshot()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: id, Snapshot: sess.Snapshot()})
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	id, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Restore(r.Context(), r.URL.RawQuery, s.deps.Metadata)
	sess.Wait()
	writeJSON(w, http.StatusOK, sessionResponse{ID: id, Snapshot: sess.Snapshot()})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.sessions.Remove(id) {
		writeError(w, http.StatusNotFound, errors.New("session not found"))
		return
	}
	s.logger.Info("session closed", zap.String("session", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshSession(w http.ResponseWriter, r *http.Request) {
	id, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if !sess.Refresh() {
		writeError(w, http.StatusConflict, errors.New("no token pair selected"))
		return
	}
	writeJSON(w, http.StatusAccepted, sessionResponse{ID: id, Snapshot: sess.Snapshot()})
}

func (s *Server) handleSwapSession(w http.ResponseWriter, r *http.Request) {
	id, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if !sess.SwapTokens() {
		writeError(w, http.StatusConflict, errors.New("both tokens must be selected to swap"))
		return
	}
	sess.Wait()
	writeJSON(w, http.StatusOK, sessionResponse{ID: id, Snapshot: sess.Snapshot()})
}

const (
	streamWriteWait  = 5 * time.Second
	streamPingPeriod = 30 * time.Second
)

func (s *Server) handleStreamSession(w http.ResponseWriter, r *http.Request) {
	id, sess, ok := s.session(w, r)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("session", id), zap.Error(err))
		return
	}
	defer conn.Close()

	updates := make(chan swap.Snapshot, 16)
	cancel := sess.Subscribe(func(snap swap.Snapshot) {
		select {
		case updates <- snap:
		default:
		}
	})
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeSnapshot(conn, sess.Snapshot()); err != nil {
		return
	}

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case snap := <-updates:
			if err := writeSnapshot(conn, snap); err != nil {
				s.logger.Debug("stream closed", zap.String("session", id), zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap swap.Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(snap)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (string, *swap.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("session not found"))
		return id, nil, false
	}
	return id, sess, true
}

func formatQuote(q *model.Quote) *formattedQuote {
	c := q.Calculation
	return &formattedQuote{
		SourceAmount: format.TokenAmountFor(c.SourceAmount, c.SourceToken),
		TargetAmount: format.TokenAmountFor(c.TargetAmount, c.TargetToken),
		USDAmount:    format.USD(c.USDAmount),
	}
}

func statusFor(err error) int {
	var priceErr *model.PriceFetchError
	var metaErr *model.MetadataFetchError
	switch {
	case model.IsValidation(err) && !errors.As(err, &priceErr):
		return http.StatusBadRequest
	case errors.As(err, &priceErr), errors.As(err, &metaErr):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
