package server

import (
	"SynthLedger/internal/core"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/observability"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Server exposes the ledger over HTTP/JSON. Mutations require a bearer
// token whose address claim becomes the caller passed to the role
// checks; reads are open.
type Server struct {
	engine  *core.Engine
	auth    *Authenticator
	metrics *observability.Metrics
	log     zerolog.Logger
}

func New(engine *core.Engine, auth *Authenticator, metrics *observability.Metrics, log zerolog.Logger) *Server {
	return &Server{engine: engine, auth: auth, metrics: metrics, log: log}
}

// Router builds the chi router with all ledger routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Route("/v1", func(r chi.Router) {
		// Reads.
		r.Get("/roles", s.getRoles)
		r.Get("/access/{addr}", s.getAccess)
		r.Get("/paused", s.getPaused)
		r.Get("/markets/{market}", s.getMarket)
		r.Get("/params/max-leverage", s.getMaxLeverage)
		r.Get("/params/reward-basis-points", s.getRewardBasisPoints)
		r.Get("/params/total-in-positions", s.getTotalInPositions)
		r.Get("/balances/{addr}", s.getBalance)
		r.Get("/supply", s.getSupply)
		r.Get("/positions/{holder}/{market}", s.getPosition)
		r.Get("/bridge/merkle-root", s.getMerkleRoot)
		r.Get("/sequence", s.getSequence)

		// Mutations.
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Post("/access", s.grantAccess)
			r.Delete("/access/{addr}", s.revokeAccess)
			r.Put("/roles/governance", s.setGovernance)
			r.Put("/roles/administrator", s.setAdministrator)
			r.Put("/roles/bridge", s.setBridge)
			r.Put("/roles/rewards", s.setRewardAddress)
			r.Post("/pause", s.pause)
			r.Post("/unpause", s.unpause)
			r.Put("/markets/{market}", s.activateMarket)
			r.Delete("/markets/{market}", s.deactivateMarket)
			r.Put("/params/max-leverage", s.setMaxLeverage)
			r.Put("/params/reward-basis-points", s.setRewardBasisPoints)
			r.Put("/params/total-in-positions", s.setTotalInPositions)
			r.Post("/mint", s.mint)
			r.Post("/burn", s.burn)
			r.Put("/positions/{holder}/{market}", s.setPosition)
			r.Put("/bridge/merkle-root", s.setMerkleRoot)
		})
	})

	return r
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if s.metrics != nil {
			route := chi.RouteContext(r.Context()).RoutePattern()
			s.metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
			s.metrics.HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		}
	})
}

// --- Request/response types ---

type addressRequest struct {
	Addr string `json:"addr"`
}

type amountRequest struct {
	Addr   string `json:"addr"`
	Amount string `json:"amount"`
}

type valueRequest struct {
	Value string `json:"value"`
}

type basisPointsRequest struct {
	BasisPoints uint64 `json:"basis_points"`
}

type rootRequest struct {
	Root string `json:"root"`
}

type positionRequest struct {
	Timestamp         int64  `json:"timestamp"`
	LongShares        string `json:"long_shares"`
	ShortShares       string `json:"short_shares"`
	MeanEntryPrice    string `json:"mean_entry_price"`
	MeanEntrySpread   string `json:"mean_entry_spread"`
	MeanEntryLeverage string `json:"mean_entry_leverage"`
	LiquidationPrice  string `json:"liquidation_price"`
}

type positionResponse struct {
	Holder            string `json:"holder"`
	Market            string `json:"market"`
	Timestamp         int64  `json:"timestamp"`
	LongShares        string `json:"long_shares"`
	ShortShares       string `json:"short_shares"`
	MeanEntryPrice    string `json:"mean_entry_price"`
	MeanEntrySpread   string `json:"mean_entry_spread"`
	MeanEntryLeverage string `json:"mean_entry_leverage"`
	LiquidationPrice  string `json:"liquidation_price"`
}

// --- Mutation handlers ---

func (s *Server) grantAccess(w http.ResponseWriter, r *http.Request) {
	caller, req := s.callerAndBody(w, r, &addressRequest{})
	if req == nil {
		return
	}
	addr, err := ledger.ParseAddress(req.(*addressRequest).Addr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respond(w, s.engine.GrantAccess(r.Context(), caller, addr))
}

func (s *Server) revokeAccess(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing caller")
		return
	}
	addr, err := ledger.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respond(w, s.engine.RevokeAccess(r.Context(), caller, addr))
}

func (s *Server) setGovernance(w http.ResponseWriter, r *http.Request) {
	s.roleUpdate(w, r, s.engine.SetGovernance)
}

func (s *Server) setAdministrator(w http.ResponseWriter, r *http.Request) {
	s.roleUpdate(w, r, s.engine.SetAdministrator)
}

func (s *Server) setBridge(w http.ResponseWriter, r *http.Request) {
	s.roleUpdate(w, r, s.engine.SetBridge)
}

func (s *Server) setRewardAddress(w http.ResponseWriter, r *http.Request) {
	s.roleUpdate(w, r, s.engine.SetRewardAddress)
}

func (s *Server) roleUpdate(w http.ResponseWriter, r *http.Request, update func(ctx context.Context, caller, addr ledger.Address) error) {
	caller, req := s.callerAndBody(w, r, &addressRequest{})
	if req == nil {
		return
	}
	addr, err := ledger.ParseAddress(req.(*addressRequest).Addr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respond(w, update(r.Context(), caller, addr))
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing caller")
		return
	}
	s.respond(w, s.engine.Pause(r.Context(), caller))
}

func (s *Server) unpause(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing caller")
		return
	}
	s.respond(w, s.engine.Unpause(r.Context(), caller))
}

func (s *Server) activateMarket(w http.ResponseWriter, r *http.Request) {
	caller, market, ok := s.callerAndMarket(w, r)
	if !ok {
		return
	}
	s.respond(w, s.engine.ActivateMarket(r.Context(), caller, market))
}

func (s *Server) deactivateMarket(w http.ResponseWriter, r *http.Request) {
	caller, market, ok := s.callerAndMarket(w, r)
	if !ok {
		return
	}
	s.respond(w, s.engine.DeactivateMarket(r.Context(), caller, market))
}

func (s *Server) setMaxLeverage(w http.ResponseWriter, r *http.Request) {
	caller, req := s.callerAndBody(w, r, &valueRequest{})
	if req == nil {
		return
	}
	v, err := parseBigBody(req.(*valueRequest).Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respond(w, s.engine.SetMaximumLeverage(r.Context(), caller, v))
}

func (s *Server) setRewardBasisPoints(w http.ResponseWriter, r *http.Request) {
	caller, req := s.callerAndBody(w, r, &basisPointsRequest{})
	if req == nil {
		return
	}
	s.respond(w, s.engine.SetRewardBasisPoints(r.Context(), caller, req.(*basisPointsRequest).BasisPoints))
}

func (s *Server) setTotalInPositions(w http.ResponseWriter, r *http.Request) {
	caller, req := s.callerAndBody(w, r, &valueRequest{})
	if req == nil {
		return
	}
	v, err := parseBigBody(req.(*valueRequest).Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respond(w, s.engine.SetTotalInPositions(r.Context(), caller, v))
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	caller, addr, amount, ok := s.callerAddrAmount(w, r)
	if !ok {
		return
	}
	s.respond(w, s.engine.Mint(r.Context(), caller, addr, amount))
}

func (s *Server) burn(w http.ResponseWriter, r *http.Request) {
	caller, addr, amount, ok := s.callerAddrAmount(w, r)
	if !ok {
		return
	}
	s.respond(w, s.engine.Burn(r.Context(), caller, addr, amount))
}

func (s *Server) setPosition(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing caller")
		return
	}
	holder, err := ledger.ParseAddress(chi.URLParam(r, "holder"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	market, err := ledger.ParseHash(chi.URLParam(r, "market"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pos := ledger.Position{Timestamp: req.Timestamp}
	fields := []struct {
		dst  **big.Int
		src  string
		name string
	}{
		{&pos.LongShares, req.LongShares, "long_shares"},
		{&pos.ShortShares, req.ShortShares, "short_shares"},
		{&pos.MeanEntryPrice, req.MeanEntryPrice, "mean_entry_price"},
		{&pos.MeanEntrySpread, req.MeanEntrySpread, "mean_entry_spread"},
		{&pos.MeanEntryLeverage, req.MeanEntryLeverage, "mean_entry_leverage"},
		{&pos.LiquidationPrice, req.LiquidationPrice, "liquidation_price"},
	}
	for _, f := range fields {
		v, err := parseBigBody(f.src)
		if err != nil {
			writeError(w, http.StatusBadRequest, f.name+": "+err.Error())
			return
		}
		*f.dst = v
	}

	s.respond(w, s.engine.SetPosition(r.Context(), caller, holder, market, pos))
}

func (s *Server) setMerkleRoot(w http.ResponseWriter, r *http.Request) {
	caller, req := s.callerAndBody(w, r, &rootRequest{})
	if req == nil {
		return
	}
	root, err := ledger.ParseHash(req.(*rootRequest).Root)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respond(w, s.engine.SetSideChainMerkleRoot(r.Context(), caller, root))
}

// --- Read handlers ---

func (s *Server) getRoles(w http.ResponseWriter, r *http.Request) {
	governance, administrator, bridge, rewards, err := s.engine.Roles(r.Context())
	if err != nil {
		s.respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"governance":    governance.Hex(),
		"administrator": administrator.Hex(),
		"bridge":        bridge.Hex(),
		"rewards":       rewards.Hex(),
	})
}

func (s *Server) getAccess(w http.ResponseWriter, r *http.Request) {
	addr, err := ledger.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ok, err := s.engine.HasAccess(r.Context(), addr)
	if err != nil {
		s.respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"allowed": ok})
}

func (s *Server) getPaused(w http.ResponseWriter, r *http.Request) {
	paused, err := s.engine.Paused(r.Context())
	if err != nil {
		s.respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	market, err := ledger.ParseHash(chi.URLParam(r, "market"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	active, err := s.engine.MarketActive(r.Context(), market)
	if err != nil {
		s.respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func (s *Server) getMaxLeverage(w http.ResponseWriter, r *http.Request) {
	v, err := s.engine.MaximumLeverage(r.Context())
	if err != nil {
		s.respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"value": v.String()})
}

func (s *Server) getRewardBasisPoints(w http.ResponseWriter, r *http.Request) {
	v, err := s.engine.RewardBasisPoints(r.Context())
	if err != nil {
		s.respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"basis_points": v})
}

func (s *Server) getTotalInPositions(w http.ResponseWriter, r *http.Request) {
	v, err := s.engine.TotalInPositions(r.Context())
	if err != nil {
		s.respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"value": v.String()})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := ledger.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balance, err := s.engine.BalanceOf(r.Context(), addr)
	if err != nil {
		s.respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"addr":    addr.Hex(),
		"balance": balance.String(),
	})
}

func (s *Server) getSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := s.engine.TotalSupply(r.Context())
	if err != nil {
		s.respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"total_supply": supply.String()})
}

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	holder, err := ledger.ParseAddress(chi.URLParam(r, "holder"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	market, err := ledger.ParseHash(chi.URLParam(r, "market"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pos, err := s.engine.GetPosition(r.Context(), holder, market)
	if err != nil {
		s.respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{
		Holder:            holder.Hex(),
		Market:            market.Hex(),
		Timestamp:         pos.Timestamp,
		LongShares:        pos.LongShares.String(),
		ShortShares:       pos.ShortShares.String(),
		MeanEntryPrice:    pos.MeanEntryPrice.String(),
		MeanEntrySpread:   pos.MeanEntrySpread.String(),
		MeanEntryLeverage: pos.MeanEntryLeverage.String(),
		LiquidationPrice:  pos.LiquidationPrice.String(),
	})
}

func (s *Server) getMerkleRoot(w http.ResponseWriter, r *http.Request) {
	root, err := s.engine.SideChainMerkleRoot(r.Context())
	if err != nil {
		s.respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"root": root.Hex()})
}

func (s *Server) getSequence(w http.ResponseWriter, r *http.Request) {
	seq, err := s.engine.Sequence(r.Context())
	if err != nil {
		s.respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"sequence": seq})
}

// --- Helpers ---

func (s *Server) callerAndBody(w http.ResponseWriter, r *http.Request, req any) (ledger.Address, any) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing caller")
		return ledger.Address{}, nil
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return ledger.Address{}, nil
	}
	return caller, req
}

func (s *Server) callerAndMarket(w http.ResponseWriter, r *http.Request) (ledger.Address, ledger.Hash, bool) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing caller")
		return ledger.Address{}, ledger.Hash{}, false
	}
	market, err := ledger.ParseHash(chi.URLParam(r, "market"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return ledger.Address{}, ledger.Hash{}, false
	}
	return caller, market, true
}

func (s *Server) callerAddrAmount(w http.ResponseWriter, r *http.Request) (ledger.Address, ledger.Address, *big.Int, bool) {
	caller, req := s.callerAndBody(w, r, &amountRequest{})
	if req == nil {
		return ledger.Address{}, ledger.Address{}, nil, false
	}
	body := req.(*amountRequest)
	addr, err := ledger.ParseAddress(body.Addr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return ledger.Address{}, ledger.Address{}, nil, false
	}
	amount, err := parseBigBody(body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return ledger.Address{}, ledger.Address{}, nil, false
	}
	return caller, addr, amount, true
}

// respond maps domain errors onto HTTP status codes.
func (s *Server) respond(w http.ResponseWriter, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	switch {
	case ledger.IsAuthorization(err):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrPaused):
		writeError(w, http.StatusLocked, err.Error())
	case ledger.IsInsufficientBalance(err):
		writeError(w, http.StatusConflict, err.Error())
	case ledger.IsRange(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseBigBody(v string) (*big.Int, error) {
	if v == "" {
		return new(big.Int), nil
	}
	b, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return nil, errors.New("invalid integer " + strconv.Quote(v))
	}
	return b, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
