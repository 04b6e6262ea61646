package core

import (
	"SynthLedger/internal/event"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/observability"
	"context"
	"math/big"
	"time"

	"github.com/rs/zerolog"
)

// Output carries one applied change from the engine to the persistence
// worker, the projection worker and the outbound publisher.
type Output struct {
	Record *event.Record
}

type result struct {
	val any
	err error
}

type command struct {
	op    string
	apply func(st *ledger.State) (val any, ch *event.Change, err error)
	reply chan result
}

// Engine owns the ledger state and imposes the single global total
// order of calls: one goroutine drains the command channel and applies
// commands to completion, one at a time. A command either fully applies
// or returns an error with zero state writes (the ledger validates
// before mutating). Applied mutations are sequenced, folded into the
// state-hash chain, and emitted on the persist channel (blocking, so
// backpressure stalls the core rather than losing a change) and the
// projection channel (non-blocking, drops are rebuildable).
type Engine struct {
	state    *ledger.State
	sequence int64
	hasher   *StateHasher
	metrics  *observability.Metrics
	log      zerolog.Logger

	commands       chan command
	persistChan    chan<- Output
	projectionChan chan<- Output
}

// NewEngine wraps a bootstrapped or restored ledger state.
func NewEngine(
	st *ledger.State,
	startSequence int64,
	persistChan, projectionChan chan<- Output,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		state:          st,
		sequence:       startSequence,
		hasher:         NewStateHasher(),
		metrics:        metrics,
		log:            log,
		commands:       make(chan command),
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}
}

// Run drains the command channel until ctx is cancelled. Must be
// started exactly once, after any snapshot restore and replay.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-e.commands:
			e.execute(ctx, cmd)
		}
	}
}

func (e *Engine) execute(ctx context.Context, cmd command) {
	start := time.Now()

	val, ch, err := cmd.apply(e.state)
	if err != nil {
		if e.metrics != nil {
			e.metrics.OpsRejected.WithLabelValues(cmd.op, rejectReason(err)).Inc()
		}
		cmd.reply <- result{err: err}
		return
	}

	if ch != nil {
		e.sequence++
		prev := e.hasher.GetPrevHash()
		hash := e.hasher.ComputeHash(e.sequence, e.state.Digest())

		rec := &event.Record{
			Sequence:  e.sequence,
			Change:    ch,
			Timestamp: time.Now().UTC(),
			StateHash: hash,
			PrevHash:  prev,
		}

		// Blocking send: a slow persistence worker stalls the core
		// instead of dropping a change.
		select {
		case e.persistChan <- Output{Record: rec}:
		case <-ctx.Done():
			cmd.reply <- result{err: ctx.Err()}
			return
		}

		select {
		case e.projectionChan <- Output{Record: rec}:
		default:
			if e.metrics != nil {
				e.metrics.ProjectionDrops.Inc()
			}
		}

		if e.metrics != nil {
			e.metrics.OpsApplied.WithLabelValues(cmd.op).Inc()
			e.metrics.OpDuration.WithLabelValues(cmd.op).Observe(time.Since(start).Seconds())
			e.metrics.Sequence.Set(float64(e.sequence))
			if e.state.Paused() {
				e.metrics.PausedState.Set(1)
			} else {
				e.metrics.PausedState.Set(0)
			}
			supply, _ := new(big.Float).SetInt(e.state.TotalSupply()).Float64()
			e.metrics.TotalSupply.Set(supply)
		}

		e.log.Debug().
			Int64("sequence", e.sequence).
			Str("op", cmd.op).
			Str("caller", ch.Caller).
			Msg("change applied")
	}

	cmd.reply <- result{val: val}
}

func (e *Engine) do(ctx context.Context, op string, apply func(st *ledger.State) (any, *event.Change, error)) (any, error) {
	cmd := command{op: op, apply: apply, reply: make(chan result, 1)}
	select {
	case e.commands <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-cmd.reply:
		return res.val, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func rejectReason(err error) string {
	switch {
	case ledger.IsAuthorization(err):
		return "authorization"
	case err == ledger.ErrPaused:
		return "paused"
	case ledger.IsInsufficientBalance(err):
		return "insufficient_balance"
	case ledger.IsRange(err):
		return "range"
	default:
		return "invalid"
	}
}

// --- AccessRegistry ---

func (e *Engine) GrantAccess(ctx context.Context, caller, addr ledger.Address) error {
	_, err := e.do(ctx, "GrantAccess", func(st *ledger.State) (any, *event.Change, error) {
		if err := st.GrantAccess(caller, addr); err != nil {
			return nil, nil, err
		}
		return nil, &event.Change{
			Type:   event.ChangeTypeAccessGranted,
			Caller: caller.Hex(),
			Addr:   addr.Hex(),
		}, nil
	})
	return err
}

func (e *Engine) RevokeAccess(ctx context.Context, caller, addr ledger.Address) error {
	_, err := e.do(ctx, "RevokeAccess", func(st *ledger.State) (any, *event.Change, error) {
		if err := st.RevokeAccess(caller, addr); err != nil {
			return nil, nil, err
		}
		return nil, &event.Change{
			Type:   event.ChangeTypeAccessRevoked,
			Caller: caller.Hex(),
			Addr:   addr.Hex(),
		}, nil
	})
	return err
}

func (e *Engine) SetGovernance(ctx context.Context, caller, addr ledger.Address) error {
	_, err := e.do(ctx, "SetGovernance", func(st *ledger.State) (any, *event.Change, error) {
		if err := st.SetGovernance(caller, addr); err != nil {
			return nil, nil, err
		}
		return nil, &event.Change{
			Type:   event.ChangeTypeGovernanceSet,
			Caller: caller.Hex(),
			Addr:   addr.Hex(),
		}, nil
	})
	return err
}

func (e *Engine) SetAdministrator(ctx context.Context, caller, addr ledger.Address) error {
	_, err := e.do(ctx, "SetAdministrator", func(st *ledger.State) (any, *event.Change, error) {
		if err := st.SetAdministrator(caller, addr); err != nil {
			return nil, nil, err
		}
		return nil, &event.Change{
			Type:   event.ChangeTypeAdministratorSet,
			Caller: caller.Hex(),
			Addr:   addr.Hex(),
		}, nil
	})
	return err
}

func (e *Engine) SetBridge(ctx context.Context, caller, addr ledger.Address) error {
	_, err := e.do(ctx, "SetBridge", func(st *ledger.State) (any, *event.Change, error) {
		if err := st.SetBridge(caller, addr); err != nil {
			return nil, nil, err
		}
		return nil, &event.Change{
			Type:   event.ChangeTypeBridgeSet,
			Caller: caller.Hex(),
			Addr:   addr.Hex(),
		}, nil
	})
	return err
}

func (e *Engine) SetRewardAddress(ctx context.Context, caller, addr ledger.Address) error {
	_, err := e.do(ctx, "SetRewardAddress", func(st *ledger.State) (any, *event.Change, error) {
		if err := st.SetRewardAddress(caller, addr); err != nil {
			return nil, nil, err
		}
		return nil, &event.Change{
			Type:   event.ChangeTypeRewardAddressSet,
			Caller: caller.Hex(),
			Addr:   addr.Hex(),
		}, nil
	})
	return err
}

// Roles reports the current role holders in one consistent read.
func (e *Engine) Roles(ctx context.Context) (governance, administrator, bridge, rewards ledger.Address, err error) {
	val, err := e.do(ctx, "Roles", func(st *ledger.State) (any, *event.Change, error) {
		return [4]ledger.Address{st.Governance(), st.Administrator(), st.Bridge(), st.RewardsAddress()}, nil, nil
	})
	if err != nil {
		return
	}
	roles := val.([4]ledger.Address)
	return roles[0], roles[1], roles[2], roles[3], nil
}

func (e *Engine) HasAccess(ctx context.Context, addr ledger.Address) (bool, error) {
	val, err := e.do(ctx, "HasAccess", func(st *ledger.State) (any, *event.Change, error) {
		return st.HasAccess(addr), nil, nil
	})
	if err != nil {
		return false, err
	}
	return val.(bool), nil
}

// --- PauseSwitch ---

func (e *Engine) Pause(ctx context.Context, caller ledger.Address) error {
	_, err := e.do(ctx, "Pause", func(st *ledger.State) (any, *event.Change, error) {
		if err := st.Pause(caller); err != nil {
			return nil, nil, err
		}
		return nil, &event.Change{Type: event.ChangeTypePaused, Caller: caller.Hex()}, nil
	})
	return err
}

func (e *Engine) Unpause(ctx context.Context, caller ledger.Address) error {
	_, err := e.do(ctx, "Unpause", func(st *ledger.State) (any, *event.Change, error) {
		if err := st.Unpause(caller); err != nil {
			return nil, nil, err
		}
		return nil, &event.Change{Type: event.ChangeTypeUnpaused, Caller: caller.Hex()}, nil
	})
	return err
}

func (e *Engine) Paused(ctx context.Context) (bool, error) {
	val, err := e.do(ctx, "Paused", func(st *ledger.State) (any, *event.Change, error) {
		return st.Paused(), nil, nil
	})
	if err != nil {
		return false, err
	}
	return val.(bool), nil
}

// --- MarketRegistry & RiskParameters ---

func (e *Engine) ActivateMarket(ctx context.Context, caller ledger.Address, market ledger.Hash) error {
	_, err := e.do(ctx, "ActivateMarket", func(st *ledger.State) (any, *event.Change, error) {
		if err := st.ActivateMarket(caller, market); err != nil {
			return nil, nil, err
		}
		return nil, &event.Change{
			Type:   event.ChangeTypeMarketActivated,
			Caller: caller.Hex(),
			Market: market.Hex(),
		}, nil
	})
	return err
}

func (e *Engine) DeactivateMarket(ctx context.Context, caller ledger.Address, market ledger.Hash) error {
	_, err := e.do(ctx, "DeactivateMarket", func(st *ledger.State) (any, *event.Change, error) {
		if err := st.DeactivateMarket(caller, market); err != nil {
			return nil, nil, err
		}
		return nil, &event.Change{
			Type:   event.ChangeTypeMarketDeactivated,
			Caller: caller.Hex(),
			Market: market.Hex(),
		}, nil
	})
	return err
}

func (e *Engine) MarketActive(ctx context.Context, market ledger.Hash) (bool, error) {
	val, err := e.do(ctx, "MarketActive", func(st *ledger.State) (any, *event.Change, error) {
		return st.MarketActive(market), nil, nil
	})
	if err != nil {
		return false, err
	}
	return val.(bool), nil
}

func (e *Engine) SetMaximumLeverage(ctx context.Context, caller ledger.Address, v *big.Int) error {
	_, err := e.do(ctx, "SetMaximumLeverage", func(st *ledger.State) (any, *event.Change, error) {
		if err := st.SetMaximumLeverage(caller, v); err != nil {
			return nil, nil, err
		}
		return nil, &event.Change{
			Type:   event.ChangeTypeMaxLeverageSet,
			Caller: caller.Hex(),
			Value:  v.String(),
		}, nil
	})
	return err
}

func (e *Engine) MaximumLeverage(ctx context.Context) (*big.Int, error) {
	val, err := e.do(ctx, "MaximumLeverage", func(st *ledger.State) (any, *event.Change, error) {
		return st.MaximumLeverage(), nil, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*big.Int), nil
}

func (e *Engine) SetRewardBasisPoints(ctx context.Context, caller ledger.Address, v uint64) error {
	_, err := e.do(ctx, "SetRewardBasisPoints", func(st *ledger.State) (any, *event.Change, error) {
		if err := st.SetRewardBasisPoints(caller, v); err != nil {
			return nil, nil, err
		}
		return nil, &event.Change{
			Type:        event.ChangeTypeRewardBasisPointsSet,
			Caller:      caller.Hex(),
			BasisPoints: v,
		}, nil
	})
	return err
}

func (e *Engine) RewardBasisPoints(ctx context.Context) (uint64, error) {
	val, err := e.do(ctx, "RewardBasisPoints", func(st *ledger.State) (any, *event.Change, error) {
		return st.RewardBasisPoints(), nil, nil
	})
	if err != nil {
		return 0, err
	}
	return val.(uint64), nil
}

// --- LedgerAccounting ---

func (e *Engine) Mint(ctx context.Context, caller, addr ledger.Address, amount *big.Int) error {
	_, err := e.do(ctx, "Mint", func(st *ledger.State) (any, *event.Change, error) {
		if err := st.Mint(caller, addr, amount); err != nil {
			return nil, nil, err
		}
		return nil, &event.Change{
			Type:   event.ChangeTypeMinted,
			Caller: caller.Hex(),
			Addr:   addr.Hex(),
			Amount: amount.String(),
		}, nil
	})
	return err
}

func (e *Engine) Burn(ctx context.Context, caller, addr ledger.Address, amount *big.Int) error {
	_, err := e.do(ctx, "Burn", func(st *ledger.State) (any, *event.Change, error) {
		if err := st.Burn(caller, addr, amount); err != nil {
			return nil, nil, err
		}
		return nil, &event.Change{
			Type:   event.ChangeTypeBurned,
			Caller: caller.Hex(),
			Addr:   addr.Hex(),
			Amount: amount.String(),
		}, nil
	})
	return err
}

func (e *Engine) BalanceOf(ctx context.Context, addr ledger.Address) (*big.Int, error) {
	val, err := e.do(ctx, "BalanceOf", func(st *ledger.State) (any, *event.Change, error) {
		return st.BalanceOf(addr), nil, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*big.Int), nil
}

func (e *Engine) TotalSupply(ctx context.Context) (*big.Int, error) {
	val, err := e.do(ctx, "TotalSupply", func(st *ledger.State) (any, *event.Change, error) {
		return st.TotalSupply(), nil, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*big.Int), nil
}

func (e *Engine) SetTotalInPositions(ctx context.Context, caller ledger.Address, v *big.Int) error {
	_, err := e.do(ctx, "SetTotalInPositions", func(st *ledger.State) (any, *event.Change, error) {
		if err := st.SetTotalInPositions(caller, v); err != nil {
			return nil, nil, err
		}
		return nil, &event.Change{
			Type:   event.ChangeTypeTotalInPositionsSet,
			Caller: caller.Hex(),
			Value:  v.String(),
		}, nil
	})
	return err
}

func (e *Engine) TotalInPositions(ctx context.Context) (*big.Int, error) {
	val, err := e.do(ctx, "TotalInPositions", func(st *ledger.State) (any, *event.Change, error) {
		return st.TotalInPositions(), nil, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*big.Int), nil
}

// --- PositionStore ---

func (e *Engine) SetPosition(ctx context.Context, caller, holder ledger.Address, market ledger.Hash, pos ledger.Position) error {
	_, err := e.do(ctx, "SetPosition", func(st *ledger.State) (any, *event.Change, error) {
		if err := st.SetPosition(caller, holder, market, pos); err != nil {
			return nil, nil, err
		}
		return nil, &event.Change{
			Type:   event.ChangeTypePositionSet,
			Caller: caller.Hex(),
			Market: market.Hex(),
			Position: &event.PositionChange{
				Holder:            holder.Hex(),
				Timestamp:         pos.Timestamp,
				LongShares:        pos.LongShares.String(),
				ShortShares:       pos.ShortShares.String(),
				MeanEntryPrice:    pos.MeanEntryPrice.String(),
				MeanEntrySpread:   pos.MeanEntrySpread.String(),
				MeanEntryLeverage: pos.MeanEntryLeverage.String(),
				LiquidationPrice:  pos.LiquidationPrice.String(),
			},
		}, nil
	})
	return err
}

func (e *Engine) GetPosition(ctx context.Context, holder ledger.Address, market ledger.Hash) (ledger.Position, error) {
	val, err := e.do(ctx, "GetPosition", func(st *ledger.State) (any, *event.Change, error) {
		return st.GetPosition(holder, market), nil, nil
	})
	if err != nil {
		return ledger.Position{}, err
	}
	return val.(ledger.Position), nil
}

// --- BridgeAnchor ---

func (e *Engine) SetSideChainMerkleRoot(ctx context.Context, caller ledger.Address, root ledger.Hash) error {
	_, err := e.do(ctx, "SetSideChainMerkleRoot", func(st *ledger.State) (any, *event.Change, error) {
		if err := st.SetSideChainMerkleRoot(caller, root); err != nil {
			return nil, nil, err
		}
		return nil, &event.Change{
			Type:   event.ChangeTypeMerkleRootSet,
			Caller: caller.Hex(),
			Root:   root.Hex(),
		}, nil
	})
	return err
}

func (e *Engine) SideChainMerkleRoot(ctx context.Context) (ledger.Hash, error) {
	val, err := e.do(ctx, "SideChainMerkleRoot", func(st *ledger.State) (any, *event.Change, error) {
		return st.SideChainMerkleRoot(), nil, nil
	})
	if err != nil {
		return ledger.Hash{}, err
	}
	return val.(ledger.Hash), nil
}

// --- Snapshot & introspection ---

// StartSequence returns the sequence position before Run starts. Only
// meaningful during startup, when replay decides where to resume.
func (e *Engine) StartSequence() int64 {
	return e.sequence
}

// Sequence returns the last assigned change sequence.
func (e *Engine) Sequence(ctx context.Context) (int64, error) {
	val, err := e.do(ctx, "Sequence", func(st *ledger.State) (any, *event.Change, error) {
		return e.sequence, nil, nil
	})
	if err != nil {
		return 0, err
	}
	return val.(int64), nil
}

// CreateSnapshot captures the full state through the command loop, so
// the snapshot observes no half-applied mutation.
func (e *Engine) CreateSnapshot(ctx context.Context) (*Snapshot, error) {
	val, err := e.do(ctx, "CreateSnapshot", func(st *ledger.State) (any, *event.Change, error) {
		hash := e.hasher.GetPrevHash()
		return &Snapshot{
			Sequence:  e.sequence,
			StateHash: hash[:],
			State:     st.Export(),
			CreatedAt: time.Now().UTC(),
		}, nil, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*Snapshot), nil
}
