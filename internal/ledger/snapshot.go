package ledger

import (
	"fmt"
	"math/big"
)

// StateSnapshot is the JSON-serializable form of the full ledger state,
// used for periodic snapshots and warm restarts. Big integers travel as
// decimal strings to keep arbitrary precision through encoding.
type StateSnapshot struct {
	AccessSet     []string `json:"access_set"`
	Governance    string   `json:"governance"`
	Administrator string   `json:"administrator"`
	Bridge        string   `json:"bridge"`
	Rewards       string   `json:"rewards"`

	Paused bool `json:"paused"`

	ActiveMarkets     []string `json:"active_markets"`
	MaxLeverage       string   `json:"max_leverage"`
	RewardBasisPoints uint64   `json:"reward_basis_points"`
	BasisPointMax     uint64   `json:"basis_point_max"`

	Balances         map[string]string `json:"balances"`
	TotalSupply      string            `json:"total_supply"`
	TotalInPositions string            `json:"total_in_positions"`

	Positions []PositionSnapshot `json:"positions"`

	SideChainMerkleRoot string `json:"side_chain_merkle_root"`
}

// PositionSnapshot is a serializable position record.
type PositionSnapshot struct {
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

// Export captures the current state.
func (s *State) Export() *StateSnapshot {
	snap := &StateSnapshot{
		Governance:          s.governance.Hex(),
		Administrator:       s.administrator.Hex(),
		Bridge:              s.bridge.Hex(),
		Rewards:             s.rewards.Hex(),
		Paused:              s.paused,
		MaxLeverage:         s.maxLeverage.String(),
		RewardBasisPoints:   s.rewardBasisPoints,
		BasisPointMax:       s.basisPointMax,
		Balances:            make(map[string]string, len(s.balances)),
		TotalSupply:         s.totalSupply.String(),
		TotalInPositions:    s.totalInPositions.String(),
		SideChainMerkleRoot: s.sideChainMerkleRoot.Hex(),
	}
	for a := range s.accessSet {
		snap.AccessSet = append(snap.AccessSet, a.Hex())
	}
	for m := range s.activeMarkets {
		snap.ActiveMarkets = append(snap.ActiveMarkets, m.Hex())
	}
	for a, b := range s.balances {
		snap.Balances[a.Hex()] = b.String()
	}
	for k, p := range s.positions {
		snap.Positions = append(snap.Positions, PositionSnapshot{
			Holder:            k.holder.Hex(),
			Market:            k.market.Hex(),
			Timestamp:         p.Timestamp,
			LongShares:        p.LongShares.String(),
			ShortShares:       p.ShortShares.String(),
			MeanEntryPrice:    p.MeanEntryPrice.String(),
			MeanEntrySpread:   p.MeanEntrySpread.String(),
			MeanEntryLeverage: p.MeanEntryLeverage.String(),
			LiquidationPrice:  p.LiquidationPrice.String(),
		})
	}
	return snap
}

// RestoreState rebuilds a State from a snapshot.
func RestoreState(snap *StateSnapshot) (*State, error) {
	governance, err := ParseAddress(snap.Governance)
	if err != nil {
		return nil, fmt.Errorf("governance: %w", err)
	}
	s := NewStateWithBasisPointMax(governance, snap.BasisPointMax)
	delete(s.accessSet, governance) // membership comes from the snapshot

	if s.administrator, err = ParseAddress(snap.Administrator); err != nil {
		return nil, fmt.Errorf("administrator: %w", err)
	}
	if s.bridge, err = ParseAddress(snap.Bridge); err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	if s.rewards, err = ParseAddress(snap.Rewards); err != nil {
		return nil, fmt.Errorf("rewards: %w", err)
	}
	s.paused = snap.Paused
	s.rewardBasisPoints = snap.RewardBasisPoints

	for _, hex := range snap.AccessSet {
		a, err := ParseAddress(hex)
		if err != nil {
			return nil, fmt.Errorf("access set: %w", err)
		}
		s.accessSet[a] = struct{}{}
	}
	for _, hex := range snap.ActiveMarkets {
		m, err := ParseHash(hex)
		if err != nil {
			return nil, fmt.Errorf("active markets: %w", err)
		}
		s.activeMarkets[m] = struct{}{}
	}

	if s.maxLeverage, err = parseBig("max_leverage", snap.MaxLeverage); err != nil {
		return nil, err
	}
	if s.totalSupply, err = parseBig("total_supply", snap.TotalSupply); err != nil {
		return nil, err
	}
	if s.totalInPositions, err = parseBig("total_in_positions", snap.TotalInPositions); err != nil {
		return nil, err
	}

	for addrHex, balStr := range snap.Balances {
		a, err := ParseAddress(addrHex)
		if err != nil {
			return nil, fmt.Errorf("balances: %w", err)
		}
		b, err := parseBig("balance", balStr)
		if err != nil {
			return nil, err
		}
		s.balances[a] = b
	}

	for _, ps := range snap.Positions {
		holder, err := ParseAddress(ps.Holder)
		if err != nil {
			return nil, fmt.Errorf("position holder: %w", err)
		}
		market, err := ParseHash(ps.Market)
		if err != nil {
			return nil, fmt.Errorf("position market: %w", err)
		}
		pos := Position{Timestamp: ps.Timestamp}
		if pos.LongShares, err = parseBig("long_shares", ps.LongShares); err != nil {
			return nil, err
		}
		if pos.ShortShares, err = parseBig("short_shares", ps.ShortShares); err != nil {
			return nil, err
		}
		if pos.MeanEntryPrice, err = parseBig("mean_entry_price", ps.MeanEntryPrice); err != nil {
			return nil, err
		}
		if pos.MeanEntrySpread, err = parseBig("mean_entry_spread", ps.MeanEntrySpread); err != nil {
			return nil, err
		}
		if pos.MeanEntryLeverage, err = parseBig("mean_entry_leverage", ps.MeanEntryLeverage); err != nil {
			return nil, err
		}
		if pos.LiquidationPrice, err = parseBig("liquidation_price", ps.LiquidationPrice); err != nil {
			return nil, err
		}
		s.positions[positionKey{holder: holder, market: market}] = pos
	}

	if s.sideChainMerkleRoot, err = ParseHash(snap.SideChainMerkleRoot); err != nil {
		return nil, fmt.Errorf("merkle root: %w", err)
	}
	return s, nil
}

func parseBig(field, v string) (*big.Int, error) {
	if v == "" {
		return new(big.Int), nil
	}
	b, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid integer %q", field, v)
	}
	return b, nil
}
