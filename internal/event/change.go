package event

import "time"

// ChangeType discriminates applied ledger mutations.
type ChangeType int32

const (
	ChangeTypeUnknown ChangeType = iota
	ChangeTypeAccessGranted
	ChangeTypeAccessRevoked
	ChangeTypeGovernanceSet
	ChangeTypeAdministratorSet
	ChangeTypeBridgeSet
	ChangeTypeRewardAddressSet
	ChangeTypePaused
	ChangeTypeUnpaused
	ChangeTypeMarketActivated
	ChangeTypeMarketDeactivated
	ChangeTypeMaxLeverageSet
	ChangeTypeRewardBasisPointsSet
	ChangeTypeMinted
	ChangeTypeBurned
	ChangeTypeTotalInPositionsSet
	ChangeTypePositionSet
	ChangeTypeMerkleRootSet
)

func (ct ChangeType) String() string {
	switch ct {
	case ChangeTypeAccessGranted:
		return "AccessGranted"
	case ChangeTypeAccessRevoked:
		return "AccessRevoked"
	case ChangeTypeGovernanceSet:
		return "GovernanceSet"
	case ChangeTypeAdministratorSet:
		return "AdministratorSet"
	case ChangeTypeBridgeSet:
		return "BridgeSet"
	case ChangeTypeRewardAddressSet:
		return "RewardAddressSet"
	case ChangeTypePaused:
		return "Paused"
	case ChangeTypeUnpaused:
		return "Unpaused"
	case ChangeTypeMarketActivated:
		return "MarketActivated"
	case ChangeTypeMarketDeactivated:
		return "MarketDeactivated"
	case ChangeTypeMaxLeverageSet:
		return "MaxLeverageSet"
	case ChangeTypeRewardBasisPointsSet:
		return "RewardBasisPointsSet"
	case ChangeTypeMinted:
		return "Minted"
	case ChangeTypeBurned:
		return "Burned"
	case ChangeTypeTotalInPositionsSet:
		return "TotalInPositionsSet"
	case ChangeTypePositionSet:
		return "PositionSet"
	case ChangeTypeMerkleRootSet:
		return "MerkleRootSet"
	default:
		return "Unknown"
	}
}

// Change describes one applied ledger mutation: which operation ran,
// who called it, and the arguments it carried. Big integers travel as
// decimal strings; addresses and hashes as 0x hex. Only the fields
// relevant to the operation are set.
type Change struct {
	Type   ChangeType `json:"type"`
	Caller string     `json:"caller"`

	// Target address for role, access and balance operations.
	Addr string `json:"addr,omitempty"`

	// Market identifier for market and position operations.
	Market string `json:"market,omitempty"`

	// Token amount for mint/burn.
	Amount string `json:"amount,omitempty"`

	// Configuration value for leverage / totalInPositions overwrites.
	Value string `json:"value,omitempty"`

	// Reward rate for basis-point updates.
	BasisPoints uint64 `json:"basis_points,omitempty"`

	// Anchored merkle root.
	Root string `json:"root,omitempty"`

	// Full submitted record for position overwrites.
	Position *PositionChange `json:"position,omitempty"`
}

// PositionChange is the wholesale position record submitted with a
// PositionSet change.
type PositionChange struct {
	Holder            string `json:"holder"`
	Timestamp         int64  `json:"timestamp"`
	LongShares        string `json:"long_shares"`
	ShortShares       string `json:"short_shares"`
	MeanEntryPrice    string `json:"mean_entry_price"`
	MeanEntrySpread   string `json:"mean_entry_spread"`
	MeanEntryLeverage string `json:"mean_entry_leverage"`
	LiquidationPrice  string `json:"liquidation_price"`
}

// Record wraps a Change in the change log: the global sequence the core
// assigned, the state-hash chain, and the apply timestamp.
type Record struct {
	Sequence  int64
	Change    *Change
	Timestamp time.Time

	// SHA-256 of the state AFTER applying this change.
	StateHash [32]byte

	// Previous record's state hash (chain integrity).
	PrevHash [32]byte
}
