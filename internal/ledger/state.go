package ledger

import "math/big"

// DefaultBasisPointMax is the reward-rate ceiling in basis points.
// 10000 = 100%; the protocol permits headroom above par for bonus
// schemes, so the default sits at 150%. Overridable at construction.
const DefaultBasisPointMax uint64 = 15000

// State is the authoritative ledger for the synthetic-asset protocol:
// role assignments, pause flag, market registry, risk parameters, token
// accounting, open positions and the cross-chain anchor.
//
// State is not safe for concurrent use. It assumes a single global total
// order of calls; the core engine serializes access through one writer
// goroutine. Every mutating method validates fully before its first
// write, so a failed call leaves no partial state behind.
type State struct {
	accessSet     map[Address]struct{}
	governance    Address
	administrator Address
	bridge        Address
	rewards       Address

	paused bool

	activeMarkets     map[Hash]struct{}
	maxLeverage       *big.Int
	rewardBasisPoints uint64
	basisPointMax     uint64

	balances         map[Address]*big.Int
	totalSupply      *big.Int
	totalInPositions *big.Int

	positions map[positionKey]Position

	sideChainMerkleRoot Hash
}

type positionKey struct {
	holder Address
	market Hash
}

// NewState bootstraps the ledger. The deploying identity becomes the
// first access-set member and the initial governance, so the access set
// is never empty and governance can appoint the remaining roles.
func NewState(deployer Address) *State {
	return NewStateWithBasisPointMax(deployer, DefaultBasisPointMax)
}

// NewStateWithBasisPointMax bootstraps the ledger with an explicit
// reward-rate ceiling.
func NewStateWithBasisPointMax(deployer Address, basisPointMax uint64) *State {
	s := &State{
		accessSet:        make(map[Address]struct{}),
		governance:       deployer,
		activeMarkets:    make(map[Hash]struct{}),
		maxLeverage:      new(big.Int),
		basisPointMax:    basisPointMax,
		balances:         make(map[Address]*big.Int),
		totalSupply:      new(big.Int),
		totalInPositions: new(big.Int),
		positions:        make(map[positionKey]Position),
	}
	s.accessSet[deployer] = struct{}{}
	return s
}

// --- Role guards ---

func (s *State) requirePlatform(caller Address) error {
	if _, ok := s.accessSet[caller]; !ok {
		return ErrOnlyPlatform
	}
	return nil
}

func (s *State) requireAdministrator(caller Address) error {
	if caller != s.administrator || caller.IsZero() {
		return ErrNotAdministrator
	}
	return nil
}

func (s *State) requireGovernance(caller Address) error {
	if caller != s.governance || caller.IsZero() {
		return ErrNotGovernance
	}
	return nil
}

func (s *State) requireBridge(caller Address) error {
	if caller != s.bridge || caller.IsZero() {
		return ErrNotBridge
	}
	return nil
}

func (s *State) requireUnpaused() error {
	if s.paused {
		return ErrPaused
	}
	return nil
}

// --- AccessRegistry ---

// GrantAccess adds addr to the access set. Only an existing member may
// extend the set.
func (s *State) GrantAccess(caller, addr Address) error {
	if err := s.requirePlatform(caller); err != nil {
		return err
	}
	s.accessSet[addr] = struct{}{}
	return nil
}

// RevokeAccess removes addr from the access set, guarded the same way
// as GrantAccess.
func (s *State) RevokeAccess(caller, addr Address) error {
	if err := s.requirePlatform(caller); err != nil {
		return err
	}
	delete(s.accessSet, addr)
	return nil
}

// HasAccess reports access-set membership. Unrestricted read.
func (s *State) HasAccess(addr Address) bool {
	_, ok := s.accessSet[addr]
	return ok
}

// AccessSet returns the current members. Order is unspecified.
func (s *State) AccessSet() []Address {
	members := make([]Address, 0, len(s.accessSet))
	for a := range s.accessSet {
		members = append(members, a)
	}
	return members
}

// SetGovernance replaces the governance address. Authority of last
// resort; only current governance may hand it over.
func (s *State) SetGovernance(caller, addr Address) error {
	if err := s.requireGovernance(caller); err != nil {
		return err
	}
	s.governance = addr
	return nil
}

// SetAdministrator appoints the operational administrator.
func (s *State) SetAdministrator(caller, addr Address) error {
	if err := s.requireGovernance(caller); err != nil {
		return err
	}
	s.administrator = addr
	return nil
}

// SetBridge appoints the cross-chain bridge role.
func (s *State) SetBridge(caller, addr Address) error {
	if err := s.requireGovernance(caller); err != nil {
		return err
	}
	s.bridge = addr
	return nil
}

// SetRewardAddress records the rewards collaborator's address. Pure
// record; the ledger never calls it.
func (s *State) SetRewardAddress(caller, addr Address) error {
	if err := s.requireGovernance(caller); err != nil {
		return err
	}
	s.rewards = addr
	return nil
}

func (s *State) Governance() Address     { return s.governance }
func (s *State) Administrator() Address  { return s.administrator }
func (s *State) Bridge() Address         { return s.bridge }
func (s *State) RewardsAddress() Address { return s.rewards }

// --- PauseSwitch ---

// Pause blocks Platform-level mutations until Unpause. Administrator-
// and governance-gated configuration calls stay available so the
// operator can reconfigure and unpause.
func (s *State) Pause(caller Address) error {
	if err := s.requireAdministrator(caller); err != nil {
		return err
	}
	s.paused = true
	return nil
}

// Unpause re-opens Platform-level mutations.
func (s *State) Unpause(caller Address) error {
	if err := s.requireAdministrator(caller); err != nil {
		return err
	}
	s.paused = false
	return nil
}

// Paused reports the gate. Unrestricted read.
func (s *State) Paused() bool { return s.paused }

// BasisPointMax returns the configured reward-rate ceiling.
func (s *State) BasisPointMax() uint64 { return s.basisPointMax }
