package ledger

import (
	"math/big"
	"strconv"
)

// ActivateMarket marks a market identifier as tradeable.
func (s *State) ActivateMarket(caller Address, market Hash) error {
	if err := s.requireAdministrator(caller); err != nil {
		return err
	}
	s.activeMarkets[market] = struct{}{}
	return nil
}

// DeactivateMarket removes a market from the active set. Deactivating
// one market never touches another market's membership.
func (s *State) DeactivateMarket(caller Address, market Hash) error {
	if err := s.requireAdministrator(caller); err != nil {
		return err
	}
	delete(s.activeMarkets, market)
	return nil
}

// MarketActive reports membership; unknown markets default to false.
// Unrestricted read.
func (s *State) MarketActive(market Hash) bool {
	_, ok := s.activeMarkets[market]
	return ok
}

// ActiveMarkets returns the current active set. Order is unspecified.
func (s *State) ActiveMarkets() []Hash {
	markets := make([]Hash, 0, len(s.activeMarkets))
	for m := range s.activeMarkets {
		markets = append(markets, m)
	}
	return markets
}

// SetMaximumLeverage overwrites the scaled fixed-point leverage cap.
// The ledger records the cap; enforcing it against submitted positions
// is the trade engine's job.
func (s *State) SetMaximumLeverage(caller Address, v *big.Int) error {
	if err := s.requireAdministrator(caller); err != nil {
		return err
	}
	if err := requireUnsigned("maxLeverage", v); err != nil {
		return err
	}
	s.maxLeverage = new(big.Int).Set(v)
	return nil
}

// MaximumLeverage returns the leverage cap. Unrestricted read.
func (s *State) MaximumLeverage() *big.Int {
	return new(big.Int).Set(s.maxLeverage)
}

// SetRewardBasisPoints overwrites the reward rate. Values above the
// configured ceiling are rejected; values within range are accepted
// verbatim.
func (s *State) SetRewardBasisPoints(caller Address, v uint64) error {
	if err := s.requireGovernance(caller); err != nil {
		return err
	}
	if v > s.basisPointMax {
		return &RangeError{
			Field: "rewardBasisPoints",
			Value: strconv.FormatUint(v, 10),
			Max:   strconv.FormatUint(s.basisPointMax, 10),
		}
	}
	s.rewardBasisPoints = v
	return nil
}

// RewardBasisPoints returns the reward rate. Unrestricted read.
func (s *State) RewardBasisPoints() uint64 { return s.rewardBasisPoints }

// requireUnsigned rejects nil and negative values. All ledger
// quantities are unsigned integers.
func requireUnsigned(field string, v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		value := "nil"
		if v != nil {
			value = v.String()
		}
		return &RangeError{Field: field, Value: value}
	}
	return nil
}
