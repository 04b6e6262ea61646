package ledger

import "math/big"

// Mint credits addr and grows total supply. Any access-set member may
// mint; the registry trusts that only legitimate Platform modules are
// ever granted membership.
func (s *State) Mint(caller, addr Address, amount *big.Int) error {
	if err := s.requirePlatform(caller); err != nil {
		return err
	}
	if err := s.requireUnpaused(); err != nil {
		return err
	}
	if err := requireUnsigned("amount", amount); err != nil {
		return err
	}
	balance, ok := s.balances[addr]
	if !ok {
		balance = new(big.Int)
		s.balances[addr] = balance
	}
	balance.Add(balance, amount)
	s.totalSupply.Add(s.totalSupply, amount)
	return nil
}

// Burn debits addr and shrinks total supply. Fails when the amount
// exceeds the current balance; the ledger never holds a negative
// balance.
func (s *State) Burn(caller, addr Address, amount *big.Int) error {
	if err := s.requirePlatform(caller); err != nil {
		return err
	}
	if err := s.requireUnpaused(); err != nil {
		return err
	}
	if err := requireUnsigned("amount", amount); err != nil {
		return err
	}
	balance, ok := s.balances[addr]
	if !ok || balance.Cmp(amount) < 0 {
		have := new(big.Int)
		if ok {
			have.Set(balance)
		}
		return &InsufficientBalanceError{
			Addr:    addr,
			Balance: have,
			Amount:  new(big.Int).Set(amount),
		}
	}
	balance.Sub(balance, amount)
	if balance.Sign() == 0 {
		delete(s.balances, addr)
	}
	s.totalSupply.Sub(s.totalSupply, amount)
	return nil
}

// BalanceOf returns the balance, zero for unknown addresses.
// Unrestricted read.
func (s *State) BalanceOf(addr Address) *big.Int {
	if balance, ok := s.balances[addr]; ok {
		return new(big.Int).Set(balance)
	}
	return new(big.Int)
}

// TotalSupply returns total minted minus total burned.
func (s *State) TotalSupply() *big.Int {
	return new(big.Int).Set(s.totalSupply)
}

// SetTotalInPositions overwrites the aggregate cash locked in open
// positions. Overwrite, not additive; the administrator submits the
// figure computed off-ledger.
func (s *State) SetTotalInPositions(caller Address, v *big.Int) error {
	if err := s.requireAdministrator(caller); err != nil {
		return err
	}
	if err := requireUnsigned("totalInPositions", v); err != nil {
		return err
	}
	s.totalInPositions = new(big.Int).Set(v)
	return nil
}

// TotalInPositions returns the aggregate. Unrestricted read.
func (s *State) TotalInPositions() *big.Int {
	return new(big.Int).Set(s.totalInPositions)
}
