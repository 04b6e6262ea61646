package ledger

import "math/big"

// Position is one holder's net exposure in one market: long/short share
// counts, the volume-weighted entry price and spread paid, the weighted
// leverage applied, and the forced-close price. A position is never
// deleted; it counts as closed once both share counts are zero.
type Position struct {
	Timestamp         int64
	LongShares        *big.Int
	ShortShares       *big.Int
	MeanEntryPrice    *big.Int
	MeanEntrySpread   *big.Int
	MeanEntryLeverage *big.Int
	LiquidationPrice  *big.Int
}

// NewPosition returns a zero record, the shape GetPosition reports for
// an unknown (holder, market) pair.
func NewPosition() Position {
	return Position{
		LongShares:        new(big.Int),
		ShortShares:       new(big.Int),
		MeanEntryPrice:    new(big.Int),
		MeanEntrySpread:   new(big.Int),
		MeanEntryLeverage: new(big.Int),
		LiquidationPrice:  new(big.Int),
	}
}

// IsClosed reports whether both share counts are zero.
func (p Position) IsClosed() bool {
	return p.LongShares.Sign() == 0 && p.ShortShares.Sign() == 0
}

// clone deep-copies the record so stored state never aliases caller
// memory.
func (p Position) clone() Position {
	return Position{
		Timestamp:         p.Timestamp,
		LongShares:        new(big.Int).Set(p.LongShares),
		ShortShares:       new(big.Int).Set(p.ShortShares),
		MeanEntryPrice:    new(big.Int).Set(p.MeanEntryPrice),
		MeanEntrySpread:   new(big.Int).Set(p.MeanEntrySpread),
		MeanEntryLeverage: new(big.Int).Set(p.MeanEntryLeverage),
		LiquidationPrice:  new(big.Int).Set(p.LiquidationPrice),
	}
}

// validate rejects nil or negative fields before any write.
func (p Position) validate() error {
	fields := []struct {
		name string
		v    *big.Int
	}{
		{"longShares", p.LongShares},
		{"shortShares", p.ShortShares},
		{"meanEntryPrice", p.MeanEntryPrice},
		{"meanEntrySpread", p.MeanEntrySpread},
		{"meanEntryLeverage", p.MeanEntryLeverage},
		{"liquidationPrice", p.LiquidationPrice},
	}
	for _, f := range fields {
		if err := requireUnsigned(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

// CanonicalBytes returns a deterministic serialization for state
// hashing. Big integers are length-prefixed big-endian.
func (p Position) CanonicalBytes() []byte {
	buf := make([]byte, 0, 128)
	buf = appendInt64LE(buf, p.Timestamp)
	buf = appendBigInt(buf, p.LongShares)
	buf = appendBigInt(buf, p.ShortShares)
	buf = appendBigInt(buf, p.MeanEntryPrice)
	buf = appendBigInt(buf, p.MeanEntrySpread)
	buf = appendBigInt(buf, p.MeanEntryLeverage)
	buf = appendBigInt(buf, p.LiquidationPrice)
	return buf
}

// SetPosition replaces the entire record at (holder, market). No field
// merging: every call overwrites all seven fields. The ledger does not
// validate against activeMarkets or maxLeverage — those checks belong
// to the trade engine before it calls in.
func (s *State) SetPosition(caller, holder Address, market Hash, pos Position) error {
	if err := s.requirePlatform(caller); err != nil {
		return err
	}
	if err := s.requireUnpaused(); err != nil {
		return err
	}
	if err := pos.validate(); err != nil {
		return err
	}
	s.positions[positionKey{holder: holder, market: market}] = pos.clone()
	return nil
}

// GetPosition returns the full record, a zero record for unknown keys.
// Unrestricted read.
func (s *State) GetPosition(holder Address, market Hash) Position {
	if pos, ok := s.positions[positionKey{holder: holder, market: market}]; ok {
		return pos.clone()
	}
	return NewPosition()
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

func appendBigInt(buf []byte, v *big.Int) []byte {
	b := v.Bytes()
	buf = append(buf, byte(len(b)))
	return append(buf, b...)
}
