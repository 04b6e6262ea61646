package ledger

import (
	"math/big"
	"testing"
)

func samplePosition() Position {
	return Position{
		Timestamp:         12345,
		LongShares:        big.NewInt(2000),
		ShortShares:       big.NewInt(0),
		MeanEntryPrice:    big.NewInt(200),
		MeanEntrySpread:   big.NewInt(1),
		MeanEntryLeverage: big.NewInt(100_000_000),
		LiquidationPrice:  big.NewInt(190),
	}
}

func TestSetAndGetPosition(t *testing.T) {
	platform := addr(1)
	holder := addr(2)
	st := NewState(platform)
	market := marketID(1)

	if err := st.SetPosition(platform, holder, market, samplePosition()); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}

	got := st.GetPosition(holder, market)
	if got.Timestamp != 12345 {
		t.Errorf("timestamp = %d, want 12345", got.Timestamp)
	}
	if got.LongShares.Cmp(big.NewInt(2000)) != 0 {
		t.Errorf("longShares = %s, want 2000", got.LongShares)
	}
	if got.MeanEntryPrice.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("meanEntryPrice = %s, want 200", got.MeanEntryPrice)
	}
	if got.LiquidationPrice.Cmp(big.NewInt(190)) != 0 {
		t.Errorf("liquidationPrice = %s, want 190", got.LiquidationPrice)
	}
	if got.IsClosed() {
		t.Error("position with long shares should not count as closed")
	}
}

func TestGetPositionUnknownReturnsZeroRecord(t *testing.T) {
	st := NewState(addr(1))

	got := st.GetPosition(addr(2), marketID(1))
	if got.Timestamp != 0 {
		t.Errorf("timestamp = %d, want 0", got.Timestamp)
	}
	for name, v := range map[string]*big.Int{
		"longShares":        got.LongShares,
		"shortShares":       got.ShortShares,
		"meanEntryPrice":    got.MeanEntryPrice,
		"meanEntrySpread":   got.MeanEntrySpread,
		"meanEntryLeverage": got.MeanEntryLeverage,
		"liquidationPrice":  got.LiquidationPrice,
	} {
		if v == nil || v.Sign() != 0 {
			t.Errorf("%s = %v, want 0", name, v)
		}
	}
	if !got.IsClosed() {
		t.Error("zero record should count as closed")
	}
}

func TestSetPositionOverwritesAllFields(t *testing.T) {
	platform := addr(1)
	holder := addr(2)
	st := NewState(platform)
	market := marketID(1)

	if err := st.SetPosition(platform, holder, market, samplePosition()); err != nil {
		t.Fatal(err)
	}

	// Close out: every field replaced, none merged.
	closed := NewPosition()
	closed.Timestamp = 99999
	if err := st.SetPosition(platform, holder, market, closed); err != nil {
		t.Fatal(err)
	}

	got := st.GetPosition(holder, market)
	if got.Timestamp != 99999 {
		t.Errorf("timestamp = %d, want 99999", got.Timestamp)
	}
	if got.MeanEntryPrice.Sign() != 0 {
		t.Errorf("meanEntryPrice = %s, want 0 after overwrite", got.MeanEntryPrice)
	}
	if !got.IsClosed() {
		t.Error("position should count as closed")
	}
}

func TestPositionsKeyedPerHolderAndMarket(t *testing.T) {
	platform := addr(1)
	st := NewState(platform)

	a, b := addr(2), addr(3)
	m1, m2 := marketID(1), marketID(2)

	pos := samplePosition()
	if err := st.SetPosition(platform, a, m1, pos); err != nil {
		t.Fatal(err)
	}

	if got := st.GetPosition(a, m2); !got.IsClosed() {
		t.Error("same holder, different market should be independent")
	}
	if got := st.GetPosition(b, m1); !got.IsClosed() {
		t.Error("different holder, same market should be independent")
	}
}

func TestSetPositionGuards(t *testing.T) {
	deployer := addr(1)
	admin := addr(2)
	st := NewState(deployer)
	if err := st.SetAdministrator(deployer, admin); err != nil {
		t.Fatal(err)
	}

	if err := st.SetPosition(addr(9), addr(3), marketID(1), samplePosition()); err == nil || err.Error() != "Only Platform" {
		t.Errorf("non-member SetPosition = %v, want Only Platform", err)
	}

	if err := st.Pause(admin); err != nil {
		t.Fatal(err)
	}
	if err := st.SetPosition(deployer, addr(3), marketID(1), samplePosition()); err != ErrPaused {
		t.Errorf("SetPosition while paused = %v, want %v", err, ErrPaused)
	}
}

func TestSetPositionValidatesFields(t *testing.T) {
	platform := addr(1)
	st := NewState(platform)

	pos := samplePosition()
	pos.ShortShares = big.NewInt(-1)
	if err := st.SetPosition(platform, addr(2), marketID(1), pos); !IsRange(err) {
		t.Errorf("negative shortShares = %v, want range error", err)
	}

	pos = samplePosition()
	pos.LiquidationPrice = nil
	if err := st.SetPosition(platform, addr(2), marketID(1), pos); !IsRange(err) {
		t.Errorf("nil liquidationPrice = %v, want range error", err)
	}
}

func TestStoredPositionDoesNotAliasCallerMemory(t *testing.T) {
	platform := addr(1)
	holder := addr(2)
	st := NewState(platform)
	market := marketID(1)

	pos := samplePosition()
	if err := st.SetPosition(platform, holder, market, pos); err != nil {
		t.Fatal(err)
	}

	pos.LongShares.SetInt64(0)

	if got := st.GetPosition(holder, market); got.LongShares.Cmp(big.NewInt(2000)) != 0 {
		t.Error("mutating the submitted record must not touch stored state")
	}
}
