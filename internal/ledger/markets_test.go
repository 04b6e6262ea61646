package ledger

import (
	"math/big"
	"testing"
)

func TestMarketActivation(t *testing.T) {
	deployer := addr(1)
	admin := addr(2)
	st := NewState(deployer)
	if err := st.SetAdministrator(deployer, admin); err != nil {
		t.Fatal(err)
	}

	btc := marketID(1)
	eth := marketID(2)

	if st.MarketActive(btc) {
		t.Error("unknown market should default to inactive")
	}

	if err := st.ActivateMarket(admin, btc); err != nil {
		t.Fatalf("ActivateMarket: %v", err)
	}
	if err := st.ActivateMarket(admin, eth); err != nil {
		t.Fatal(err)
	}
	if !st.MarketActive(btc) || !st.MarketActive(eth) {
		t.Error("both markets should be active")
	}

	// Re-activation is idempotent.
	if err := st.ActivateMarket(admin, btc); err != nil {
		t.Errorf("re-activation: %v", err)
	}

	if err := st.DeactivateMarket(admin, btc); err != nil {
		t.Fatalf("DeactivateMarket: %v", err)
	}
	if st.MarketActive(btc) {
		t.Error("btc should be inactive after deactivation")
	}
	if !st.MarketActive(eth) {
		t.Error("deactivating one market must not touch another")
	}

	if err := st.ActivateMarket(deployer, marketID(3)); err == nil {
		t.Error("non-administrator should not activate markets")
	}
}

func TestSetMaximumLeverage(t *testing.T) {
	deployer := addr(1)
	admin := addr(2)
	st := NewState(deployer)
	if err := st.SetAdministrator(deployer, admin); err != nil {
		t.Fatal(err)
	}

	v := big.NewInt(500_000_000) // 5x at 1e8 scale
	if err := st.SetMaximumLeverage(admin, v); err != nil {
		t.Fatalf("SetMaximumLeverage: %v", err)
	}
	if got := st.MaximumLeverage(); got.Cmp(v) != 0 {
		t.Errorf("maxLeverage = %s, want %s", got, v)
	}

	// Stored value must not alias caller memory.
	v.SetInt64(1)
	if got := st.MaximumLeverage(); got.Cmp(big.NewInt(500_000_000)) != 0 {
		t.Error("mutating the submitted value must not touch ledger state")
	}

	if err := st.SetMaximumLeverage(admin, big.NewInt(-1)); !IsRange(err) {
		t.Errorf("negative leverage = %v, want range error", err)
	}
}

func TestSetRewardBasisPoints(t *testing.T) {
	deployer := addr(1)
	st := NewState(deployer)

	if err := st.SetRewardBasisPoints(deployer, 14_000); err != nil {
		t.Fatalf("SetRewardBasisPoints(14000): %v", err)
	}
	if got := st.RewardBasisPoints(); got != 14_000 {
		t.Errorf("rewardBasisPoints = %d, want 14000", got)
	}

	err := st.SetRewardBasisPoints(deployer, 65_000)
	if !IsRange(err) {
		t.Fatalf("SetRewardBasisPoints(65000) = %v, want range error", err)
	}
	// Rejected write leaves the previous value.
	if got := st.RewardBasisPoints(); got != 14_000 {
		t.Errorf("rewardBasisPoints after rejection = %d, want 14000", got)
	}

	if err := st.SetRewardBasisPoints(addr(9), 100); err == nil {
		t.Error("non-governance should not set rewardBasisPoints")
	}
}

func TestBasisPointMaxConfigurable(t *testing.T) {
	deployer := addr(1)
	st := NewStateWithBasisPointMax(deployer, 10_000)

	if got := st.BasisPointMax(); got != 10_000 {
		t.Errorf("basisPointMax = %d, want 10000", got)
	}
	if err := st.SetRewardBasisPoints(deployer, 10_000); err != nil {
		t.Errorf("value at ceiling should be accepted: %v", err)
	}
	if err := st.SetRewardBasisPoints(deployer, 10_001); !IsRange(err) {
		t.Errorf("value above ceiling = %v, want range error", err)
	}
}
