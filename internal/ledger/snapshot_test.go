package ledger

import (
	"bytes"
	"math/big"
	"testing"
)

// populate builds a state with every field exercised.
func populate(t *testing.T) *State {
	t.Helper()

	deployer := addr(1)
	admin := addr(2)
	bridge := addr(3)

	st := NewState(deployer)
	if err := st.SetAdministrator(deployer, admin); err != nil {
		t.Fatal(err)
	}
	if err := st.SetBridge(deployer, bridge); err != nil {
		t.Fatal(err)
	}
	if err := st.SetRewardAddress(deployer, addr(4)); err != nil {
		t.Fatal(err)
	}
	if err := st.GrantAccess(deployer, addr(5)); err != nil {
		t.Fatal(err)
	}
	if err := st.ActivateMarket(admin, marketID(1)); err != nil {
		t.Fatal(err)
	}
	if err := st.ActivateMarket(admin, marketID(2)); err != nil {
		t.Fatal(err)
	}
	if err := st.SetMaximumLeverage(admin, big.NewInt(1_000_000_000)); err != nil {
		t.Fatal(err)
	}
	if err := st.SetRewardBasisPoints(deployer, 300); err != nil {
		t.Fatal(err)
	}
	if err := st.Mint(deployer, addr(6), big.NewInt(2_000_000)); err != nil {
		t.Fatal(err)
	}
	if err := st.Mint(deployer, addr(7), big.NewInt(3_000_000)); err != nil {
		t.Fatal(err)
	}
	if err := st.SetTotalInPositions(admin, big.NewInt(500)); err != nil {
		t.Fatal(err)
	}
	if err := st.SetPosition(deployer, addr(6), marketID(1), samplePosition()); err != nil {
		t.Fatal(err)
	}
	root := MustParseHash("0xabababababababababababababababababababababababababababababababab")
	if err := st.SetSideChainMerkleRoot(bridge, root); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestExportRestoreRoundtrip(t *testing.T) {
	st := populate(t)

	restored, err := RestoreState(st.Export())
	if err != nil {
		t.Fatalf("RestoreState: %v", err)
	}

	if !bytes.Equal(st.Digest(), restored.Digest()) {
		t.Error("restored state digest differs from original")
	}

	if restored.Governance() != st.Governance() {
		t.Error("governance mismatch")
	}
	if got := restored.BalanceOf(addr(6)); got.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Errorf("restored balance = %s, want 2000000", got)
	}
	if !restored.HasAccess(addr(5)) {
		t.Error("restored access set missing member")
	}
	if !restored.MarketActive(marketID(2)) {
		t.Error("restored active markets missing market")
	}
	pos := restored.GetPosition(addr(6), marketID(1))
	if pos.LongShares.Cmp(big.NewInt(2000)) != 0 {
		t.Errorf("restored position longShares = %s, want 2000", pos.LongShares)
	}
}

func TestDigestDeterministic(t *testing.T) {
	a := populate(t)
	b := populate(t)

	// Same logical content must digest identically regardless of map
	// iteration order.
	for i := 0; i < 10; i++ {
		if !bytes.Equal(a.Digest(), b.Digest()) {
			t.Fatal("digests of identical states differ")
		}
	}
}

func TestDigestChangesWithState(t *testing.T) {
	st := populate(t)
	before := st.Digest()

	if err := st.Mint(addr(1), addr(8), big.NewInt(1)); err != nil {
		t.Fatal(err)
	}

	if bytes.Equal(before, st.Digest()) {
		t.Error("digest should change after a mutation")
	}
}

func TestRestorePausedState(t *testing.T) {
	deployer := addr(1)
	admin := addr(2)
	st := NewState(deployer)
	if err := st.SetAdministrator(deployer, admin); err != nil {
		t.Fatal(err)
	}
	if err := st.Pause(admin); err != nil {
		t.Fatal(err)
	}

	restored, err := RestoreState(st.Export())
	if err != nil {
		t.Fatal(err)
	}
	if !restored.Paused() {
		t.Error("restored state should still be paused")
	}
}
