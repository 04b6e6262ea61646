package core

import (
	"SynthLedger/internal/event"
	"SynthLedger/internal/ledger"
	"context"
	"crypto/sha256"
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testAddr(b byte) ledger.Address {
	var a ledger.Address
	a[19] = b
	return a
}

func testMarket(b byte) ledger.Hash {
	var h ledger.Hash
	h[31] = b
	return h
}

// startEngine runs a fresh engine with buffered output channels so test
// operations never block on the persist side.
func startEngine(t *testing.T) (*Engine, chan Output, context.CancelFunc) {
	t.Helper()

	persistChan := make(chan Output, 256)
	projectionChan := make(chan Output, 256)
	st := ledger.NewState(testAddr(1))
	e := NewEngine(st, 0, persistChan, projectionChan, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)

	t.Cleanup(cancel)
	return e, persistChan, cancel
}

func TestEngineAssignsContiguousSequences(t *testing.T) {
	e, persistChan, _ := startEngine(t)
	ctx := context.Background()
	platform := testAddr(1)

	if err := e.GrantAccess(ctx, platform, testAddr(2)); err != nil {
		t.Fatal(err)
	}
	if err := e.Mint(ctx, platform, testAddr(3), big.NewInt(100)); err != nil {
		t.Fatal(err)
	}
	if err := e.Burn(ctx, platform, testAddr(3), big.NewInt(40)); err != nil {
		t.Fatal(err)
	}

	for want := int64(1); want <= 3; want++ {
		rec := nextRecord(t, persistChan)
		if rec.Sequence != want {
			t.Errorf("sequence = %d, want %d", rec.Sequence, want)
		}
	}

	seq, err := e.Sequence(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if seq != 3 {
		t.Errorf("engine sequence = %d, want 3", seq)
	}
}

func TestEngineHashChain(t *testing.T) {
	e, persistChan, _ := startEngine(t)
	ctx := context.Background()
	platform := testAddr(1)

	if err := e.Mint(ctx, platform, testAddr(2), big.NewInt(1)); err != nil {
		t.Fatal(err)
	}
	if err := e.Mint(ctx, platform, testAddr(2), big.NewInt(2)); err != nil {
		t.Fatal(err)
	}

	first := nextRecord(t, persistChan)
	second := nextRecord(t, persistChan)

	genesis := sha256.Sum256([]byte(GenesisHashSeed))
	if first.PrevHash != genesis {
		t.Error("first record should chain from the genesis hash")
	}
	if second.PrevHash != first.StateHash {
		t.Error("second record should chain from the first state hash")
	}
	if first.StateHash == second.StateHash {
		t.Error("state hashes should advance per change")
	}
}

func TestRejectedOperationEmitsNothing(t *testing.T) {
	e, persistChan, _ := startEngine(t)
	ctx := context.Background()

	err := e.Mint(ctx, testAddr(9), testAddr(2), big.NewInt(1))
	if err == nil || err.Error() != "Only Platform" {
		t.Fatalf("err = %v, want Only Platform", err)
	}

	select {
	case rec := <-persistChan:
		t.Errorf("rejected operation emitted record seq=%d", rec.Record.Sequence)
	case <-time.After(50 * time.Millisecond):
	}

	seq, err := e.Sequence(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if seq != 0 {
		t.Errorf("sequence = %d, want 0 after rejection", seq)
	}
}

func TestReadsEmitNothing(t *testing.T) {
	e, persistChan, _ := startEngine(t)
	ctx := context.Background()

	if _, err := e.BalanceOf(ctx, testAddr(2)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Paused(ctx); err != nil {
		t.Fatal(err)
	}

	select {
	case <-persistChan:
		t.Error("reads must not emit change records")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSnapshotReplayRoundtrip(t *testing.T) {
	e, persistChan, cancel := startEngine(t)
	ctx := context.Background()
	platform := testAddr(1)
	admin := testAddr(2)

	if err := e.SetAdministrator(ctx, platform, admin); err != nil {
		t.Fatal(err)
	}
	if err := e.Mint(ctx, platform, testAddr(3), big.NewInt(2_000_000)); err != nil {
		t.Fatal(err)
	}

	snap, err := e.CreateSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Sequence != 2 {
		t.Fatalf("snapshot sequence = %d, want 2", snap.Sequence)
	}

	// Changes after the snapshot point.
	if err := e.Mint(ctx, platform, testAddr(3), big.NewInt(3_000_000)); err != nil {
		t.Fatal(err)
	}
	if err := e.ActivateMarket(ctx, admin, testMarket(1)); err != nil {
		t.Fatal(err)
	}

	var tail []*event.Record
	for i := 0; i < 4; i++ {
		rec := nextRecord(t, persistChan)
		if rec.Sequence > snap.Sequence {
			tail = append(tail, rec)
		}
	}
	cancel()

	restored, err := RestoreEngine(snap, make(chan Output, 16), make(chan Output, 16), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("RestoreEngine: %v", err)
	}
	for _, rec := range tail {
		if err := restored.ReplayRecord(rec); err != nil {
			t.Fatalf("ReplayRecord seq=%d: %v", rec.Sequence, err)
		}
	}

	rctx, rcancel := context.WithCancel(context.Background())
	defer rcancel()
	go restored.Run(rctx)

	balance, err := restored.BalanceOf(rctx, testAddr(3))
	if err != nil {
		t.Fatal(err)
	}
	if balance.Cmp(big.NewInt(5_000_000)) != 0 {
		t.Errorf("replayed balance = %s, want 5000000", balance)
	}
	active, err := restored.MarketActive(rctx, testMarket(1))
	if err != nil {
		t.Fatal(err)
	}
	if !active {
		t.Error("replayed market should be active")
	}
	seq, err := restored.Sequence(rctx)
	if err != nil {
		t.Fatal(err)
	}
	if seq != 4 {
		t.Errorf("replayed sequence = %d, want 4", seq)
	}
}

func TestReplayDetectsGap(t *testing.T) {
	persistChan := make(chan Output, 16)
	projectionChan := make(chan Output, 16)
	st := ledger.NewState(testAddr(1))
	e := NewEngine(st, 0, persistChan, projectionChan, nil, zerolog.Nop())

	rec := &event.Record{
		Sequence: 5,
		Change: &event.Change{
			Type:   event.ChangeTypeMinted,
			Caller: testAddr(1).Hex(),
			Addr:   testAddr(2).Hex(),
			Amount: "1",
		},
	}
	if err := e.ReplayRecord(rec); err == nil {
		t.Error("expected gap error for non-contiguous sequence")
	}
}

func TestReplayDetectsHashMismatch(t *testing.T) {
	persistChan := make(chan Output, 16)
	projectionChan := make(chan Output, 16)
	st := ledger.NewState(testAddr(1))
	e := NewEngine(st, 0, persistChan, projectionChan, nil, zerolog.Nop())

	rec := &event.Record{
		Sequence: 1,
		Change: &event.Change{
			Type:   event.ChangeTypeMinted,
			Caller: testAddr(1).Hex(),
			Addr:   testAddr(2).Hex(),
			Amount: "1",
		},
		// StateHash left zero: cannot match the recomputed chain.
	}
	if err := e.ReplayRecord(rec); err == nil {
		t.Error("expected hash mismatch error")
	}
}

func nextRecord(t *testing.T, ch chan Output) *event.Record {
	t.Helper()
	select {
	case out := <-ch:
		return out.Record
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change record")
		return nil
	}
}
