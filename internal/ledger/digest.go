package ledger

import (
	"bytes"
	"sort"
)

// Digest returns a canonical serialization of the full ledger state.
// Map iteration order is neutralized by sorting keys, so two states
// with identical contents always produce identical digests. The core
// engine hashes this after every applied mutation.
func (s *State) Digest() []byte {
	buf := make([]byte, 0, 1024)

	buf = append(buf, s.governance[:]...)
	buf = append(buf, s.administrator[:]...)
	buf = append(buf, s.bridge[:]...)
	buf = append(buf, s.rewards[:]...)

	if s.paused {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	members := s.AccessSet()
	sort.Slice(members, func(i, j int) bool {
		return bytes.Compare(members[i][:], members[j][:]) < 0
	})
	buf = appendInt64LE(buf, int64(len(members)))
	for _, m := range members {
		buf = append(buf, m[:]...)
	}

	markets := s.ActiveMarkets()
	sort.Slice(markets, func(i, j int) bool {
		return bytes.Compare(markets[i][:], markets[j][:]) < 0
	})
	buf = appendInt64LE(buf, int64(len(markets)))
	for _, m := range markets {
		buf = append(buf, m[:]...)
	}

	buf = appendBigInt(buf, s.maxLeverage)
	buf = appendInt64LE(buf, int64(s.rewardBasisPoints))
	buf = appendInt64LE(buf, int64(s.basisPointMax))

	holders := make([]Address, 0, len(s.balances))
	for a := range s.balances {
		holders = append(holders, a)
	}
	sort.Slice(holders, func(i, j int) bool {
		return bytes.Compare(holders[i][:], holders[j][:]) < 0
	})
	buf = appendInt64LE(buf, int64(len(holders)))
	for _, a := range holders {
		buf = append(buf, a[:]...)
		buf = appendBigInt(buf, s.balances[a])
	}
	buf = appendBigInt(buf, s.totalSupply)
	buf = appendBigInt(buf, s.totalInPositions)

	keys := make([]positionKey, 0, len(s.positions))
	for k := range s.positions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := bytes.Compare(keys[i].holder[:], keys[j].holder[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(keys[i].market[:], keys[j].market[:]) < 0
	})
	buf = appendInt64LE(buf, int64(len(keys)))
	for _, k := range keys {
		buf = append(buf, k.holder[:]...)
		buf = append(buf, k.market[:]...)
		buf = append(buf, s.positions[k].CanonicalBytes()...)
	}

	buf = append(buf, s.sideChainMerkleRoot[:]...)
	return buf
}
