package ledger

// SetSideChainMerkleRoot anchors the last accepted cross-chain root.
// Only the configured bridge address may call this — access-set
// membership does not qualify. Overwrites; no history is kept.
func (s *State) SetSideChainMerkleRoot(caller Address, root Hash) error {
	if err := s.requireBridge(caller); err != nil {
		return err
	}
	s.sideChainMerkleRoot = root
	return nil
}

// SideChainMerkleRoot returns the anchor. Unrestricted read.
func (s *State) SideChainMerkleRoot() Hash {
	return s.sideChainMerkleRoot
}
