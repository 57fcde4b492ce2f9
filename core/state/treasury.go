package state

var treasuryReleasePrefix = []byte("treasury/release/")

// TreasuryReleased reports whether the treasury already released a share to
// recipient.
func (m *Manager) TreasuryReleased(recipient [20]byte) (bool, error) {
	return m.KVGet(splitAccountKey(treasuryReleasePrefix, recipient), nil)
}

// TreasuryMarkReleased records a release to recipient.
func (m *Manager) TreasuryMarkReleased(recipient [20]byte) error {
	return m.KVPut(splitAccountKey(treasuryReleasePrefix, recipient), true)
}
