// Package domain defines the data shapes shared by the vaultguard stores:
// entitlement records, autofill snapshots, the login entries supplied by the
// vault-tree collaborator, and the identities published to the OS index.
package domain

// LoginEntry is the read-only view of a vault login entry supplied by the
// vault-tree collaborator.
type LoginEntry struct {
	UUID     string `json:"uuid"`
	Title    string `json:"title"`
	Username string `json:"username"`
	Password string `json:"password"`
	URL      string `json:"url"`
}

// Group is a node of the vault tree. Entries of nested groups belong to the
// group as well.
type Group struct {
	Name    string       `json:"name"`
	Entries []LoginEntry `json:"entries"`
	Groups  []Group      `json:"groups"`
}

// AllEntries returns the entries of g and every nested group, depth first.
func (g Group) AllEntries() []LoginEntry {
	entries := make([]LoginEntry, 0, len(g.Entries))
	entries = append(entries, g.Entries...)
	for _, sub := range g.Groups {
		entries = append(entries, sub.AllEntries()...)
	}
	return entries
}

// Secrets is the cached credential material of one vault.
type Secrets struct {
	Password       *string `cbor:"1,keyasint,omitempty" json:"password,omitempty"`
	KeyFileContent []byte  `cbor:"2,keyasint,omitempty" json:"key_file_content,omitempty"`
}

// IsEmpty reports whether neither a password nor key-file content is set.
// Zero-length key-file content counts as absent; it does not survive encoding.
func (s Secrets) IsEmpty() bool {
	return s.Password == nil && len(s.KeyFileContent) == 0
}

// BiometricOutcome is the result of an externally supplied biometric gate.
type BiometricOutcome int

const (
	BiometricFailure BiometricOutcome = iota
	BiometricSuccess
	BiometricUnavailable
)

func (o BiometricOutcome) String() string {
	switch o {
	case BiometricSuccess:
		return "success"
	case BiometricUnavailable:
		return "unavailable"
	default:
		return "failure"
	}
}
