package domain

import "strings"

// Identity is a verified principal (wallet, organizer, oracle). Proof checking
// happens before an Identity reaches the core; here identities are only
// compared for equality.
type Identity string

func (i Identity) String() string {
	return string(i)
}

// Valid reports whether the identity is non-empty and free of surrounding
// whitespace.
func (i Identity) Valid() bool {
	s := string(i)
	return s != "" && strings.TrimSpace(s) == s
}
