package types

import "strings"

// Identity is an opaque caller token supplied by the execution environment,
// typically an account address. Equality is the only operation the store
// performs on it.
type Identity string

// ParseIdentity normalizes raw into an Identity. Hex account addresses
// ("0x...") are lower-cased so that checksum casing does not split one
// account into two identities.
func ParseIdentity(raw string) (Identity, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidIdentity
	}
	if isHexAddress(s) {
		s = strings.ToLower(s)
	}
	return Identity(s), nil
}

// MustParseIdentity is ParseIdentity for constants and tests.
func MustParseIdentity(raw string) Identity {
	id, err := ParseIdentity(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// IsZero reports whether the identity is empty.
func (i Identity) IsZero() bool {
	return strings.TrimSpace(string(i)) == ""
}

func (i Identity) String() string {
	return string(i)
}

func isHexAddress(s string) bool {
	if len(s) < 3 || (s[:2] != "0x" && s[:2] != "0X") {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
