package types

import (
	"math/big"
	"strings"
)

// maxPatientID is 2^256-1, the range of the on-chain uint256 patient key.
var maxPatientID = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// PatientID is an externally supplied, unsigned patient key in canonical
// decimal form (no sign, no leading zeros).
type PatientID struct {
	value string
}

// ParsePatientID validates raw as a non-negative base-10 integer that fits
// in 256 bits. Surrounding whitespace is ignored.
func ParsePatientID(raw string) (PatientID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return PatientID{}, ErrInvalidPatientID.WithDetail("patient_id", raw)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return PatientID{}, ErrInvalidPatientID.WithDetail("patient_id", raw)
		}
	}

	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Cmp(maxPatientID) > 0 {
		return PatientID{}, ErrInvalidPatientID.WithDetail("patient_id", raw)
	}
	return PatientID{value: n.String()}, nil
}

// PatientIDFromUint64 builds a PatientID from a native integer.
func PatientIDFromUint64(n uint64) PatientID {
	return PatientID{value: new(big.Int).SetUint64(n).String()}
}

// String returns the canonical decimal form.
func (p PatientID) String() string {
	if p.value == "" {
		return "0"
	}
	return p.value
}
