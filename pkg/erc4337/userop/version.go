package userop

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
)

// Version is an EntryPoint protocol revision. The zero value means the caller
// did not pin a revision.
type Version uint8

const (
	VersionUnset Version = iota
	V06
	V07
	V08
)

var (
	EntryPointV06 = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	EntryPointV07 = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	EntryPointV08 = common.HexToAddress("0x4337084D9E255Ff0702461CF8895CE9E3b5Ff108")

	// v0.8 deployments are vanity addresses starting with 0x4337.
	v08Prefix = []byte{0x43, 0x37}
)

func (v Version) String() string {
	switch v {
	case V06:
		return "v0.6"
	case V07:
		return "v0.7"
	case V08:
		return "v0.8"
	default:
		return "unset"
	}
}

// Packed reports whether the revision uses the PackedUserOperation layout.
func (v Version) Packed() bool {
	return v == V07 || v == V08
}

// ParseVersion accepts "0.6", "v0.6", "06" and the same forms for 0.7 and 0.8.
// An empty string yields VersionUnset.
func ParseVersion(s string) (Version, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "v") {
	case "":
		return VersionUnset, nil
	case "0.6", "06", "6":
		return V06, nil
	case "0.7", "07", "7":
		return V07, nil
	case "0.8", "08", "8":
		return V08, nil
	}
	return VersionUnset, fmt.Errorf("unknown entrypoint version %q", s)
}

// Resolver maps an EntryPoint address to its revision.
//
// Resolution by address is a best-effort heuristic: it only knows the
// addresses it was configured with plus the 0x4337 vanity prefix of v0.8, and
// anything else is assumed to be v0.6. Callers that know the revision should
// pin it through ResolveWith.
type Resolver struct {
	V06 []common.Address
	V07 []common.Address
}

// DefaultResolver knows the canonical v0.6 and v0.7 deployments.
func DefaultResolver() *Resolver {
	return &Resolver{
		V06: []common.Address{EntryPointV06},
		V07: []common.Address{EntryPointV07},
	}
}

// Resolve classifies entryPoint. Addresses are compared as bytes so checksum
// casing never matters.
func (r *Resolver) Resolve(entryPoint common.Address) Version {
	v, _ := r.lookup(entryPoint)
	return v
}

// ResolveWith returns explicit when set. Otherwise it falls back to Resolve,
// except that an unrecognized address combined with a requested EIP-7702
// delegation resolves to v0.8, the only revision able to carry one.
func (r *Resolver) ResolveWith(entryPoint common.Address, explicit Version, wantsDelegation bool) Version {
	if explicit != VersionUnset {
		return explicit
	}
	v, known := r.lookup(entryPoint)
	if !known && wantsDelegation {
		return V08
	}
	return v
}

func (r *Resolver) lookup(entryPoint common.Address) (Version, bool) {
	switch {
	case lo.Contains(r.V06, entryPoint):
		return V06, true
	case lo.Contains(r.V07, entryPoint):
		return V07, true
	case bytes.HasPrefix(entryPoint.Bytes(), v08Prefix):
		return V08, true
	}
	return V06, false
}
