// Package steamid implements the 64-bit Steam account identifier.
package steamid

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

type Universe uint8

const (
	UniverseInvalid Universe = iota
	UniversePublic
	UniverseBeta
	UniverseInternal
	UniverseDev
)

type AccountType uint8

const (
	TypeInvalid AccountType = iota
	TypeIndividual
	TypeMultiseat
	TypeGameServer
	TypeAnonGameServer
	TypePending
	TypeContentServer
	TypeClan
	TypeChat
	TypeP2PSuperSeeder
	TypeAnonUser
)

// DesktopInstance is the instance individual accounts log in with.
const DesktopInstance uint32 = 1

// SteamID packs universe (8 bits), account type (4 bits), instance (20 bits)
// and account id (32 bits), most significant first.
type SteamID uint64

var ErrInvalid = errors.New("invalid steam id")

func New(universe Universe, accountType AccountType, instance uint32, accountID uint32) SteamID {
	return SteamID(uint64(universe)<<56 |
		uint64(accountType&0xf)<<52 |
		uint64(instance&0xfffff)<<32 |
		uint64(accountID))
}

// FromAccountID returns the public individual desktop id for an account id.
func FromAccountID(accountID uint32) SteamID {
	return New(UniversePublic, TypeIndividual, DesktopInstance, accountID)
}

var steam2Regex = regexp.MustCompile(`^STEAM_([0-5]):([0-1]):([0-9]+)$`)
var steam3Regex = regexp.MustCompile(`^\[U:([0-5]):([0-9]+)\]$`)

// Parse accepts the decimal 64-bit form, the STEAM_X:Y:Z form and the
// [U:1:Z] form.
func Parse(s string) (SteamID, error) {
	if groups := steam2Regex.FindStringSubmatch(s); groups != nil {
		universe, _ := strconv.ParseUint(groups[1], 10, 8)
		if universe == 0 {
			universe = uint64(UniversePublic)
		}
		low, _ := strconv.ParseUint(groups[2], 10, 32)
		high, err := strconv.ParseUint(groups[3], 10, 31)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalid, s)
		}
		return New(Universe(universe), TypeIndividual, DesktopInstance, uint32(high<<1|low)), nil
	}
	if groups := steam3Regex.FindStringSubmatch(s); groups != nil {
		universe, _ := strconv.ParseUint(groups[1], 10, 8)
		account, err := strconv.ParseUint(groups[2], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalid, s)
		}
		return New(Universe(universe), TypeIndividual, DesktopInstance, uint32(account)), nil
	}

	value, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalid, s)
	}
	return SteamID(value), nil
}

func (id SteamID) Universe() Universe {
	return Universe(uint64(id) >> 56)
}

func (id SteamID) Type() AccountType {
	return AccountType(uint64(id) >> 52 & 0xf)
}

func (id SteamID) Instance() uint32 {
	return uint32(uint64(id) >> 32 & 0xfffff)
}

func (id SteamID) AccountID() uint32 {
	return uint32(id)
}

// IsValid reports whether id could belong to a real account.
func (id SteamID) IsValid() bool {
	switch {
	case id.Type() <= TypeInvalid || id.Type() > TypeAnonUser:
		return false
	case id.Universe() <= UniverseInvalid || id.Universe() > UniverseDev:
		return false
	case id.Type() == TypeIndividual && (id.AccountID() == 0 || id.Instance() > 4):
		return false
	case id.Type() == TypeClan && (id.AccountID() == 0 || id.Instance() != 0):
		return false
	case id.Type() == TypeGameServer && id.AccountID() == 0:
		return false
	}
	return true
}

// IsIndividual reports whether id is a user account.
func (id SteamID) IsIndividual() bool {
	return id.Type() == TypeIndividual
}

// String renders the decimal 64-bit form, which is what every web endpoint expects.
func (id SteamID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

func (id SteamID) Steam2() string {
	universe := id.Universe()
	if universe == UniversePublic {
		universe = 0
	}
	account := id.AccountID()
	return fmt.Sprintf("STEAM_%d:%d:%d", universe, account&1, account>>1)
}

func (id SteamID) Steam3() string {
	return fmt.Sprintf("[U:%d:%d]", id.Universe(), id.AccountID())
}
