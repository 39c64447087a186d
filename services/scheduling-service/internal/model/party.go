package model

import (
	"fmt"
	"strconv"
	"strings"
)

type Role string

const (
	RoleCitizen Role = "citizen"
	RoleLawyer  Role = "lawyer"
	RoleNGO     Role = "ngo"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RoleLawyer, RoleNGO:
		return true
	}
	return false
}

// Party identifies a citizen, lawyer or NGO account. The fields are
// unexported so a Party can only be built through the constructors; the zero
// value is not a valid party.
type Party struct {
	role Role
	id   int64
}

func Citizen(id int64) Party { return Party{role: RoleCitizen, id: id} }
func Lawyer(id int64) Party { return Party{role: RoleLawyer, id: id} }
func NGO(id int64) Party { return Party{role: RoleNGO, id: id} }

// ParseParty accepts roles case-insensitively ("LAWYER", "lawyer").
func ParseParty(role string, id int64) (Party, error) {
	r := Role(strings.ToLower(strings.TrimSpace(role)))
	if !r.Valid() {
		return Party{}, Invalid("role", fmt.Sprintf("unknown role %q", role))
	}
	if id <= 0 {
		return Party{}, Invalid("id", "must be a positive integer")
	}
	return Party{role: r, id: id}, nil
}

// ParseProvider is ParseParty restricted to lawyers and NGOs.
func ParseProvider(role string, id int64) (Party, error) {
	p, err := ParseParty(role, id)
	if err != nil {
		return Party{}, err
	}
	if !p.IsProvider() {
		return Party{}, Invalid("provider_role", "must be lawyer or ngo")
	}
	return p, nil
}

func (p Party) Role() Role { return p.role }
func (p Party) ID() int64 { return p.id }
func (p Party) IsZero() bool { return p.role == "" }

func (p Party) Valid() bool {
	return p.role.Valid() && p.id > 0
}

func (p Party) IsProvider() bool {
	return p.role == RoleLawyer || p.role == RoleNGO
}

func (p Party) IsLawyer() bool { return p.role == RoleLawyer }

// Key is a stable textual form, e.g. "lawyer:42".
func (p Party) Key() string {
	return string(p.role) + ":" + strconv.FormatInt(p.id, 10)
}

func (p Party) String() string {
	if p.IsZero() {
		return "party(none)"
	}
	return p.Key()
}
