// Package model defines the screening domain types shared by sources, cache, matcher and screener.
package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// EntityType is the closed set of entity kinds a sanctions record can describe.
type EntityType string

const (
	EntityVessel  EntityType = "vessel"
	EntityPerson  EntityType = "person"
	EntityCompany EntityType = "company"
	EntityUnknown EntityType = "unknown"
)

// DeclaredAuto asks the matcher to score every entity type.
const DeclaredAuto EntityType = "auto"

// ErrUnknownEntityType is returned when a boundary string names no known entity type.
var ErrUnknownEntityType = eris.New("model: unknown entity type")

var entitySynonyms = map[string]EntityType{
	"vessel":       EntityVessel,
	"ship":         EntityVessel,
	"boat":         EntityVessel,
	"person":       EntityPerson,
	"individual":   EntityPerson,
	"company":      EntityCompany,
	"entity":       EntityCompany,
	"organization": EntityCompany,
	"organisation": EntityCompany,
	"legalentity":  EntityCompany,
	"unknown":      EntityUnknown,
}

// ParseEntityType normalizes a boundary string into an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, " ", "")
	key = strings.ReplaceAll(key, "_", "")
	if t, ok := entitySynonyms[key]; ok {
		return t, nil
	}
	return EntityUnknown, eris.Wrapf(ErrUnknownEntityType, "%q", s)
}

// ParseDeclaredType parses a query type. Empty input means auto.
func ParseDeclaredType(s string) (EntityType, error) {
	if strings.TrimSpace(s) == "" || strings.EqualFold(strings.TrimSpace(s), string(DeclaredAuto)) {
		return DeclaredAuto, nil
	}
	t, err := ParseEntityType(s)
	if err != nil {
		return DeclaredAuto, err
	}
	if t == EntityUnknown {
		return DeclaredAuto, eris.Wrapf(ErrUnknownEntityType, "%q cannot be declared", s)
	}
	return t, nil
}

// Valid reports whether t is one of the four closed entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityVessel, EntityPerson, EntityCompany, EntityUnknown:
		return true
	}
	return false
}

// IsAuto reports whether t is the auto declared type.
func (t EntityType) IsAuto() bool {
	return t == DeclaredAuto
}
