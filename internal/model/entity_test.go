package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityType_Synonyms(t *testing.T) {
	t.Parallel()

	cases := map[string]EntityType{
		"vessel":       EntityVessel,
		" Ship ":       EntityVessel,
		"Individual":   EntityPerson,
		"PERSON":       EntityPerson,
		"Entity":       EntityCompany,
		"Legal Entity": EntityCompany,
		"organisation": EntityCompany,
		"company":      EntityCompany,
		"unknown":      EntityUnknown,
	}
	for in, want := range cases {
		got, err := ParseEntityType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseEntityType_Rejects(t *testing.T) {
	t.Parallel()

	got, err := ParseEntityType("aircraft")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownEntityType))
	assert.Equal(t, EntityUnknown, got)
}

func TestParseDeclaredType(t *testing.T) {
	t.Parallel()

	got, err := ParseDeclaredType("")
	require.NoError(t, err)
	assert.True(t, got.IsAuto())

	got, err = ParseDeclaredType("AUTO")
	require.NoError(t, err)
	assert.True(t, got.IsAuto())

	got, err = ParseDeclaredType("vessel")
	require.NoError(t, err)
	assert.Equal(t, EntityVessel, got)

	_, err = ParseDeclaredType("unknown")
	assert.ErrorIs(t, err, ErrUnknownEntityType)

	_, err = ParseDeclaredType("spaceship")
	assert.ErrorIs(t, err, ErrUnknownEntityType)
}

func TestEntityType_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, EntityVessel.Valid())
	assert.True(t, EntityUnknown.Valid())
	assert.False(t, DeclaredAuto.Valid())
	assert.False(t, EntityType("ship").Valid())
}

func TestCacheEntry_IsStale(t *testing.T) {
	t.Parallel()

	refreshed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &CacheEntry{SourceID: "ofac", LastRefreshed: refreshed, TTL: 24 * time.Hour}

	assert.False(t, e.IsStale(refreshed.Add(time.Hour)))
	assert.False(t, e.IsStale(refreshed.Add(24*time.Hour)), "exactly at ttl is still fresh")
	assert.True(t, e.IsStale(refreshed.Add(24*time.Hour+time.Second)))
	assert.Equal(t, refreshed.Add(24*time.Hour), e.ExpiresAt())
}

func TestCandidateRecord_Names(t *testing.T) {
	t.Parallel()

	c := CandidateRecord{Name: "OCEAN STAR", Aliases: []string{"", "OCEAN STAR", "STAR OF THE OCEAN"}}
	assert.Equal(t, []string{"OCEAN STAR", "STAR OF THE OCEAN"}, c.Names())
}

func TestNewQuery(t *testing.T) {
	t.Parallel()

	q, err := NewQuery("ACME TRADING", "company")
	require.NoError(t, err)
	assert.Equal(t, Query{Name: "ACME TRADING", DeclaredType: EntityCompany}, q)

	_, err = NewQuery("ACME", "bogus")
	assert.Error(t, err)
}
