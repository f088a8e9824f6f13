package duel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/duel-game/internal/errors"
)

func TestResolve_FullTable(t *testing.T) {
	tests := []struct {
		a, b Move
		want Winner
	}{
		{MoveRock, MoveRock, WinnerTie},
		{MoveRock, MovePaper, WinnerB},
		{MoveRock, MoveFire, WinnerA},
		{MovePaper, MoveRock, WinnerA},
		{MovePaper, MovePaper, WinnerTie},
		{MovePaper, MoveFire, WinnerB},
		{MoveFire, MoveRock, WinnerB},
		{MoveFire, MovePaper, WinnerA},
		{MoveFire, MoveFire, WinnerTie},
	}

	for _, tt := range tests {
		t.Run(tt.a.String()+"_vs_"+tt.b.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.a, tt.b))
		})
	}
}

func TestResolve_Antisymmetric(t *testing.T) {
	for _, a := range AllMoves {
		for _, b := range AllMoves {
			ab, ba := Resolve(a, b), Resolve(b, a)
			switch ab {
			case WinnerTie:
				assert.Equal(t, WinnerTie, ba)
			case WinnerA:
				assert.Equal(t, WinnerB, ba)
			case WinnerB:
				assert.Equal(t, WinnerA, ba)
			}
		}
	}
}

func TestResolveSlots_Forfeits(t *testing.T) {
	for _, m := range AllMoves {
		assert.Equal(t, WinnerA, ResolveSlots(m, MoveNone), "弃权应输给 %s", m)
		assert.Equal(t, WinnerB, ResolveSlots(MoveNone, m), "弃权应输给 %s", m)
	}
	assert.Equal(t, WinnerTie, ResolveSlots(MoveNone, MoveNone))
	assert.Equal(t, WinnerA, ResolveSlots(MoveRock, MoveFire))
}

func TestParseMove(t *testing.T) {
	m, err := ParseMove("Rock")
	require.NoError(t, err)
	assert.Equal(t, MoveRock, m)

	m, err = ParseMove("fire")
	require.NoError(t, err)
	assert.Equal(t, MoveFire, m)

	_, err = ParseMove("scissors")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidMove))
	assert.False(t, MoveNone.Valid())
}

func TestMoveAndFactionJSON(t *testing.T) {
	payload := struct {
		Move    Move    `json:"move,omitempty"`
		Faction Faction `json:"faction"`
		Winner  Winner  `json:"winner"`
	}{MovePaper, FactionPuppet, WinnerB}

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"move":"paper","faction":"puppet","winner":"b"}`, string(data))

	var decoded struct {
		Move    Move    `json:"move"`
		Faction Faction `json:"faction"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"move":"fire","faction":"wizard"}`), &decoded))
	assert.Equal(t, MoveFire, decoded.Move)
	assert.Equal(t, FactionWizard, decoded.Faction)

	assert.Error(t, json.Unmarshal([]byte(`{"faction":"knight"}`), &decoded))
}

func TestFactionOpposite(t *testing.T) {
	assert.Equal(t, FactionPuppet, FactionWizard.Opposite())
	assert.Equal(t, FactionWizard, FactionPuppet.Opposite())

	_, err := ParseFaction("dragon")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidFaction))
}
