package main

import (
	"testing"
	"time"

	"agent-arena/internal/config"
	"agent-arena/internal/game/astromining"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGamesFromDefaultCatalog(t *testing.T) {
	cat, err := config.LoadCatalog("")
	require.NoError(t, err)

	reg, err := buildGames(cat)
	require.NoError(t, err)

	def, ok := reg.Lookup(astromining.Type)
	require.True(t, ok)
	assert.Equal(t, 2, def.MinPlayers)
	assert.Equal(t, []string{"bronze", "silver", "gold", "diamond"}, def.Levels())
	assert.NotNil(t, def.New(1))
}

func TestBuildGamesSkipsUnknownTypes(t *testing.T) {
	cat := config.Catalog{Games: map[string]config.GameSettings{
		"tic-tac-toe": {MinPlayers: 2, MaxPlayers: 2, DurationTicks: 9, TickRate: time.Second, EntryFees: map[string]int64{"low": 1}},
	}}
	_, err := buildGames(cat)
	require.Error(t, err)

	cat.Games[astromining.Type] = config.GameSettings{
		MinPlayers: 2, MaxPlayers: 4, DurationTicks: 60, TickRate: time.Second,
		PrizeRateBPS: 9000, EntryFees: map[string]int64{"low": 10},
	}
	reg, err := buildGames(cat)
	require.NoError(t, err)
	assert.Len(t, reg.Definitions(), 1)
}
