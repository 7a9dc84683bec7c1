package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveFilter(t *testing.T) {
	f, err := NewActiveFilter([]string{"alice", "team-*", "{bob,carol}"})
	require.NoError(t, err)

	assert.True(t, f.Match("alice"))
	assert.True(t, f.Match("team-red"))
	assert.True(t, f.Match("carol"))
	assert.False(t, f.Match("dave"))
	assert.False(t, f.Match("alice2"))

	accounts := []Account{{ID: "dave"}, {ID: "team-blue"}, {ID: "alice"}}
	got := f.Filter(accounts)
	require.Len(t, got, 2)
	assert.Equal(t, "team-blue", got[0].ID)
	assert.Equal(t, "alice", got[1].ID)
}

func TestActiveFilter_EmptyAdmitsAll(t *testing.T) {
	f, err := NewActiveFilter(nil)
	require.NoError(t, err)
	assert.True(t, f.Match("anyone"))

	var nilFilter *ActiveFilter
	assert.True(t, nilFilter.Match("anyone"))
}

func TestActiveFilter_InvalidPattern(t *testing.T) {
	_, err := NewActiveFilter([]string{"[a-"})
	assert.Error(t, err)
}
