package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreferenceLevel_WeakenOnlyTouchesHardLevels(t *testing.T) {
	cases := []struct {
		in   PreferenceLevel
		want PreferenceLevel
	}{
		{LevelRequired, LevelStronglyPreferred},
		{LevelProhibited, LevelStronglyDiscouraged},
		{LevelStronglyPreferred, LevelStronglyPreferred},
		{LevelPreferred, LevelPreferred},
		{LevelNeutral, LevelNeutral},
		{LevelDiscouraged, LevelDiscouraged},
		{LevelStronglyDiscouraged, LevelStronglyDiscouraged},
	}
	for _, tc := range cases {
		t.Run(string(tc.in), func(t *testing.T) {
			got := tc.in.Weaken()
			require.Equal(t, tc.want, got)
			require.LessOrEqual(t, got.Strength(), tc.in.Strength())
			require.False(t, got.IsHard())
		})
	}
}

func TestPreference_WeakenHardWeakensGridWithoutTouchingOriginal(t *testing.T) {
	p := Preference{
		Kind:        KindTime,
		Level:       LevelRequired,
		TargetID:    7,
		PatternType: TimePatternStandard,
		Grid:        []PreferenceLevel{LevelRequired, LevelNeutral, LevelProhibited, LevelPreferred},
	}

	w := p.WeakenHard()

	require.Equal(t, LevelStronglyPreferred, w.Level)
	require.Equal(t, []PreferenceLevel{LevelStronglyPreferred, LevelNeutral, LevelStronglyDiscouraged, LevelPreferred}, w.Grid)
	require.Equal(t, LevelRequired, p.Level)
	require.Equal(t, LevelRequired, p.Grid[0])
}

func TestParseGrid_RoundTripsGridString(t *testing.T) {
	p := Preference{Grid: []PreferenceLevel{LevelRequired, LevelNeutral, LevelStronglyDiscouraged}}

	grid, err := ParseGrid(p.GridString())
	require.NoError(t, err)
	require.Equal(t, p.Grid, grid)

	empty, err := ParseGrid("")
	require.NoError(t, err)
	require.Nil(t, empty)

	_, err = ParseGrid("R,X")
	require.Error(t, err)
}

func TestPreferenceSet_DropsDuplicateTargets(t *testing.T) {
	set := NewPreferenceSet(
		Preference{Kind: KindRoom, Level: LevelPreferred, TargetID: 1},
		Preference{Kind: KindRoom, Level: LevelProhibited, TargetID: 1},
		Preference{Kind: KindBuilding, Level: LevelPreferred, TargetID: 1},
	)

	require.Equal(t, 2, set.Len())
	require.Equal(t, LevelPreferred, set.OfKind(KindRoom)[0].Level)
	require.True(t, set.Has(KindBuilding, 1))
	require.False(t, set.Has(KindRoomGroup, 1))
	require.False(t, set.Add(Preference{Kind: KindBuilding, TargetID: 1}))
}

func TestPreferenceSet_CloneIsIndependent(t *testing.T) {
	d := 3
	set := NewPreferenceSet(Preference{Kind: KindTime, Level: LevelRequired, TargetID: 1, Grid: []PreferenceLevel{LevelRequired}, DistanceFrom: &d})
	clone := set.Clone()
	require.True(t, set.Equal(clone))

	clone.Items()[0].Grid[0] = LevelNeutral
	require.Equal(t, LevelRequired, set.Items()[0].Grid[0])
	require.False(t, set.Equal(clone))

	clone.Clear()
	require.Equal(t, 0, clone.Len())
	require.Equal(t, 1, set.Len())
}

func TestShouldWeakenTimePreferences(t *testing.T) {
	external := &Department{ID: 2, ExternalManager: true}
	externalAllowed := &Department{ID: 3, ExternalManager: true, AllowRequiredTime: true}
	internal := &Department{ID: 4}
	controlling := &Department{ID: 1}
	controllingAllowed := &Department{ID: 1, AllowRequiredTime: true}

	require.True(t, ShouldWeakenTimePreferences(external, controlling))
	require.True(t, ShouldWeakenTimePreferences(external, nil))
	require.False(t, ShouldWeakenTimePreferences(externalAllowed, controlling))
	require.False(t, ShouldWeakenTimePreferences(external, controllingAllowed))
	require.False(t, ShouldWeakenTimePreferences(internal, controlling))
	require.False(t, ShouldWeakenTimePreferences(nil, controlling))
}
