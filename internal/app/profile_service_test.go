package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileService_EnsureProfileDefaultsTimezone(t *testing.T) {
	rig := newTestRig()

	u, err := rig.profiles.EnsureProfile(context.Background(), 42, "Ada")
	require.NoError(t, err)
	assert.Equal(t, "UTC", u.Timezone)

	zone, loc := rig.profiles.TimezoneFor(context.Background(), 42)
	assert.Equal(t, "UTC", zone)
	assert.Equal(t, time.UTC, loc)
}

func TestProfileService_ReStartKeepsChosenTimezone(t *testing.T) {
	rig := newTestRig()
	_, err := rig.profiles.EnsureProfile(context.Background(), 42, "Ada")
	require.NoError(t, err)
	require.NoError(t, rig.profiles.SetTimezone(context.Background(), 42, "Europe/Berlin"))

	// A second /start must not reset the timezone to the default.
	_, err = rig.profiles.EnsureProfile(context.Background(), 42, "Ada Lovelace")
	require.NoError(t, err)

	zone, _ := rig.profiles.TimezoneFor(context.Background(), 42)
	assert.Equal(t, "Europe/Berlin", zone)
}

func TestProfileService_SetTimezoneValidates(t *testing.T) {
	rig := newTestRig()
	_, err := rig.profiles.EnsureProfile(context.Background(), 42, "Ada")
	require.NoError(t, err)

	err = rig.profiles.SetTimezone(context.Background(), 42, "Mars/Olympus_Mons")
	assert.ErrorIs(t, err, ErrInvalidTimezone)

	zone, _ := rig.profiles.TimezoneFor(context.Background(), 42)
	assert.Equal(t, "UTC", zone, "rejected zone must not be stored")
}

func TestProfileService_UnknownOwnerFallsBackToDefault(t *testing.T) {
	rig := newTestRig()
	zone, loc := rig.profiles.TimezoneFor(context.Background(), 12345)
	assert.Equal(t, "UTC", zone)
	assert.Equal(t, time.UTC, loc)
}
