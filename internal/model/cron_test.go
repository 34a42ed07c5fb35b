package model_test

import (
	"testing"
	"time"

	"github.com/ln2t/watchdog/internal/model"

	"github.com/stretchr/testify/require"
)

func TestParseCron(t *testing.T) {
	cases := []struct {
		scenario string
		given    string
		err      string
	}{
		{"nightly", "0 2 * * *", ""},
		{"every_15", "*/15 * * * *", ""},
		{"macro_daily", "@daily", ""},
		{"macro_every", "@every 5m", ""},
		{"six_fields", "0 0 2 * * *", "found 6"},
		{"bad_dom", "* * 32 * *", "above maximum (31)"},
		{"empty", "", "empty cron expression"},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			sched, err := model.ParseCron(tc.given)
			if tc.err != "" {
				require.ErrorContains(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, sched)
		})
	}
}

func TestParseISODuration(t *testing.T) {
	cases := []struct {
		given string
		then  time.Duration
		err   error
	}{
		{"P1D", 24 * time.Hour, nil},
		{"PT12H", 12 * time.Hour, nil},
		{"P1DT30M", 24*time.Hour + 30*time.Minute, nil},
		{"PT0.5S", 500 * time.Millisecond, nil},
		{"P2M", 0, model.ErrISOFormat},
		{"P2DT", 0, model.ErrISOFormat},
		{"PT", 0, model.ErrISOFormat},
		{"1D", 0, model.ErrISOFormat},
	}
	for _, tc := range cases {
		t.Run(tc.given, func(t *testing.T) {
			d, err := model.ParseISODuration(tc.given)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.then, d)
		})
	}
}

func TestScheduleNext(t *testing.T) {
	from := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	next, err := model.Schedule{Cron: "0 2 * * *"}.Next(from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC), next)

	next, err = model.Schedule{Duration: "PT6H"}.Next(from)
	require.NoError(t, err)
	require.Equal(t, from.Add(6*time.Hour), next)

	_, err = model.Schedule{}.Next(from)
	require.ErrorIs(t, err, model.ErrNoSchedule)
}
