package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/SeldomQA/seldom-atx/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(zerolog.Nop(), filepath.Join(t.TempDir(), "db", "perf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(id string, at time.Time) *model.RunRecord {
	return &model.RunRecord{
		ID:            id,
		Time:          at,
		Platform:      model.PlatformAndroid,
		DeviceName:    "Pixel 7",
		Case:          model.Case{File: "login_test.go", Class: "LoginSuite", Name: "login", Desc: "log in"},
		DurationTimes: 2,
		DurationList:  []float64{1.25, 1.5},
		DurationAvg:   1.38,
		MemoryMax:     120.5,
		RunList:       model.NewCapabilitySet(model.CapabilityDuration, model.CapabilityPerformance),
		Result:        model.ResultPass,
	}
}

func TestStore_InsertGet(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	want := record("a", at)
	require.NoError(t, s.Insert(ctx, want))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, want.Case, got.Case)
	require.Equal(t, want.DurationList, got.DurationList)
	require.Equal(t, want.RunList, got.RunList)
	require.Equal(t, want.Platform, got.Platform)
	require.Equal(t, want.MemoryMax, got.MemoryMax)
	require.Equal(t, want.Result, got.Result)
	require.True(t, want.Time.Equal(got.Time))

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.Error(t, s.Insert(ctx, want), "duplicate id")
}

func TestStore_List(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Insert(ctx, record(id, at.Add(time.Duration(i)*time.Minute))))
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "c", all[0].ID)
	require.Equal(t, "a", all[2].ID)

	latest, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	require.Equal(t, "b", latest[1].ID)
}
