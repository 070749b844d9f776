package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseCapabilitySet(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    CapabilitySet
		wantErr bool
	}{
		{name: "empty is nothing mode", in: nil, want: 0},
		{name: "single", in: []string{"duration"}, want: NewCapabilitySet(CapabilityDuration)},
		{name: "comma separated", in: []string{"performance,log"}, want: NewCapabilitySet(CapabilityPerformance, CapabilityLog)},
		{name: "case insensitive", in: []string{"Performance", " DURATION "}, want: NewCapabilitySet(CapabilityPerformance, CapabilityDuration)},
		{name: "unknown", in: []string{"effect"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCapabilitySet(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownCapability)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCapabilitySet_JSON(t *testing.T) {
	set := NewCapabilitySet(CapabilityLog, CapabilityDuration)
	data, err := json.Marshal(set)
	require.NoError(t, err)
	require.JSONEq(t, `["duration","log"]`, string(data))

	var decoded CapabilitySet
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, set, decoded)
	require.True(t, decoded.Records())
	require.Equal(t, "nothing", CapabilitySet(0).String())
}

func TestSeries_Max(t *testing.T) {
	s := NewSeries(MetricMemory)
	require.Equal(t, 0.0, s.Max(0))

	now := time.Now()
	s.Append(now, 10, 0)
	s.Append(now, 55, 0)
	s.Append(now, 20, 0)
	require.Equal(t, 55.0, s.Max(0))
	require.Equal(t, MemoryFields, s.Fields)

	clone := s.Clone()
	clone.Samples[1].Values[0] = 1
	require.Equal(t, 55.0, s.Max(0))
}

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform("android")
	require.NoError(t, err)
	require.Equal(t, PlatformAndroid, p)

	p, err = ParsePlatform("IOS")
	require.NoError(t, err)
	require.Equal(t, PlatformIOS, p)

	_, err = ParsePlatform("harmony")
	require.ErrorIs(t, err, ErrUnknownPlatform)
}
