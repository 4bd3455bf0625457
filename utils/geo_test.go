package utils

import (
	"math"
	"testing"
)

func TestHaversineMetersZeroDistance(t *testing.T) {
	if d := HaversineMeters(13.7563, 100.5018, 13.7563, 100.5018); d != 0 {
		t.Fatalf("expected 0 for identical points, got %f", d)
	}
}

func TestHaversineMetersSymmetry(t *testing.T) {
	a := HaversineMeters(13.7563, 100.5018, 13.7564, 100.5020)
	b := HaversineMeters(13.7564, 100.5020, 13.7563, 100.5018)
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("expected symmetric distance, got %f and %f", a, b)
	}
}

func TestHaversineMetersKnownDistances(t *testing.T) {
	tests := []struct {
		name               string
		lat1, lon1         float64
		lat2, lon2         float64
		expMeters          float64
		toleranceMeters    float64
	}{
		{
			// One degree of latitude along a meridian.
			name: "one degree latitude",
			lat1: 0, lon1: 0,
			lat2: 1, lon2: 0,
			expMeters:       111195,
			toleranceMeters: 50,
		},
		{
			// Roughly eleven meters, the scale a radius check cares about.
			name: "short hop",
			lat1: 13.756300, lon1: 100.501800,
			lat2: 13.756400, lon2: 100.501800,
			expMeters:       11.1,
			toleranceMeters: 0.2,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			d := HaversineMeters(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			if math.Abs(d-tc.expMeters) > tc.toleranceMeters {
				t.Fatalf("expected ~%f m, got %f m", tc.expMeters, d)
			}
		})
	}
}

func TestIsValidCoordinate(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		expValid bool
	}{
		{name: "bangkok", lat: 13.7563, lon: 100.5018, expValid: true},
		{name: "poles", lat: 90, lon: 180, expValid: true},
		{name: "latitude out of range", lat: 91, lon: 0, expValid: false},
		{name: "longitude out of range", lat: 0, lon: -181, expValid: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidCoordinate(tc.lat, tc.lon); got != tc.expValid {
				t.Fatalf("expected valid=%v, got %v", tc.expValid, got)
			}
		})
	}
}
