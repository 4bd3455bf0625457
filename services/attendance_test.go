package services

import "testing"

func TestEvaluateScan(t *testing.T) {
	allowed := []string{"CampusWiFi", "LibraryWiFi"}

	tests := []struct {
		name     string
		distance float64
		radius   float64
		network  string
		allowed  []string
		expected ScanOutcome
	}{
		{
			name:     "in range",
			distance: 3.2,
			radius:   5,
			network:  "HomeWiFi",
			allowed:  allowed,
			expected: ScanPresent,
		},
		{
			name:     "exactly at radius",
			distance: 5,
			radius:   5,
			network:  "HomeWiFi",
			allowed:  allowed,
			expected: ScanPresent,
		},
		{
			name:     "out of range on allowed network",
			distance: 40,
			radius:   5,
			network:  "CampusWiFi",
			allowed:  allowed,
			expected: ScanRequested,
		},
		{
			name:     "out of range on unknown network",
			distance: 40,
			radius:   5,
			network:  "HomeWiFi",
			allowed:  allowed,
			expected: ScanDenied,
		},
		{
			name:     "out of range with empty allowlist",
			distance: 40,
			radius:   5,
			network:  "CampusWiFi",
			allowed:  nil,
			expected: ScanDenied,
		},
		{
			name:     "network match is case sensitive",
			distance: 40,
			radius:   5,
			network:  "campuswifi",
			allowed:  allowed,
			expected: ScanDenied,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := EvaluateScan(tc.distance, tc.radius, tc.network, tc.allowed)
			if got != tc.expected {
				t.Fatalf("expected outcome %s, got %s", tc.expected, got)
			}
		})
	}
}
