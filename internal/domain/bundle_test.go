package domain

import "testing"

func TestBundleNextEligibleAt(t *testing.T) {
	tests := []struct {
		name   string
		bundle Bundle
		want   int64
	}{
		{
			name:   "never paid is eligible immediately",
			bundle: Bundle{IntervalSeconds: 86400, LastPaid: 0},
			want:   0,
		},
		{
			name:   "paid bundle waits one interval",
			bundle: Bundle{IntervalSeconds: 86400, LastPaid: 1_700_000_000},
			want:   1_700_086_400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.bundle.NextEligibleAt(); got != tt.want {
				t.Fatalf("NextEligibleAt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBundleIsDue(t *testing.T) {
	base := int64(1_700_000_000)
	bundle := Bundle{IntervalSeconds: 3600, LastPaid: base}

	if !(Bundle{IntervalSeconds: 3600}).IsDue(base) {
		t.Fatal("never-paid bundle must be due")
	}
	if bundle.IsDue(base + 3599) {
		t.Fatal("bundle must not be due one second before the interval elapses")
	}
	if !bundle.IsDue(base + 3600) {
		t.Fatal("bundle must be due exactly when the interval elapses")
	}
}
