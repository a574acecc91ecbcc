package app

import "testing"

func TestAuthorityGate_Permits(t *testing.T) {
	tests := []struct {
		name      string
		allowList string
		caller    string
		want      bool
	}{
		{name: "single entry match", allowList: "ops-trigger", caller: "ops-trigger", want: true},
		{name: "single entry mismatch", allowList: "ops-trigger", caller: "intruder", want: false},
		{name: "multiple entries", allowList: "ops-trigger,backup-trigger", caller: "backup-trigger", want: true},
		{name: "whitespace trimmed", allowList: " ops-trigger , backup-trigger ", caller: "ops-trigger", want: true},
		{name: "empty list permits nobody", allowList: "", caller: "ops-trigger", want: false},
		{name: "empty caller", allowList: "ops-trigger", caller: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewAuthorityGate(tt.allowList)
			if got := gate.Permits(tt.caller); got != tt.want {
				t.Fatalf("Permits(%q) = %v, want %v", tt.caller, got, tt.want)
			}
		})
	}
}
