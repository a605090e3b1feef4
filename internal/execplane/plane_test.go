package execplane

import "testing"

func TestClassifyShellResult(t *testing.T) {
	cases := []struct {
		name     string
		exitCode int
		stderr   string
		want     bool
	}{
		{"clean exit", 0, "", true},
		{"ssh dropped mid-kill", 255, "", true},
		{"session closed without exit status", -1, "", true},
		{"process already dead", 1, "no process found", true},
		{"real failure", 1, "permission denied", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyShellResult(tc.exitCode, "", tc.stderr)
			if got.Success != tc.want {
				t.Errorf("Success = %v, want %v", got.Success, tc.want)
			}
		})
	}
}
