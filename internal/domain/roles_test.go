package domain

import "testing"

func TestValidRole(t *testing.T) {
	cases := []struct {
		role string
		want bool
	}{
		{RoleUser, true},
		{RoleReseller, true},
		{"admin", false},
		{"", false},
		{"User", false},
	}

	for _, tc := range cases {
		if got := ValidRole(tc.role); got != tc.want {
			t.Fatalf("ValidRole(%q) = %v, want %v", tc.role, got, tc.want)
		}
	}
}
