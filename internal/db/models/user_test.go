package models

import "testing"

func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

func TestRequiresTwoFactor(t *testing.T) {
	tests := []struct {
		name string
		user UserWithRole
		want bool
	}{
		{
			name: "neither user nor role",
			user: UserWithRole{RoleRequires2FA: boolPtr(false)},
			want: false,
		},
		{
			name: "user enabled",
			user: UserWithRole{User: User{TwoFAEnabled: true}},
			want: true,
		},
		{
			name: "role enforces",
			user: UserWithRole{RoleRequires2FA: boolPtr(true)},
			want: true,
		},
		{
			name: "no role assigned",
			user: UserWithRole{},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.RequiresTwoFactor(); got != tt.want {
				t.Errorf("RequiresTwoFactor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoleAccessors(t *testing.T) {
	var none UserWithRole
	if none.Role() != "" || none.Level() != 0 {
		t.Errorf("no role: Role()=%q Level()=%d, want empty/0", none.Role(), none.Level())
	}

	u := UserWithRole{RoleName: strPtr("Corretor"), RoleLevel: intPtr(10)}
	if u.Role() != "Corretor" || u.Level() != 10 {
		t.Errorf("Role()=%q Level()=%d, want Corretor/10", u.Role(), u.Level())
	}
}
