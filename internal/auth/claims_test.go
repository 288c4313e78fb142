package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "unit-test-secret-at-least-32-chars-long"

func TestGenerateAndParseToken(t *testing.T) {
	signed, err := GenerateToken("front-desk", RoleOperator, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if signed == "" {
		t.Fatal("GenerateToken() returned empty token")
	}

	claims, err := ParseToken(signed, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "front-desk" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "front-desk")
	}
	if claims.Role != RoleOperator {
		t.Errorf("Role = %q, want %q", claims.Role, RoleOperator)
	}
	if claims.ID == "" {
		t.Error("token ID should be set")
	}
}

func TestGenerateToken_UnknownRole(t *testing.T) {
	_, err := GenerateToken("x", Role("superuser"), testSecret, time.Hour)
	if err == nil {
		t.Fatal("GenerateToken() should reject unrecognised role")
	}
}

func TestGenerateToken_DefaultTTL(t *testing.T) {
	signed, err := GenerateToken("x", RoleViewer, testSecret, 0)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	claims, err := ParseToken(signed, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining < 23*time.Hour || remaining > 25*time.Hour {
		t.Errorf("default TTL = %v, want ~24h", remaining)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	signed, err := GenerateToken("x", RoleAdmin, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	_, err = ParseToken(signed, "a-completely-different-signing-secret!!")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_Expired(t *testing.T) {
	signed, err := GenerateToken("x", RoleAdmin, testSecret, time.Nanosecond)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	_, err = ParseToken(signed, testSecret)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("ParseToken() error = %v, want ErrTokenExpired", err)
	}
}

func TestParseToken_Garbage(t *testing.T) {
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := ParseToken(tok, testSecret); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("ParseToken(%q) error = %v, want ErrTokenInvalid", tok, err)
		}
	}
}

func TestParseToken_Tampered(t *testing.T) {
	signed, err := GenerateToken("x", RoleViewer, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	// Flip a character in the payload segment.
	parts := strings.Split(signed, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d segments", len(parts))
	}
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := ParseToken(tampered, testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermFleetRead, true},
		{RoleViewer, PermFleetOperate, false},
		{RoleViewer, PermScheduleManage, false},
		{RoleOperator, PermFleetOperate, true},
		{RoleOperator, PermFleetManage, false},
		{RoleOperator, PermScheduleRead, true},
		{RoleAdmin, PermFleetManage, true},
		{RoleAdmin, PermScheduleManage, true},
		{RoleAdmin, PermSystemAdmin, true},
		{Role("ghost"), PermFleetRead, false},
	}

	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestPermissionsForRole(t *testing.T) {
	perms := PermissionsForRole(RoleAdmin)
	if len(perms) == 0 {
		t.Fatal("admin should have permissions")
	}
	// Returned slice must be a copy.
	perms[0] = Permission("mutated")
	if HasPermission(RoleAdmin, Permission("mutated")) {
		t.Error("PermissionsForRole() exposed internal slice")
	}

	if got := PermissionsForRole(Role("ghost")); got != nil {
		t.Errorf("PermissionsForRole(ghost) = %v, want nil", got)
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range ValidRoles {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = false", r)
		}
	}
	if IsValidRole(Role("panel")) {
		t.Error("IsValidRole(panel) = true, want false")
	}
}
