package validator

import "testing"

func TestValidateEmail(t *testing.T) {
	for _, email := range []string{"a@b.co", "alice+tag@example.com"} {
		if err := ValidateEmail(email); err != nil {
			t.Errorf("rejected valid email %q: %v", email, err)
		}
	}
	for _, email := range []string{"", "no-at.example.com", "a@b", "a b@c.com"} {
		if err := ValidateEmail(email); err != ErrInvalidEmail {
			t.Errorf("accepted invalid email %q", email)
		}
	}
}

func TestValidateUsername(t *testing.T) {
	if err := ValidateUsername("alice_99"); err != nil {
		t.Fatalf("rejected valid username: %v", err)
	}
	for _, username := range []string{"ab", "has space", "way-too!fancy"} {
		if err := ValidateUsername(username); err != ErrInvalidUsername {
			t.Errorf("accepted invalid username %q", username)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("12345678"); err != nil {
		t.Fatalf("rejected valid password: %v", err)
	}
	if err := ValidatePassword("short"); err != ErrInvalidPassword {
		t.Fatalf("accepted short password")
	}
}

func TestValidateClaimCode(t *testing.T) {
	for _, code := range []string{"SAVE30", "X-100_OFF", "2024PROMO"} {
		if err := ValidateClaimCode(code); err != nil {
			t.Errorf("rejected valid code %q: %v", code, err)
		}
	}
	for _, code := range []string{"abc", "AB", "-LEADING", "has space", ""} {
		if err := ValidateClaimCode(code); err != ErrInvalidClaimCode {
			t.Errorf("accepted invalid code %q", code)
		}
	}
}

func TestValidatePercentage(t *testing.T) {
	for _, pct := range []int{1, 50, 100} {
		if err := ValidatePercentage(pct); err != nil {
			t.Errorf("rejected valid percentage %d: %v", pct, err)
		}
	}
	for _, pct := range []int{0, -5, 101} {
		if err := ValidatePercentage(pct); err != ErrInvalidPercentage {
			t.Errorf("accepted invalid percentage %d", pct)
		}
	}
}
