package tier

import "testing"

func TestForBalance(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		want    Tier
	}{
		{"negative clamps to bronze", -100, Bronze},
		{"zero is bronze", 0, Bronze},
		{"just below silver", 499, Bronze},
		{"silver boundary qualifies", 500, Silver},
		{"mid silver", 1250, Silver},
		{"just below gold", 1499, Silver},
		{"gold boundary qualifies", 1500, Gold},
		{"after accrual scenario", 1550, Gold},
		{"just below platinum", 4999, Gold},
		{"platinum boundary qualifies", 5000, Platinum},
		{"far above platinum", 1_000_000, Platinum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ForBalance(tt.balance); got != tt.want {
				t.Fatalf("ForBalance(%d) = %s, want %s", tt.balance, got, tt.want)
			}
		})
	}
}

func TestAtLeast(t *testing.T) {
	tests := []struct {
		name string
		have Tier
		want Tier
		ok   bool
	}{
		{"equal tiers", Silver, Silver, true},
		{"higher tier qualifies", Platinum, Silver, true},
		{"lower tier rejected", Silver, Gold, false},
		{"bronze never meets platinum", Bronze, Platinum, false},
		{"unknown requirement rejected", Platinum, Tier("DIAMOND"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AtLeast(tt.have, tt.want); got != tt.ok {
				t.Fatalf("AtLeast(%s, %s) = %v, want %v", tt.have, tt.want, got, tt.ok)
			}
		})
	}
}

func TestValid(t *testing.T) {
	for _, known := range []Tier{Bronze, Silver, Gold, Platinum} {
		if !Valid(known) {
			t.Fatalf("Valid(%s) = false, want true", known)
		}
	}
	if Valid(Tier("silver")) {
		t.Fatalf("tier names are case-sensitive, lowercase must be invalid")
	}
}
