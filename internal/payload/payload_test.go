package payload

import (
	"strings"
	"testing"
	"time"
)

var testSecret = []byte("test-secret")

func testClaims() Claims {
	issued := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	return Claims{
		TicketID:  "7b9f0e1a-2c4d-4e8f-9a10-deadbeef0001",
		RewardID:  42,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(30 * time.Minute),
	}
}

func TestEncodeDecode_Roundtrip(t *testing.T) {
	claims := testClaims()
	value := Encode(testSecret, claims)

	got, ok := Decode(testSecret, value)
	if !ok {
		t.Fatalf("Decode rejected a freshly encoded payload")
	}
	if got.TicketID != claims.TicketID {
		t.Fatalf("TicketID = %q, want %q", got.TicketID, claims.TicketID)
	}
	if got.RewardID != claims.RewardID {
		t.Fatalf("RewardID = %d, want %d", got.RewardID, claims.RewardID)
	}
	if !got.IssuedAt.Equal(claims.IssuedAt) {
		t.Fatalf("IssuedAt = %v, want %v", got.IssuedAt, claims.IssuedAt)
	}
	if !got.ExpiresAt.Equal(claims.ExpiresAt) {
		t.Fatalf("ExpiresAt = %v, want %v", got.ExpiresAt, claims.ExpiresAt)
	}
}

func TestDecode_RejectsTamperedBody(t *testing.T) {
	value := Encode(testSecret, testClaims())

	parts := strings.Split(value, ".")
	tampered := parts[0][:len(parts[0])-1] + "A" + "." + parts[1]
	if tampered == value {
		tampered = parts[0][:len(parts[0])-1] + "B" + "." + parts[1]
	}

	if _, ok := Decode(testSecret, tampered); ok {
		t.Fatalf("Decode accepted a payload with modified body")
	}
}

func TestDecode_RejectsWrongSecret(t *testing.T) {
	value := Encode(testSecret, testClaims())

	if _, ok := Decode([]byte("other-secret"), value); ok {
		t.Fatalf("Decode accepted a payload signed with another secret")
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	for _, value := range []string{"", "no-dot", "a.b.c", "!!!.ffff"} {
		if _, ok := Decode(testSecret, value); ok {
			t.Fatalf("Decode accepted garbage %q", value)
		}
	}
}
