package services

import (
	"testing"
	"time"

	"qrattend_go/models"
)

func TestCachedTokenRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	token := &models.QRToken{
		BaseModel: models.BaseModel{ID: 7},
		SessionID: 42,
		Payload:   "f3a1c9d2-0b6e-4e8a-9c31-2d5f7a8b1c0e",
		Latitude:  33.0,
		Longitude: 35.0,
		IssuedAt:  now,
		ExpiresAt: now.Add(10 * time.Minute),
		Session: models.ClassSession{
			BaseModel: models.BaseModel{ID: 42},
			Topic:     "should not travel through the cache",
		},
	}

	data, err := encodeCachedToken(token)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}

	decoded, err := decodeCachedToken(data)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if decoded.ID != token.ID || decoded.SessionID != token.SessionID || decoded.Payload != token.Payload {
		t.Fatalf("decoded token lost identity fields: %+v", decoded)
	}
	if decoded.Latitude != token.Latitude || decoded.Longitude != token.Longitude {
		t.Fatalf("decoded token lost anchor coordinates: %+v", decoded)
	}
	if !decoded.ExpiresAt.Equal(token.ExpiresAt) {
		t.Fatalf("expected expiry %s, got %s", token.ExpiresAt, decoded.ExpiresAt)
	}
	// The session relation is loaded fresh on resolution, never cached.
	if decoded.Session.ID != 0 || decoded.Session.Topic != "" {
		t.Fatalf("expected session relation stripped, got %+v", decoded.Session)
	}
}

func TestDecodeCachedTokenRejectsIncompleteEntries(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "garbage", data: "not json"},
		{name: "missing payload", data: `{"session_id":42}`},
		{name: "missing session", data: `{"payload":"abc"}`},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decodeCachedToken([]byte(tc.data)); err == nil {
				t.Fatalf("expected error for %q", tc.data)
			}
		})
	}
}
