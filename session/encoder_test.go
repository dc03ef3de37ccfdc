package session

import (
	"errors"
	"testing"
)

func TestDecodeRefreshTokenRejectsCorruptRecords(t *testing.T) {
	valid := map[string]string{
		fieldUserID:    "u-1",
		fieldTokenID:   "jti",
		fieldSessionID: "sid",
		fieldExpiresAt: "1700000000000",
		fieldCreatedAt: "1699999000000",
	}
	if _, err := decodeRefreshToken("h", valid); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	cases := map[string]func(map[string]string){
		"missing user":    func(m map[string]string) { delete(m, fieldUserID) },
		"missing expiry":  func(m map[string]string) { delete(m, fieldExpiresAt) },
		"garbage expiry":  func(m map[string]string) { m[fieldExpiresAt] = "soon" },
		"garbage used_at": func(m map[string]string) { m[fieldUsedAt] = "x" },
		"missing session": func(m map[string]string) { m[fieldSessionID] = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			m := make(map[string]string, len(valid))
			for k, v := range valid {
				m[k] = v
			}
			mutate(m)
			if _, err := decodeRefreshToken("h", m); !errors.Is(err, ErrRecordCorrupt) {
				t.Fatalf("expected ErrRecordCorrupt, got %v", err)
			}
		})
	}
}

// FuzzDecodeRefreshToken feeds arbitrary field values through the decoder.
// Goal: no panics, only ErrRecordCorrupt or success.
func FuzzDecodeRefreshToken(f *testing.F) {
	f.Add("u-1", "jti", "sid", "1700000000000", "1", "")
	f.Add("", "", "", "", "", "")
	f.Add("u", "j", "s", "-1", "0", "abc")

	f.Fuzz(func(t *testing.T, user, jti, sid, expires, used, usedAt string) {
		_, err := decodeRefreshToken("h", map[string]string{
			fieldUserID:    user,
			fieldTokenID:   jti,
			fieldSessionID: sid,
			fieldExpiresAt: expires,
			fieldUsed:      used,
			fieldUsedAt:    usedAt,
		})
		if err != nil && !errors.Is(err, ErrRecordCorrupt) {
			t.Fatalf("unexpected error class: %v", err)
		}
	})
}
