package jwt

import (
	"testing"
	"time"
)

// FuzzParse exercises the parser with arbitrary token strings.
// Invalid inputs must be rejected with errors, never panic.
func FuzzParse(f *testing.F) {
	now := time.Unix(1_700_000_000, 0)
	mgr, err := NewManager(Config{
		Secret: testSecret,
		Issuer: "fuzz-test",
		Leeway: 30 * time.Second,
		KeyID:  "k1",
		Now:    func() time.Time { return now },
	})
	if err != nil {
		f.Fatal(err)
	}

	validToken, err := mgr.Issue(Claims{UserID: "u1", TokenID: "j1", SessionID: "s1"}, now, 5*time.Minute)
	if err != nil {
		f.Fatal(err)
	}

	f.Add(validToken)
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.e30.")
	f.Add(validToken + "x")
	f.Add("....")

	f.Fuzz(func(t *testing.T, token string) {
		if token == validToken {
			return
		}
		if claims, err := mgr.Parse(token); err == nil && claims == nil {
			t.Fatal("nil claims without error")
		}
		_, _ = mgr.ValidateExpired(token)
	})
}
