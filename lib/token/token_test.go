package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/chattyClaw/nohumanallowed/internal"
)

const testChallengeID = "nha_0123456789abcdef01234567"

func TestIssueRejectsBadChallengeID(t *testing.T) {
	for _, id := range []string{"", "bare", "NHA_0123", "nha0123"} {
		t.Run(id, func(t *testing.T) {
			if _, err := Issue(id, ""); !errors.Is(err, ErrBadChallengeID) {
				t.Errorf("got error %v, wanted ErrBadChallengeID", err)
			}
		})
	}
}

func TestRoundTripUnsigned(t *testing.T) {
	tok, err := Issue(testChallengeID, "")
	if err != nil {
		t.Fatal(err)
	}

	if strings.Contains(tok, delimiter) {
		t.Errorf("unsigned token %q carries a signature", tok)
	}

	result := Verify(tok, nil)
	if !result.Valid {
		t.Fatal("fresh unsigned token did not verify")
	}
	if result.ChallengeID != testChallengeID {
		t.Errorf("got challenge id %q, wanted %q", result.ChallengeID, testChallengeID)
	}
}

func TestRoundTripSigned(t *testing.T) {
	tok, err := Issue(testChallengeID, "hunter2")
	if err != nil {
		t.Fatal(err)
	}

	payload, sig, ok := strings.Cut(tok, delimiter)
	if !ok {
		t.Fatalf("signed token %q has no signature part", tok)
	}
	if payload == "" || len(sig) != sigLen {
		t.Fatalf("malformed signed token %q", tok)
	}

	if result := Verify(tok, &VerifyOptions{Secret: "hunter2"}); !result.Valid {
		t.Error("signed token did not verify with the right secret")
	}

	if result := Verify(tok, &VerifyOptions{Secret: "wrong"}); result.Valid {
		t.Error("signed token verified with the wrong secret")
	}

	// secret supplied but token has no signature
	if result := Verify(payload, &VerifyOptions{Secret: "hunter2"}); result.Valid {
		t.Error("stripped token verified even though a secret was supplied")
	}
}

func TestVerifyRequireSecret(t *testing.T) {
	tok, err := Issue(testChallengeID, "")
	if err != nil {
		t.Fatal(err)
	}

	if result := Verify(tok, &VerifyOptions{RequireSecret: true}); result.Valid {
		t.Error("token verified without a secret despite RequireSecret")
	}
}

func TestVerifyAgeBoundExclusive(t *testing.T) {
	maxAge := 5 * time.Second

	mint := func(age time.Duration) string {
		payload := fmt.Sprintf("%s:%d", testChallengeID, time.Now().Add(-age).UnixMilli())
		return base64.RawURLEncoding.EncodeToString([]byte(payload))
	}

	// exactly maxAge old: already expired, the bound is exclusive
	if result := Verify(mint(maxAge), &VerifyOptions{MaxAge: maxAge}); result.Valid {
		t.Error("token exactly MaxAge old verified")
	}

	if result := Verify(mint(maxAge/2), &VerifyOptions{MaxAge: maxAge}); !result.Valid {
		t.Error("token half of MaxAge old did not verify")
	}

	// negative MaxAge rejects everything
	if result := Verify(mint(0), &VerifyOptions{MaxAge: -1}); result.Valid {
		t.Error("negative MaxAge accepted a token")
	}
}

func TestVerifyMalformedTokens(t *testing.T) {
	goodPayload := fmt.Sprintf("%s:%d", testChallengeID, time.Now().UnixMilli())
	encode := base64.RawURLEncoding.EncodeToString

	for _, cs := range []struct {
		name string
		tok  string
	}{
		{"empty", ""},
		{"not-base64", "!!!not base64!!!"},
		{"no-colon", encode([]byte("nha_payloadwithoutcolon"))},
		{"too-many-parts", encode([]byte(testChallengeID + ":123:456"))},
		{"bad-prefix", encode([]byte("bogus_0123:123456"))},
		{"non-numeric-timestamp", encode([]byte(testChallengeID + ":tomorrow"))},
		{"zero-timestamp", encode([]byte(testChallengeID + ":0"))},
		{"negative-timestamp", encode([]byte(testChallengeID + ":-5"))},
		{"garbage-signature", encode([]byte(goodPayload)) + delimiter + "zzzz"},
	} {
		t.Run(cs.name, func(t *testing.T) {
			if result := Verify(cs.tok, &VerifyOptions{Secret: "hunter2"}); result.Valid {
				t.Errorf("malformed token %q verified", cs.tok)
			}
		})
	}
}

func TestVerifySignatureConstantLength(t *testing.T) {
	tok, err := Issue(testChallengeID, "hunter2")
	if err != nil {
		t.Fatal(err)
	}

	payload, _, _ := strings.Cut(tok, delimiter)
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		t.Fatal(err)
	}

	// a full-length (untruncated) tag must not pass either
	full := internal.HMACSHA256sum(string(raw), "hunter2")
	if result := Verify(payload+delimiter+full, &VerifyOptions{Secret: "hunter2"}); result.Valid {
		t.Error("untruncated signature verified")
	}
}

func TestTokensAreIndependentlyReVerifiable(t *testing.T) {
	tok, err := Issue(testChallengeID, "hunter2")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if result := Verify(tok, &VerifyOptions{Secret: "hunter2"}); !result.Valid {
			t.Fatalf("verification %d failed", i)
		}
	}
}
