package auth

import (
	"testing"
	"time"

	"github.com/lalith-99/parley/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	identity := models.Identity{Kind: models.KindUser, ID: "42"}

	token, err := GenerateToken(identity, "alice@example.com", "secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseToken(token, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Identity() != identity {
		t.Fatalf("identity = %+v, want %+v", claims.Identity(), identity)
	}
	if claims.Email != "alice@example.com" {
		t.Fatalf("email = %q", claims.Email)
	}
	if claims.Issuer != "parley" {
		t.Fatalf("issuer = %q", claims.Issuer)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	identity := models.Identity{Kind: models.KindBot, ID: "helper"}

	token, err := GenerateToken(identity, "", "secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseToken(token, "other-secret"); err == nil {
		t.Fatal("token signed with a different secret should not parse")
	}
}

func TestParseTokenExpired(t *testing.T) {
	identity := models.Identity{Kind: models.KindUser, ID: "42"}

	token, err := GenerateToken(identity, "", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseToken(token, "secret"); err == nil {
		t.Fatal("expired token should not parse")
	}
}

func TestParseTokenGarbage(t *testing.T) {
	if _, err := ParseToken("not-a-token", "secret"); err == nil {
		t.Fatal("garbage should not parse")
	}
}
