package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/consertaja/billing/pkg/config"
)

func testAdminConfig() config.AdminConfig {
	return config.AdminConfig{
		JWTSecret: "test-secret",
		JWTIssuer: "consertaja-test",
	}
}

func TestMintAndParseAdminToken(t *testing.T) {
	cfg := testAdminConfig()
	now := time.Now()

	signed, err := MintAdminToken(cfg, now, "ops@consertaja.com.br", "Ops", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := ParseAdminToken(cfg, signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "ops@consertaja.com.br" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.Name != "Ops" {
		t.Fatalf("unexpected name %q", claims.Name)
	}
	if claims.Issuer != cfg.JWTIssuer {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
}

func TestParseAdminTokenRejectsExpired(t *testing.T) {
	cfg := testAdminConfig()
	past := time.Now().Add(-48 * time.Hour)

	signed, err := MintAdminToken(cfg, past, "ops@consertaja.com.br", "", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := ParseAdminToken(cfg, signed); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseAdminTokenRejectsWrongIssuer(t *testing.T) {
	signed, err := MintAdminToken(config.AdminConfig{
		JWTSecret: "test-secret",
		JWTIssuer: "someone-else",
	}, time.Now(), "ops@consertaja.com.br", "", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := ParseAdminToken(testAdminConfig(), signed); err == nil {
		t.Fatal("expected issuer mismatch to be rejected")
	}
}

func TestParseAdminTokenRejectsTampering(t *testing.T) {
	cfg := testAdminConfig()
	signed, err := MintAdminToken(cfg, time.Now(), "ops@consertaja.com.br", "", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	parts := strings.Split(signed, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]

	if _, err := ParseAdminToken(cfg, tampered); err == nil {
		t.Fatal("expected tampered signature to be rejected")
	}
}

func TestMintAdminTokenRequiresSubject(t *testing.T) {
	if _, err := MintAdminToken(testAdminConfig(), time.Now(), "", "", time.Hour); err == nil {
		t.Fatal("expected missing subject to be rejected")
	}
}
