package crypto

import "testing"

func TestDeriveAuthorityIsDeterministic(t *testing.T) {
	var mint [32]byte
	mint[0] = 0xAB

	first := DeriveAuthority(mint, 3)
	second := DeriveAuthority(mint, 3)
	if first != second {
		t.Fatalf("derivation not deterministic")
	}
	if first == ([20]byte{}) {
		t.Fatalf("derived authority is zero")
	}
}

func TestDeriveAuthorityVariesWithInputs(t *testing.T) {
	var mint, otherMint [32]byte
	mint[0] = 0x01
	otherMint[0] = 0x02

	base := DeriveAuthority(mint, 3)
	if DeriveAuthority(mint, 4) == base {
		t.Fatalf("bump change did not change authority")
	}
	if DeriveAuthority(otherMint, 3) == base {
		t.Fatalf("mint change did not change authority")
	}
}

func TestVerifyAuthority(t *testing.T) {
	var mint [32]byte
	mint[5] = 0x7C

	derived := DeriveAuthority(mint, 9)
	if err := VerifyAuthority(mint, 9, derived); err != nil {
		t.Fatalf("expected derived authority to verify: %v", err)
	}
	if err := VerifyAuthority(mint, 8, derived); err == nil {
		t.Fatalf("expected wrong bump to fail verification")
	}
	if err := VerifyAuthority(mint, 9, [20]byte{}); err == nil {
		t.Fatalf("expected zero authority to fail verification")
	}
}

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if string(decoded.Prefix()) != string(IDOPrefix) {
		t.Fatalf("unexpected prefix %q", decoded.Prefix())
	}
	if len(decoded.Bytes()) != 20 {
		t.Fatalf("unexpected address length %d", len(decoded.Bytes()))
	}
	if addr.String() != decoded.String() {
		t.Fatalf("address round trip mismatch")
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-bech32"); err == nil {
		t.Fatalf("expected decode failure")
	}
}
