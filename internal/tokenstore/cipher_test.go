package tokenstore

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestSecretBoxRoundTrip(t *testing.T) {
	box, err := NewSecretBox(testKey())
	if err != nil {
		t.Fatalf("NewSecretBox: %v", err)
	}

	sealed, err := box.Seal("ya29.secret-token")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if sealed == "ya29.secret-token" {
		t.Fatal("sealed value must not equal plaintext")
	}
	if strings.Contains(sealed, "secret-token") {
		t.Fatal("sealed value leaks plaintext")
	}

	opened, err := box.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened != "ya29.secret-token" {
		t.Fatalf("Open = %q, want original plaintext", opened)
	}
}

func TestSecretBoxEmptyPassthrough(t *testing.T) {
	box, _ := NewSecretBox(testKey())
	sealed, err := box.Seal("")
	if err != nil || sealed != "" {
		t.Fatalf("Seal(empty) = %q, %v; want empty, nil", sealed, err)
	}
	opened, err := box.Open("")
	if err != nil || opened != "" {
		t.Fatalf("Open(empty) = %q, %v; want empty, nil", opened, err)
	}
}

func TestSecretBoxWrongKeyIsErrDecrypt(t *testing.T) {
	box, _ := NewSecretBox(testKey())
	other, _ := NewSecretBox(bytes.Repeat([]byte{0x13}, 32))

	sealed, err := box.Seal("token")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := other.Open(sealed); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("Open with wrong key = %v, want ErrDecrypt", err)
	}
}

func TestSecretBoxGarbageIsErrDecrypt(t *testing.T) {
	box, _ := NewSecretBox(testKey())
	cases := []string{
		"not base64 at all!!!",
		base64.StdEncoding.EncodeToString([]byte("too short")),
	}
	for _, c := range cases {
		if _, err := box.Open(c); !errors.Is(err, ErrDecrypt) {
			t.Errorf("Open(%q) = %v, want ErrDecrypt", c, err)
		}
	}
}

func TestSecretBoxNoncesDiffer(t *testing.T) {
	box, _ := NewSecretBox(testKey())
	a, _ := box.Seal("same")
	b, _ := box.Seal("same")
	if a == b {
		t.Fatal("two seals of the same plaintext must differ")
	}
}

func TestNewSecretBoxRejectsBadKey(t *testing.T) {
	if _, err := NewSecretBox([]byte("short")); err == nil {
		t.Fatal("expected error for short key")
	}
}
