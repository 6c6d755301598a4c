package agentkey

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"
)

func TestRoundTrip_signAndVerify(t *testing.T) {
	pub, priv, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	pubPEM, err := MarshalPublicKeyPEM(pub)
	if err != nil {
		t.Fatal(err)
	}

	msg := []byte(`{"agent_id":"a1","nonce":"n1"}`)
	sig := Sign(priv, msg)

	if !Verify(pubPEM, msg, sig) {
		t.Error("valid signature rejected")
	}
	if Verify(pubPEM, []byte("tampered"), sig) {
		t.Error("signature over different message accepted")
	}
}

func TestVerify_failsClosed(t *testing.T) {
	pub, priv, _ := GenerateKeypair()
	pubPEM, _ := MarshalPublicKeyPEM(pub)
	sig := Sign(priv, []byte("msg"))

	if Verify("not pem at all", []byte("msg"), sig) {
		t.Error("malformed PEM accepted")
	}
	if Verify(pubPEM, []byte("msg"), "!!not-base64url!!") {
		t.Error("undecodable signature accepted")
	}

	// Wrong key type: an ECDSA key in valid SPKI PEM must be rejected.
	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	der, _ := x509.MarshalPKIXPublicKey(&ec.PublicKey)
	ecPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	if Verify(ecPEM, []byte("msg"), sig) {
		t.Error("non-Ed25519 key accepted")
	}
}

func TestPrivateKeyPEM_roundTrip(t *testing.T) {
	_, priv, _ := GenerateKeypair()
	pemStr, err := MarshalPrivateKeyPEM(priv)
	if err != nil {
		t.Fatal(err)
	}
	back, err := ParsePrivateKeyPEM(pemStr)
	if err != nil {
		t.Fatal(err)
	}
	if !priv.Equal(back) {
		t.Error("private key changed across PEM round trip")
	}
}

func TestDecodeB64URL_acceptsPadded(t *testing.T) {
	got, err := DecodeB64URL("aGk=")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hi" {
		t.Errorf("got %q", got)
	}
}
