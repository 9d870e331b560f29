// Package keys implements the secp256k1 signing identity used for authored
// probe events.
package keys

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"lukechampine.com/frand"

	"bigbrotr.dev/pkg/encoders/hex"
	"bigbrotr.dev/pkg/interfaces/signer"
	"bigbrotr.dev/pkg/utils/errorf"
)

// Keypair is a secp256k1 keypair implementing signer.I.
type Keypair struct {
	sec    *btcec.PrivateKey
	pubHex string
}

var _ signer.I = (*Keypair)(nil)

// FromSecretHex parses a 32 byte hex secret key.
func FromSecretHex(s string) (k *Keypair, err error) {
	var b []byte
	if b, err = hex.Dec(s); err != nil || len(b) != 32 {
		return nil, errorf.E("secret key must be 64 hex characters")
	}
	sec, _ := btcec.PrivKeyFromBytes(b)
	return &Keypair{
		sec:    sec,
		pubHex: hex.Enc(schnorr.SerializePubKey(sec.PubKey())),
	}, nil
}

// Generate creates a fresh keypair, for tests and ephemeral probes.
func Generate() (k *Keypair) {
	for {
		var b [32]byte
		frand.Read(b[:])
		sec, _ := btcec.PrivKeyFromBytes(b[:])
		if sec.Key.IsZero() {
			continue
		}
		return &Keypair{
			sec:    sec,
			pubHex: hex.Enc(schnorr.SerializePubKey(sec.PubKey())),
		}
	}
}

// Pub returns the x-only public key as lowercase hex.
func (k *Keypair) Pub() string { return k.pubHex }

// Sign produces a 64 byte Schnorr signature over msg.
func (k *Keypair) Sign(msg []byte) (sig []byte, err error) {
	s, err := schnorr.Sign(k.sec, msg)
	if err != nil {
		return nil, err
	}
	return s.Serialize(), nil
}
