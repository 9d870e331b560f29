// Package signer abstracts the signing keypair used for authored events,
// so the encoders do not depend on a concrete curve implementation.
package signer

// I is a signing identity. Pub returns the x-only public key as lowercase
// hex; Sign produces a 64 byte Schnorr signature over msg.
type I interface {
	Pub() string
	Sign(msg []byte) (sig []byte, err error)
}
