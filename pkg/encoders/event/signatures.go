package event

import (
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"bigbrotr.dev/pkg/encoders/hex"
	"bigbrotr.dev/pkg/interfaces/signer"
	"bigbrotr.dev/pkg/utils/chk"
	"bigbrotr.dev/pkg/utils/errorf"
)

// Sign populates Pubkey, ID and Sig using the given signer. The caller must
// set CreatedAt, Kind, Tags and Content first.
func (ev *E) Sign(keys signer.I) (err error) {
	ev.Pubkey = keys.Pub()
	id := ev.IDBytes()
	ev.ID = hex.Enc(id)
	var sig []byte
	if sig, err = keys.Sign(id); chk.E(err) {
		return
	}
	ev.Sig = hex.Enc(sig)
	return
}

// Verify checks that the declared id matches the canonical hash and that the
// Schnorr signature verifies over it with the event's pubkey.
func (ev *E) Verify() (valid bool, err error) {
	if !ev.CheckID() {
		return false, errorf.D("event id does not match canonical hash")
	}
	var pkb, sigb, idb []byte
	if pkb, err = hex.Dec(ev.Pubkey); chk.D(err) {
		return
	}
	if sigb, err = hex.Dec(ev.Sig); chk.D(err) {
		return
	}
	if idb, err = hex.Dec(ev.ID); chk.D(err) {
		return
	}
	pk, err := schnorr.ParsePubKey(pkb)
	if chk.D(err) {
		return
	}
	sig, err := schnorr.ParseSignature(sigb)
	if chk.D(err) {
		return
	}
	return sig.Verify(idb, pk), nil
}
