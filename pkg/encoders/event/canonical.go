package event

import (
	"strconv"

	"github.com/minio/sha256-simd"

	"bigbrotr.dev/pkg/encoders/hex"
)

// SerializeCanonical appends the canonical id preimage to dst:
//
//	[0,pubkey,created_at,kind,tags,content]
//
// Compact JSON, no whitespace, insertion order preserved, standard escapes
// only. The event id is the sha256 of exactly these bytes.
func (ev *E) SerializeCanonical(dst []byte) []byte {
	dst = append(dst, `[0,"`...)
	dst = append(dst, ev.Pubkey...)
	dst = append(dst, `",`...)
	dst = strconv.AppendInt(dst, ev.CreatedAt, 10)
	dst = append(dst, ',')
	dst = strconv.AppendInt(dst, int64(ev.Kind), 10)
	dst = append(dst, ',')
	dst = appendTags(dst, ev.Tags)
	dst = append(dst, ',')
	dst = AppendString(dst, ev.Content)
	dst = append(dst, ']')
	return dst
}

// IDBytes computes the event id over the canonical serialization.
func (ev *E) IDBytes() []byte {
	h := sha256.Sum256(ev.SerializeCanonical(nil))
	return h[:]
}

// ComputeID computes the event id as lowercase hex.
func (ev *E) ComputeID() string { return hex.Enc(ev.IDBytes()) }

// CheckID reports whether the declared id matches the canonical hash.
func (ev *E) CheckID() bool { return ev.ID == ev.ComputeID() }
