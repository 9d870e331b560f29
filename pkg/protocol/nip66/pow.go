package nip66

import (
	"math/bits"
	"strconv"

	"bigbrotr.dev/pkg/encoders/event"
	"bigbrotr.dev/pkg/encoders/hex"
	"bigbrotr.dev/pkg/utils/context"
	"bigbrotr.dev/pkg/utils/errorf"
)

// Difficulty counts the leading zero bits of a hex event id.
func Difficulty(id string) (n int) {
	b, err := hex.Dec(id)
	if err != nil {
		return 0
	}
	for _, v := range b {
		if v == 0 {
			n += 8
			continue
		}
		n += bits.LeadingZeros8(v)
		break
	}
	return
}

// Mine grinds a nonce tag onto ev until its id carries at least target
// leading zero bits, then leaves the id set. The event must be signed after
// mining, not before. A zero or negative target is a no-op beyond computing
// the id.
func Mine(c context.T, ev *event.E, target int) (err error) {
	if target <= 0 {
		ev.ID = ev.ComputeID()
		return
	}
	tag := []string{"nonce", "0", strconv.Itoa(target)}
	ev.Tags = append(ev.Tags, tag)
	for nonce := uint64(0); ; nonce++ {
		// checking every iteration would dominate the hash loop
		if nonce&0xffff == 0 && c.Err() != nil {
			return errorf.D("mining to %d bits interrupted: %v", target, c.Err())
		}
		tag[1] = strconv.FormatUint(nonce, 10)
		ev.ID = ev.ComputeID()
		if Difficulty(ev.ID) >= target {
			return
		}
	}
}
