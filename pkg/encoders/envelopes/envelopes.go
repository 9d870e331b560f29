// Package envelopes is the client side codec for the JSON array frames
// exchanged with relays: REQ/CLOSE/EVENT outbound, and
// EVENT/EOSE/CLOSED/OK/NOTICE inbound.
package envelopes

import (
	"encoding/json"

	"bigbrotr.dev/pkg/encoders/event"
	"bigbrotr.dev/pkg/encoders/filter"
	"bigbrotr.dev/pkg/utils/errorf"
)

// Inbound labels.
const (
	LEvent  = "EVENT"
	LEose   = "EOSE"
	LClosed = "CLOSED"
	LOK     = "OK"
	LNotice = "NOTICE"
	LAuth   = "AUTH"
)

// Envelope is a parsed inbound frame. Only the fields relevant to its Label
// are populated.
type Envelope struct {
	Label    string
	SubID    string
	Event    *event.E
	EventID  string
	Accepted bool
	Reason   string
	Notice   string
}

// Parse identifies and decodes an inbound frame. Events inside EVENT frames
// go through the relaxed decoder; signature checks are the caller's job.
func Parse(data []byte) (env *Envelope, err error) {
	var arr []json.RawMessage
	if err = json.Unmarshal(data, &arr); err != nil {
		return nil, errorf.D("not an array frame: %v", err)
	}
	if len(arr) == 0 {
		return nil, errorf.D("empty array frame")
	}
	env = &Envelope{}
	if err = json.Unmarshal(arr[0], &env.Label); err != nil {
		return nil, errorf.D("unreadable frame label: %v", err)
	}
	switch env.Label {
	case LEvent:
		if len(arr) < 3 {
			return nil, errorf.D("EVENT frame with %d elements", len(arr))
		}
		if err = json.Unmarshal(arr[1], &env.SubID); err != nil {
			return nil, err
		}
		if env.Event, err = event.UnmarshalRelaxed(arr[2]); err != nil {
			return nil, err
		}
	case LEose:
		if len(arr) < 2 {
			return nil, errorf.D("EOSE frame with %d elements", len(arr))
		}
		err = json.Unmarshal(arr[1], &env.SubID)
	case LClosed:
		if len(arr) < 2 {
			return nil, errorf.D("CLOSED frame with %d elements", len(arr))
		}
		if err = json.Unmarshal(arr[1], &env.SubID); err != nil {
			return nil, err
		}
		if len(arr) > 2 {
			_ = json.Unmarshal(arr[2], &env.Reason)
		}
	case LOK:
		if len(arr) < 3 {
			return nil, errorf.D("OK frame with %d elements", len(arr))
		}
		if err = json.Unmarshal(arr[1], &env.EventID); err != nil {
			return nil, err
		}
		if err = json.Unmarshal(arr[2], &env.Accepted); err != nil {
			return nil, err
		}
		if len(arr) > 3 {
			_ = json.Unmarshal(arr[3], &env.Reason)
		}
	case LNotice:
		if len(arr) > 1 {
			_ = json.Unmarshal(arr[1], &env.Notice)
		}
	case LAuth:
		// recognized so the read loop can skip it without a warning
	default:
		return nil, errorf.D("unknown frame label %q", env.Label)
	}
	return env, err
}

// AppendReq appends a ["REQ", subID, filter] frame to dst.
func AppendReq(dst []byte, subID string, f *filter.F) []byte {
	dst = append(dst, `["REQ",`...)
	dst = event.AppendString(dst, subID)
	dst = append(dst, ',')
	dst = f.Marshal(dst)
	return append(dst, ']')
}

// AppendClose appends a ["CLOSE", subID] frame to dst.
func AppendClose(dst []byte, subID string) []byte {
	dst = append(dst, `["CLOSE",`...)
	dst = event.AppendString(dst, subID)
	return append(dst, ']')
}

// AppendEventSubmission appends an ["EVENT", event] frame to dst.
func AppendEventSubmission(dst []byte, ev *event.E) []byte {
	dst = append(dst, `["EVENT",`...)
	dst = ev.Marshal(dst)
	return append(dst, ']')
}
