// Package event implements the signed, content-addressed record at the heart
// of the protocol: strict and relaxed JSON decoding, the canonical compact
// serialization the id hash is computed over, and Schnorr sign/verify.
package event

import (
	"bytes"
	"encoding/json"
	"strconv"

	"bigbrotr.dev/pkg/utils/errorf"
)

// E is an event. ID, Pubkey and Sig are lowercase hex (32, 32 and 64 bytes
// respectively); Tags preserves insertion order of both the outer and inner
// lists, which the id hash depends on.
type E struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// S is a sortable slice of events, ordered newest first.
type S []*E

func (s S) Len() int           { return len(s) }
func (s S) Less(i, j int) bool { return s[i].CreatedAt > s[j].CreatedAt }
func (s S) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// C is a channel of events.
type C chan *E

// TagValue returns the second element of the first tag whose first element
// equals name, or "" if there is none.
func (ev *E) TagValue(name string) string {
	for _, t := range ev.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1]
		}
	}
	return ""
}

// Marshal appends the wire form of the event to dst: the full JSON object
// with keys in the conventional order.
func (ev *E) Marshal(dst []byte) []byte {
	dst = append(dst, `{"id":"`...)
	dst = append(dst, ev.ID...)
	dst = append(dst, `","pubkey":"`...)
	dst = append(dst, ev.Pubkey...)
	dst = append(dst, `","created_at":`...)
	dst = strconv.AppendInt(dst, ev.CreatedAt, 10)
	dst = append(dst, `,"kind":`...)
	dst = strconv.AppendInt(dst, int64(ev.Kind), 10)
	dst = append(dst, `,"tags":`...)
	dst = appendTags(dst, ev.Tags)
	dst = append(dst, `,"content":`...)
	dst = AppendString(dst, ev.Content)
	dst = append(dst, `,"sig":"`...)
	dst = append(dst, ev.Sig...)
	dst = append(dst, `"}`...)
	return dst
}

// Unmarshal decodes an event from strict JSON.
func Unmarshal(data []byte) (ev *E, err error) {
	ev = &E{}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err = dec.Decode(ev); err != nil {
		return nil, err
	}
	if ev.Tags == nil {
		ev.Tags = [][]string{}
	}
	return
}

// UnmarshalRelaxed decodes an event, retrying once after rewriting the
// common over-escapes some relays emit (raw control characters and stray
// backslashes inside string literals). The relaxed bytes are only used for
// parsing: callers re-serialize canonically before hashing.
func UnmarshalRelaxed(data []byte) (ev *E, err error) {
	if ev, err = Unmarshal(data); err == nil {
		return
	}
	fixed := relaxEscapes(data)
	if ev, err = Unmarshal(fixed); err != nil {
		err = errorf.D("unparseable event after relaxed retry: %v", err)
		return nil, err
	}
	return
}

// relaxEscapes rewrites raw control characters and invalid escape sequences
// found inside JSON string literals into their legal escaped forms. Bytes
// outside string literals pass through untouched.
func relaxEscapes(data []byte) (out []byte) {
	out = make([]byte, 0, len(data)+16)
	inString := false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			out = append(out, c)
			continue
		}
		switch c {
		case '"':
			inString = false
			out = append(out, c)
		case '\\':
			if i+1 < len(data) && validEscape(data[i+1]) {
				out = append(out, c, data[i+1])
				i++
			} else {
				// lone backslash: double it
				out = append(out, '\\', '\\')
			}
		case '\n':
			out = append(out, '\\', 'n')
		case '\r':
			out = append(out, '\\', 'r')
		case '\t':
			out = append(out, '\\', 't')
		case '\b':
			out = append(out, '\\', 'b')
		case '\f':
			out = append(out, '\\', 'f')
		default:
			if c < 0x20 {
				out = append(out, []byte(`\u00`)...)
				const hexdig = "0123456789abcdef"
				out = append(out, hexdig[c>>4], hexdig[c&0xf])
			} else {
				out = append(out, c)
			}
		}
	}
	return
}

func validEscape(c byte) bool {
	switch c {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
		return true
	}
	return false
}

// AppendString appends s to dst as a JSON string literal using only the
// standard escapes, as the canonical form requires.
func AppendString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			dst = append(dst, '\\', '"')
		case '\\':
			dst = append(dst, '\\', '\\')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		case '\b':
			dst = append(dst, '\\', 'b')
		case '\f':
			dst = append(dst, '\\', 'f')
		default:
			if c < 0x20 {
				dst = append(dst, []byte(`\u00`)...)
				const hexdig = "0123456789abcdef"
				dst = append(dst, hexdig[c>>4], hexdig[c&0xf])
			} else {
				dst = append(dst, c)
			}
		}
	}
	return append(dst, '"')
}

func appendTags(dst []byte, tags [][]string) []byte {
	dst = append(dst, '[')
	for i, t := range tags {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, '[')
		for j, v := range t {
			if j > 0 {
				dst = append(dst, ',')
			}
			dst = AppendString(dst, v)
		}
		dst = append(dst, ']')
	}
	return append(dst, ']')
}
