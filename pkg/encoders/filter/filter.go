// Package filter implements the subscription filter: the recognized keys are
// ids, authors, kinds, since, until, limit and single-letter "#x" tag
// filters. Unknown keys are dropped at parse time.
package filter

import (
	"encoding/json"
	"sort"
	"strconv"

	"bigbrotr.dev/pkg/encoders/event"
	"bigbrotr.dev/pkg/utils/errorf"
)

// F is a filter. Nil pointer fields are omitted from the wire form.
type F struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Since   *int64
	Until   *int64
	Limit   *int
	// Tags maps a single letter to the accepted values, keyed without the
	// leading '#'.
	Tags map[string][]string
}

// New returns an empty filter.
func New() *F { return &F{} }

// Clone returns a copy sharing the slice backing arrays. The engine mutates
// only Since, Until and Limit on its copies.
func (f *F) Clone() (out *F) {
	c := *f
	return &c
}

// Parse decodes a filter from JSON, dropping unrecognized keys.
func Parse(data []byte) (f *F, err error) {
	var raw map[string]json.RawMessage
	if err = json.Unmarshal(data, &raw); err != nil {
		return nil, errorf.D("invalid filter json: %v", err)
	}
	f = New()
	for k, v := range raw {
		switch k {
		case "ids":
			err = json.Unmarshal(v, &f.IDs)
		case "authors":
			err = json.Unmarshal(v, &f.Authors)
		case "kinds":
			err = json.Unmarshal(v, &f.Kinds)
		case "since":
			var n int64
			if err = json.Unmarshal(v, &n); err == nil {
				f.Since = &n
			}
		case "until":
			var n int64
			if err = json.Unmarshal(v, &n); err == nil {
				f.Until = &n
			}
		case "limit":
			var n int
			if err = json.Unmarshal(v, &n); err == nil {
				f.Limit = &n
			}
		default:
			if len(k) == 2 && k[0] == '#' && isTagLetter(k[1]) {
				var vals []string
				if err = json.Unmarshal(v, &vals); err == nil {
					if f.Tags == nil {
						f.Tags = make(map[string][]string)
					}
					f.Tags[k[1:]] = vals
				}
			}
			// anything else is dropped
		}
		if err != nil {
			return nil, errorf.D("invalid filter key %q: %v", k, err)
		}
	}
	return
}

func isTagLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Marshal appends the compact wire form to dst. Tag filters are emitted in
// sorted key order so the output is stable.
func (f *F) Marshal(dst []byte) []byte {
	dst = append(dst, '{')
	first := true
	comma := func() {
		if !first {
			dst = append(dst, ',')
		}
		first = false
	}
	if f.IDs != nil {
		comma()
		dst = appendKeyStrings(dst, "ids", f.IDs)
	}
	if f.Authors != nil {
		comma()
		dst = appendKeyStrings(dst, "authors", f.Authors)
	}
	if f.Kinds != nil {
		comma()
		dst = append(dst, `"kinds":[`...)
		for i, k := range f.Kinds {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = strconv.AppendInt(dst, int64(k), 10)
		}
		dst = append(dst, ']')
	}
	var tagKeys []string
	for k := range f.Tags {
		tagKeys = append(tagKeys, k)
	}
	sort.Strings(tagKeys)
	for _, k := range tagKeys {
		comma()
		dst = appendKeyStrings(dst, "#"+k, f.Tags[k])
	}
	if f.Since != nil {
		comma()
		dst = append(dst, `"since":`...)
		dst = strconv.AppendInt(dst, *f.Since, 10)
	}
	if f.Until != nil {
		comma()
		dst = append(dst, `"until":`...)
		dst = strconv.AppendInt(dst, *f.Until, 10)
	}
	if f.Limit != nil {
		comma()
		dst = append(dst, `"limit":`...)
		dst = strconv.AppendInt(dst, int64(*f.Limit), 10)
	}
	return append(dst, '}')
}

func appendKeyStrings(dst []byte, key string, vals []string) []byte {
	dst = event.AppendString(dst, key)
	dst = append(dst, ':', '[')
	for i, v := range vals {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = event.AppendString(dst, v)
	}
	return append(dst, ']')
}

// Match reports whether ev satisfies the filter.
func (f *F) Match(ev *event.E) bool {
	if f.IDs != nil && !containsString(f.IDs, ev.ID) {
		return false
	}
	if f.Authors != nil && !containsString(f.Authors, ev.Pubkey) {
		return false
	}
	if f.Kinds != nil {
		found := false
		for _, k := range f.Kinds {
			if k == ev.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}
	for letter, vals := range f.Tags {
		matched := false
	tags:
		for _, t := range ev.Tags {
			if len(t) >= 2 && t[0] == letter {
				for _, v := range vals {
					if t[1] == v {
						matched = true
						break tags
					}
				}
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
