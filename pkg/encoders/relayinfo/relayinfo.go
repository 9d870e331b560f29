// Package relayinfo holds the probe result types: the server-declared NIP-11
// document, the measured NIP-66 connectivity block, and the time-series
// metadata record combining them. Both blocks are content-hashed so the
// store can deduplicate unchanged observations.
package relayinfo

import (
	"encoding/json"

	"github.com/minio/sha256-simd"

	"bigbrotr.dev/pkg/encoders/relay"
)

// T is one metadata observation for a relay. A nil block means the
// corresponding probe produced nothing.
type T struct {
	Relay       relay.R       `json:"relay"`
	GeneratedAt int64         `json:"generated_at"`
	NIP11       *Document     `json:"nip11"`
	NIP66       *Connectivity `json:"nip66"`
}

// Document is the server-declared relay information document. Text fields
// are nil when absent or of the wrong type; SupportedNIPs keeps the mixed
// int-or-string entries the wild emits; unrecognized keys land in
// ExtraFields.
type Document struct {
	Name           *string        `json:"name"`
	Description    *string        `json:"description"`
	Banner         *string        `json:"banner"`
	Icon           *string        `json:"icon"`
	Pubkey         *string        `json:"pubkey"`
	Contact        *string        `json:"contact"`
	SupportedNIPs  []any          `json:"supported_nips"`
	Software       *string        `json:"software"`
	Version        *string        `json:"version"`
	PrivacyPolicy  *string        `json:"privacy_policy"`
	TermsOfService *string        `json:"terms_of_service"`
	Limitation     map[string]any `json:"limitation"`
	ExtraFields    map[string]any `json:"extra_fields"`
}

var textFields = []string{
	"name", "description", "banner", "icon", "pubkey", "contact",
	"software", "version", "privacy_policy", "terms_of_service",
}

// ParseDocument decodes a NIP-11 body with type coercion: text fields must
// be strings, supported_nips keeps only ints and strings, limitation must be
// an object. Everything else is preserved in ExtraFields. A document with no
// usable field at all parses to nil.
func ParseDocument(data []byte) (d *Document, err error) {
	var raw map[string]any
	if err = json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	d = &Document{}
	text := map[string]**string{
		"name": &d.Name, "description": &d.Description, "banner": &d.Banner,
		"icon": &d.Icon, "pubkey": &d.Pubkey, "contact": &d.Contact,
		"software": &d.Software, "version": &d.Version,
		"privacy_policy": &d.PrivacyPolicy, "terms_of_service": &d.TermsOfService,
	}
	for k, v := range raw {
		if slot, ok := text[k]; ok {
			if s, ok := v.(string); ok {
				*slot = &s
			}
			continue
		}
		switch k {
		case "supported_nips":
			if list, ok := v.([]any); ok {
				var nips []any
				for _, item := range list {
					switch n := item.(type) {
					case float64:
						nips = append(nips, int(n))
					case string:
						nips = append(nips, n)
					}
				}
				d.SupportedNIPs = nips
			}
		case "limitation":
			if m, ok := v.(map[string]any); ok {
				d.Limitation = m
			}
		default:
			if d.ExtraFields == nil {
				d.ExtraFields = make(map[string]any)
			}
			d.ExtraFields[k] = v
		}
	}
	if d.IsEmpty() {
		return nil, nil
	}
	return
}

// IsEmpty reports whether every field is null, which the probe treats as an
// absent block.
func (d *Document) IsEmpty() bool {
	if d == nil {
		return true
	}
	for _, p := range []*string{
		d.Name, d.Description, d.Banner, d.Icon, d.Pubkey, d.Contact,
		d.Software, d.Version, d.PrivacyPolicy, d.TermsOfService,
	} {
		if p != nil {
			return false
		}
	}
	return d.SupportedNIPs == nil && d.Limitation == nil && d.ExtraFields == nil
}

// MinPowDifficulty returns limitation.min_pow_difficulty if it is a
// non-negative number, else 0.
func (d *Document) MinPowDifficulty() int {
	if d == nil || d.Limitation == nil {
		return 0
	}
	if n, ok := d.Limitation["min_pow_difficulty"].(float64); ok && n > 0 {
		return int(n)
	}
	return 0
}

// Hash is the content hash the store deduplicates nip11 rows by. Maps
// serialize with sorted keys, so the hash is stable for equal content.
func (d *Document) Hash() []byte {
	b, _ := json.Marshal(d)
	h := sha256.Sum256(b)
	return h[:]
}

// Connectivity is the measured NIP-66 block. RTTs are milliseconds and only
// set when the corresponding check ran.
type Connectivity struct {
	Openable bool   `json:"openable"`
	Readable bool   `json:"readable"`
	Writable bool   `json:"writable"`
	RTTOpen  *int64 `json:"rtt_open"`
	RTTRead  *int64 `json:"rtt_read"`
	RTTWrite *int64 `json:"rtt_write"`
}

// Hash is the content hash the store deduplicates nip66 rows by.
func (c *Connectivity) Hash() []byte {
	b, _ := json.Marshal(c)
	h := sha256.Sum256(b)
	return h[:]
}
