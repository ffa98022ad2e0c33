package relayitem

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies what a relay item carries. The kind is encoded as the key prefix.
type Kind int

const (
	// KindUnknown is any key whose prefix this build does not recognise
	KindUnknown Kind = iota
	// KindStatus is a server status record, key "ss_<ordinal>"
	KindStatus
	// KindPDLCompletion marks a completed PDL product submission
	KindPDLCompletion
	// KindPDLRemoval marks a PDL product removal
	KindPDLRemoval
	// KindPDLForeign marks a product found in PDL that was sent by another system
	KindPDLForeign
	// KindAnalystOverride carries analyst intervention parameters
	KindAnalystOverride
)

// Key prefixes, one per kind
const (
	PrefixStatus          = "ss_"
	PrefixPDLCompletion   = "pc_"
	PrefixPDLRemoval      = "pr_"
	PrefixPDLForeign      = "pf_"
	PrefixAnalystOverride = "ao_"
)

var kindPrefixes = map[Kind]string{
	KindStatus:          PrefixStatus,
	KindPDLCompletion:   PrefixPDLCompletion,
	KindPDLRemoval:      PrefixPDLRemoval,
	KindPDLForeign:      PrefixPDLForeign,
	KindAnalystOverride: PrefixAnalystOverride,
}

// String returns the string representation of a Kind
func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindPDLCompletion:
		return "pdl_completion"
	case KindPDLRemoval:
		return "pdl_removal"
	case KindPDLForeign:
		return "pdl_foreign"
	case KindAnalystOverride:
		return "analyst_override"
	default:
		return "unknown"
	}
}

// Prefix returns the key prefix for the kind, or "" for KindUnknown
func (k Kind) Prefix() string {
	return kindPrefixes[k]
}

// KindOf classifies a key by its prefix
func KindOf(key string) Kind {
	i := strings.IndexByte(key, '_')
	if i < 0 {
		return KindUnknown
	}
	prefix := key[:i+1]
	for k, p := range kindPrefixes {
		if p == prefix {
			return k
		}
	}
	return KindUnknown
}

// MakeKey builds a key for the given kind and identifier
func MakeKey(kind Kind, id string) string {
	return kind.Prefix() + id
}

// StatusKey returns the key under which a server stores its own status
func StatusKey(serverNumber int) string {
	return PrefixStatus + strconv.Itoa(serverNumber)
}

// StatusServer extracts the server ordinal from a status key
func StatusServer(key string) (int, error) {
	if KindOf(key) != KindStatus {
		return 0, fmt.Errorf("not a status key: %q", key)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(key, PrefixStatus))
	if err != nil {
		return 0, fmt.Errorf("bad status key %q: %w", key, err)
	}
	return n, nil
}

// Item is the generic unit of replication.
//
// Timestamp is the logical time supplied by the writer. Stamp is assigned by the
// store that holds the item when it is written and is strictly increasing per store;
// fetch windows select on Stamp.
type Item struct {
	Key       string `json:"key"`
	Timestamp int64  `json:"timestamp"`
	Stamp     int64  `json:"stamp"`
	Payload   []byte `json:"payload,omitempty"`
}

// Kind returns the kind of the item
func (it *Item) Kind() Kind {
	return KindOf(it.Key)
}

// Clone returns a deep copy of the item
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	c := *it
	if it.Payload != nil {
		c.Payload = append([]byte(nil), it.Payload...)
	}
	return &c
}

// Decode unmarshals the JSON payload into v
func (it *Item) Decode(v any) error {
	if len(it.Payload) == 0 {
		return fmt.Errorf("item %s: empty payload", it.Key)
	}
	if err := json.Unmarshal(it.Payload, v); err != nil {
		return fmt.Errorf("item %s: %w", it.Key, err)
	}
	return nil
}

// Encode marshals v into a JSON payload
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
