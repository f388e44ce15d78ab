package srt

import "strings"

// StreamID is the opaque application-chosen identifier carried through
// the handshake's extStreamID extension, spec section 6/12. SRT Access
// Control (interpreting mode/resource/params to authorize or route a
// connection) is explicitly out of scope; this module only carries the
// raw bytes through, the way the teacher's streamid.go parses
// "mode:resource?params" but this engine never acts on the parse beyond
// exposing it for the application to interpret.
//
// Grounded on the teacher's streamid.go: the m=/r=/... key-value
// convention is preserved as a read-only accessor so callers that expect
// that convention can still use it, without the protocol engine itself
// branching on StreamID content anywhere.
type StreamID string

// Raw returns the StreamID exactly as carried on the wire.
func (s StreamID) Raw() string { return string(s) }

// Params parses the conventional "key1=value1,key2=value2" query-style
// suffix after the first '?', returning an empty map if there is none.
// This is a convenience accessor only — the protocol engine never calls
// it.
func (s StreamID) Params() map[string]string {
	out := map[string]string{}
	_, query, found := strings.Cut(string(s), "?")
	if !found {
		return out
	}
	for _, kv := range strings.Split(query, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

// Resource returns the path component before any '?' query suffix, with
// a leading "m=.../r=" mode/resource prefix stripped if present.
func (s StreamID) Resource() string {
	path, _, _ := strings.Cut(string(s), "?")
	if _, resource, ok := strings.Cut(path, ","); ok {
		if _, r, ok := strings.Cut(resource, "r="); ok {
			return r
		}
	}
	return path
}
