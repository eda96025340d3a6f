// Package cmp implements the Channel Management Protocol codec (§4.B):
// parsing and emitting the XML payloads exchanged on the tuning channel
// (greeting, start, profile, close, ok, error). Every element retrieved
// among the pack's own XML-based session protocols (netconf, XMPP) is
// built directly on encoding/xml rather than a third-party library, so
// this codec follows the same idiom.
package cmp

// Kind tags the closed CmpNode variant set of §4.B.
type Kind uint8

const (
	KindGreeting Kind = iota
	KindStart
	KindProfile
	KindClose
	KindOk
	KindError
)

// ProfileOffer is the <profile> element nested inside <start> (and its
// RPY): a candidate profile URI plus optional encoding and initialization
// text, bounded at 4096 octets per §4.B.
type ProfileOffer struct {
	URI      string
	Encoding string
	Init     string
	HasInit  bool
}

// Node is the tagged union produced by Parse and consumed by Emit. Only
// the fields relevant to Kind are populated.
type Node struct {
	Kind Kind

	// Greeting
	ProfileURIs []string

	// Start
	Channel    uint32
	ServerName string
	Profiles   []ProfileOffer

	// Profile (standalone, e.g. accept_start's RPY)
	Profile ProfileOffer

	// Close / Error share Code/Lang/Diagnostic
	Code       int
	Lang       string
	Diagnostic string
	HasLang    bool
	HasDiag    bool
}

const maxInitLen = 4096
