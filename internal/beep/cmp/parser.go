package cmp

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
)

// Parse decodes a CMP XML payload into a Node. It tolerates interior
// whitespace between elements and around attributes (encoding/xml
// already conforms to the XML spec here) and rejects any element
// outside the closed set of §4.B with UnknownCmp.
func Parse(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, cmpSyntax(io.ErrUnexpectedEOF)
		}
		if err != nil {
			return nil, cmpSyntax(err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue // skip leading whitespace/comments/proc-instructions
		}
		return parseElement(dec, se)
	}
}

func parseElement(dec *xml.Decoder, se xml.StartElement) (*Node, error) {
	switch se.Name.Local {
	case "greeting":
		return parseGreeting(dec)
	case "start":
		return parseStart(dec, se)
	case "profile":
		return parseStandaloneProfile(dec, se)
	case "close":
		return parseClose(dec, se)
	case "ok":
		return &Node{Kind: KindOk}, nil
	case "error":
		return parseError(dec, se)
	default:
		return nil, unknownCmp(se.Name.Local)
	}
}

func parseGreeting(dec *xml.Decoder) (*Node, error) {
	n := &Node{Kind: KindGreeting}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, cmpSyntax(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "profile" {
				return nil, unknownCmp(t.Name.Local)
			}
			uri, ok := attr(t, "uri")
			if !ok {
				return nil, missingAttr("profile", "uri")
			}
			n.ProfileURIs = append(n.ProfileURIs, uri)
			if err := consumeToEnd(dec, "profile"); err != nil {
				return nil, err
			}
		case xml.EndElement:
			if t.Name.Local == "greeting" {
				return n, nil
			}
		}
	}
}

func parseStart(dec *xml.Decoder, se xml.StartElement) (*Node, error) {
	numStr, ok := attr(se, "number")
	if !ok {
		return nil, missingAttr("start", "number")
	}
	channel, err := parseNumber(numStr)
	if err != nil {
		return nil, badAttr("start", "number", numStr)
	}
	n := &Node{Kind: KindStart, Channel: channel}
	if sn, ok := attr(se, "serverName"); ok {
		n.ServerName = sn
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, cmpSyntax(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "profile" {
				return nil, unknownCmp(t.Name.Local)
			}
			p, err := parseProfileBody(dec, t)
			if err != nil {
				return nil, err
			}
			n.Profiles = append(n.Profiles, p)
		case xml.EndElement:
			if t.Name.Local == "start" {
				if len(n.Profiles) == 0 {
					return nil, cmpSyntax(errNoProfiles)
				}
				return n, nil
			}
		}
	}
}

func parseStandaloneProfile(dec *xml.Decoder, se xml.StartElement) (*Node, error) {
	p, err := parseProfileBody(dec, se)
	if err != nil {
		return nil, err
	}
	return &Node{Kind: KindProfile, Profile: p}, nil
}

// parseProfileBody reads uri (required), encoding (optional), and
// optional chardata initialization text up to the matching </profile>
// (or immediately if self-closed).
func parseProfileBody(dec *xml.Decoder, se xml.StartElement) (ProfileOffer, error) {
	uri, ok := attr(se, "uri")
	if !ok {
		return ProfileOffer{}, missingAttr("profile", "uri")
	}
	p := ProfileOffer{URI: uri}
	if enc, ok := attr(se, "encoding"); ok {
		p.Encoding = enc
	}

	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return ProfileOffer{}, cmpSyntax(err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if t.Name.Local == "profile" {
				init := strings.TrimSpace(text.String())
				if len(init) > maxInitLen {
					return ProfileOffer{}, initTooLarge(len(init))
				}
				if init != "" {
					p.Init = init
					p.HasInit = true
				}
				return p, nil
			}
		case xml.StartElement:
			return ProfileOffer{}, unknownCmp(t.Name.Local)
		}
	}
}

func parseClose(dec *xml.Decoder, se xml.StartElement) (*Node, error) {
	numStr, ok := attr(se, "number")
	if !ok {
		return nil, missingAttr("close", "number")
	}
	channel, err := parseNumber(numStr)
	if err != nil {
		return nil, badAttr("close", "number", numStr)
	}
	codeStr, ok := attr(se, "code")
	if !ok {
		return nil, missingAttr("close", "code")
	}
	code, err := parseCode(codeStr)
	if err != nil {
		return nil, badAttr("close", "code", codeStr)
	}
	n := &Node{Kind: KindClose, Channel: channel, Code: code}
	if lang, ok := langAttr(se); ok {
		n.Lang, n.HasLang = lang, true
	}
	diag, err := consumeText(dec, "close")
	if err != nil {
		return nil, err
	}
	if diag != "" {
		n.Diagnostic, n.HasDiag = diag, true
	}
	return n, nil
}

func parseError(dec *xml.Decoder, se xml.StartElement) (*Node, error) {
	codeStr, ok := attr(se, "code")
	if !ok {
		return nil, missingAttr("error", "code")
	}
	code, err := parseCode(codeStr)
	if err != nil {
		return nil, badAttr("error", "code", codeStr)
	}
	n := &Node{Kind: KindError, Code: code}
	if lang, ok := langAttr(se); ok {
		n.Lang, n.HasLang = lang, true
	}
	diag, err := consumeText(dec, "error")
	if err != nil {
		return nil, err
	}
	if diag != "" {
		n.Diagnostic, n.HasDiag = diag, true
	}
	return n, nil
}

// consumeText reads chardata up to the matching end element, used for
// close/error diagnostic text.
func consumeText(dec *xml.Decoder, element string) (string, error) {
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", cmpSyntax(err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if t.Name.Local == element {
				return strings.TrimSpace(text.String()), nil
			}
		case xml.StartElement:
			return "", unknownCmp(t.Name.Local)
		}
	}
}

// consumeToEnd discards chardata/whitespace up to the matching end
// element for elements with no meaningful content (greeting's profile).
func consumeToEnd(dec *xml.Decoder, element string) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return cmpSyntax(err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == element {
				return nil
			}
		case xml.StartElement:
			return unknownCmp(t.Name.Local)
		}
	}
}

func attr(se xml.StartElement, name string) (string, bool) {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// langAttr looks up xml:lang regardless of how the decoder reports its
// namespace (the xml: prefix is bound to a fixed namespace URI).
func langAttr(se xml.StartElement) (string, bool) {
	for _, a := range se.Attr {
		if a.Name.Local == "lang" {
			return a.Value, true
		}
	}
	return "", false
}

func parseNumber(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v >= (uint64(1)<<31) {
		return 0, errBadNumber
	}
	return uint32(v), nil
}

func parseCode(s string) (int, error) {
	if len(s) != 3 {
		return 0, errBadCode
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 100 || v > 999 {
		return 0, errBadCode
	}
	return v, nil
}
