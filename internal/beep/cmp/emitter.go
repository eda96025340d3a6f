package cmp

import (
	"fmt"
	"strconv"
	"strings"
)

// Emit serializes a Node back into the CMP XML payload sent in a
// frame's payload. Output is deliberately minimal (no indentation, no
// XML declaration) matching the literal wire examples of §8.
func Emit(n *Node) ([]byte, error) {
	switch n.Kind {
	case KindGreeting:
		return emitGreeting(n), nil
	case KindStart:
		return emitStart(n)
	case KindProfile:
		return emitProfile(n.Profile), nil
	case KindClose:
		return emitCloseOrError("close", n, true), nil
	case KindError:
		return emitCloseOrError("error", n, false), nil
	case KindOk:
		return []byte("<ok />"), nil
	default:
		return nil, fmt.Errorf("cmp.emit: unknown node kind %d", n.Kind)
	}
}

func emitGreeting(n *Node) []byte {
	if len(n.ProfileURIs) == 0 {
		return []byte("<greeting />")
	}
	var b strings.Builder
	b.WriteString("<greeting>")
	for _, uri := range n.ProfileURIs {
		b.WriteString(`<profile uri="`)
		b.WriteString(escapeAttr(uri))
		b.WriteString(`" />`)
	}
	b.WriteString("</greeting>")
	return []byte(b.String())
}

func emitStart(n *Node) ([]byte, error) {
	if len(n.Profiles) == 0 {
		return nil, errNoProfiles
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<start number="%d"`, n.Channel)
	if n.ServerName != "" {
		fmt.Fprintf(&b, ` serverName="%s"`, escapeAttr(n.ServerName))
	}
	b.WriteString(">")
	for _, p := range n.Profiles {
		b.Write(emitProfile(p))
	}
	b.WriteString("</start>")
	return []byte(b.String()), nil
}

func emitProfile(p ProfileOffer) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, `<profile uri="%s"`, escapeAttr(p.URI))
	if p.Encoding != "" {
		fmt.Fprintf(&b, ` encoding="%s"`, escapeAttr(p.Encoding))
	}
	if p.HasInit {
		b.WriteString(">")
		b.WriteString(escapeText(p.Init))
		b.WriteString("</profile>")
	} else {
		b.WriteString(" />")
	}
	return []byte(b.String())
}

func emitCloseOrError(element string, n *Node, withNumber bool) []byte {
	var b strings.Builder
	b.WriteString("<" + element)
	if withNumber {
		fmt.Fprintf(&b, ` number="%d"`, n.Channel)
	}
	fmt.Fprintf(&b, ` code="%s"`, formatCode(n.Code))
	if n.HasLang {
		fmt.Fprintf(&b, ` xml:lang="%s"`, escapeAttr(n.Lang))
	}
	if n.HasDiag {
		b.WriteString(">")
		b.WriteString(escapeText(n.Diagnostic))
		b.WriteString("</" + element + ">")
	} else {
		b.WriteString(" />")
	}
	return []byte(b.String())
}

func formatCode(code int) string {
	return strconv.Itoa(code)
}

func escapeAttr(s string) string {
	r := strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;")
	return r.Replace(s)
}

func escapeText(s string) string {
	r := strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;")
	return r.Replace(s)
}
