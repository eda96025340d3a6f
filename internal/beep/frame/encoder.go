package frame

import (
	"bytes"
	"fmt"
)

// Encode serializes f into the exact bytes specified by §4.A. Emission is
// pure: it performs no I/O and carries no state between calls.
func Encode(f *Frame) ([]byte, error) {
	if err := validateOutgoing(f); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if f.Type == SEQ {
		fmt.Fprintf(&buf, "SEQ %d %d %d\r\n", f.Channel, f.AckNo, f.Window)
		buf.WriteString(trailer)
		return buf.Bytes(), nil
	}

	fmt.Fprintf(&buf, "%s %d %d %s %d %d", f.Type, f.Channel, f.MsgNo, moreSymbol(f.More), f.SeqNo, len(f.Payload))
	if f.Type == ANS {
		fmt.Fprintf(&buf, " %d", f.AnsNo)
	}
	buf.WriteString("\r\n")
	buf.Write(f.Payload)
	buf.WriteString(trailer)
	return buf.Bytes(), nil
}

func moreSymbol(more bool) string {
	if more {
		return "*"
	}
	return "."
}

func validateOutgoing(f *Frame) error {
	if f == nil {
		return fmt.Errorf("encode: nil frame")
	}
	if uint64(f.Channel) >= maxChannel31 {
		return OutOfRange("channel")
	}
	if f.Type == SEQ {
		if uint64(f.AckNo) >= maxUint32 {
			return OutOfRange("ackno")
		}
		if uint64(f.Window) >= maxUint32 {
			return OutOfRange("window")
		}
		return nil
	}
	if uint64(f.MsgNo) >= maxChannel31 {
		return OutOfRange("msgno")
	}
	if uint64(len(f.Payload)) >= maxChannel31 {
		return OutOfRange("size")
	}
	if uint64(f.SeqNo) >= maxUint32 {
		return OutOfRange("seqno")
	}
	if f.Type == ANS && uint64(f.AnsNo) >= maxUint32 {
		return OutOfRange("ansno")
	}
	return nil
}
