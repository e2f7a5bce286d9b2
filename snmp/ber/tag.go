package ber

import "fmt"

// Class is the two-bit ASN.1 tag class.
type Class uint8

const (
	ClassUniversal   Class = 0
	ClassApplication Class = 1
	ClassContext     Class = 2
	ClassPrivate     Class = 3
)

func (c Class) String() string {
	switch c {
	case ClassUniversal:
		return "Universal"
	case ClassApplication:
		return "Application"
	case ClassContext:
		return "Context"
	case ClassPrivate:
		return "Private"
	default:
		return fmt.Sprintf("Class(%d)", uint8(c))
	}
}

// Construct distinguishes primitive encodings from constructed ones.
type Construct uint8

const (
	Primitive   Construct = 0
	Constructed Construct = 1
)

func (c Construct) String() string {
	if c == Constructed {
		return "Constructed"
	}
	return "Primitive"
}

// TagInfo is a decoded identifier octet. Class and Number together select the
// decode strategy for the contents that follow.
type TagInfo struct {
	Number    uint32
	Construct Construct
	Class     Class
}

// ─────────────────────────────────────────────────────────────────────────────
// SNMP tag set
// ─────────────────────────────────────────────────────────────────────────────

var (
	TagInteger          = TagInfo{Number: 2, Class: ClassUniversal}
	TagOctetString      = TagInfo{Number: 4, Class: ClassUniversal}
	TagNull             = TagInfo{Number: 5, Class: ClassUniversal}
	TagObjectIdentifier = TagInfo{Number: 6, Class: ClassUniversal}
	TagSequence         = TagInfo{Number: 16, Construct: Constructed, Class: ClassUniversal}

	TagIPAddress = TagInfo{Number: 0, Class: ClassApplication}
	TagCounter32 = TagInfo{Number: 1, Class: ClassApplication}
	TagGauge32   = TagInfo{Number: 2, Class: ClassApplication}
	TagTimeTicks = TagInfo{Number: 3, Class: ClassApplication}
	TagOpaque    = TagInfo{Number: 4, Class: ClassApplication}
	TagCounter64 = TagInfo{Number: 6, Class: ClassApplication}
	// UInteger32 from RFC 1442, dropped by later SMIv2 revisions but still
	// sent by some agents.
	TagUInteger32 = TagInfo{Number: 7, Class: ClassApplication}

	// SNMPv2 exception values (RFC 3416). They carry no content and decode
	// to a Null value with the tag preserved.
	TagNoSuchObject   = TagInfo{Number: 0, Class: ClassContext}
	TagNoSuchInstance = TagInfo{Number: 1, Class: ClassContext}
	TagEndOfMibView   = TagInfo{Number: 2, Class: ClassContext}
)

// ContextTag returns the constructed context-class tag used to frame PDU n.
func ContextTag(n uint32) TagInfo {
	return TagInfo{Number: n, Construct: Constructed, Class: ClassContext}
}

// Byte returns the single identifier octet for t. Only low tag numbers
// (< 31) are representable, which covers every SNMP tag.
func (t TagInfo) Byte() (byte, error) {
	if t.Number >= 0x1f {
		return 0, fmt.Errorf("ber: tag number %d needs the high-tag-number form", t.Number)
	}
	return byte(t.Class)<<6 | byte(t.Construct)<<5 | byte(t.Number), nil
}

// ParseTagByte decodes a single identifier octet.
func ParseTagByte(b byte) (TagInfo, error) {
	t := TagInfo{
		Number:    uint32(b & 0x1f),
		Construct: Construct((b >> 5) & 1),
		Class:     Class(b >> 6),
	}
	if t.Number == 0x1f {
		return t, fmt.Errorf("ber: high-tag-number form (0x%02x) not supported", b)
	}
	return t, nil
}

// String names SNMP tags and falls back to a generic class/number form.
func (t TagInfo) String() string {
	switch t {
	case TagInteger:
		return "INTEGER"
	case TagOctetString:
		return "OCTET STRING"
	case TagNull:
		return "NULL"
	case TagObjectIdentifier:
		return "OBJECT IDENTIFIER"
	case TagSequence:
		return "SEQUENCE"
	case TagIPAddress:
		return "IpAddress"
	case TagCounter32:
		return "Counter32"
	case TagGauge32:
		return "Gauge32"
	case TagTimeTicks:
		return "TimeTicks"
	case TagOpaque:
		return "Opaque"
	case TagCounter64:
		return "Counter64"
	case TagUInteger32:
		return "UInteger32"
	case TagNoSuchObject:
		return "noSuchObject"
	case TagNoSuchInstance:
		return "noSuchInstance"
	case TagEndOfMibView:
		return "endOfMibView"
	}
	return fmt.Sprintf("[%s %d %s]", t.Class, t.Number, t.Construct)
}

// IsException reports whether t is one of the SNMPv2 exception tags.
func (t TagInfo) IsException() bool {
	return t == TagNoSuchObject || t == TagNoSuchInstance || t == TagEndOfMibView
}
