package typemap

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/vpbank/snmp_trapmap/snmp/ber"
	"github.com/vpbank/snmp_trapmap/snmp/datagram"
)

// Record is the target of descriptors declared as data rather than Go types.
// Keys are field names.
type Record map[string]any

// Field syntaxes accepted by FieldSpec.Syntax. An empty syntax keeps the
// decoded value in whatever variant it arrived as.
const (
	SyntaxAuto     = ""
	SyntaxInteger  = "integer"
	SyntaxUnsigned = "unsigned"
	SyntaxString   = "string"
	SyntaxBytes    = "bytes"
	SyntaxOID      = "oid"
	SyntaxIP       = "ip"
)

// Field sources accepted by FieldSpec.From.
const (
	FromSourceAddress = "source_address"
	FromReceivedTime  = "received_time"
	FromObjects       = "objects"
)

// FieldSpec declares one Record field. Exactly one of OID and From is set.
type FieldSpec struct {
	Name   string
	OID    string
	Syntax string
	From   string
}

// DescribeRecord builds a Record descriptor. trapOID may be empty.
func DescribeRecord(id TypeID, trapOID string, fields []FieldSpec) (Descriptor, error) {
	b := Describe[Record](id).Constructor(func() *Record {
		r := Record{}
		return &r
	})
	if trapOID != "" {
		b.Trap(trapOID)
	}
	for _, f := range fields {
		if err := addRecordField(b, f); err != nil {
			return Descriptor{}, fmt.Errorf("typemap: %s: field %q: %w", id, f.Name, err)
		}
	}
	return b.Build()
}

func addRecordField(b *Builder[Record], f FieldSpec) error {
	name := f.Name
	if f.OID != "" && f.From != "" {
		return errors.New("both oid and from set")
	}

	switch f.From {
	case "":
	case FromSourceAddress:
		switch f.Syntax {
		case SyntaxIP:
			b.SourceAddress(name, func(r *Record, a netip.Addr) { (*r)[name] = a })
		case SyntaxAuto, SyntaxString:
			b.SourceAddressString(name, func(r *Record, s string) { (*r)[name] = s })
		default:
			return fmt.Errorf("syntax %q not valid for %s", f.Syntax, f.From)
		}
		return nil
	case FromReceivedTime:
		b.ReceivedTime(name, func(r *Record, t time.Time) { (*r)[name] = t })
		return nil
	case FromObjects:
		b.Objects(name, func(r *Record, vbs []datagram.VarBind) { (*r)[name] = vbs })
		return nil
	default:
		return fmt.Errorf("unknown source %q", f.From)
	}

	if f.OID == "" {
		return errors.New("one of oid or from is required")
	}
	switch f.Syntax {
	case SyntaxAuto:
		b.VarBind(name, f.OID, func(r *Record, vb datagram.VarBind) { (*r)[name] = vb.Value.Interface() })
	case SyntaxInteger:
		b.Integer(name, f.OID, func(r *Record, v int64) { (*r)[name] = v })
	case SyntaxUnsigned:
		b.Unsigned(name, f.OID, func(r *Record, v uint64) { (*r)[name] = v })
	case SyntaxString:
		b.String(name, f.OID, func(r *Record, v string) { (*r)[name] = v })
	case SyntaxBytes:
		b.Bytes(name, f.OID, func(r *Record, v []byte) { (*r)[name] = v })
	case SyntaxOID:
		b.ObjectID(name, f.OID, func(r *Record, v ber.OID) { (*r)[name] = v })
	case SyntaxIP:
		b.IPAddress(name, f.OID, func(r *Record, v netip.Addr) { (*r)[name] = v })
	default:
		return fmt.Errorf("unknown syntax %q", f.Syntax)
	}
	return nil
}
