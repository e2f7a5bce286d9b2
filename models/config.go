package models

// TrapDefinition is the parsed form of one entry of a trap definitions YAML
// file. It declares a mappable type without Go code.
type TrapDefinition struct {
	// TypeID is the registry key, e.g. "fake-trap". Taken from the YAML map
	// key.
	TypeID string

	// TrapOID is the notification OID that correlates incoming traps to this
	// type, e.g. "1.3.6.1.4.1.500.12". Empty means the type is only reachable
	// by TypeID.
	TrapOID string

	// Description is free text carried for operators.
	Description string

	// Fields are the output fields in declaration order.
	Fields []FieldDefinition

	// File is the path the definition was loaded from.
	File string
}

// FieldDefinition describes one output field of a TrapDefinition.
type FieldDefinition struct {
	// Name is the output key.
	Name string

	// OID binds the field to the first var-binding with this OID.
	OID string

	// Syntax selects the coercion: "integer", "unsigned", "string", "bytes",
	// "oid", "ip", or empty to keep the decoded variant.
	Syntax string

	// From binds the field to envelope metadata instead of an OID:
	// "source_address", "received_time" or "objects".
	From string
}
