package config

import (
	"fmt"

	"github.com/vpbank/snmp_trapmap/models"
	"github.com/vpbank/snmp_trapmap/typemap"
)

// Descriptor turns a definition into a typemap descriptor producing
// typemap.Record values.
func Descriptor(def models.TrapDefinition) (typemap.Descriptor, error) {
	specs := make([]typemap.FieldSpec, len(def.Fields))
	for i, f := range def.Fields {
		specs[i] = typemap.FieldSpec{Name: f.Name, OID: f.OID, Syntax: f.Syntax, From: f.From}
	}
	return typemap.DescribeRecord(typemap.TypeID(def.TypeID), def.TrapOID, specs)
}

// Descriptors converts every definition, in TypeID order.
func (c *LoadedConfig) Descriptors() ([]typemap.Descriptor, error) {
	out := make([]typemap.Descriptor, 0, len(c.Definitions))
	for _, id := range c.TypeIDs() {
		d, err := Descriptor(c.Definitions[id])
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}
