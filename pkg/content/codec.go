package content

import (
	"encoding/json"
	"fmt"
)

// Marshal serializes a record to its stored JSON payload.
func Marshal(r Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s record: %w", r.Type(), err)
	}
	return data, nil
}

// Unmarshal decodes a stored payload into the record variant for the given
// type tag. Dispatch is over the closed set of record types.
func Unmarshal(t RecordType, payload []byte) (Record, error) {
	var r Record
	switch t {
	case TypePackage:
		r = &PackageRecord{}
	case TypeGroup:
		r = &GroupRecord{}
	case TypeCategory:
		r = &CategoryRecord{}
	case TypeEnvironment:
		r = &EnvironmentRecord{}
	case TypeAdvisory:
		r = &AdvisoryRecord{}
	case TypeModule:
		r = &ModuleRecord{}
	case TypeModuleDefaults:
		r = &ModuleDefaultsRecord{}
	default:
		return nil, fmt.Errorf("unknown record type: %s", t)
	}
	if err := json.Unmarshal(payload, r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s record: %w", t, err)
	}
	return r, nil
}
