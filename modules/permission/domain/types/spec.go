package types

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"

	"github.com/sovrium/sovrium/pkg/httperr"
)

// Operation is one of the four record operations a table-level rule governs.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationRead   Operation = "read"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// FieldSpec declares one column of a table. System-managed fields (record
// identifier, creation timestamp) are populated by the service, never by
// callers.
type FieldSpec struct {
	Name   string `json:"name"`
	System bool   `json:"system,omitempty"`
}

// TablePermissionSpec declares the table-level rules. A nil rule means the
// operation is denied for everyone.
type TablePermissionSpec struct {
	Create *Rule `json:"create,omitempty"`
	Read   *Rule `json:"read,omitempty"`
	Update *Rule `json:"update,omitempty"`
	Delete *Rule `json:"delete,omitempty"`
}

// FieldPermissionSpec overrides the table-level rules for one field. A nil
// rule inherits the table rule for the corresponding operation (read
// inherits table read; write inherits table update or create, as applicable).
type FieldPermissionSpec struct {
	Field string `json:"field"`
	Read  *Rule  `json:"read,omitempty"`
	Write *Rule  `json:"write,omitempty"`
}

// TableSpec is one table's raw declaration as loaded from configuration.
// OrganizationField, when set, names the column that scopes rows to an
// organization; the engine isolates rows across organizations on that column.
type TableSpec struct {
	Name              string                `json:"name"`
	OrganizationField string                `json:"organization_field,omitempty"`
	Fields            []FieldSpec           `json:"fields"`
	Permissions       TablePermissionSpec   `json:"permissions"`
	FieldPermissions  []FieldPermissionSpec `json:"field_permissions,omitempty"`
}

type tablesFile struct {
	Tables []TableSpec `json:"tables"`
}

// ParseTablesJSON decodes a declarative tables file. Structural problems
// (bad JSON, missing table names) fail here; rule semantics are validated by
// the compiler.
func ParseTablesJSON(b []byte) ([]TableSpec, error) {
	var f tablesFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	if len(f.Tables) == 0 {
		return nil, errors.New("types: tables file declares no tables")
	}
	for _, t := range f.Tables {
		if t.Name == "" {
			return nil, errors.New("types: table with empty name")
		}
		if len(t.Fields) == 0 {
			return nil, errors.New("types: table " + t.Name + " declares no fields")
		}
	}
	return f.Tables, nil
}

// LoadTables reads and parses the tables file at path. A missing file is a
// typed not-found so callers can tell it apart from a malformed one.
func LoadTables(path string) ([]TableSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, httperr.NewNotFound("tables file " + path + " not found")
		}
		return nil, err
	}
	return ParseTablesJSON(b)
}
