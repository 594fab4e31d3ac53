package types

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sovrium/sovrium/pkg/httperr"
)

const tablesJSON = `{
  "tables": [
    {
      "name": "profiles",
      "organization_field": "organization_id",
      "fields": [
        {"name": "id", "system": true},
        {"name": "organization_id"},
        {"name": "owner_id"},
        {"name": "bio"}
      ],
      "permissions": {
        "read": {"kind": "public"},
        "update": {"kind": "custom", "condition": "{userId} = owner_id"}
      },
      "field_permissions": [
        {"field": "bio", "write": {"kind": "roles", "roles": ["admin"]}}
      ]
    }
  ]
}`

func TestParseTablesJSON(t *testing.T) {
	specs, err := ParseTablesJSON([]byte(tablesJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("len=%d", len(specs))
	}

	s := specs[0]
	if s.Name != "profiles" || s.OrganizationField != "organization_id" {
		t.Fatalf("spec=%+v", s)
	}
	if len(s.Fields) != 4 || !s.Fields[0].System || s.Fields[2].Name != "owner_id" {
		t.Fatalf("fields=%+v", s.Fields)
	}
	if s.Permissions.Read == nil || s.Permissions.Read.Kind != RuleKindPublic {
		t.Fatalf("read=%+v", s.Permissions.Read)
	}
	if s.Permissions.Create != nil || s.Permissions.Delete != nil {
		t.Fatal("undeclared operations must stay nil")
	}
	if s.Permissions.Update.Condition != "{userId} = owner_id" {
		t.Fatalf("update=%+v", s.Permissions.Update)
	}
	if len(s.FieldPermissions) != 1 || s.FieldPermissions[0].Write.Roles[0] != "admin" {
		t.Fatalf("field permissions=%+v", s.FieldPermissions)
	}
}

func TestParseTablesJSON_Rejections(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{"tables": [`},
		{"no tables", `{"tables": []}`},
		{"empty name", `{"tables": [{"name": "", "fields": [{"name": "id"}]}]}`},
		{"no fields", `{"tables": [{"name": "t", "fields": []}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseTablesJSON([]byte(tc.body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.json")
	if err := os.WriteFile(path, []byte(tablesJSON), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	specs, err := LoadTables(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("len=%d", len(specs))
	}

	_, err = LoadTables(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !httperr.IsNotFound(err) {
		t.Fatalf("missing file error = %v, want not-found", err)
	}
}
