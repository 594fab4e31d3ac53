package authz

const (
	RoleAdmin     = "admin"
	RoleAnonymous = "anonymous"
)

const (
	ActionRead  = "read"
	ActionAdmin = "admin"
)

const DomainGlobal = "global"

const (
	ObjectSchemaTables = "schema.tables"
	ObjectRowPolicies  = "schema.row-policies"
)
