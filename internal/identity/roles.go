package identity

// Capability keys granted through permission groups. The catalog mirrors the
// entity types the wider system manages; Customers and Suppliers carry no
// grants by default.
const (
	PermUserAdd    = "user.add"
	PermUserChange = "user.change"
	PermUserDelete = "user.delete"
	PermUserView   = "user.view"

	PermCompanyAdd    = "company.add"
	PermCompanyChange = "company.change"
	PermCompanyDelete = "company.delete"
	PermCompanyView   = "company.view"

	PermProductAdd    = "product.add"
	PermProductChange = "product.change"
	PermProductView   = "product.view"
	PermCategoryView  = "category.view"
)

// Permission group names, one per role.
const (
	GroupAdministrators = "Administrators"
	GroupCashiers       = "Cashiers"
	GroupCustomers      = "Customers"
	GroupSuppliers      = "Suppliers"
)

// roleGroups is the fixed role → permission-group binding.
var roleGroups = map[Role]string{
	RoleAdmin:    GroupAdministrators,
	RoleCashier:  GroupCashiers,
	RoleCustomer: GroupCustomers,
	RoleSupplier: GroupSuppliers,
}

// GroupForRole returns the permission group a role binds to.
func GroupForRole(r Role) (string, bool) {
	g, ok := roleGroups[r]
	return g, ok
}

// GroupGrants is the static capability matrix seeded into storage by the
// migration runner. Kept here as the single source of truth so the seed and
// the tests cannot drift apart.
var GroupGrants = map[string][]string{
	GroupAdministrators: {
		PermUserAdd, PermUserChange, PermUserDelete, PermUserView,
		PermCompanyAdd, PermCompanyChange, PermCompanyDelete, PermCompanyView,
		PermProductAdd, PermProductChange, PermProductView,
		PermCategoryView,
	},
	GroupCashiers: {
		PermUserView,
		PermCompanyView,
		PermProductView,
	},
	GroupCustomers: {},
	GroupSuppliers: {},
}
