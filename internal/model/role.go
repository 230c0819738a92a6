package model

// Role is the closed set of roles the identity provider can assign. Every
// role-driven decision in the workflow goes through the methods below; no
// other package compares role strings directly.
type Role string

const (
	RoleStaff      Role = "staff"
	RoleApproverL1 Role = "approver-level-1"
	RoleApproverL2 Role = "approver-level-2"
	RoleFinance    Role = "finance"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStaff, RoleApproverL1, RoleApproverL2, RoleFinance:
		return true
	}
	return false
}

// ApproverLevel returns the tier the role approves at. ok is false for roles
// that cannot act on approvals at all.
func (r Role) ApproverLevel() (level int, ok bool) {
	switch r {
	case RoleApproverL1:
		return 1, true
	case RoleApproverL2:
		return 2, true
	}
	return 0, false
}

// CanViewAllRequests reports whether the role sees every purchase request or
// only its own. Finance visibility is deployment-configurable.
func (r Role) CanViewAllRequests(financeViewAll bool) bool {
	switch r {
	case RoleApproverL1, RoleApproverL2:
		return true
	case RoleFinance:
		return financeViewAll
	}
	return false
}

func (r Role) String() string { return string(r) }
