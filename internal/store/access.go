package store

const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleManager    = "MANAGER"
	RoleManagerIT  = "MANAGER_IT"
	RoleTechnician = "TECHNICIAN"
	RoleUser       = "USER"
)

const (
	SupportGroupCallCenter        = "CALL_CENTER"
	SupportGroupTransactionClaims = "TRANSACTION_CLAIMS_SUPPORT"
	SupportGroupITHelpdesk        = "IT_HELPDESK"
	SupportGroupTechSupport       = "TECH_SUPPORT"
	SupportGroupPCAuditor         = "PC_AUDITOR"
)

func isAdmin(session Session) bool {
	return session.Role == RoleAdmin || session.Role == RoleSuperAdmin
}

// IsSystemWideClaimViewer reports whether the session sees claims of every branch.
func IsSystemWideClaimViewer(session Session, rules ClaimRules) bool {
	if session.Role != RoleUser && session.Role != RoleTechnician {
		return false
	}
	return session.SupportGroup != "" && containsString(rules.SystemWideSupportGroups, session.SupportGroup)
}

func ScopeFor(session Session, rules ClaimRules) ClaimScope {
	return ClaimScope{
		SystemWide: IsSystemWideClaimViewer(session, rules),
		BranchID:   session.BranchID,
		UserID:     session.UserID,
	}
}

func CanAccessTicket(session Session, ticket TicketAccess, rules ClaimRules) bool {
	if isAdmin(session) {
		return true
	}
	if ticket.CreatedByID == session.UserID || (ticket.AssignedToID != "" && ticket.AssignedToID == session.UserID) {
		return true
	}
	switch session.Role {
	case RoleManager:
		return session.BranchID != "" && (ticket.BranchID == session.BranchID || ticket.CreatedByBranchID == session.BranchID)
	case RoleTechnician, RoleUser:
		if session.SupportGroup == SupportGroupITHelpdesk && session.Role == RoleTechnician {
			return true
		}
		if IsSystemWideClaimViewer(session, rules) && rules.IsClaim(ticket) {
			return true
		}
	}
	return session.BranchID != "" && (ticket.BranchID == session.BranchID || ticket.CreatedByBranchID == session.BranchID)
}

// CanVerify reports whether the session may edit a claim's verification.
func CanVerify(session Session, ticket TicketAccess) bool {
	switch session.Role {
	case RoleAdmin, RoleSuperAdmin, RoleManagerIT:
		return true
	case RoleManager:
		if session.BranchID != "" && session.BranchID == ticket.BranchID {
			return true
		}
	}
	return ticket.AssignedToID != "" && ticket.AssignedToID == session.UserID
}

func CanExportPCAssets(session Session) bool {
	switch session.Role {
	case RoleSuperAdmin, RoleAdmin, RoleManager:
		return true
	}
	return session.SupportGroup == SupportGroupTechSupport || session.SupportGroup == SupportGroupPCAuditor
}

// CanViewClaimReports covers the transaction-claims report.
func CanViewClaimReports(session Session, rules ClaimRules) bool {
	switch session.Role {
	case RoleSuperAdmin, RoleAdmin, RoleManager, RoleManagerIT:
		return true
	}
	return IsSystemWideClaimViewer(session, rules)
}
