package store

import "testing"

func TestIsSystemWideClaimViewer(t *testing.T) {
	rules := DefaultClaimRules()
	cases := []struct {
		name    string
		session Session
		want    bool
	}{
		{"call center technician", Session{Role: RoleTechnician, SupportGroup: SupportGroupCallCenter}, true},
		{"claims support user", Session{Role: RoleUser, SupportGroup: SupportGroupTransactionClaims}, true},
		{"helpdesk technician", Session{Role: RoleTechnician, SupportGroup: SupportGroupITHelpdesk}, false},
		{"manager in call center", Session{Role: RoleManager, SupportGroup: SupportGroupCallCenter}, false},
		{"no group", Session{Role: RoleUser}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsSystemWideClaimViewer(tc.session, rules); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCanAccessTicket(t *testing.T) {
	rules := DefaultClaimRules()
	claim := TicketAccess{
		ClaimID:           "c1",
		BranchID:          "branch-a",
		CreatedByID:       "filer",
		CreatedByBranchID: "branch-b",
		CategoryID:        atmServicesCategoryID,
		ServiceName:       "ATM Claim",
	}
	cases := []struct {
		name    string
		session Session
		want    bool
	}{
		{"admin", Session{UserID: "u", Role: RoleAdmin}, true},
		{"creator", Session{UserID: "filer", Role: RoleUser}, true},
		{"owning branch manager", Session{UserID: "m", Role: RoleManager, BranchID: "branch-a"}, true},
		{"filing branch user", Session{UserID: "x", Role: RoleUser, BranchID: "branch-b"}, true},
		{"other branch manager", Session{UserID: "m", Role: RoleManager, BranchID: "branch-c"}, false},
		{"call center", Session{UserID: "cc", Role: RoleTechnician, SupportGroup: SupportGroupCallCenter, BranchID: "hq"}, true},
		{"helpdesk technician", Session{UserID: "h", Role: RoleTechnician, SupportGroup: SupportGroupITHelpdesk}, true},
		{"branchless user", Session{UserID: "y", Role: RoleUser}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanAccessTicket(tc.session, claim, rules); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCanVerify(t *testing.T) {
	ticket := TicketAccess{BranchID: "branch-a", AssignedToID: "tech"}
	cases := []struct {
		name    string
		session Session
		want    bool
	}{
		{"admin", Session{Role: RoleAdmin}, true},
		{"manager it", Session{Role: RoleManagerIT}, true},
		{"owning manager", Session{Role: RoleManager, BranchID: "branch-a"}, true},
		{"filing manager", Session{Role: RoleManager, BranchID: "branch-b"}, false},
		{"assignee", Session{UserID: "tech", Role: RoleTechnician}, true},
		{"other technician", Session{UserID: "other", Role: RoleTechnician, BranchID: "branch-a"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanVerify(tc.session, ticket); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCanExportPCAssets(t *testing.T) {
	if !CanExportPCAssets(Session{Role: RoleManager}) {
		t.Fatalf("manager should export")
	}
	if !CanExportPCAssets(Session{Role: RoleTechnician, SupportGroup: SupportGroupPCAuditor}) {
		t.Fatalf("pc auditor should export")
	}
	if CanExportPCAssets(Session{Role: RoleTechnician, SupportGroup: SupportGroupCallCenter}) {
		t.Fatalf("call center should not export")
	}
}
