package export

import (
	"time"

	"servicedesk/internal/models"
)

const (
	PCInventoryPrefix       = "PC_Inventory_"
	TransactionClaimsPrefix = "transaction-claims-report-"

	PCInventorySheet       = "PC Inventory"
	PCSummarySheet         = "Summary"
	TransactionClaimsSheet = "Transaction Claims"
)

var pcInventoryHeaders = []string{
	"Asset Tag", "Hostname", "Serial Number", "Brand", "Model", "Form Factor", "Status",
	"Branch", "Branch Code", "Department", "Assigned To", "Processor", "RAM (GB)",
	"Storage Type", "Storage Capacity", "MAC Address", "IP Address", "Operating System",
	"OS License Type", "Antivirus", "AV Real-Time Protection", "Hardening Compliant",
	"Purchase Date", "Warranty Expiry", "Notes",
}

func PCInventory(assets []models.PCAsset) Table {
	rows := make([][]interface{}, 0, len(assets))
	for _, asset := range assets {
		status := asset.Status
		if status == "" {
			status = models.AssetStatusInUse
		}
		rows = append(rows, []interface{}{
			asset.AssetTag,
			asset.PCName,
			asset.SerialNumber,
			asset.Brand,
			asset.Model,
			asset.FormFactor,
			status,
			asset.BranchName,
			asset.BranchCode,
			asset.Department,
			asset.AssignedTo,
			asset.Processor,
			asset.RAMGB,
			asset.StorageType,
			asset.StorageCapacity,
			asset.MACAddress,
			asset.IPAddress,
			asset.OperatingSystem,
			asset.OSLicenseType,
			asset.AntivirusName,
			onOff(asset.AVRealTimeProtection),
			yesNo(asset.HardeningCompliant),
			formatDate(asset.PurchaseDate),
			formatDate(asset.WarrantyExpiry),
			asset.Notes,
		})
	}
	return Table{Sheet: PCInventorySheet, Headers: pcInventoryHeaders, Rows: rows}
}

// PCSummary counts assets by status and form factor.
func PCSummary(assets []models.PCAsset, exportedAt time.Time) Table {
	statusCounts := map[string]int{}
	formFactorCounts := map[string]int{}
	for _, asset := range assets {
		status := asset.Status
		if status == "" {
			status = models.AssetStatusInUse
		}
		statusCounts[status]++
		formFactorCounts[asset.FormFactor]++
	}
	rows := [][]interface{}{
		{"Total Assets", len(assets)},
		{"In Use", statusCounts[models.AssetStatusInUse]},
		{"Stock", statusCounts[models.AssetStatusStock]},
		{"Broken", statusCounts[models.AssetStatusBroken]},
		{"Disposed", statusCounts[models.AssetStatusDisposed]},
		{"Laptops", formFactorCounts["LAPTOP"]},
		{"Desktops", formFactorCounts["DESKTOP"]},
		{"AIO", formFactorCounts["AIO"]},
		{"Workstations", formFactorCounts["WORKSTATION"]},
		{"Export Date", exportedAt},
	}
	return Table{Sheet: PCSummarySheet, Headers: []string{"Metric", "Value"}, Rows: rows}
}

var transactionClaimHeaders = []string{
	"Ticket Number", "Title", "Description", "Status", "Priority", "Category",
	"Service Name", "Branch Name", "Branch Code", "Filed By Branch", "Creator Name",
	"Assigned To", "ATM Code", "ATM Location", "Claim Type", "Transaction Date",
	"Transaction Amount", "Customer Name", "Reporting Channel", "Recommendation",
	"Verified At", "Created At", "Updated At", "Resolved At",
}

func TransactionClaims(claims []models.Claim) Table {
	rows := make([][]interface{}, 0, len(claims))
	for _, claim := range claims {
		details := models.ClaimDetails{}
		if claim.Details != nil {
			details = *claim.Details
		}
		var transactionDate *time.Time
		var amount interface{} = ""
		if claim.Details != nil {
			transactionDate = &details.TransactionDate
			amount = details.TransactionAmount
		}
		recommendation := ""
		var verifiedAt *time.Time
		if claim.Verification != nil {
			if claim.Verification.Recommendation != nil {
				recommendation = *claim.Verification.Recommendation
			}
			verifiedAt = claim.Verification.VerifiedAt
		}
		rows = append(rows, []interface{}{
			claim.TicketNumber,
			claim.Title,
			claim.Description,
			claim.Status,
			claim.Priority,
			valueOr(claim.CategoryName, "N/A"),
			valueOr(claim.ServiceName, "N/A"),
			claim.BranchName,
			claim.BranchCode,
			claim.CreatedByBranchName,
			claim.CreatedByName,
			valueOr(claim.AssignedToName, "Unassigned"),
			details.ATMCode,
			details.ATMLocation,
			details.ClaimType,
			formatDate(transactionDate),
			amount,
			details.CustomerName,
			details.ReportingChannel,
			recommendation,
			verifiedAt,
			claim.CreatedAt,
			claim.UpdatedAt,
			claim.ResolvedAt,
		})
	}
	return Table{Sheet: TransactionClaimsSheet, Headers: transactionClaimHeaders, Rows: rows}
}

func onOff(value bool) string {
	if value {
		return "ON"
	}
	return "OFF"
}

func yesNo(value bool) string {
	if value {
		return "Yes"
	}
	return "No"
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
