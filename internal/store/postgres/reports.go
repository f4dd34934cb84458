package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"servicedesk/internal/models"
	"servicedesk/internal/store"
)

func (s *Store) ListPCAssets(ctx context.Context, filter store.PCAssetFilter) ([]models.PCAsset, error) {
	q := &claimQuery{}
	q.add("p.is_active = TRUE")
	if filter.BranchID != "" {
		q.add("p.branch_id::TEXT = " + q.arg(filter.BranchID))
	}
	if filter.BranchCode != "" {
		q.add("UPPER(b.code) = UPPER(" + q.arg(filter.BranchCode) + ")")
	}
	if filter.Status != "" {
		q.add("p.status = " + q.arg(strings.ToUpper(filter.Status)))
	}
	if filter.FormFactor != "" {
		q.add("UPPER(p.form_factor) = UPPER(" + q.arg(filter.FormFactor) + ")")
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := q.arg("%" + escapeLike(search) + "%")
		q.add("(p.pc_name ILIKE " + pattern + " OR p.asset_tag ILIKE " + pattern + " OR p.serial_number ILIKE " + pattern + ")")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT p.asset_id, COALESCE(p.asset_tag, ''), p.pc_name, COALESCE(p.serial_number, ''), p.brand,
		       COALESCE(p.model, ''), COALESCE(p.form_factor, ''), p.status, b.branch_id, b.name, b.code,
		       COALESCE(p.department, ''), COALESCE(p.assigned_to, ''), p.processor, p.ram_gb,
		       COALESCE(p.storage_type, ''), COALESCE(p.storage_capacity, ''), COALESCE(p.mac_address, ''),
		       COALESCE(p.ip_address, ''), COALESCE(p.operating_system, ''), COALESCE(p.os_license_type, ''),
		       COALESCE(p.antivirus_name, ''), p.av_real_time_protection, p.hardening_compliant,
		       p.purchase_date, p.warranty_expiry, COALESCE(p.notes, '')
		FROM pc_assets p
		JOIN branches b ON b.branch_id = p.branch_id`+q.where()+`
		ORDER BY p.pc_name ASC
	`, q.args...)
	if err != nil {
		return nil, fmt.Errorf("list pc assets: %w", err)
	}
	defer rows.Close()

	assets := []models.PCAsset{}
	for rows.Next() {
		var asset models.PCAsset
		var purchaseDate, warrantyExpiry sql.NullTime
		if err := rows.Scan(&asset.AssetID, &asset.AssetTag, &asset.PCName, &asset.SerialNumber, &asset.Brand,
			&asset.Model, &asset.FormFactor, &asset.Status, &asset.BranchID, &asset.BranchName, &asset.BranchCode,
			&asset.Department, &asset.AssignedTo, &asset.Processor, &asset.RAMGB,
			&asset.StorageType, &asset.StorageCapacity, &asset.MACAddress,
			&asset.IPAddress, &asset.OperatingSystem, &asset.OSLicenseType,
			&asset.AntivirusName, &asset.AVRealTimeProtection, &asset.HardeningCompliant,
			&purchaseDate, &warrantyExpiry, &asset.Notes); err != nil {
			return nil, err
		}
		asset.PurchaseDate = nullTimePtr(purchaseDate)
		asset.WarrantyExpiry = nullTimePtr(warrantyExpiry)
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assets, nil
}

// ListTransactionClaims returns tickets in [From, To) whose category is a report
// category or whose service name carries a claim keyword.
func (s *Store) ListTransactionClaims(ctx context.Context, filter store.TransactionClaimFilter) ([]models.Claim, error) {
	q := &claimQuery{}
	if !filter.From.IsZero() {
		q.add("t.created_at >= " + q.arg(filter.From))
	}
	if !filter.To.IsZero() {
		q.add("t.created_at < " + q.arg(filter.To))
	}
	patterns := make([]string, 0, len(s.rules.ReportServiceKeywords))
	for _, keyword := range s.rules.ReportServiceKeywords {
		patterns = append(patterns, "%"+escapeLike(keyword)+"%")
	}
	q.add("(c.name = ANY(" + q.arg(s.rules.ReportCategoryNames) + ") OR s.name ILIKE ANY(" + q.arg(patterns) + "))")

	rows, err := s.pool.Query(ctx, claimSelect+q.where()+" ORDER BY t.created_at DESC", q.args...)
	if err != nil {
		return nil, fmt.Errorf("list transaction claims: %w", err)
	}
	defer rows.Close()
	claims := []models.Claim{}
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return claims, nil
}
