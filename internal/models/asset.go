package models

import "time"

type Attachment struct {
	AttachmentID string    `json:"attachment_id"`
	ClaimID      string    `json:"claim_id"`
	Kind         string    `json:"kind"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	Path         string    `json:"-"`
	UploadedByID string    `json:"uploaded_by_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type PCAsset struct {
	AssetID              string     `json:"asset_id"`
	AssetTag             string     `json:"asset_tag"`
	PCName               string     `json:"pc_name"`
	SerialNumber         string     `json:"serial_number"`
	Brand                string     `json:"brand"`
	Model                string     `json:"model"`
	FormFactor           string     `json:"form_factor"`
	Status               string     `json:"status"`
	BranchID             string     `json:"branch_id"`
	BranchName           string     `json:"branch_name"`
	BranchCode           string     `json:"branch_code"`
	Department           string     `json:"department"`
	AssignedTo           string     `json:"assigned_to"`
	Processor            string     `json:"processor"`
	RAMGB                int        `json:"ram_gb"`
	StorageType          string     `json:"storage_type"`
	StorageCapacity      string     `json:"storage_capacity"`
	MACAddress           string     `json:"mac_address"`
	IPAddress            string     `json:"ip_address"`
	OperatingSystem      string     `json:"operating_system"`
	OSLicenseType        string     `json:"os_license_type"`
	AntivirusName        string     `json:"antivirus_name"`
	AVRealTimeProtection bool       `json:"av_real_time_protection"`
	HardeningCompliant   bool       `json:"hardening_compliant"`
	PurchaseDate         *time.Time `json:"purchase_date"`
	WarrantyExpiry       *time.Time `json:"warranty_expiry"`
	Notes                string     `json:"notes"`
}

const (
	AssetStatusInUse    = "IN_USE"
	AssetStatusStock    = "STOCK"
	AssetStatusBroken   = "BROKEN"
	AssetStatusDisposed = "DISPOSED"
)
