/*
Package workbook reads and writes the three-sheet .xlsx layout used for
import and export.

LAYOUT (header in row 1, data from row 2):
  Accounts:     Name | Balance | Currency
  Categories:   Name | Type | Color | Icon
  Transactions: Type | Amount | Description | Date | Account | Category | To Account

PARSING:
  Parse turns a workbook into importer.Data plus per-row validation
  errors. Row numbers in those errors are sheet row numbers. A missing
  sheet yields no rows. Fully empty rows are ignored.

EXPORT:
  Write serialises a Snapshot of the store into the same layout, so an
  exported file can be imported back.

SEE ALSO:
  - importer/: Reconciles parsed rows into the ledger
  - api/handlers.go: Upload and download endpoints
*/
package workbook

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/warp/spending-tracker/importer"
)

// Column is one column of a sheet.
type Column struct {
	Header string
	Width  float64
}

var (
	AccountColumns = []Column{
		{"Name", 25},
		{"Balance", 15},
		{"Currency", 10},
	}
	CategoryColumns = []Column{
		{"Name", 25},
		{"Type", 10},
		{"Color", 12},
		{"Icon", 15},
	}
	TransactionColumns = []Column{
		{"Type", 12},
		{"Amount", 15},
		{"Description", 30},
		{"Date", 15},
		{"Account", 25},
		{"Category", 20},
		{"To Account", 25},
	}
)

// Sheet names, shared with the importer's error reports.
const (
	SheetAccounts     = string(importer.SheetAccounts)
	SheetCategories   = string(importer.SheetCategories)
	SheetTransactions = string(importer.SheetTransactions)
)

// DateFormat is the number format applied to the Date column on export.
const DateFormat = "yyyy-mm-dd"

// =============================================================================
// UPLOAD BOUNDARY
// =============================================================================

// MaxUploadBytes is the largest accepted import file.
const MaxUploadBytes int64 = 10 << 20

// UploadError rejects an upload at the boundary. Message is user-facing.
type UploadError struct {
	Message string
}

func (e *UploadError) Error() string { return e.Message }

var (
	ErrNoFile       = &UploadError{"No file provided"}
	ErrFileType     = &UploadError{"Invalid file type. Please upload an Excel file (.xlsx or .xls)"}
	ErrFileTooLarge = &UploadError{"File too large. Maximum size is 10MB."}
	ErrLegacyFormat = &UploadError{"Could not read the .xls file. Please save it as .xlsx and upload it again."}
)

// CheckUpload validates an upload's name and size before it is parsed.
// limit <= 0 means MaxUploadBytes.
func CheckUpload(name string, size, limit int64) error {
	if name == "" {
		return ErrNoFile
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xls":
	default:
		return ErrFileType
	}
	if limit <= 0 {
		limit = MaxUploadBytes
	}
	if size > limit {
		return ErrFileTooLarge
	}
	return nil
}

// isLegacy reports whether name has the pre-2007 .xls extension.
func isLegacy(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xls")
}

// Filename returns the export file name for the given day.
func Filename(now time.Time) string {
	return fmt.Sprintf("spending-tracker-%s.xlsx", now.UTC().Format("2006-01-02"))
}
