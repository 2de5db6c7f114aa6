package models

import "github.com/shopspring/decimal"

// ReturnRecord represents a single product return
type ReturnRecord struct {
	ID           int64           `db:"id" json:"id"`
	OrderID      int64           `db:"order_id" json:"order_id"`
	Product      string          `db:"product" json:"product"`
	Category     string          `db:"category" json:"category"`
	ReturnReason string          `db:"return_reason" json:"return_reason"`
	Cost         decimal.Decimal `db:"cost" json:"cost"`
	ApprovedFlag string          `db:"approved_flag" json:"approved_flag"`
	StoreName    string          `db:"store_name" json:"store_name"`
	Date         string          `db:"date" json:"date"`
}

// IsApproved reports whether the return was approved
func (r *ReturnRecord) IsApproved() bool {
	return r.ApprovedFlag == ApprovedYes
}

// Approval flags
const (
	ApprovedYes = "Yes"
	ApprovedNo  = "No"
)

const (
	// UnknownValue fills text fields nobody supplied.
	UnknownValue = "Unknown"

	// DateLayout is the format of ReturnRecord.Date.
	DateLayout = "2006-01-02"

	// SeedOrderID is the first order id handed out on an empty table.
	// Ids below it are left for imported reference data.
	SeedOrderID int64 = 1101
)

// Columns lists the table columns in export order
var Columns = []string{
	"id",
	"order_id",
	"product",
	"category",
	"return_reason",
	"cost",
	"approved_flag",
	"store_name",
	"date",
}
