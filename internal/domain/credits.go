package domain

import "time"

// CreditBalance is the current spendable balance for a user. The row is
// created lazily on first read or grant. Balance never goes below zero:
// spends are guarded by a conditional UPDATE, not by application checks.
type CreditBalance struct {
	UserID    uint      `json:"user_id"    gorm:"primaryKey"`
	Balance   int       `json:"balance"    gorm:"not null;default:0;check:balance >= 0"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for CreditBalance.
func (CreditBalance) TableName() string { return "credit_balances" }

// CreditLedgerEntry is one append-only movement of credits. Delta is positive
// for grants and negative for spends; replaying all deltas for a user must
// reproduce the balance row.
type CreditLedgerEntry struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	UserID    uint      `json:"user_id"    gorm:"not null;index:idx_ledger_user,priority:1"`
	Delta     int       `json:"delta"      gorm:"not null"`
	Reason    string    `json:"reason"     gorm:"type:varchar(64);not null"`
	RefType   string    `json:"ref_type"   gorm:"type:varchar(32)"`
	RefID     string    `json:"ref_id"     gorm:"type:varchar(128)"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_ledger_user,priority:2"`
}

// TableName returns the database table name for CreditLedgerEntry.
func (CreditLedgerEntry) TableName() string { return "credit_ledger" }
