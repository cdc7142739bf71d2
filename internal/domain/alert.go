package domain

import (
	"regexp"
	"time"
)

// AlertStatus is the lifecycle state of a fraud alert.
type AlertStatus string

const (
	// AlertPending is the initial state, set when an evaluation starts.
	AlertPending AlertStatus = "PENDING"

	// AlertReviewed means the evaluation finished without confirming fraud,
	// or an operator reviewed the alert manually.
	AlertReviewed AlertStatus = "REVIEWED"

	// AlertConfirmed means a rule classified the transaction as fraudulent.
	AlertConfirmed AlertStatus = "CONFIRMED"

	// AlertFalsePositive is set by an operator correcting an automated
	// misclassification.
	AlertFalsePositive AlertStatus = "FALSE_POSITIVE"
)

// Valid reports whether s is a known alert status.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertPending, AlertReviewed, AlertConfirmed, AlertFalsePositive:
		return true
	}
	return false
}

// FraudAlert is the audit record written for every risk evaluation.
// One alert is created PENDING at evaluation start and moved to a terminal
// status (REVIEWED or CONFIRMED) before the evaluation returns. Operators
// may later move it to any status via the update endpoint; no transition
// validation is enforced on that path so that misclassifications can always
// be corrected.
type FraudAlert struct {
	ID              string      `json:"id"`
	Origin          string      `json:"origin"`
	Destination     string      `json:"destination"`
	Amount          float64     `json:"amount"`
	TransactionDate time.Time   `json:"transactionDate"`
	Reason          string      `json:"reason"`
	Status          AlertStatus `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// AlertUpdate carries the mutable fields of an operator alert update.
// Nil fields are left untouched.
type AlertUpdate struct {
	Status *AlertStatus `json:"status,omitempty"`
	Reason *string      `json:"reason,omitempty"`
}

// CheckRequest is a proposed money transfer to be screened.
// Immutable, constructed once per inbound request.
type CheckRequest struct {
	Origin          string    `json:"origin"`
	Destination     string    `json:"destination"`
	Amount          float64   `json:"amount"`
	TransactionDate time.Time `json:"transactionDate"`
}

var ibanPattern = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z0-9]{1,30}$`)

// ValidIBAN reports whether s is an IBAN-shaped account identifier.
func ValidIBAN(s string) bool {
	return ibanPattern.MatchString(s)
}
