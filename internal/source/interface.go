package source

import (
	"context"
	"errors"
	"iter"
)

var (
	// ErrLoginFailed means the portal rejected the credentials or never left the login view.
	ErrLoginFailed = errors.New("login failed")

	// ErrExtraction means the target view did not render the expected rows in time.
	ErrExtraction = errors.New("extraction failed")
)

// RawRow is one row of the pending orders table, as text pulled from the DOM.
type RawRow struct {
	Index          int    `json:"index"`
	OrderNumber    string `json:"orderNumber"`    // td.columnOS a
	RowText        string `json:"rowText"`        // whole row
	OriginText     string `json:"originText"`     // origin badge, when present
	EquipmentText  string `json:"equipmentText"`  // fifth cell
	CriticalMarker bool   `json:"criticalMarker"` // critical equipment icon present
	ExecutorText   string `json:"executorText"`   // td.columnRight
}

// PageReader yields the rows currently shown on the target view.
type PageReader interface {
	// Rows reloads the view and returns a sequence over its rows.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	// Returns:
	//   - iter.Seq[RawRow]: rows of this page snapshot.
	//   - err: wraps ErrExtraction when the view did not load.
	Rows(ctx context.Context) (iter.Seq[RawRow], error)
}

// Session owns the authenticated portal session.
type Session interface {
	// Open starts a session, logs in and navigates to the target view.
	Open(ctx context.Context) error

	// Recover closes the current session and opens a new one.
	Recover(ctx context.Context) error

	// Close releases the session.
	Close() error
}

// Portal is a page reader bound to the session that feeds it.
type Portal interface {
	PageReader
	Session
}
