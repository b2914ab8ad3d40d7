package attendance

import (
	"errors"
)

var (
	// ErrAdminEntryNotFound is returned when deleting an unknown entry.
	ErrAdminEntryNotFound = errors.New("administrative entry not found")

	// ErrReportNotFound is returned when a report was never generated.
	ErrReportNotFound = errors.New("report not found")

	// ErrDuplicatePIN is returned when a PIN is already in use.
	ErrDuplicatePIN = errors.New("pin already assigned to another worker")

	// ErrWorkerInactive is returned when an inactive worker punches.
	ErrWorkerInactive = errors.New("worker is inactive")
)
