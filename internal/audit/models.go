package audit

import (
	"time"

	"github.com/google/uuid"

	"loanflow/internal/application/models"
)

// Entry is one append-only record of a status change. It is written in the
// same transaction as the status update so the log can never disagree with
// the applications table.
type Entry struct {
	ID            uuid.UUID
	ApplicationID uuid.UUID
	OldStatus     models.Status
	NewStatus     models.Status
	Actor         string
	Reason        string
	Metadata      map[string]any
	CreatedAt     time.Time
}
