package voice

import (
	"context"
	"errors"
	"fmt"

	"github.com/hivedesk/engage-platform/internal/calls"
	"github.com/hivedesk/engage-platform/pkg/logging"
)

// Recorder persists handoff outcomes onto call records. A caller on a live
// call must always receive a call-control document, so recording failures
// never block document generation.
type Recorder struct {
	calls  calls.Repository
	logger *logging.Logger
}

// NewRecorder creates a handoff recorder.
func NewRecorder(repo calls.Repository, logger *logging.Logger) *Recorder {
	if repo == nil {
		panic("voice: call repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Recorder{calls: repo, logger: logger}
}

// Record marks the call as handed off, storing the number and reason. A
// missing call record is a logged no-op; persistence failures propagate.
func (r *Recorder) Record(ctx context.Context, callSID, handoffNumber, reason string) error {
	record, err := r.calls.FindByCallSID(ctx, callSID)
	if err != nil {
		if errors.Is(err, calls.ErrCallNotFound) {
			r.logger.Warn("handoff recorder: no call record for SID, skipping",
				"call_sid", callSID,
				"reason", reason,
			)
			return nil
		}
		return fmt.Errorf("voice: find call: %w", err)
	}

	record.HandoffAttempted = true
	record.HandoffNumber = handoffNumber
	record.HandoffReason = reason
	if err := r.calls.Save(ctx, record); err != nil {
		return fmt.Errorf("voice: save handoff outcome: %w", err)
	}

	r.logger.Info("handoff recorded",
		"call_sid", callSID,
		"tenant_id", record.TenantID,
		"reason", reason,
	)
	return nil
}
