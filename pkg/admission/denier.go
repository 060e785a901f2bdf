package admission

import (
	"context"
	"strings"
	"time"

	"github.com/EdgeWard/WardGate/pkg/domain/audit"
	"github.com/EdgeWard/WardGate/pkg/infra/accesslist"
	"github.com/EdgeWard/WardGate/pkg/infra/auditlogs"
	"github.com/EdgeWard/WardGate/pkg/infra/suspicion"
)

// auditedDenier layers an audit-trail write on top of the access-list deny
// the scorer issues when it escalates a client.
type auditedDenier struct {
	list     accesslist.Manager
	recorder auditlogs.Recorder
}

func newAuditedDenier(list accesslist.Manager, recorder auditlogs.Recorder) suspicion.Denier {
	return &auditedDenier{list: list, recorder: recorder}
}

func (d *auditedDenier) Deny(ctx context.Context, identity, reason string, duration time.Duration) (bool, error) {
	applied, err := d.list.Deny(ctx, identity, reason, duration)
	if err != nil || !applied {
		return applied, err
	}
	if d.recorder != nil {
		d.recorder.Record(ctx, audit.ActionDenyEscalated, identity, reason, audit.SourceScorer, escalationSignals(reason))
	}
	return applied, nil
}

// escalationSignals recovers the signal names embedded in an escalation
// reason; any other reason yields none.
func escalationSignals(reason string) []string {
	rest, ok := strings.CutPrefix(reason, suspicion.EscalationReasonPrefix)
	if !ok || rest == "" {
		return nil
	}
	return strings.Split(rest, ",")
}
