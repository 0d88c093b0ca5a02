package dns

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/curtisra-gif/dns-failover/internal/metrics"
	"github.com/curtisra-gif/dns-failover/internal/model"
	"github.com/curtisra-gif/dns-failover/internal/notify"
)

type Action string

const (
	ActionUnchanged Action = "unchanged"
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionSkipped   Action = "skipped"
	ActionFailed    Action = "failed"
)

// Desired is the binding every managed name of a group should carry.
type Desired struct {
	Side    model.Side
	Content string
	// Pinned replaces Content on the one name Content refers to, since a
	// record cannot alias itself. Empty leaves that name untouched.
	Pinned  string
	Proxied bool
	TTL     int
}

// Outcome reports what reconciliation did to one name.
type Outcome struct {
	Subdomain string
	Type      model.RecordType
	Content   string
	Action    Action
	Deleted   int
	Err       error
}

// Reconciler makes a group's names match a Desired binding. It always reads
// the zone before writing, so it converges after partial failures.
type Reconciler struct {
	group    string
	gw       Gateway
	notifier notify.Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewReconciler(group string, gw Gateway, notifier notify.Notifier, m *metrics.Metrics, log *zap.Logger) *Reconciler {
	return &Reconciler{
		group:    group,
		gw:       gw,
		notifier: notifier,
		metrics:  m,
		log:      log,
	}
}

// Reconcile processes every subdomain independently. The returned error
// aggregates the per-name failures; outcomes are always complete.
func (r *Reconciler) Reconcile(ctx context.Context, zoneID string, subdomains []string, want Desired) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(subdomains))
	var errs error
	for _, sub := range subdomains {
		out := r.reconcileOne(ctx, zoneID, sub, want)
		outcomes = append(outcomes, out)
		errs = multierr.Append(errs, out.Err)
	}
	return outcomes, errs
}

func (r *Reconciler) reconcileOne(ctx context.Context, zoneID, sub string, want Desired) Outcome {
	log := r.log.With(zap.String("subdomain", sub), zap.String("side", want.Side.String()))
	out := Outcome{Subdomain: sub, Content: want.Content}

	content := want.Content
	if canonical(content) == canonical(sub) {
		if want.Pinned == "" {
			out.Action = ActionSkipped
			out.Err = fmt.Errorf("%s: target is the name itself and no address is pinned", sub)
			log.Warn("skipping self-referencing target")
			return out
		}
		log.Debug("target is the name itself, writing pinned content", zap.String("pinned", want.Pinned))
		content = want.Pinned
	}
	typ := model.RecordTypeFor(content)
	out.Type, out.Content = typ, content

	existing, err := Lookup(ctx, r.gw, zoneID, sub)
	if err != nil {
		out.Action = ActionSkipped
		out.Err = fmt.Errorf("%s: lookup: %w", sub, err)
		log.Warn("record lookup failed, retrying next tick", zap.Error(err))
		return out
	}

	var keep *model.Record
	for i := range existing {
		rec := existing[i]
		if rec.Type == typ && keep == nil {
			keep = &existing[i]
			continue
		}
		err := r.gw.DeleteRecord(ctx, zoneID, rec.ID)
		r.metrics.ObserveWrite(r.group, "delete", err)
		if err != nil {
			out.Err = multierr.Append(out.Err, fmt.Errorf("%s: delete %s record: %w", sub, rec.Type, err))
			log.Warn("delete of conflicting record failed", zap.String("type", string(rec.Type)), zap.Error(err))
			continue
		}
		out.Deleted++
		log.Info("deleted conflicting record", zap.String("type", string(rec.Type)), zap.String("content", rec.Content))
	}

	desired := model.Record{Type: typ, Name: sub, Content: content, TTL: want.TTL, Proxied: want.Proxied}

	var action Action
	switch {
	case keep != nil && model.SameContent(keep.Content, content) && keep.Proxied == want.Proxied:
		out.Action = ActionUnchanged
		log.Debug("record already correct", zap.String("content", content))
		return out
	case keep != nil:
		action = ActionUpdated
		err = r.gw.UpdateRecord(ctx, zoneID, keep.ID, desired)
		r.metrics.ObserveWrite(r.group, "update", err)
	default:
		action = ActionCreated
		err = r.gw.CreateRecord(ctx, zoneID, desired)
		r.metrics.ObserveWrite(r.group, "create", err)
	}
	if err != nil {
		out.Action = ActionFailed
		out.Err = multierr.Append(out.Err, fmt.Errorf("%s: %s record: %w", sub, action, err))
		log.Error("record write failed, retrying next tick", zap.String("action", string(action)), zap.Error(err))
		return out
	}

	out.Action = action
	log.Info("record written",
		zap.String("action", string(action)),
		zap.String("type", string(typ)),
		zap.String("content", content),
		zap.Bool("proxied", want.Proxied),
	)
	r.notifier.Notify(ctx, fmt.Sprintf("[dns] %s %s -> %s (proxied: %s)", sub, action, content, onOff(want.Proxied)))
	return out
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
