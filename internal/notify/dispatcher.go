package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Spok95/campus-maintenance/internal/channel"
	"github.com/Spok95/campus-maintenance/internal/ctxutil"
	"github.com/Spok95/campus-maintenance/internal/lifecycle"
	"github.com/Spok95/campus-maintenance/internal/metrics"
	"github.com/Spok95/campus-maintenance/internal/models"
	"github.com/Spok95/campus-maintenance/internal/observability"
)

const excerptRunes = 100

type Store interface {
	NextPending(ctx context.Context) (*models.PendingRequest, error)
	RecordDelivery(ctx context.Context, e models.NotificationLogEntry) (bool, error)
	RecordFailure(ctx context.Context, e models.NotificationLogEntry) error
}

type Result string

const (
	ResultDisabled Result = "disabled"
	ResultIdle     Result = "idle"
	ResultSent     Result = "sent"
	ResultFailed   Result = "failed"
	ResultSkipped  Result = "skipped"
)

// Dispatcher surfaces the newest pending request to the administrator.
// Cycles never overlap: a call that finds one in flight returns ResultSkipped.
type Dispatcher struct {
	store     Store
	ch        channel.Channel
	recipient string
	timeout   time.Duration
	log       *zap.Logger

	mu sync.Mutex
}

// New builds a dispatcher. A nil channel or empty recipient leaves it
// disabled; every cycle then logs and returns ResultDisabled.
func New(store Store, ch channel.Channel, recipient string, timeout time.Duration, log *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		store:     store,
		ch:        ch,
		recipient: recipient,
		timeout:   timeout,
		log:       log,
	}
}

func (d *Dispatcher) Enabled() bool { return d.ch != nil && d.recipient != "" }

// Job adapts RunCycle to the jobs runner.
func (d *Dispatcher) Job(ctx context.Context) error {
	_, err := d.RunCycle(ctx)
	return err
}

// RunCycle runs one dispatch cycle. Store work runs on a context detached
// from ctx's cancellation so a shutdown lets the cycle finish.
func (d *Dispatcher) RunCycle(ctx context.Context) (res Result, err error) {
	defer func() { metrics.DispatchResults.WithLabelValues(string(res)).Inc() }()

	if !d.Enabled() {
		d.log.Debug("notifications disabled: channel or recipient not configured")
		return ResultDisabled, nil
	}
	if !d.mu.TryLock() {
		d.log.Debug("dispatch cycle already in flight, skipping")
		return ResultSkipped, nil
	}
	defer d.mu.Unlock()

	op, ok := ctxutil.Op(ctx)
	if !ok {
		op = "dispatch"
		ctx = ctxutil.WithOp(ctx, op)
	}
	log := d.log.With(zap.String("op", op))
	capture := func(err error) { observability.CaptureWith(err, map[string]string{"op": op}) }

	ctx, cancel := ctxutil.Detached(ctx, d.timeout)
	defer cancel()

	p, err := d.store.NextPending(ctx)
	if err != nil {
		capture(err)
		log.Error("select pending request", zap.Error(err))
		return ResultFailed, err
	}
	if p == nil {
		return ResultIdle, nil
	}
	if err := lifecycle.Check(p.Status, models.StatusNotified, lifecycle.System); err != nil {
		return ResultFailed, err
	}

	body := FormatMessage(p)
	sid, sendErr := d.ch.Send(ctx, d.recipient, body)
	if sendErr != nil {
		log.Warn("notification delivery failed, request stays pending",
			zap.Int64("request_id", p.ID),
			zap.String("channel", d.ch.Name()),
			zap.Error(sendErr),
		)
		if err := d.store.RecordFailure(ctx, models.NotificationLogEntry{
			RequestID: p.ID,
			Status:    models.DeliveryFailed,
			Recipient: d.recipient,
		}); err != nil {
			capture(err)
			log.Error("record failed notification", zap.Int64("request_id", p.ID), zap.Error(err))
		}
		return ResultFailed, sendErr
	}

	transitioned, err := d.store.RecordDelivery(ctx, models.NotificationLogEntry{
		RequestID:  p.ID,
		MessageSID: &sid,
		Status:     models.DeliverySent,
		Recipient:  d.recipient,
	})
	if err != nil {
		capture(err)
		log.Error("record delivered notification",
			zap.Int64("request_id", p.ID), zap.String("message_sid", sid), zap.Error(err))
		return ResultFailed, err
	}
	if !transitioned {
		log.Info("request left pending before delivery was recorded",
			zap.Int64("request_id", p.ID), zap.String("message_sid", sid))
	}
	log.Info("notification sent",
		zap.Int64("request_id", p.ID),
		zap.String("channel", d.ch.Name()),
		zap.String("message_sid", sid),
	)
	return ResultSent, nil
}

// FormatMessage renders the fixed alert template.
func FormatMessage(p *models.PendingRequest) string {
	var b strings.Builder
	b.WriteString("🚨 NEW MAINTENANCE REQUEST\n\n")
	fmt.Fprintf(&b, "Submitted by: %s\n", p.OwnerName)
	fmt.Fprintf(&b, "Building: %s\n", p.BuildingName)
	fmt.Fprintf(&b, "Room: %s\n", p.RoomNumber)
	fmt.Fprintf(&b, "Priority: %s\n", p.Priority)
	fmt.Fprintf(&b, "Description: %s", excerpt(p.IssueDescription, excerptRunes))
	return b.String()
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
