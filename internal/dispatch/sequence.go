package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/fernwell/nurture/internal/models"
	"github.com/fernwell/nurture/internal/queue"
)

// SubscribeToSequence queues the first email of a sequence for the
// subscriber. Each step schedules the next when it completes.
func (d *Dispatcher) SubscribeToSequence(ctx context.Context, subscriberID, sequenceID string) error {
	sub, err := d.subscribers.GetByID(subscriberID)
	if err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("subscriber %s not found", subscriberID)
	}

	seq, err := d.sequences.GetByID(sequenceID)
	if err != nil {
		return err
	}
	if seq == nil {
		return fmt.Errorf("sequence %s not found", sequenceID)
	}
	if !seq.IsActive {
		return fmt.Errorf("sequence %s is not active", seq.Name)
	}

	templates, err := d.templates.GetBySequenceID(sequenceID)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		return fmt.Errorf("sequence %s has no active templates", seq.Name)
	}

	first := templates[0]
	item := &queue.QueuedEmail{
		SubscriberID: sub.ID,
		TemplateID:   first.ID,
		ScheduledFor: time.Now().Add(time.Duration(first.DelayDays) * 24 * time.Hour),
	}
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("enqueue first step: %w", err)
	}

	d.logger.Info("subscriber entered sequence",
		"email", sub.Email, "sequence", seq.Name, "first_template", first.Name, "scheduled_for", item.ScheduledFor)
	return nil
}

// ProcessEmailQueue drains due emails. Each item is handled in
// isolation; one bad item never blocks the rest of the batch. It
// returns the number of items taken from the queue.
func (d *Dispatcher) ProcessEmailQueue(ctx context.Context) (int, error) {
	items, err := d.queue.Due(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch due emails: %w", err)
	}

	for _, item := range items {
		select {
		case <-ctx.Done():
			return len(items), ctx.Err()
		default:
		}
		d.processQueuedEmail(ctx, item)
	}
	return len(items), nil
}

func (d *Dispatcher) processQueuedEmail(ctx context.Context, item *queue.QueuedEmail) {
	finish := func(status queue.Status, errMsg string) {
		item.Status = status
		item.Error = errMsg
		if err := d.queue.Update(ctx, item); err != nil {
			d.logger.Error("failed to update queue item", "id", item.ID, "error", err)
		}
	}

	sub, err := d.subscribers.GetByID(item.SubscriberID)
	if err != nil {
		finish(queue.StatusFailed, "subscriber lookup failed: "+err.Error())
		return
	}
	if sub == nil {
		finish(queue.StatusFailed, "subscriber not found")
		return
	}

	// Unsubscribed means cancel without touching the provider.
	if !sub.IsSubscribed {
		finish(queue.StatusCancelled, "subscriber unsubscribed")
		d.logger.Debug("queued email cancelled", "id", item.ID, "email", sub.Email)
		return
	}

	tmpl, err := d.templates.GetByID(item.TemplateID)
	if err != nil {
		finish(queue.StatusFailed, "template lookup failed: "+err.Error())
		return
	}
	if tmpl == nil {
		finish(queue.StatusFailed, "template not found")
		return
	}
	if !tmpl.IsActive {
		finish(queue.StatusSkipped, "template deactivated")
		return
	}

	res := d.SendTemplateToSubscriber(ctx, sub, tmpl)
	if !res.Success {
		finish(queue.StatusFailed, res.Error)
		return
	}
	finish(queue.StatusSent, "")

	if tmpl.SequenceID != "" {
		if err := d.advanceSequence(ctx, sub, tmpl); err != nil {
			d.logger.Error("failed to schedule next sequence step",
				"email", sub.Email, "sequence_id", tmpl.SequenceID, "error", err)
		}
	}
}

// advanceSequence queues the template after tmpl in its sequence: the
// one with the smallest delay strictly greater than tmpl's. Templates
// sharing a delay occupy the same position, so only one of them runs.
func (d *Dispatcher) advanceSequence(ctx context.Context, sub *models.Subscriber, tmpl *models.EmailTemplate) error {
	templates, err := d.templates.GetBySequenceID(tmpl.SequenceID)
	if err != nil {
		return err
	}

	var next *models.EmailTemplate
	for i := range templates {
		if templates[i].DelayDays > tmpl.DelayDays {
			next = &templates[i]
			break
		}
	}
	if next == nil {
		d.logger.Info("sequence completed", "email", sub.Email, "sequence_id", tmpl.SequenceID)
		return nil
	}

	gap := time.Duration(next.DelayDays-tmpl.DelayDays) * 24 * time.Hour
	item := &queue.QueuedEmail{
		SubscriberID: sub.ID,
		TemplateID:   next.ID,
		ScheduledFor: time.Now().Add(gap),
	}
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return err
	}

	d.logger.Debug("next sequence step queued",
		"email", sub.Email, "template", next.Name, "scheduled_for", item.ScheduledFor)
	return nil
}
