package workers

import (
	"context"
	"fmt"
	"time"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/queue"
)

// Notification job types.
const (
	JobSendEmail            = "send-email"
	JobSendSMS              = "send-sms"
	JobSendPush             = "send-push"
	JobSendInApp            = "send-inapp"
	JobSendBulk             = "send-bulk"
	JobSendDigest           = "send-digest"
	JobCleanupNotifications = "cleanup-notifications"
)

// defaultBulkBatchSize bounds how many recipients one bulk pass touches
// between progress log lines.
const defaultBulkBatchSize = 100

// NotificationDeps are the delivery channels and persistence the
// notification worker needs.
type NotificationDeps struct {
	Mailer   Mailer
	SMS      SMSSender
	Push     PushSender
	Realtime RealtimeNotifier
	Store    NotificationStore
}

// NotificationWorker processes the notification queue: outbound email, SMS,
// push, in-app delivery, digests, and retention cleanup.
type NotificationWorker struct {
	queue  *queue.Worker
	deps   NotificationDeps
	logger automation.Logger
}

// NewNotificationWorker registers the notification job handlers on a fresh
// queue worker over store.
func NewNotificationWorker(store queue.Store, deps NotificationDeps, logger automation.Logger, opts ...queue.Option) (*NotificationWorker, error) {
	if logger == nil {
		logger = automation.NewFmtLogger(nil)
	}
	opts = append([]queue.Option{queue.WithLogger(logger)}, opts...)
	nw := &NotificationWorker{
		queue:  queue.NewWorker("notification-processing", store, opts...),
		deps:   deps,
		logger: logger,
	}

	regs := []struct {
		jobType     string
		handler     queue.HandlerFunc
		concurrency int
	}{
		{JobSendEmail, nw.sendEmail, 10},
		{JobSendSMS, nw.sendSMS, 5},
		{JobSendPush, nw.sendPush, 20},
		{JobSendInApp, nw.sendInApp, 50},
		{JobSendBulk, nw.sendBulk, 1},
		{JobSendDigest, nw.sendDigest, 2},
		{JobCleanupNotifications, nw.cleanupNotifications, 1},
	}
	for _, r := range regs {
		if err := nw.queue.RegisterHandler(r.jobType, r.handler, r.concurrency); err != nil {
			return nil, err
		}
	}
	return nw, nil
}

// Queue exposes the underlying worker for lifecycle and stats calls.
func (w *NotificationWorker) Queue() *queue.Worker { return w.queue }

func (w *NotificationWorker) Start(ctx context.Context) error { return w.queue.Start(ctx) }
func (w *NotificationWorker) Stop()                           { w.queue.Stop() }

// channelPriority maps the publisher's priority hint to a queue priority,
// keeping urgent email ahead of routine push and in-app traffic.
func channelPriority(hint string, normal automation.Priority) automation.Priority {
	if hint == "high" {
		return automation.PriorityHigh
	}
	return normal
}

// AddEmailJob enqueues an email delivery. The notification ID doubles as
// the idempotency key so a retried publisher cannot double-send.
func (w *NotificationWorker) AddEmailJob(ctx context.Context, notificationID string, msg EmailMessage, userID string, rc automation.RequestContext) (*queue.Job, error) {
	priorityHint := ""
	if msg.HighPriority {
		priorityHint = "high"
	}
	return w.queue.AddJob(ctx, JobSendEmail, automation.Payload{
		"to":             msg.To,
		"subject":        msg.Subject,
		"template":       msg.Template,
		"templateData":   msg.TemplateData,
		"notificationId": notificationID,
		"userId":         userID,
		"priority":       priorityHint,
	}, queue.JobOptions{
		ID:       jobID("email", notificationID),
		Priority: channelPriority(priorityHint, automation.PriorityNormal),
		Context:  rc,
	})
}

// AddSMSJob enqueues an SMS delivery.
func (w *NotificationWorker) AddSMSJob(ctx context.Context, notificationID, to, message, priorityHint, userID string, rc automation.RequestContext) (*queue.Job, error) {
	return w.queue.AddJob(ctx, JobSendSMS, automation.Payload{
		"to":             to,
		"message":        message,
		"notificationId": notificationID,
		"userId":         userID,
		"priority":       priorityHint,
	}, queue.JobOptions{
		ID:       jobID("sms", notificationID),
		Priority: channelPriority(priorityHint, automation.PriorityNormal),
		Context:  rc,
	})
}

// AddPushJob enqueues a push delivery fanned out to every registered token
// of the user.
func (w *NotificationWorker) AddPushJob(ctx context.Context, notificationID, userID string, msg PushMessage, priorityHint string, rc automation.RequestContext) (*queue.Job, error) {
	return w.queue.AddJob(ctx, JobSendPush, automation.Payload{
		"userId":         userID,
		"title":          msg.Title,
		"body":           msg.Body,
		"data":           msg.Data,
		"notificationId": notificationID,
		"priority":       priorityHint,
	}, queue.JobOptions{
		ID:       jobID("push", notificationID),
		Priority: channelPriority(priorityHint, automation.PriorityLow),
		Context:  rc,
	})
}

// AddInAppJob enqueues an in-app delivery. In-app traffic always rides at
// the lowest band; the realtime channel makes latency cheap.
func (w *NotificationWorker) AddInAppJob(ctx context.Context, notificationID, userID string, msg InAppMessage, rc automation.RequestContext) (*queue.Job, error) {
	return w.queue.AddJob(ctx, JobSendInApp, automation.Payload{
		"userId":         userID,
		"type":           msg.Type,
		"title":          msg.Title,
		"message":        msg.Message,
		"data":           msg.Data,
		"notificationId": notificationID,
	}, queue.JobOptions{
		ID:       jobID("inapp", notificationID),
		Priority: automation.PriorityBulk,
		Context:  rc,
	})
}

// AddBulkJob enqueues one fan-out delivery to many users. channel selects
// email, sms, push, or inapp; empty or "all" delivers in-app and, where a
// contact is on record, email.
func (w *NotificationWorker) AddBulkJob(ctx context.Context, userIDs []string, channel string, msg InAppMessage, priorityHint string, rc automation.RequestContext) (*queue.Job, error) {
	ids := make([]any, 0, len(userIDs))
	for _, id := range userIDs {
		ids = append(ids, id)
	}
	return w.queue.AddJob(ctx, JobSendBulk, automation.Payload{
		"userIds":  ids,
		"channel":  channel,
		"type":     msg.Type,
		"title":    msg.Title,
		"message":  msg.Message,
		"data":     map[string]any(msg.Data),
		"priority": priorityHint,
	}, queue.JobOptions{
		ID:       fmt.Sprintf("bulk_%d", time.Now().UnixMilli()),
		Priority: channelPriority(priorityHint, automation.PriorityBulk),
		Context:  rc,
	})
}

// AddDigestJob enqueues a periodic digest build for one user.
func (w *NotificationWorker) AddDigestJob(ctx context.Context, userID, frequency string, rc automation.RequestContext) (*queue.Job, error) {
	return w.queue.AddJob(ctx, JobSendDigest, automation.Payload{
		"userId":    userID,
		"frequency": frequency,
	}, queue.JobOptions{
		ID:       fmt.Sprintf("digest_%s_%d", userID, time.Now().UnixMilli()),
		Priority: automation.PriorityBulk,
		Context:  rc,
	})
}

// AddCleanupJob enqueues a retention sweep deleting read notifications
// older than daysOld days.
func (w *NotificationWorker) AddCleanupJob(ctx context.Context, daysOld int, rc automation.RequestContext) (*queue.Job, error) {
	return w.queue.AddJob(ctx, JobCleanupNotifications, automation.Payload{
		"daysOld": daysOld,
	}, queue.JobOptions{
		Priority: automation.PriorityBulk,
		Context:  rc,
	})
}

func jobID(prefix, notificationID string) string {
	if notificationID == "" {
		return ""
	}
	return prefix + "_" + notificationID
}

func (w *NotificationWorker) sendEmail(ctx context.Context, job *queue.Job) error {
	to, _ := job.Payload.String("to")
	if to == "" {
		return fmt.Errorf("send-email: recipient is required")
	}
	subject, _ := job.Payload.String("subject")
	template, _ := job.Payload.String("template")
	priorityHint, _ := job.Payload.String("priority")
	notificationID, _ := job.Payload.String("notificationId")

	var templateData automation.Payload
	if v, ok := job.Payload["templateData"].(map[string]any); ok {
		templateData = automation.Payload(v)
	} else if v, ok := job.Payload["templateData"].(automation.Payload); ok {
		templateData = v
	}

	w.logger.Info("sending email notification to %s", to)
	err := w.deps.Mailer.SendEmail(ctx, EmailMessage{
		To:           to,
		Subject:      subject,
		Template:     template,
		TemplateData: templateData,
		HighPriority: priorityHint == "high",
	})
	w.recordDelivery(ctx, notificationID, "email", err)
	if err != nil {
		return fmt.Errorf("send-email to %s: %w", to, err)
	}
	return nil
}

func (w *NotificationWorker) sendSMS(ctx context.Context, job *queue.Job) error {
	to, _ := job.Payload.String("to")
	if to == "" {
		return fmt.Errorf("send-sms: recipient is required")
	}
	message, _ := job.Payload.String("message")
	notificationID, _ := job.Payload.String("notificationId")

	w.logger.Info("sending sms notification to %s", to)
	err := w.deps.SMS.SendSMS(ctx, to, message)
	w.recordDelivery(ctx, notificationID, "sms", err)
	if err != nil {
		return fmt.Errorf("send-sms to %s: %w", to, err)
	}
	return nil
}

func (w *NotificationWorker) sendPush(ctx context.Context, job *queue.Job) error {
	userID, _ := job.Payload.String("userId")
	if userID == "" {
		return fmt.Errorf("send-push: userId is required")
	}
	notificationID, _ := job.Payload.String("notificationId")
	title, _ := job.Payload.String("title")
	body, _ := job.Payload.String("body")
	var data automation.Payload
	if v, ok := job.Payload["data"].(map[string]any); ok {
		data = automation.Payload(v)
	} else if v, ok := job.Payload["data"].(automation.Payload); ok {
		data = v
	}

	tokens, err := w.deps.Store.PushTokens(ctx, userID)
	if err != nil {
		return fmt.Errorf("send-push: load tokens for %s: %w", userID, err)
	}
	if len(tokens) == 0 {
		w.logger.Debug("no push tokens for user %s, skipping", userID)
		return nil
	}

	msg := PushMessage{Title: title, Body: body, Data: data}
	delivered := 0
	for _, token := range tokens {
		if perr := w.deps.Push.SendPush(ctx, token, msg); perr != nil {
			w.logger.Warn("push delivery to user %s token failed: %v", userID, perr)
			// A rejected token is dead; drop it so the next send skips it.
			if rerr := w.deps.Store.RemovePushToken(ctx, userID, token); rerr != nil {
				w.logger.Error("remove push token for user %s: %v", userID, rerr)
			}
			continue
		}
		delivered++
	}

	var deliveryErr error
	if delivered == 0 {
		deliveryErr = fmt.Errorf("send-push: all %d tokens for user %s failed", len(tokens), userID)
	}
	w.recordDelivery(ctx, notificationID, "push", deliveryErr)
	return deliveryErr
}

func (w *NotificationWorker) sendInApp(ctx context.Context, job *queue.Job) error {
	userID, _ := job.Payload.String("userId")
	if userID == "" {
		return fmt.Errorf("send-inapp: userId is required")
	}
	notificationID, _ := job.Payload.String("notificationId")
	msgType, _ := job.Payload.String("type")
	title, _ := job.Payload.String("title")
	message, _ := job.Payload.String("message")
	var data automation.Payload
	if v, ok := job.Payload["data"].(map[string]any); ok {
		data = automation.Payload(v)
	} else if v, ok := job.Payload["data"].(automation.Payload); ok {
		data = v
	}

	delivered, err := w.deps.Realtime.SendInApp(ctx, userID, InAppMessage{
		Type:    msgType,
		Title:   title,
		Message: message,
		Data:    data,
	})
	w.recordDelivery(ctx, notificationID, "in-app", err)
	if err != nil {
		return fmt.Errorf("send-inapp to user %s: %w", userID, err)
	}
	if !delivered {
		w.logger.Debug("user %s offline, in-app notification stored for next session", userID)
	}
	return nil
}

// sendBulk fans one message out to every listed user. Per-user failures are
// logged and counted; the job only fails when no delivery succeeded.
func (w *NotificationWorker) sendBulk(ctx context.Context, job *queue.Job) error {
	userIDs := payloadStrings(job.Payload["userIds"])
	if len(userIDs) == 0 {
		return fmt.Errorf("send-bulk: userIds is required")
	}
	channel, _ := job.Payload.String("channel")
	if channel == "" {
		channel = "all"
	}
	batchSize, ok := job.Payload.Int("batchSize")
	if !ok || batchSize <= 0 {
		batchSize = defaultBulkBatchSize
	}

	msgType, _ := job.Payload.String("type")
	title, _ := job.Payload.String("title")
	message, _ := job.Payload.String("message")
	var data automation.Payload
	if v, ok := job.Payload["data"].(map[string]any); ok {
		data = automation.Payload(v)
	} else if v, ok := job.Payload["data"].(automation.Payload); ok {
		data = v
	}
	msg := InAppMessage{Type: msgType, Title: title, Message: message, Data: data}

	succeeded, failed := 0, 0
	for start := 0; start < len(userIDs); start += batchSize {
		end := min(start+batchSize, len(userIDs))
		for _, userID := range userIDs[start:end] {
			if err := w.deliverBulk(ctx, userID, channel, msg); err != nil {
				w.logger.Warn("send-bulk: user %s via %s: %v", userID, channel, err)
				failed++
				continue
			}
			succeeded++
		}
		w.logger.Debug("send-bulk: processed %d of %d recipients", end, len(userIDs))
	}

	if succeeded == 0 {
		return fmt.Errorf("send-bulk: all %d deliveries failed", len(userIDs))
	}
	w.logger.Info("bulk notification sent: %d delivered, %d failed of %d", succeeded, failed, len(userIDs))
	return nil
}

func (w *NotificationWorker) deliverBulk(ctx context.Context, userID, channel string, msg InAppMessage) error {
	switch channel {
	case "email":
		email, _, err := w.deps.Store.Contact(ctx, userID)
		if err != nil {
			return err
		}
		if email == "" {
			return fmt.Errorf("no email on record")
		}
		return w.deps.Mailer.SendEmail(ctx, EmailMessage{
			To:       email,
			Subject:  msg.Title,
			Template: "bulk-notification",
			TemplateData: automation.Payload{
				"message": msg.Message,
				"data":    map[string]any(msg.Data),
			},
		})
	case "sms":
		_, phone, err := w.deps.Store.Contact(ctx, userID)
		if err != nil {
			return err
		}
		if phone == "" {
			return fmt.Errorf("no phone on record")
		}
		return w.deps.SMS.SendSMS(ctx, phone, msg.Message)
	case "push":
		tokens, err := w.deps.Store.PushTokens(ctx, userID)
		if err != nil {
			return err
		}
		if len(tokens) == 0 {
			return fmt.Errorf("no push tokens registered")
		}
		push := PushMessage{Title: msg.Title, Body: msg.Message, Data: msg.Data}
		delivered := 0
		for _, token := range tokens {
			if perr := w.deps.Push.SendPush(ctx, token, push); perr == nil {
				delivered++
			}
		}
		if delivered == 0 {
			return fmt.Errorf("all %d tokens failed", len(tokens))
		}
		return nil
	case "inapp":
		_, err := w.deps.Realtime.SendInApp(ctx, userID, msg)
		return err
	default:
		// "all" delivers in-app unconditionally, plus email when the
		// user has one on record.
		if _, err := w.deps.Realtime.SendInApp(ctx, userID, msg); err != nil {
			return err
		}
		email, _, err := w.deps.Store.Contact(ctx, userID)
		if err != nil || email == "" {
			return err
		}
		return w.deps.Mailer.SendEmail(ctx, EmailMessage{
			To:       email,
			Subject:  msg.Title,
			Template: "bulk-notification",
			TemplateData: automation.Payload{
				"message": msg.Message,
				"data":    map[string]any(msg.Data),
			},
		})
	}
}

func (w *NotificationWorker) sendDigest(ctx context.Context, job *queue.Job) error {
	userID, _ := job.Payload.String("userId")
	if userID == "" {
		return fmt.Errorf("send-digest: userId is required")
	}
	frequency, _ := job.Payload.String("frequency")
	if frequency == "" {
		frequency = "daily"
	}

	since := time.Now().UTC().Add(-digestPeriod(frequency))
	unread, err := w.deps.Store.UnreadSince(ctx, userID, since)
	if err != nil {
		return fmt.Errorf("send-digest: load unread for %s: %w", userID, err)
	}
	if len(unread) == 0 {
		w.logger.Debug("no unread notifications for user %s, skipping %s digest", userID, frequency)
		return nil
	}

	items := make([]any, 0, len(unread))
	for _, n := range unread {
		items = append(items, map[string]any(n))
	}
	err = w.deps.Mailer.SendEmail(ctx, EmailMessage{
		To:       userID,
		Subject:  fmt.Sprintf("Your %s notification digest (%d updates)", frequency, len(unread)),
		Template: "notification-digest",
		TemplateData: automation.Payload{
			"frequency":     frequency,
			"notifications": items,
			"count":         len(unread),
		},
	})
	if err != nil {
		return fmt.Errorf("send-digest to %s: %w", userID, err)
	}
	w.logger.Info("sent %s digest with %d items to user %s", frequency, len(unread), userID)
	return nil
}

func digestPeriod(frequency string) time.Duration {
	switch frequency {
	case "weekly":
		return 7 * 24 * time.Hour
	case "monthly":
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

func (w *NotificationWorker) cleanupNotifications(ctx context.Context, job *queue.Job) error {
	daysOld, ok := job.Payload.Int("daysOld")
	if !ok || daysOld <= 0 {
		daysOld = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -daysOld)
	removed, err := w.deps.Store.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup-notifications: %w", err)
	}
	w.logger.Info("cleaned up %d old notifications", removed)
	return nil
}

// recordDelivery updates the notification row when bookkeeping is wired.
// Bookkeeping failures are logged, never escalated; the delivery itself is
// what the job is for.
func (w *NotificationWorker) recordDelivery(ctx context.Context, notificationID, channel string, deliveryErr error) {
	if w.deps.Store == nil || notificationID == "" {
		return
	}
	var err error
	if deliveryErr != nil {
		err = w.deps.Store.MarkFailed(ctx, notificationID, channel, deliveryErr.Error())
	} else {
		err = w.deps.Store.MarkDelivered(ctx, notificationID, channel)
	}
	if err != nil {
		w.logger.Error("record %s delivery for notification %s: %v", channel, notificationID, err)
	}
}
