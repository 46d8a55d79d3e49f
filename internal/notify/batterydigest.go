package notify

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/addaxai-connect/internal/data"
	"github.com/technosupport/addaxai-connect/internal/queuebus"
)

const defaultBatteryThreshold = 30

// BatteryDigestSchedulerConfig sets the run hour and the size of the worker
// pool the job feeds; the job runs once a day rather than on a short tick.
type BatteryDigestSchedulerConfig struct {
	RunAtHourUTC   int // defaults to 12
	WorkerPoolSize int // defaults to 10
}

// BatteryDigestScheduler sends one consolidated battery message per
// (user, project, channel) at noon UTC, counting cameras at or below the
// user's configured threshold.
type BatteryDigestScheduler struct {
	config   BatteryDigestSchedulerConfig
	prefs    data.NotificationPreferenceModel
	cameras  data.CameraModel
	projects data.ProjectModel
	logs     data.NotificationLogModel
	bus      *queuebus.Bus
	links    LinkBuilder

	quit chan struct{}
	wg   sync.WaitGroup
}

func NewBatteryDigestScheduler(cfg BatteryDigestSchedulerConfig, prefs data.NotificationPreferenceModel, cameras data.CameraModel, projects data.ProjectModel, logs data.NotificationLogModel, bus *queuebus.Bus, links LinkBuilder) *BatteryDigestScheduler {
	if cfg.WorkerPoolSize == 0 {
		cfg.WorkerPoolSize = 10
	}
	return &BatteryDigestScheduler{
		config: cfg, prefs: prefs, cameras: cameras, projects: projects,
		logs: logs, bus: bus, links: links, quit: make(chan struct{}),
	}
}

func (s *BatteryDigestScheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *BatteryDigestScheduler) Stop() {
	close(s.quit)
	s.wg.Wait()
}

func (s *BatteryDigestScheduler) run() {
	defer s.wg.Done()

	jobQueue := make(chan data.ProjectNotificationPreference, s.config.WorkerPoolSize*2)
	for i := 0; i < s.config.WorkerPoolSize; i++ {
		s.wg.Add(1)
		go s.worker(jobQueue)
	}

	timer := time.NewTimer(s.durationUntilNextRun())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.dispatch(jobQueue)
			timer.Reset(24 * time.Hour)
		case <-s.quit:
			close(jobQueue)
			return
		}
	}
}

func (s *BatteryDigestScheduler) durationUntilNextRun() time.Duration {
	hour := s.config.RunAtHourUTC
	if hour == 0 {
		hour = 12
	}
	now := time.Now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

func (s *BatteryDigestScheduler) dispatch(queue chan<- data.ProjectNotificationPreference) {
	ctx := context.Background()
	prefs, err := s.prefs.ListWithBatteryDigestEnabled(ctx)
	if err != nil {
		log.Printf("notify: battery digest: list preferences: %v", err)
		return
	}
	log.Printf("notify: battery digest: dispatching to %d preference rows", len(prefs))

	queued, skipped := 0, 0
	for _, pref := range prefs {
		select {
		case queue <- pref:
			queued++
		default:
			skipped++
		}
	}
	if skipped > 0 {
		log.Printf("notify: battery digest: dropped %d preference rows, worker pool saturated", skipped)
	}
}

func (s *BatteryDigestScheduler) worker(jobs <-chan data.ProjectNotificationPreference) {
	defer s.wg.Done()
	ctx := context.Background()

	for pref := range jobs {
		time.Sleep(time.Duration(rand.Intn(1000)) * time.Millisecond)
		if err := s.processOne(ctx, pref); err != nil {
			log.Printf("notify: battery digest: user %s project %s: %v", pref.UserID, pref.ProjectID, err)
		}
	}
}

func (s *BatteryDigestScheduler) processOne(ctx context.Context, pref data.ProjectNotificationPreference) error {
	rule := pref.Channels.BatteryDigest
	if !rule.Enabled {
		return nil
	}

	threshold := rule.ThresholdPercent
	if threshold <= 0 || threshold > 100 {
		threshold = defaultBatteryThreshold
	}

	project, err := s.projects.GetByID(ctx, pref.ProjectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}

	count, err := s.cameras.CountBelowBatteryThreshold(ctx, pref.ProjectID, threshold)
	if err != nil {
		return fmt.Errorf("count low-battery cameras: %w", err)
	}
	if count == 0 {
		return nil
	}

	message := BuildBatteryDigestMessage(project.Name, count, threshold, s.links, project.ID.String())

	for _, channel := range rule.Channels {
		if err := s.publish(ctx, pref, channel, message); err != nil {
			log.Printf("notify: battery digest: publish to user %s via %s: %v", pref.UserID, channel, err)
		}
	}
	return nil
}

func (s *BatteryDigestScheduler) publish(ctx context.Context, pref data.ProjectNotificationPreference, channel data.NotificationChannel, message string) error {
	logRow := &data.NotificationLog{
		ID:               uuid.New(),
		UserID:           pref.UserID,
		NotificationType: "battery_digest",
		Channel:          channel,
		RenderedMessage:  message,
	}
	if err := s.logs.Create(ctx, logRow); err != nil {
		return fmt.Errorf("create notification log: %w", err)
	}

	switch channel {
	case data.ChannelTelegram:
		if pref.TelegramChatID == "" {
			return nil
		}
		return s.bus.Publish(ctx, queuebus.QueueNotificationTelegram, map[string]any{
			"notification_log_id": logRow.ID.String(),
			"chat_id":              pref.TelegramChatID,
			"message_text":         message,
			"attachment_url":       nil,
			"reply_markup":         nil,
		})
	case data.ChannelSignal:
		if pref.SignalPhone == "" {
			return nil
		}
		return s.bus.Publish(ctx, queuebus.QueueNotificationSignal, map[string]any{
			"notification_log_id": logRow.ID.String(),
			"recipient_phone":     pref.SignalPhone,
			"message_text":        message,
			"attachment_url":      nil,
		})
	default:
		return fmt.Errorf("battery digest does not support channel %q", channel)
	}
}
