package notify

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/addaxai-connect/internal/data"
	"github.com/technosupport/addaxai-connect/internal/queuebus"
)

const (
	defaultTopSpeciesCount      = 10
	defaultNotableDetectionSize = 5
	reportBatteryThreshold      = 30
)

// ReportSchedulerConfig controls the single daily dispatch tick; weekly and
// monthly reports ride the same tick, gated on day-of-week/day-of-month.
type ReportSchedulerConfig struct {
	RunAtHourUTC   int
	WorkerPoolSize int
}

// ReportScheduler sends the daily/weekly/monthly email digests, grounded
// on the same period boundaries as the original report generator: daily
// covers yesterday, weekly covers the prior Monday-Sunday, monthly covers
// the prior calendar month.
type ReportScheduler struct {
	config ReportSchedulerConfig
	prefs  data.NotificationPreferenceModel
	stats  data.ReportStatsModel
	proj   data.ProjectModel
	logs   data.NotificationLogModel
	bus    *queuebus.Bus
	links  LinkBuilder

	quit chan struct{}
	wg   sync.WaitGroup
}

func NewReportScheduler(cfg ReportSchedulerConfig, prefs data.NotificationPreferenceModel, stats data.ReportStatsModel, proj data.ProjectModel, logs data.NotificationLogModel, bus *queuebus.Bus, links LinkBuilder) *ReportScheduler {
	if cfg.WorkerPoolSize == 0 {
		cfg.WorkerPoolSize = 5
	}
	if cfg.RunAtHourUTC == 0 {
		cfg.RunAtHourUTC = 6
	}
	return &ReportScheduler{config: cfg, prefs: prefs, stats: stats, proj: proj, logs: logs, bus: bus, links: links, quit: make(chan struct{})}
}

func (s *ReportScheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *ReportScheduler) Stop() {
	close(s.quit)
	s.wg.Wait()
}

func (s *ReportScheduler) run() {
	defer s.wg.Done()

	timer := time.NewTimer(s.durationUntilNextRun())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.dispatchForToday()
			timer.Reset(24 * time.Hour)
		case <-s.quit:
			return
		}
	}
}

func (s *ReportScheduler) durationUntilNextRun() time.Duration {
	now := time.Now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.config.RunAtHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

func (s *ReportScheduler) dispatchForToday() {
	today := time.Now().UTC()

	yesterday := today.AddDate(0, 0, -1)
	s.dispatchFrequency("daily", dayStart(yesterday), dayEnd(yesterday), yesterday.Format("January 2, 2006"))

	if today.Weekday() == time.Monday {
		end := yesterday // Sunday
		start := end.AddDate(0, 0, -6)
		s.dispatchFrequency("weekly", dayStart(start), dayEnd(end), fmt.Sprintf("%s - %s", start.Format("January 2"), end.Format("January 2, 2006")))
	}

	if today.Day() == 1 {
		firstOfThisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := firstOfThisMonth.AddDate(0, 0, -1)
		start := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
		s.dispatchFrequency("monthly", dayStart(start), dayEnd(end), start.Format("January 2006"))
	}
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dayEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}

func (s *ReportScheduler) dispatchFrequency(frequency string, start, end time.Time, periodLabel string) {
	ctx := context.Background()
	prefs, err := s.prefs.ListWithReportFrequency(ctx, frequency)
	if err != nil {
		log.Printf("notify: %s report: list preferences: %v", frequency, err)
		return
	}
	if len(prefs) == 0 {
		return
	}
	log.Printf("notify: %s report: processing %d preference rows for %s", frequency, len(prefs), periodLabel)

	jobQueue := make(chan reportJob, s.config.WorkerPoolSize*2)
	var workers sync.WaitGroup
	for i := 0; i < s.config.WorkerPoolSize; i++ {
		workers.Add(1)
		go s.worker(jobQueue, &workers)
	}
	for _, pref := range prefs {
		jobQueue <- reportJob{pref: pref, frequency: frequency, start: start, end: end, periodLabel: periodLabel}
	}
	close(jobQueue)
	workers.Wait()
}

type reportJob struct {
	pref        data.ProjectNotificationPreference
	frequency   string
	start, end  time.Time
	periodLabel string
}

func (s *ReportScheduler) worker(jobs <-chan reportJob, wg *sync.WaitGroup) {
	defer wg.Done()
	ctx := context.Background()

	for job := range jobs {
		time.Sleep(time.Duration(rand.Intn(500)) * time.Millisecond)
		if err := s.processOne(ctx, job); err != nil {
			log.Printf("notify: %s report: user %s project %s: %v", job.frequency, job.pref.UserID, job.pref.ProjectID, err)
		}
	}
}

func (s *ReportScheduler) processOne(ctx context.Context, job reportJob) error {
	project, err := s.proj.GetByID(ctx, job.pref.ProjectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}

	body := s.buildReportText(ctx, *project, job)
	subject := fmt.Sprintf("%s - %s report (%s)", project.Name, titleCase(job.frequency), job.periodLabel)

	logRow := &data.NotificationLog{
		ID:               uuid.New(),
		UserID:           job.pref.UserID,
		NotificationType: "email_report",
		Channel:          data.ChannelEmail,
		RenderedMessage:  truncate(body, 1000),
	}
	if err := s.logs.Create(ctx, logRow); err != nil {
		return fmt.Errorf("create notification log: %w", err)
	}

	return s.bus.Publish(ctx, queuebus.QueueNotificationEmail, map[string]any{
		"notification_log_id": logRow.ID.String(),
		"to_email":             "", // the email worker resolves the recipient's address from UserID
		"subject":              subject,
		"body_text":            body,
		"body_html":            nil,
	})
}

func (s *ReportScheduler) buildReportText(ctx context.Context, project data.Project, job reportJob) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s Report\nPeriod: %s\n%s\n\n", project.Name, titleCase(job.frequency), job.periodLabel, strings.Repeat("=", 50))

	if overview, err := s.stats.Overview(ctx, project.ID, job.start, job.end, project.DetectionThreshold); err == nil {
		fmt.Fprintf(&b, "OVERVIEW\n%s\n", strings.Repeat("-", 20))
		fmt.Fprintf(&b, "New images: %d\nTotal images: %d\nTotal cameras: %d\nSpecies detected: %d\nNew species: %d\n\n",
			overview.NewImages, overview.TotalImages, overview.TotalCameras, overview.TotalSpecies, overview.NewSpecies)
	}

	if species, err := s.stats.SpeciesDistribution(ctx, project.ID, job.start, job.end, project.DetectionThreshold, defaultTopSpeciesCount); err == nil && len(species) > 0 {
		fmt.Fprintf(&b, "TOP SPECIES\n%s\n", strings.Repeat("-", 20))
		for _, sp := range species {
			fmt.Fprintf(&b, "  %s: %d detections\n", titleCase(sp.Species), sp.Count)
		}
		b.WriteString("\n")
	}

	if health, err := s.stats.CameraHealth(ctx, project.ID, reportBatteryThreshold); err == nil {
		fmt.Fprintf(&b, "CAMERA HEALTH\n%s\n", strings.Repeat("-", 20))
		fmt.Fprintf(&b, "Active cameras: %d / %d\nInactive cameras: %d\nLow battery: %d\n",
			health.Active, health.Total, health.Inactive, health.LowBatteryCount)
		for _, name := range health.LowBatteryNames {
			fmt.Fprintf(&b, "  - %s\n", name)
		}
		b.WriteString("\n")
	}

	if activity, err := s.stats.Activity(ctx, project.ID, job.start, job.end, project.DetectionThreshold); err == nil {
		fmt.Fprintf(&b, "ACTIVITY\n%s\nTotal detections: %d\n", strings.Repeat("-", 20), activity.TotalDetections)
		if activity.PeakHour != nil {
			fmt.Fprintf(&b, "Peak activity hour: %d:00\n", *activity.PeakHour)
		}
		b.WriteString("\n")
	}

	if notable, err := s.stats.NotableDetections(ctx, project.ID, job.start, job.end, project.DetectionThreshold, defaultNotableDetectionSize); err == nil && len(notable) > 0 {
		fmt.Fprintf(&b, "NOTABLE DETECTIONS\n%s\n", strings.Repeat("-", 20))
		for _, n := range notable {
			fmt.Fprintf(&b, "  %s (%.0f%%) at %s\n", titleCase(n.Species), n.Confidence*100, n.CameraName)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "%s\nView full dashboard: %s\n\nAddaxAI Connect - Camera trap image processing", strings.Repeat("-", 50), s.links.CameraViewLink(project.ID.String()))
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
