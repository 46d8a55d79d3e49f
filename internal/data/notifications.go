package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NotificationChannel is one of the three delivery transports.
type NotificationChannel string

const (
	ChannelTelegram NotificationChannel = "telegram"
	ChannelSignal   NotificationChannel = "signal"
	ChannelEmail    NotificationChannel = "email"
)

// SpeciesDetectionRule is the species_detection entry of a preference's
// notification_channels map.
type SpeciesDetectionRule struct {
	Enabled         bool                  `json:"enabled"`
	Channels        []NotificationChannel `json:"channels"`
	SpeciesAllowlist []string             `json:"species_allowlist,omitempty"`
}

type BatteryDigestRule struct {
	Enabled          bool                  `json:"enabled"`
	Channels         []NotificationChannel `json:"channels"`
	ThresholdPercent int                   `json:"threshold_percent"`
}

type EmailReportRule struct {
	Enabled   bool   `json:"enabled"`
	Frequency string `json:"frequency"` // daily | weekly | monthly
}

type SystemHealthRule struct {
	Enabled         bool                  `json:"enabled"`
	Channels        []NotificationChannel `json:"channels"`
	MinimumSeverity string                `json:"minimum_severity"`
}

// NotificationChannels is the closed-schema configuration map described in
// the spec's design notes: every event kind has a known Go type instead of
// an arbitrary nested map.
type NotificationChannels struct {
	SpeciesDetection SpeciesDetectionRule `json:"species_detection"`
	BatteryDigest    BatteryDigestRule    `json:"battery_digest"`
	EmailReport      EmailReportRule      `json:"email_report"`
	SystemHealth     SystemHealthRule     `json:"system_health"`
}

type ProjectNotificationPreference struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	ProjectID     uuid.UUID
	Enabled       bool
	TelegramChatID string
	SignalPhone   string
	Channels      NotificationChannels
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type NotificationPreferenceModel struct {
	DB DBTX
}

const prefColumns = `id, user_id, project_id, enabled, telegram_chat_id, signal_phone,
	notification_channels, created_at, updated_at`

const prefColumnsPrefixed = `p.id, p.user_id, p.project_id, p.enabled, p.telegram_chat_id, p.signal_phone,
	p.notification_channels, p.created_at, p.updated_at`

// ListActiveForProject returns the enabled preference rows for
// active+verified users of a project, the population the notification core
// filters down via per-event rules.
func (m NotificationPreferenceModel) ListActiveForProject(ctx context.Context, projectID uuid.UUID) ([]ProjectNotificationPreference, error) {
	query := `
		SELECT ` + prefColumnsPrefixed + `
		FROM project_notification_preferences p
		JOIN users u ON u.id = p.user_id
		WHERE p.project_id = $1 AND p.enabled = true
		  AND u.is_active = true AND u.is_verified = true AND u.deleted_at IS NULL`
	rows, err := m.DB.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return m.scanRows(rows)
}

func (m NotificationPreferenceModel) Get(ctx context.Context, userID, projectID uuid.UUID) (*ProjectNotificationPreference, error) {
	query := `SELECT ` + prefColumns + ` FROM project_notification_preferences WHERE user_id = $1 AND project_id = $2`
	return m.scanOne(ctx, m.DB.QueryRowContext(ctx, query, userID, projectID))
}

func (m NotificationPreferenceModel) Upsert(ctx context.Context, p *ProjectNotificationPreference) error {
	channelsRaw, err := json.Marshal(p.Channels)
	if err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	query := `
		INSERT INTO project_notification_preferences
			(id, user_id, project_id, enabled, telegram_chat_id, signal_phone, notification_channels)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, project_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			telegram_chat_id = EXCLUDED.telegram_chat_id,
			signal_phone = EXCLUDED.signal_phone,
			notification_channels = EXCLUDED.notification_channels,
			updated_at = (NOW() AT TIME ZONE 'UTC')
		RETURNING id, created_at, updated_at`
	return m.DB.QueryRowContext(ctx, query,
		p.ID, p.UserID, p.ProjectID, p.Enabled, nullableString(p.TelegramChatID),
		nullableString(p.SignalPhone), channelsRaw,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (m NotificationPreferenceModel) SetTelegramChatID(ctx context.Context, userID, projectID uuid.UUID, chatID string) error {
	query := `
		UPDATE project_notification_preferences
		SET telegram_chat_id = $1, updated_at = (NOW() AT TIME ZONE 'UTC')
		WHERE user_id = $2 AND project_id = $3`
	_, err := m.DB.ExecContext(ctx, query, chatID, userID, projectID)
	return err
}

// ListWithBatteryDigestEnabled backs the 12:00 UTC battery digest job.
func (m NotificationPreferenceModel) ListWithBatteryDigestEnabled(ctx context.Context) ([]ProjectNotificationPreference, error) {
	query := `
		SELECT ` + prefColumnsPrefixed + `
		FROM project_notification_preferences p
		JOIN users u ON u.id = p.user_id
		WHERE p.enabled = true AND u.is_active = true AND u.is_verified = true AND u.deleted_at IS NULL
		  AND (p.notification_channels->'battery_digest'->>'enabled')::boolean = true`
	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return m.scanRows(rows)
}

// ListWithReportFrequency backs the periodic report job for a given
// frequency value ("daily", "weekly", "monthly").
func (m NotificationPreferenceModel) ListWithReportFrequency(ctx context.Context, frequency string) ([]ProjectNotificationPreference, error) {
	query := `
		SELECT ` + prefColumnsPrefixed + `
		FROM project_notification_preferences p
		JOIN users u ON u.id = p.user_id
		WHERE p.enabled = true AND u.is_active = true AND u.is_verified = true AND u.deleted_at IS NULL
		  AND (p.notification_channels->'email_report'->>'enabled')::boolean = true
		  AND p.notification_channels->'email_report'->>'frequency' = $1`
	rows, err := m.DB.QueryContext(ctx, query, frequency)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return m.scanRows(rows)
}

func (m NotificationPreferenceModel) scanOne(ctx context.Context, row *sql.Row) (*ProjectNotificationPreference, error) {
	var p ProjectNotificationPreference
	var telegramChatID, signalPhone sql.NullString
	var channelsRaw []byte
	err := row.Scan(&p.ID, &p.UserID, &p.ProjectID, &p.Enabled, &telegramChatID, &signalPhone,
		&channelsRaw, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	p.TelegramChatID = telegramChatID.String
	p.SignalPhone = signalPhone.String
	if len(channelsRaw) > 0 {
		json.Unmarshal(channelsRaw, &p.Channels)
	}
	return &p, nil
}

func (m NotificationPreferenceModel) scanRows(rows *sql.Rows) ([]ProjectNotificationPreference, error) {
	var out []ProjectNotificationPreference
	for rows.Next() {
		var p ProjectNotificationPreference
		var telegramChatID, signalPhone sql.NullString
		var channelsRaw []byte
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProjectID, &p.Enabled, &telegramChatID, &signalPhone,
			&channelsRaw, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.TelegramChatID = telegramChatID.String
		p.SignalPhone = signalPhone.String
		if len(channelsRaw) > 0 {
			json.Unmarshal(channelsRaw, &p.Channels)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- NotificationLog ---

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

type NotificationLog struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	NotificationType string
	Channel         NotificationChannel
	Status          NotificationStatus
	TriggerPayload  json.RawMessage
	RenderedMessage string
	ErrorMessage    string
	CreatedAt       time.Time
	SentAt          *time.Time
}

type NotificationLogModel struct {
	DB DBTX
}

func (m NotificationLogModel) Create(ctx context.Context, n *NotificationLog) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Status == "" {
		n.Status = NotificationPending
	}
	query := `
		INSERT INTO notification_logs (id, user_id, notification_type, channel, status,
		                                trigger_payload, rendered_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`
	return m.DB.QueryRowContext(ctx, query, n.ID, n.UserID, n.NotificationType, n.Channel,
		n.Status, []byte(n.TriggerPayload), n.RenderedMessage).Scan(&n.CreatedAt)
}

func (m NotificationLogModel) MarkSent(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notification_logs
		SET status = 'sent', sent_at = (NOW() AT TIME ZONE 'UTC')
		WHERE id = $1`
	res, err := m.DB.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (m NotificationLogModel) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `UPDATE notification_logs SET status = 'failed', error_message = $1 WHERE id = $2`
	res, err := m.DB.ExecContext(ctx, query, errMsg, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// --- Telegram linking ---

type TelegramLinkingToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ProjectID uuid.UUID
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

const TelegramLinkingTokenTTL = 30 * time.Minute

type TelegramLinkingTokenModel struct {
	DB DBTX
}

func (m TelegramLinkingTokenModel) Create(ctx context.Context, t *TelegramLinkingToken) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	query := `
		INSERT INTO telegram_linking_tokens (id, user_id, project_id, token, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	return m.DB.QueryRowContext(ctx, query, t.ID, t.UserID, t.ProjectID, t.Token, t.ExpiresAt).Scan(&t.CreatedAt)
}

func (m TelegramLinkingTokenModel) GetByToken(ctx context.Context, token string) (*TelegramLinkingToken, error) {
	query := `
		SELECT id, user_id, project_id, token, expires_at, used_at, created_at
		FROM telegram_linking_tokens WHERE token = $1`
	var t TelegramLinkingToken
	var usedAt sql.NullTime
	err := m.DB.QueryRowContext(ctx, query, token).Scan(
		&t.ID, &t.UserID, &t.ProjectID, &t.Token, &t.ExpiresAt, &usedAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	return &t, nil
}

func (m TelegramLinkingTokenModel) MarkUsed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE telegram_linking_tokens SET used_at = (NOW() AT TIME ZONE 'UTC') WHERE id = $1 AND used_at IS NULL`
	res, err := m.DB.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// TelegramConfig is the singleton bot-credentials row.
type TelegramConfig struct {
	BotToken  string
	UpdatedAt time.Time
}

type TelegramConfigModel struct {
	DB DBTX
}

func (m TelegramConfigModel) Get(ctx context.Context) (*TelegramConfig, error) {
	var c TelegramConfig
	err := m.DB.QueryRowContext(ctx, `SELECT bot_token, updated_at FROM telegram_config WHERE id = 1`).Scan(&c.BotToken, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	return &c, err
}

func (m TelegramConfigModel) Set(ctx context.Context, botToken string) error {
	query := `
		INSERT INTO telegram_config (id, bot_token) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET bot_token = EXCLUDED.bot_token, updated_at = (NOW() AT TIME ZONE 'UTC')`
	_, err := m.DB.ExecContext(ctx, query, botToken)
	return err
}
