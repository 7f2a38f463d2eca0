package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/flowave-io/ctlpanel/pkg/log"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Event types recorded in the audit trail.
const (
	EventLoginFailed      = "login_failed"
	EventSessionStart     = "session_start"
	EventSessionEnd       = "session_end"
	EventSessionRefused   = "session_refused"
	EventCommand          = "command"
	EventPermissionDenied = "permission_denied"
	EventCommandFailed    = "command_failed"
	EventFatalError       = "fatal_error"
)

// DefaultRetentionDays is used when no retention period is configured.
const DefaultRetentionDays = 90

// Entry is one row of the audit_entries table.
type Entry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	TraceID   string    `gorm:"index" json:"trace_id"`
	EventType string    `gorm:"index" json:"event_type"`
	Username  string    `json:"username"`
	SourceIP  string    `json:"source_ip"`
	Details   string    `json:"details"`
}

// TableName pins the table name.
func (Entry) TableName() string { return "audit_entries" }

// Record holds the fields a caller supplies for one event.
type Record struct {
	TraceID   string
	EventType string
	Username  string
	SourceIP  string
	Details   string
}

// Auditor writes audit events to the database and the process log.
type Auditor struct {
	mu            sync.RWMutex
	db            *gorm.DB
	retentionDays int
	nowFn         func() time.Time
}

// NewAuditor migrates the audit table on db. A retentionDays of zero or
// less selects DefaultRetentionDays.
func NewAuditor(db *gorm.DB, retentionDays int) (*Auditor, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate audit table: %w", err)
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Auditor{db: db, retentionDays: retentionDays, nowFn: time.Now}, nil
}

// Log records an event.
func (a *Auditor) Log(r Record) error {
	a.mu.RLock()
	now := a.nowFn()
	a.mu.RUnlock()
	row := Entry{
		CreatedAt: now,
		TraceID:   r.TraceID,
		EventType: r.EventType,
		Username:  r.Username,
		SourceIP:  r.SourceIP,
		Details:   r.Details,
	}
	if err := a.db.Create(&row).Error; err != nil {
		log.Errorf("[audit] failed to write audit entry: %v", err)
		return err
	}
	log.Infof("[audit] %s user=%s ip=%s trace=%s details=%s",
		r.EventType,
		log.SanitizeForLog(r.Username),
		r.SourceIP,
		r.TraceID,
		log.SanitizeForLog(r.Details),
	)
	return nil
}

// QueryOptions filter Query.
type QueryOptions struct {
	TraceID   string
	EventType string
	Username  string
	Since     *time.Time
	Limit     int
}

// Query returns matching entries, newest first.
func (a *Auditor) Query(opts QueryOptions) ([]Entry, error) {
	tx := a.db.Model(&Entry{})
	if opts.TraceID != "" {
		tx = tx.Where("trace_id = ?", opts.TraceID)
	}
	if opts.EventType != "" {
		tx = tx.Where("event_type = ?", opts.EventType)
	}
	if opts.Username != "" {
		tx = tx.Where("username = ?", opts.Username)
	}
	if opts.Since != nil {
		tx = tx.Where("created_at >= ?", *opts.Since)
	}
	if opts.Limit <= 0 || opts.Limit > 1000 {
		opts.Limit = 100
	}
	var out []Entry
	if err := tx.Order("created_at DESC, id DESC").Limit(opts.Limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// PurgeOlderThan deletes entries older than days, or the retention period
// when days is zero or less. It returns the number of rows removed.
func (a *Auditor) PurgeOlderThan(days int) (int64, error) {
	if days <= 0 {
		days = a.retentionDays
	}
	a.mu.RLock()
	cutoff := a.nowFn().AddDate(0, 0, -days)
	a.mu.RUnlock()
	res := a.db.Where("created_at < ?", cutoff).Delete(&Entry{})
	if res.Error != nil {
		log.Errorf("[audit] purge failed: %v", res.Error)
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Infof("[audit] purged %d entries older than %d days", res.RowsAffected, days)
	}
	return res.RowsAffected, nil
}

// SchedulePurge runs PurgeOlderThan on the cron spec (for example "@daily")
// until the returned stop function is called.
func (a *Auditor) SchedulePurge(spec string) (stop func(), err error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { a.PurgeOlderThan(0) }); err != nil {
		return nil, fmt.Errorf("parse purge schedule %q: %w", spec, err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}

// RetentionDays returns the configured retention period.
func (a *Auditor) RetentionDays() int { return a.retentionDays }

// SetNowFunc replaces the clock. Used by tests.
func (a *Auditor) SetNowFunc(fn func() time.Time) {
	a.mu.Lock()
	a.nowFn = fn
	a.mu.Unlock()
}
