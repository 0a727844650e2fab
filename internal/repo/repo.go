package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"eventpress/internal/model"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

var (
	ErrEventNotFound        = errors.New("event not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrAnnouncementNotFound = errors.New("announcement not found")
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrAlreadyCheckedIn     = errors.New("ticket already checked in")
	ErrDuplicateToken       = errors.New("duplicate ticket token")
	ErrDuplicateSlug        = errors.New("duplicate event slug")
)

type Repository interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
	GetEventBySlug(ctx context.Context, slug string) (*model.Event, error)
	GetOwnedEvent(ctx context.Context, id, ownerID string) (*model.Event, error)
	ListEventsByOwner(ctx context.Context, ownerID string) ([]model.Event, error)
	SetEventPublished(ctx context.Context, id, ownerID string, published bool, at time.Time) error
	CreateRegistration(ctx context.Context, reg *model.Registration) error
	CheckInRegistration(ctx context.Context, eventID, ticketToken string, at time.Time) error
	GetRegistration(ctx context.Context, eventID, id string) (*model.Registration, error)
	ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error)
	CreateAnnouncement(ctx context.Context, a *model.Announcement) error
	GetAnnouncement(ctx context.Context, eventID, id string) (*model.Announcement, error)
	ListAnnouncements(ctx context.Context, eventID string) ([]model.Announcement, error)
	MarkAnnouncementDelivered(ctx context.Context, id, status string, sent int, at time.Time) error
	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

// reader is the read side of the pool; dbpg.DB spreads these over replicas.
type reader interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type repository struct {
	master  *sql.DB
	read    reader
	dialect string
	log     *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{master: db.Master, read: db, dialect: DialectPostgres, log: log}, nil
}

// NewSQLRepository runs every query against a single database/sql handle.
func NewSQLRepository(db *sql.DB, dialect string, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{master: db, read: db, dialect: dialect, log: log}, nil
}

// rebind turns ? placeholders into $n for postgres.
func (r *repository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.master.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Int("files", len(files)).Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}

		if _, err := r.master.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Int("files", len(files)).Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

const eventColumns = `id, user_id, name, slug, description, start_date, end_date, venue,
	banner_url, custom_fields, ticket_tiers, is_published, encryption_key, created_at, updated_at`

func (r *repository) CreateEvent(ctx context.Context, e *model.Event) error {
	fields, err := jsonList(e.CustomFields)
	if err != nil {
		return fmt.Errorf("failed to encode custom fields: %w", err)
	}
	tiers, err := jsonList(e.TicketTiers)
	if err != nil {
		return fmt.Errorf("failed to encode ticket tiers: %w", err)
	}

	query := r.rebind(`
		INSERT INTO events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = r.master.ExecContext(ctx, query,
		e.ID, e.UserID, e.Name, e.Slug, e.Description, e.StartDate, nullTime(e.EndDate), e.Venue,
		e.BannerURL, fields, tiers, e.IsPublished, e.EncryptionKey, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSlug
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (r *repository) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	query := r.rebind(`SELECT ` + eventColumns + ` FROM events WHERE id = ?`)
	return r.scanEvent(r.read.QueryRowContext(ctx, query, id))
}

func (r *repository) GetEventBySlug(ctx context.Context, slug string) (*model.Event, error) {
	query := r.rebind(`SELECT ` + eventColumns + ` FROM events WHERE slug = ? AND is_published = TRUE`)
	return r.scanEvent(r.read.QueryRowContext(ctx, query, slug))
}

func (r *repository) GetOwnedEvent(ctx context.Context, id, ownerID string) (*model.Event, error) {
	query := r.rebind(`SELECT ` + eventColumns + ` FROM events WHERE id = ? AND user_id = ?`)
	return r.scanEvent(r.read.QueryRowContext(ctx, query, id, ownerID))
}

func (r *repository) ListEventsByOwner(ctx context.Context, ownerID string) ([]model.Event, error) {
	query := r.rebind(`
		SELECT ` + eventColumns + `
		FROM events
		WHERE user_id = ?
		ORDER BY created_at DESC
	`)

	rows, err := r.read.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := r.scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

func (r *repository) SetEventPublished(ctx context.Context, id, ownerID string, published bool, at time.Time) error {
	query := r.rebind(`
		UPDATE events
		SET is_published = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`)

	res, err := r.master.ExecContext(ctx, query, published, at, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *repository) scanEvent(row rowScanner) (*model.Event, error) {
	var (
		e             model.Event
		end           sql.NullTime
		fields, tiers []byte
	)
	err := row.Scan(
		&e.ID, &e.UserID, &e.Name, &e.Slug, &e.Description, &e.StartDate, &end, &e.Venue,
		&e.BannerURL, &fields, &tiers, &e.IsPublished, &e.EncryptionKey, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	if end.Valid {
		t := end.Time
		e.EndDate = &t
	}
	if err := json.Unmarshal(fields, &e.CustomFields); err != nil {
		return nil, fmt.Errorf("failed to decode custom fields of event %s: %w", e.ID, err)
	}
	if err := json.Unmarshal(tiers, &e.TicketTiers); err != nil {
		return nil, fmt.Errorf("failed to decode ticket tiers of event %s: %w", e.ID, err)
	}
	return &e, nil
}

const registrationColumns = `id, event_id, full_name, email, phone, ticket_type, payment_status,
	payment_id, form_data, image_url, ticket_token, check_in_status, check_in_time, created_at`

// CreateRegistration persists the row in a single INSERT.
func (r *repository) CreateRegistration(ctx context.Context, reg *model.Registration) error {
	formData := reg.FormData
	if len(formData) == 0 {
		formData = json.RawMessage(`{}`)
	}

	query := r.rebind(`
		INSERT INTO registrations (` + registrationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.master.ExecContext(ctx, query,
		reg.ID, reg.EventID, reg.FullName, reg.Email, reg.Phone, reg.TicketType, reg.PaymentStatus,
		reg.PaymentID, string(formData), reg.ImageURL, reg.TicketToken, reg.CheckInStatus,
		nullTime(reg.CheckInTime), reg.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateToken
		}
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

// CheckInRegistration flips check_in_status with one conditional UPDATE so
// concurrent scans of the same ticket yield exactly one success.
func (r *repository) CheckInRegistration(ctx context.Context, eventID, ticketToken string, at time.Time) error {
	query := r.rebind(`
		UPDATE registrations
		SET check_in_status = TRUE, check_in_time = ?
		WHERE event_id = ? AND ticket_token = ? AND check_in_status = FALSE
	`)

	res, err := r.master.ExecContext(ctx, query, at, eventID, ticketToken)
	if err != nil {
		return fmt.Errorf("failed to check in registration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	var checkedIn bool
	err = r.master.QueryRowContext(ctx, r.rebind(`
		SELECT check_in_status
		FROM registrations
		WHERE event_id = ? AND ticket_token = ?
	`), eventID, ticketToken).Scan(&checkedIn)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTicketNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up registration: %w", err)
	}
	if checkedIn {
		return ErrAlreadyCheckedIn
	}
	return fmt.Errorf("check-in for event %s was not applied", eventID)
}

// GetRegistration reads from the master so a row committed just before its
// confirmation was queued is always visible.
func (r *repository) GetRegistration(ctx context.Context, eventID, id string) (*model.Registration, error) {
	query := r.rebind(`
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE event_id = ? AND id = ?
	`)

	reg, err := scanRegistration(r.master.QueryRowContext(ctx, query, eventID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}

func (r *repository) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	query := r.rebind(`
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE event_id = ?
		ORDER BY created_at ASC, id ASC
	`)

	rows, err := r.read.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registrations: %w", err)
	}

	return regs, nil
}

func scanRegistration(row rowScanner) (*model.Registration, error) {
	var reg model.Registration
	var phone, ticketType, paymentID, imageURL sql.NullString
	var formData []byte
	var checkInTime sql.NullTime
	if err := row.Scan(
		&reg.ID, &reg.EventID, &reg.FullName, &reg.Email, &phone, &ticketType, &reg.PaymentStatus,
		&paymentID, &formData, &imageURL, &reg.TicketToken, &reg.CheckInStatus, &checkInTime, &reg.CreatedAt,
	); err != nil {
		return nil, err
	}

	reg.Phone = nullString(phone)
	reg.TicketType = nullString(ticketType)
	reg.PaymentID = nullString(paymentID)
	reg.ImageURL = nullString(imageURL)
	reg.FormData = json.RawMessage(formData)
	if checkInTime.Valid {
		t := checkInTime.Time
		reg.CheckInTime = &t
	}
	return &reg, nil
}

const announcementColumns = `id, event_id, subject, message, status, sent_at, sent_to_count, created_at`

func (r *repository) CreateAnnouncement(ctx context.Context, a *model.Announcement) error {
	query := r.rebind(`
		INSERT INTO event_announcements (` + announcementColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	if _, err := r.master.ExecContext(ctx, query,
		a.ID, a.EventID, a.Subject, a.Message, a.Status, nullTime(a.SentAt), a.SentToCount, a.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create announcement: %w", err)
	}
	return nil
}

func (r *repository) GetAnnouncement(ctx context.Context, eventID, id string) (*model.Announcement, error) {
	query := r.rebind(`
		SELECT ` + announcementColumns + `
		FROM event_announcements
		WHERE event_id = ? AND id = ?
	`)

	a, err := scanAnnouncement(r.master.QueryRowContext(ctx, query, eventID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAnnouncementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get announcement: %w", err)
	}
	return a, nil
}

func (r *repository) ListAnnouncements(ctx context.Context, eventID string) ([]model.Announcement, error) {
	query := r.rebind(`
		SELECT ` + announcementColumns + `
		FROM event_announcements
		WHERE event_id = ?
		ORDER BY created_at DESC
	`)

	rows, err := r.read.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get announcements: %w", err)
	}
	defer rows.Close()

	var out []model.Announcement
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan announcement: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate announcements: %w", err)
	}

	return out, nil
}

// MarkAnnouncementDelivered records the outcome of a queued announcement once.
func (r *repository) MarkAnnouncementDelivered(ctx context.Context, id, status string, sent int, at time.Time) error {
	query := r.rebind(`
		UPDATE event_announcements
		SET status = ?, sent_to_count = ?, sent_at = ?
		WHERE id = ? AND status = ?
	`)

	res, err := r.master.ExecContext(ctx, query, status, sent, at, id, model.AnnouncementQueued)
	if err != nil {
		return fmt.Errorf("failed to update announcement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrAnnouncementNotFound
	}
	return nil
}

func scanAnnouncement(row rowScanner) (*model.Announcement, error) {
	var (
		a      model.Announcement
		sentAt sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.EventID, &a.Subject, &a.Message, &a.Status, &sentAt, &a.SentToCount, &a.CreatedAt); err != nil {
		return nil, err
	}
	if sentAt.Valid {
		t := sentAt.Time
		a.SentAt = &t
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// jsonList encodes a nil slice as [] so the NOT NULL json columns stay arrays.
func jsonList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
