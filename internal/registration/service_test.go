package registration

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"eventpress/internal/cipher"
	"eventpress/internal/dto"
	"eventpress/internal/model"
	"eventpress/internal/repo"
)

type fakeNotifier struct {
	mu       sync.Mutex
	err      error
	messages []dto.NotificationMessage
}

func (f *fakeNotifier) Notify(_ context.Context, msg dto.NotificationMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return f.err
}

func (f *fakeNotifier) sent(typ string) []dto.NotificationMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []dto.NotificationMessage
	for _, m := range f.messages {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

type failingCipher struct{ cipher.Cipher }

func (failingCipher) Encrypt(string, string) (string, error) {
	return "", errors.New("boom")
}

func newTestStore(t *testing.T) repo.Repository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	log := zerolog.Nop()
	store, err := repo.NewSQLRepository(db, repo.DialectSQLite, &log)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	if err := store.MigrateUp("../../migrations/sqlite"); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return store
}

func newTestService(t *testing.T) (*Service, repo.Repository, *fakeNotifier) {
	t.Helper()
	store := newTestStore(t)
	notifier := &fakeNotifier{}
	log := zerolog.Nop()
	svc := NewService(store, cipher.New(), notifier, &log, Config{})
	t.Cleanup(svc.Wait)
	return svc, store, notifier
}

func newTestResolver(store Store) *Resolver {
	log := zerolog.Nop()
	return NewResolver(store, cipher.New(), &log, Config{})
}

func createEvent(t *testing.T, svc *Service, owner string, published bool) *model.Event {
	t.Helper()
	return createEventFrom(t, svc, owner, published, EventDraft{})
}

// createEventFrom fills in name, start date and venue when draft leaves them empty.
func createEventFrom(t *testing.T, svc *Service, owner string, published bool, draft EventDraft) *model.Event {
	t.Helper()
	ctx := context.Background()

	if draft.Name == "" {
		draft.Name = "Go Meetup " + uuid.NewString()[:6]
	}
	if draft.StartDate.IsZero() {
		draft.StartDate = time.Date(2030, 5, 1, 18, 0, 0, 0, time.UTC)
	}
	if draft.Venue == "" {
		draft.Venue = "Hall A"
	}
	e, err := svc.CreateEvent(ctx, owner, draft)
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	if published {
		if e, err = svc.SetPublished(ctx, owner, e.ID, true); err != nil {
			t.Fatalf("SetPublished failed: %v", err)
		}
	}
	return e
}

func TestIntakeCheckInReadScenario(t *testing.T) {
	svc, store, notifier := newTestService(t)
	ctx := context.Background()
	e := createEvent(t, svc, "owner-1", true)

	receipt, err := svc.Intake(ctx, Submission{EventID: e.ID, FullName: "Alice", Email: "a@x.com"})
	if err != nil {
		t.Fatalf("Intake failed: %v", err)
	}
	if receipt.RegistrationID == "" || len(receipt.TicketToken) != 48 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	if _, err := svc.CheckIn(ctx, e.ID, receipt.TicketToken); err != nil {
		t.Fatalf("first check-in failed: %v", err)
	}
	if _, err := svc.CheckIn(ctx, e.ID, receipt.TicketToken); !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}

	list, err := svc.Registrations(ctx, "owner-1", e.ID)
	if err != nil {
		t.Fatalf("Registrations failed: %v", err)
	}
	if len(list.Rows) != 1 || len(list.Failures) != 0 {
		t.Fatalf("expected 1 row and no failures, got %+v", list)
	}
	row := list.Rows[0]
	if row.FullName != "Alice" || row.Email != "a@x.com" || row.Phone != nil {
		t.Errorf("unexpected decrypted row: %+v", row)
	}
	if !row.CheckInStatus || row.CheckInTime == nil {
		t.Errorf("expected checked-in row, got %+v", row)
	}
	if list.Total != 1 || list.CheckedIn != 1 {
		t.Errorf("unexpected counters total=%d checked_in=%d", list.Total, list.CheckedIn)
	}
	if row.PaymentStatus != model.PaymentCompleted {
		t.Errorf("unexpected payment status %q", row.PaymentStatus)
	}

	svc.Wait()
	refs := notifier.sent(dto.MessageConfirmation)
	if len(refs) != 1 {
		t.Fatalf("expected 1 confirmation, got %d", len(refs))
	}
	if refs[0].EventID != e.ID || refs[0].RegistrationID != receipt.RegistrationID {
		t.Fatalf("unexpected confirmation reference %+v", refs[0])
	}

	msg, err := newTestResolver(store).Confirmation(ctx, refs[0].EventID, refs[0].RegistrationID)
	if err != nil {
		t.Fatalf("Confirmation failed: %v", err)
	}
	if msg.TicketToken != receipt.TicketToken || msg.Email != "a@x.com" || msg.EventName != e.Name {
		t.Errorf("unexpected confirmation: %+v", msg)
	}
	if msg.StartDate == nil || msg.Venue != "Hall A" || !strings.Contains(msg.QRCodeURL, receipt.TicketToken) {
		t.Errorf("confirmation misses event details: %+v", msg)
	}
}

func TestIntakeRejectsWithoutWrite(t *testing.T) {
	svc, store, notifier := newTestService(t)
	ctx := context.Background()
	draft := createEvent(t, svc, "owner-1", false)

	tests := []struct {
		name    string
		eventID string
		wantErr error
	}{
		{"unpublished", draft.ID, ErrNotPublished},
		{"unknown event", uuid.NewString(), ErrEventNotFound},
		{"malformed event id", "not-a-uuid", ErrEventNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Intake(ctx, Submission{EventID: tt.eventID, FullName: "Bob", Email: "b@x.com"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	regs, err := store.ListRegistrations(ctx, draft.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(regs) != 0 {
		t.Errorf("expected no rows, got %d", len(regs))
	}

	list, err := svc.Registrations(ctx, "owner-1", draft.ID)
	if err != nil {
		t.Fatal(err)
	}
	if list.Total != 0 {
		t.Errorf("reader must not show rejected registrations, got %d", list.Total)
	}

	svc.Wait()
	if len(notifier.sent(dto.MessageConfirmation)) != 0 {
		t.Errorf("rejected intake must not notify")
	}
}

func TestIntakeValidation(t *testing.T) {
	svc, store, _ := newTestService(t)
	e := createEvent(t, svc, "owner-1", true)

	tests := []struct {
		name  string
		sub   Submission
		field string
	}{
		{"missing name", Submission{EventID: e.ID, Email: "a@x.com"}, "fullName"},
		{"blank name", Submission{EventID: e.ID, FullName: "   ", Email: "a@x.com"}, "fullName"},
		{"missing email", Submission{EventID: e.ID, FullName: "Ann"}, "email"},
		{"bad email", Submission{EventID: e.ID, FullName: "Ann", Email: "not-an-email"}, "email"},
		{"missing event", Submission{FullName: "Ann", Email: "a@x.com"}, "eventId"},
		{"form data array", Submission{EventID: e.ID, FullName: "Ann", Email: "a@x.com", FormData: []byte(`[1,2]`)}, "formData"},
		{"bad image url", Submission{EventID: e.ID, FullName: "Ann", Email: "a@x.com", ImageURL: "nope"}, "imageUrl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Intake(context.Background(), tt.sub)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, ve.Field)
			}
		})
	}

	regs, err := store.ListRegistrations(context.Background(), e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(regs) != 0 {
		t.Errorf("validation failures must not write, got %d rows", len(regs))
	}
}

func TestIntakeEncryptsAtRest(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	e := createEventFrom(t, svc, "owner-1", true, EventDraft{
		CustomFields: []model.CustomField{{ID: "company", Label: "Company", Type: model.FieldText}},
		TicketTiers:  []model.TicketTier{{Name: "VIP", Price: 99}},
	})

	_, err := svc.Intake(ctx, Submission{
		EventID:    e.ID,
		FullName:   "Alice",
		Email:      "a@x.com",
		Phone:      "+1 555 0100",
		FormData:   []byte(` {"company":"Acme"} `),
		TicketType: "vip",
	})
	if err != nil {
		t.Fatalf("Intake failed: %v", err)
	}

	regs, err := store.ListRegistrations(ctx, e.ID)
	if err != nil || len(regs) != 1 {
		t.Fatalf("expected 1 stored row, got %d (%v)", len(regs), err)
	}
	reg := regs[0]
	for field, v := range map[string]string{"full_name": reg.FullName, "email": reg.Email, "phone": *reg.Phone} {
		if !strings.HasPrefix(v, "v1.") {
			t.Errorf("%s stored without ciphertext prefix: %q", field, v)
		}
	}
	if strings.Contains(reg.Email, "a@x.com") || strings.Contains(reg.FullName, "Alice") {
		t.Error("plaintext PII found in stored row")
	}
	if string(reg.FormData) != `{"company":"Acme"}` {
		t.Errorf("unexpected form data %s", reg.FormData)
	}
	if reg.TicketType == nil || *reg.TicketType != "VIP" {
		t.Errorf("unexpected ticket type %v", reg.TicketType)
	}

	list, err := svc.Registrations(ctx, "owner-1", e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if list.Rows[0].Phone == nil || *list.Rows[0].Phone != "+1 555 0100" {
		t.Errorf("phone did not round trip: %v", list.Rows[0].Phone)
	}
}

func TestIntakeNotifierFailureIsNotFatal(t *testing.T) {
	svc, _, notifier := newTestService(t)
	notifier.err = errors.New("smtp down")
	e := createEvent(t, svc, "owner-1", true)

	ctx, cancel := context.WithCancel(context.Background())
	receipt, err := svc.Intake(ctx, Submission{EventID: e.ID, FullName: "Alice", Email: "a@x.com"})
	cancel()
	if err != nil {
		t.Fatalf("notifier failure must not fail intake: %v", err)
	}

	svc.Wait()
	refs := notifier.sent(dto.MessageConfirmation)
	if len(refs) != 1 || refs[0].RegistrationID != receipt.RegistrationID {
		t.Errorf("expected one dispatched confirmation, got %+v", refs)
	}
}

func TestIntakeCryptoFailure(t *testing.T) {
	svc, store, _ := newTestService(t)
	e := createEvent(t, svc, "owner-1", true)
	svc.cipher = failingCipher{}

	_, err := svc.Intake(context.Background(), Submission{EventID: e.ID, FullName: "Alice", Email: "a@x.com"})
	if !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto, got %v", err)
	}
	regs, _ := store.ListRegistrations(context.Background(), e.ID)
	if len(regs) != 0 {
		t.Errorf("crypto failure must not write, got %d rows", len(regs))
	}
}

func TestIntakeRetriesTokenCollision(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	e := createEvent(t, svc, "owner-1", true)

	tokens := []string{"taken", "taken", "fresh"}
	svc.newToken = func() (string, error) {
		tok := tokens[0]
		tokens = tokens[1:]
		return tok, nil
	}

	first, err := svc.Intake(ctx, Submission{EventID: e.ID, FullName: "A", Email: "a@x.com"})
	if err != nil || first.TicketToken != "taken" {
		t.Fatalf("unexpected first intake: %+v %v", first, err)
	}
	second, err := svc.Intake(ctx, Submission{EventID: e.ID, FullName: "B", Email: "b@x.com"})
	if err != nil {
		t.Fatalf("second intake failed: %v", err)
	}
	if second.TicketToken != "fresh" {
		t.Errorf("expected retried token, got %q", second.TicketToken)
	}
}

func TestIntakeTokenCollisionExhausted(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	e := createEvent(t, svc, "owner-1", true)
	svc.newToken = func() (string, error) { return "same", nil }

	if _, err := svc.Intake(ctx, Submission{EventID: e.ID, FullName: "A", Email: "a@x.com"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Intake(ctx, Submission{EventID: e.ID, FullName: "B", Email: "b@x.com"}); !errors.Is(err, ErrStorage) {
		t.Errorf("expected ErrStorage, got %v", err)
	}
}

func TestTicketTokensUnique(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	e := createEvent(t, svc, "owner-1", true)

	const n = 1000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		r, err := svc.Intake(ctx, Submission{EventID: e.ID, FullName: "Guest", Email: "g@x.com"})
		if err != nil {
			t.Fatalf("intake %d failed: %v", i, err)
		}
		if _, dup := seen[r.TicketToken]; dup {
			t.Fatalf("duplicate token after %d registrations", i)
		}
		seen[r.TicketToken] = struct{}{}
	}
}

func TestCheckInExactlyOnce(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	e := createEvent(t, svc, "owner-1", true)
	r, err := svc.Intake(ctx, Submission{EventID: e.ID, FullName: "Alice", Email: "a@x.com"})
	if err != nil {
		t.Fatal(err)
	}

	const n = 20
	results := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CheckIn(ctx, e.ID, r.TicketToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok, repeats := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyCheckedIn):
			repeats++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || repeats != n-1 {
		t.Fatalf("expected 1 success and %d repeats, got %d and %d", n-1, ok, repeats)
	}

	before, err := svc.Registrations(ctx, "owner-1", e.ID)
	if err != nil {
		t.Fatal(err)
	}
	first := *before.Rows[0].CheckInTime

	svc.now = func() time.Time { return first.Add(time.Hour) }
	if _, err := svc.CheckIn(ctx, e.ID, r.TicketToken); !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}
	after, err := svc.Registrations(ctx, "owner-1", e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !after.Rows[0].CheckInTime.Equal(first) {
		t.Errorf("check-in time changed from %v to %v", first, after.Rows[0].CheckInTime)
	}
}

func TestCheckInUnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	e := createEvent(t, svc, "owner-1", true)
	other := createEvent(t, svc, "owner-1", true)
	r, err := svc.Intake(ctx, Submission{EventID: e.ID, FullName: "Alice", Email: "a@x.com"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		eventID string
		token   string
		wantErr error
	}{
		{"unknown token", e.ID, "deadbeef", ErrTicketNotFound},
		{"token of another event", other.ID, r.TicketToken, ErrTicketNotFound},
		{"malformed event id", "x", r.TicketToken, ErrTicketNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CheckIn(ctx, tt.eventID, tt.token); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	var ve *ValidationError
	if _, err := svc.CheckIn(ctx, e.ID, "  "); !errors.As(err, &ve) {
		t.Errorf("expected *ValidationError for empty token, got %v", err)
	}

	list, err := svc.Registrations(ctx, "owner-1", e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if list.CheckedIn != 0 {
		t.Error("failed check-ins must not mutate the registration")
	}
}

func TestRegistrationsOwnerScoping(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	mine := createEvent(t, svc, "owner-1", true)
	theirs := createEvent(t, svc, "owner-2", true)

	if _, err := svc.Intake(ctx, Submission{EventID: mine.ID, FullName: "Alice", Email: "a@x.com"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Intake(ctx, Submission{EventID: theirs.ID, FullName: "Mallory", Email: "m@x.com"}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Registrations(ctx, "owner-2", mine.ID); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("foreign owner read: expected ErrEventNotFound, got %v", err)
	}
	if _, err := svc.Registrations(ctx, "", mine.ID); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("anonymous read: expected ErrEventNotFound, got %v", err)
	}
	if err := svc.Authorize(ctx, "owner-2", mine.ID); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("Authorize: expected ErrEventNotFound, got %v", err)
	}

	list, err := svc.Registrations(ctx, "owner-1", mine.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range list.Rows {
		if row.FullName == "Mallory" {
			t.Error("reader leaked a registration of another event")
		}
	}
}

func TestRegistrationsReportsCorruptRows(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	e := createEvent(t, svc, "owner-1", true)

	if _, err := svc.Intake(ctx, Submission{EventID: e.ID, FullName: "Alice", Email: "a@x.com"}); err != nil {
		t.Fatal(err)
	}
	corrupt := &model.Registration{
		ID:            uuid.NewString(),
		EventID:       e.ID,
		FullName:      "v1.AAAA",
		Email:         "garbage",
		PaymentStatus: model.PaymentCompleted,
		TicketToken:   "corrupt-token",
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.CreateRegistration(ctx, corrupt); err != nil {
		t.Fatal(err)
	}

	list, err := svc.Registrations(ctx, "owner-1", e.ID)
	if err != nil {
		t.Fatalf("a corrupt row must not abort the read: %v", err)
	}
	if list.Total != 2 || len(list.Rows) != 1 || len(list.Failures) != 1 {
		t.Fatalf("unexpected list: total=%d rows=%d failures=%d", list.Total, len(list.Rows), len(list.Failures))
	}
	if list.Rows[0].FullName != "Alice" {
		t.Errorf("unexpected surviving row %+v", list.Rows[0])
	}
	if list.Failures[0].RegistrationID != corrupt.ID || list.Failures[0].Reason == "" {
		t.Errorf("unexpected failure %+v", list.Failures[0])
	}
}

func TestEventsLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	e, err := svc.CreateEvent(ctx, "owner-1", EventDraft{
		Name:      "  Tech Conference 2030!  ",
		StartDate: time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	if e.Slug != "tech-conference-2030" || e.IsPublished || len(e.EncryptionKey) != 64 {
		t.Errorf("unexpected event: %+v", e)
	}

	if _, err := svc.PublicEvent(ctx, e.Slug); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("draft must not be public, got %v", err)
	}
	if _, err := svc.SetPublished(ctx, "owner-2", e.ID, true); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("foreign owner publish: expected ErrEventNotFound, got %v", err)
	}
	if _, err := svc.SetPublished(ctx, "owner-1", e.ID, true); err != nil {
		t.Fatal(err)
	}
	pub, err := svc.PublicEvent(ctx, "Tech-Conference-2030")
	if err != nil || pub.ID != e.ID {
		t.Fatalf("PublicEvent: %+v %v", pub, err)
	}

	_, err = svc.CreateEvent(ctx, "owner-1", EventDraft{Name: "Other", Slug: e.Slug, StartDate: e.StartDate})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "slug" {
		t.Errorf("expected slug ValidationError, got %v", err)
	}

	end := e.StartDate.Add(-time.Hour)
	_, err = svc.CreateEvent(ctx, "owner-1", EventDraft{Name: "Backwards", StartDate: e.StartDate, EndDate: &end})
	if !errors.As(err, &ve) || ve.Field != "end_date" {
		t.Errorf("expected end_date ValidationError, got %v", err)
	}

	events, err := svc.OwnerEvents(ctx, "owner-1")
	if err != nil || len(events) != 1 {
		t.Errorf("expected 1 owner event, got %d (%v)", len(events), err)
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Tech Conference 2024": "tech-conference-2024",
		"  --Hello,  World--  ": "hello-world",
		"Café Night":           "caf-night",
		"日本":                   "",
		"a_b.c":                "a-b-c",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}

	long := Slugify(strings.Repeat("ab ", 60))
	if len(long) > maxSlugLen || strings.HasSuffix(long, "-") {
		t.Errorf("unexpected long slug %q", long)
	}
}

func TestAnnounce(t *testing.T) {
	svc, store, notifier := newTestService(t)
	ctx := context.Background()
	e := createEvent(t, svc, "owner-1", true)

	for _, email := range []string{"a@x.com", "A@x.com", "b@x.com"} {
		if _, err := svc.Intake(ctx, Submission{EventID: e.ID, FullName: "Guest", Email: email}); err != nil {
			t.Fatal(err)
		}
	}

	a, err := svc.Announce(ctx, "owner-1", e.ID, AnnouncementDraft{Subject: "Doors open at 9", Message: "See you"})
	if err != nil {
		t.Fatalf("Announce failed: %v", err)
	}
	if a.Status != model.AnnouncementQueued || a.SentAt != nil || a.SentToCount != 0 {
		t.Errorf("announcement must be queued until delivery reports, got %+v", a)
	}

	if _, err := svc.Announce(ctx, "owner-2", e.ID, AnnouncementDraft{Subject: "x", Message: "y"}); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("foreign owner announce: expected ErrEventNotFound, got %v", err)
	}
	var ve *ValidationError
	if _, err := svc.Announce(ctx, "owner-1", e.ID, AnnouncementDraft{Message: "y"}); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	svc.Wait()
	refs := notifier.sent(dto.MessageAnnouncement)
	if len(refs) != 1 || refs[0].AnnouncementID != a.ID || refs[0].EventID != e.ID {
		t.Fatalf("unexpected dispatched announcements: %+v", refs)
	}

	resolver := newTestResolver(store)
	msg, err := resolver.Announcement(ctx, e.ID, a.ID)
	if err != nil {
		t.Fatalf("Announcement failed: %v", err)
	}
	if len(msg.Recipients) != 2 || msg.Subject != "Doors open at 9" {
		t.Errorf("expected 2 distinct recipients, got %+v", msg)
	}

	if err := resolver.AnnouncementDelivered(ctx, e.ID, a.ID, 2, 2); err != nil {
		t.Fatalf("AnnouncementDelivered failed: %v", err)
	}
	list, err := svc.Announcements(ctx, "owner-1", e.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 announcement, got %d (%v)", len(list), err)
	}
	if list[0].Status != model.AnnouncementSent || list[0].SentToCount != 2 || list[0].SentAt == nil {
		t.Errorf("unexpected delivered announcement %+v", list[0])
	}

	if _, err := resolver.Announcement(ctx, e.ID, a.ID); !errors.Is(err, ErrAnnouncementDelivered) {
		t.Errorf("a delivered announcement must not resolve again, got %v", err)
	}
	if err := resolver.AnnouncementDelivered(ctx, e.ID, a.ID, 0, 2); !errors.Is(err, ErrAnnouncementDelivered) {
		t.Errorf("outcome must be recorded once, got %v", err)
	}
}
