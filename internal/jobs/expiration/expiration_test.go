package expiration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
)

type fakeStore struct {
	purchases []*model.Purchase
	notified  int
}

func (s *fakeStore) ListExpiring(_ context.Context, now time.Time, within time.Duration, notice model.ExpiryNotice, limit int) ([]model.Purchase, error) {
	out := make([]model.Purchase, 0)
	for _, p := range s.purchases {
		if p.Status != enums.PurchaseStatusCompleted || !p.IsSubscription() || p.AccessExpiresAt == nil {
			continue
		}
		if !p.AccessExpiresAt.After(now) || p.AccessExpiresAt.After(now.Add(within)) || p.Notified(notice) {
			continue
		}
		out = append(out, *p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) MarkNotified(_ context.Context, id int64, notice model.ExpiryNotice) (bool, error) {
	p := s.find(id)
	if p.Notified(notice) {
		return false, nil
	}
	switch notice {
	case model.ExpiryNoticeSevenDays:
		p.ExpirationNotified7Days = true
	case model.ExpiryNoticeOneDay:
		p.ExpirationNotified1Day = true
	}
	s.notified++
	return true, nil
}

func (s *fakeStore) ListLapsed(_ context.Context, now time.Time, limit int) ([]model.Purchase, error) {
	out := make([]model.Purchase, 0)
	for _, p := range s.purchases {
		if p.Status == enums.PurchaseStatusCompleted && p.IsSubscription() && p.AccessExpiresAt != nil && !p.AccessExpiresAt.After(now) {
			out = append(out, *p)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) MarkExpired(_ context.Context, id int64) (bool, error) {
	p := s.find(id)
	if p.Status != enums.PurchaseStatusCompleted {
		return false, nil
	}
	p.Status = enums.PurchaseStatusExpired
	p.SentMessages = []model.SentMessage{}
	return true, nil
}

func (s *fakeStore) find(id int64) *model.Purchase {
	for _, p := range s.purchases {
		if p.ID == id {
			return p
		}
	}
	return nil
}

type deleted struct {
	chatID    int64
	messageID int
}

type fakeMessenger struct {
	texts     map[int64][]string
	deleted   []deleted
	deleteErr map[int]error
	sendErr   error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{texts: map[int64][]string{}, deleteErr: map[int]error{}}
}

func (m *fakeMessenger) SendText(_ context.Context, chatID int64, text string) (int, error) {
	if m.sendErr != nil {
		return 0, m.sendErr
	}
	m.texts[chatID] = append(m.texts[chatID], text)
	return len(m.texts[chatID]), nil
}

func (m *fakeMessenger) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	if err := m.deleteErr[messageID]; err != nil {
		return err
	}
	m.deleted = append(m.deleted, deleted{chatID: chatID, messageID: messageID})
	return nil
}

func subscription(id int64, expiresAt time.Time) *model.Purchase {
	return &model.Purchase{
		ID:              id,
		BuyerID:         1000 + id,
		Status:          enums.PurchaseStatusCompleted,
		Snapshot:        model.ProductSnapshot{Name: "VIP", Type: enums.ProductTypeSubscription, AccessDays: 30},
		AccessExpiresAt: &expiresAt,
	}
}

func newTestJobs(store *fakeStore, messenger *fakeMessenger, now time.Time) (*Jobs, *[]time.Duration) {
	jobs := New(store, messenger, Config{NotifyDelay: 100 * time.Millisecond, DeleteDelay: 50 * time.Millisecond}, nil)
	jobs.now = func() time.Time { return now }
	var slept []time.Duration
	jobs.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return jobs, &slept
}

func TestSweepExpiresLapsedSubscriptions(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	lapsed := subscription(1, now.Add(-time.Hour))
	lapsed.SentMessages = []model.SentMessage{
		{ChatID: 1001, MessageIDs: []int{10, 11, 12}},
		{ChatID: 1001, MessageIDs: []int{13}},
	}
	active := subscription(2, now.Add(48*time.Hour))
	active.SentMessages = []model.SentMessage{{ChatID: 1002, MessageIDs: []int{20}}}

	store := &fakeStore{purchases: []*model.Purchase{lapsed, active}}
	messenger := newFakeMessenger()
	messenger.deleteErr[11] = errors.New("Bad Request: message to delete not found")
	jobs, slept := newTestJobs(store, messenger, now)

	report, err := jobs.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Selected != 1 || report.Succeeded != 1 || report.Deleted != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if lapsed.Status != enums.PurchaseStatusExpired || len(lapsed.SentMessages) != 0 {
		t.Fatalf("expected expired purchase with no sent messages, got status=%s sent=%d", lapsed.Status, len(lapsed.SentMessages))
	}
	if active.Status != enums.PurchaseStatusCompleted || len(active.SentMessages) != 1 {
		t.Fatalf("expected active subscription to be untouched")
	}
	for _, d := range messenger.deleted {
		if d.chatID != 1001 {
			t.Fatalf("unexpected delete in chat %d", d.chatID)
		}
	}
	if len(messenger.texts[1001]) != 1 {
		t.Fatalf("expected one access ended notice, got %d", len(messenger.texts[1001]))
	}

	deletePauses := 0
	for _, d := range *slept {
		if d == 50*time.Millisecond {
			deletePauses++
		}
	}
	if deletePauses != 3 {
		t.Fatalf("expected 3 pauses between 4 deletions, got %d", deletePauses)
	}

	again, err := jobs.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again.Selected != 0 || len(messenger.deleted) != 3 {
		t.Fatalf("expected second sweep to be a no-op, got %+v", again)
	}
}

func TestWarn7DaysNeverRenotifies(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	flagged := subscription(1, now.Add(5*24*time.Hour))
	flagged.ExpirationNotified7Days = true
	due := subscription(2, now.Add(6*24*time.Hour))
	far := subscription(3, now.Add(20*24*time.Hour))

	store := &fakeStore{purchases: []*model.Purchase{flagged, due, far}}
	messenger := newFakeMessenger()
	jobs, _ := newTestJobs(store, messenger, now)

	for run := 0; run < 2; run++ {
		if _, err := jobs.Warn7Days(context.Background()); err != nil {
			t.Fatalf("warn run %d: %v", run, err)
		}
	}

	if len(messenger.texts[1001]) != 0 {
		t.Fatalf("flagged purchase was re-notified")
	}
	if len(messenger.texts[1002]) != 1 || !due.ExpirationNotified7Days {
		t.Fatalf("expected exactly one warning for the due purchase, got %d", len(messenger.texts[1002]))
	}
	if len(messenger.texts[1003]) != 0 {
		t.Fatalf("purchase outside the window was notified")
	}
	if due.ExpirationNotified1Day {
		t.Fatalf("7-day run must not set the 1-day flag")
	}
}

func TestWarn1DayUsesItsOwnFlag(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	p := subscription(1, now.Add(20*time.Hour))
	p.ExpirationNotified7Days = true

	store := &fakeStore{purchases: []*model.Purchase{p}}
	messenger := newFakeMessenger()
	jobs, _ := newTestJobs(store, messenger, now)

	report, err := jobs.Warn1Day(context.Background())
	if err != nil {
		t.Fatalf("warn: %v", err)
	}
	if report.Succeeded != 1 || !p.ExpirationNotified1Day {
		t.Fatalf("expected final warning to be sent, got %+v", report)
	}
}

func TestWarnKeepsFlagWhenSendFails(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	p := subscription(1, now.Add(3*24*time.Hour))

	store := &fakeStore{purchases: []*model.Purchase{p}}
	messenger := newFakeMessenger()
	messenger.sendErr = errors.New("Forbidden: bot was blocked by the user")
	jobs, _ := newTestJobs(store, messenger, now)

	report, err := jobs.Warn7Days(context.Background())
	if err != nil {
		t.Fatalf("warn: %v", err)
	}
	if report.Failed != 1 || p.ExpirationNotified7Days {
		t.Fatalf("expected failed send to leave the flag unset, got %+v", report)
	}
}

func TestPacerWaitsBetweenCalls(t *testing.T) {
	var calls []time.Duration
	p := pacer{delay: 100 * time.Millisecond, sleep: func(_ context.Context, d time.Duration) error {
		calls = append(calls, d)
		return nil
	}}
	for i := 0; i < 3; i++ {
		if err := p.wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 pauses for 3 calls, got %d", len(calls))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
