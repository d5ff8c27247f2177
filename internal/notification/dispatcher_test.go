package notification

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// mockSender is a mock implementation of the Sender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func expectUserLookup(mock sqlmock.Sqlmock, userID string, enabled bool) {
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE id = \$1 ORDER BY "users"\."id" LIMIT \$[0-9]+`).
		WithArgs(userID, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "enable_notification"}).
			AddRow(userID, "Test User", userID+"@example.com", enabled))
}

func expectSubscriptionLookup(mock sqlmock.Sqlmock, userID string, endpoints ...string) {
	rows := sqlmock.NewRows([]string{"endpoint", "user_id", "p256dh", "auth", "created_at"})
	for _, e := range endpoints {
		rows.AddRow(e, userID, "test_p256dh", "test_auth", time.Now())
	}
	mock.ExpectQuery(`SELECT \* FROM "push_subscriptions" WHERE user_id = \$1`).
		WithArgs(userID).
		WillReturnRows(rows)
}

func TestDispatcherPushEnqueues(t *testing.T) {
	db, _ := newTestDB(t)
	d := NewDispatcher(1, db, &webpush.Options{})

	d.Push("u1", "Order created", "hello")

	select {
	case j := <-d.jobs:
		assert.Equal(t, "u1", j.UserID)
		assert.Equal(t, "Order created", j.Title)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be enqueued")
	}
}

func TestDispatcherPushDropsWhenSaturated(t *testing.T) {
	db, _ := newTestDB(t)
	d := NewDispatcher(1, db, &webpush.Options{})

	// Workers are not started, so the buffered queue fills up. Pushing past
	// capacity must return immediately instead of blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(d.jobs)+5; i++ {
			d.Push("u1", "title", "body")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("push blocked on a saturated queue")
	}
	assert.Len(t, d.jobs, cap(d.jobs))
}

func TestDispatcherWorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	d := NewDispatcher(1, gormDB, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	t.Run("sends notification to each registered endpoint", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(2)

		var mu sync.Mutex
		var sent []string
		d.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				mu.Lock()
				sent = append(sent, sub.Endpoint)
				mu.Unlock()
				assert.JSONEq(t, `{"title":"Wash finished","body":"Your laundry is done and ready for pickup."}`, string(payload))
				wg.Done()
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		expectUserLookup(mock, "u1", true)
		expectSubscriptionLookup(mock, "u1", "https://example.com/push-a", "https://example.com/push-b")

		d.Push("u1", "Wash finished", "Your laundry is done and ready for pickup.")
		wg.Wait()

		mu.Lock()
		assert.ElementsMatch(t, []string{"https://example.com/push-a", "https://example.com/push-b"}, sent)
		mu.Unlock()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips user with notifications disabled", func(t *testing.T) {
		d.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				t.Error("send must not be called for a disabled user")
				return nil, nil
			},
		}

		expectUserLookup(mock, "u2", false)

		d.Push("u2", "Wash finished", "body")

		// A short sleep to allow the worker to process the job
		time.Sleep(100 * time.Millisecond)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips user without registered devices", func(t *testing.T) {
		d.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				t.Error("send must not be called without subscriptions")
				return nil, nil
			},
		}

		expectUserLookup(mock, "u3", true)
		expectSubscriptionLookup(mock, "u3")

		d.Push("u3", "Wash finished", "body")

		time.Sleep(100 * time.Millisecond)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		d.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		expectUserLookup(mock, "u4", true)
		expectSubscriptionLookup(mock, "u4", "https://example.com/expired")

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"\."endpoint" = \$1`).
			WithArgs("https://example.com/expired").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		d.Push("u4", "Wash finished", "body")

		time.Sleep(100 * time.Millisecond)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
