package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebk/treino-bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memNotifications struct {
	created []*domain.Notification
	err     error
}

func (m *memNotifications) Create(_ context.Context, n *domain.Notification) error {
	if m.err != nil {
		return m.err
	}
	n.ID = "n1"
	m.created = append(m.created, n)
	return nil
}

func (m *memNotifications) ListByRecipient(context.Context, int64, bool) ([]*domain.Notification, error) {
	return m.created, nil
}

func (m *memNotifications) MarkRead(context.Context, string) error { return nil }

type memUsers map[int64]*domain.User

func (m memUsers) Create(context.Context, *domain.User) error { return nil }
func (m memUsers) Update(context.Context, *domain.User) error { return nil }
func (m memUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	return m[id], nil
}
func (m memUsers) ListStudents(context.Context, int64) ([]*domain.User, error) { return nil, nil }

type recordingPusher struct {
	chats []int64
	texts []string
	err   error
}

func (p *recordingPusher) Push(_ context.Context, chatID int64, text string) error {
	p.chats = append(p.chats, chatID)
	p.texts = append(p.texts, text)
	return p.err
}

type recordingSender struct {
	reqs []SendRequest
}

func (s *recordingSender) Send(_ context.Context, req SendRequest) (SendResult, error) {
	s.reqs = append(s.reqs, req)
	return SendResult{MessageID: "m1"}, nil
}

func completed() *domain.Notification {
	return &domain.Notification{
		RecipientID: 1,
		Type:        domain.NotificationWorkoutCompleted,
		Title:       "Treino concluído",
		Body:        "**Ana** concluiu o treino **Pernas** em 00:45:00.",
	}
}

func TestDispatcher_StoresPushesAndEmails(t *testing.T) {
	store := &memNotifications{}
	users := memUsers{1: {ID: 1, Role: domain.RoleTrainer, Email: "coach@example.com"}}
	email := &recordingSender{}
	pusher := &recordingPusher{}

	d := NewDispatcher(store, users, email)
	d.SetPusher(pusher)

	require.NoError(t, d.Notify(context.Background(), completed()))

	require.Len(t, store.created, 1)
	assert.Equal(t, []int64{1}, pusher.chats)
	assert.Contains(t, pusher.texts[0], "*Ana*")
	assert.NotContains(t, pusher.texts[0], "**")

	require.Len(t, email.reqs, 1)
	assert.Equal(t, []string{"coach@example.com"}, email.reqs[0].To)
	assert.Equal(t, "Treino concluído", email.reqs[0].Subject)
	assert.Contains(t, email.reqs[0].HTML, "<strong>Ana</strong>")
}

func TestDispatcher_StoreFailureStopsDelivery(t *testing.T) {
	store := &memNotifications{err: errors.New("down")}
	pusher := &recordingPusher{}
	d := NewDispatcher(store, memUsers{}, nil)
	d.SetPusher(pusher)

	assert.Error(t, d.Notify(context.Background(), completed()))
	assert.Empty(t, pusher.chats)
}

func TestDispatcher_DeliveryErrorsAreSwallowed(t *testing.T) {
	store := &memNotifications{}
	email := &recordingSender{}
	d := NewDispatcher(store, memUsers{1: {ID: 1}}, email)
	d.SetPusher(&recordingPusher{err: errors.New("blocked by user")})

	assert.NoError(t, d.Notify(context.Background(), completed()))
	assert.Empty(t, email.reqs, "no email without an address")
}

func TestRenderHTML_EscapesRawHTML(t *testing.T) {
	html, err := RenderHTML("olá <script>alert(1)</script>")
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}

func TestEscapeMarkdown_NamesKeepMarkupLiteral(t *testing.T) {
	n := completed()
	n.Body = fmt.Sprintf("**%s** concluiu o treino **%s** em 00:10:00.", EscapeMarkdown("ana_b*"), EscapeMarkdown("A [B]"))

	text := ChatText(n)
	assert.Contains(t, text, `*ana\_b\**`)
	assert.Contains(t, text, `*A \[B]*`)

	html, err := RenderHTML(n.Body)
	require.NoError(t, err)
	assert.Contains(t, html, "<strong>ana_b*</strong>")
	assert.Contains(t, html, "<strong>A [B]</strong>")
}

func TestNoopSender(t *testing.T) {
	res, err := NewNoopSender().Send(context.Background(), SendRequest{To: []string{"a@b.c"}, Subject: "x"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)
}
