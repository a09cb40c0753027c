package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebk/treino-bot/internal/domain"
	"github.com/glebk/treino-bot/internal/notify"
	"github.com/glebk/treino-bot/internal/repository/sqldb"
	"github.com/glebk/treino-bot/internal/service"
	"github.com/glebk/treino-bot/internal/snapshot"
	"github.com/glebk/treino-bot/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "s3cret"

func newTestServer(t *testing.T) (*httptest.Server, *service.WorkoutService) {
	t.Helper()
	db, err := sqldb.New(sqldb.DriverSQLite, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := sqldb.NewUserRepository(db)
	notifications := sqldb.NewNotificationRepository(db)
	svc := service.NewWorkoutService(
		users,
		sqldb.NewWorkoutDayRepository(db),
		sqldb.NewSessionRepository(db),
		notifications,
		snapshot.NewStore(snapshot.NewMemoryKV()),
		notify.NewDispatcher(notifications, users, nil),
		service.Options{Timer: tracker.Options{Dispatch: func(f func()) { f() }}},
	)

	ctx := context.Background()
	_, err = svc.RegisterUser(ctx, 1, "coach", "Carla", "")
	require.NoError(t, err)
	_, err = svc.RegisterTrainer(ctx, 1)
	require.NoError(t, err)
	_, err = svc.RegisterUser(ctx, 7, "ana", "Ana", "")
	require.NoError(t, err)
	require.NoError(t, svc.LinkStudent(ctx, 7, 1))

	srv := httptest.NewServer(NewRouter(svc, testToken))
	t.Cleanup(srv.Close)
	return srv, svc
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz_NoAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBearerAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/students/7/days")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/students/7/days", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestDays(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, srv, http.MethodPost, "/students/7/days", `{"trainer_id":1,"day_index":1,"name":"Costas"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created domain.WorkoutDay
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "Costas", created.Name)
	assert.NotZero(t, created.ID)

	resp = do(t, srv, http.MethodPost, "/students/7/days", `{"trainer_id":2,"day_index":2,"name":"Braços"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/students/7/days", `{"trainer_id":1,"day_index":0,"name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/students/99/days", `{"trainer_id":1,"day_index":1,"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/students/7/days", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var days []domain.WorkoutDay
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&days))
	assert.Len(t, days, 1)
}

func TestSessionsStatusAndNotifications(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()

	_, err := svc.AddWorkoutDay(ctx, 7, 1, 1, "Costas")
	require.NoError(t, err)
	_, err = svc.StartWorkout(ctx, 7, 1)
	require.NoError(t, err)

	resp := do(t, srv, http.MethodGet, "/students/7/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status struct {
		Started []int  `json:"started_days"`
		Active  bool   `json:"active"`
		Elapsed string `json:"elapsed"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, []int{1}, status.Started)
	assert.True(t, status.Active)
	assert.Equal(t, "00:00:00", status.Elapsed)

	_, err = svc.FinishWorkout(ctx, 7)
	require.NoError(t, err)

	resp = do(t, srv, http.MethodGet, "/students/7/sessions?status=concluido", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sessions []domain.WorkoutSession
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, domain.SessionStatusCompleted, sessions[0].Status)

	resp = do(t, srv, http.MethodGet, "/students/7/sessions?status=running", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/trainers/1/notifications?unread=true", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var notifications []domain.Notification
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&notifications))
	require.Len(t, notifications, 1)

	resp = do(t, srv, http.MethodPost, "/notifications/"+notifications[0].ID+"/read", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/notifications/missing/read", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/trainers/1/notifications?unread=true", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	notifications = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&notifications))
	assert.Empty(t, notifications)
}

func TestParseStatuses(t *testing.T) {
	statuses, err := parseStatuses("em_andamento, pausado")
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionStatus{domain.SessionStatusRunning, domain.SessionStatusPaused}, statuses)

	statuses, err = parseStatuses("")
	require.NoError(t, err)
	assert.Nil(t, statuses)

	_, err = parseStatuses("done")
	assert.Error(t, err)
}
