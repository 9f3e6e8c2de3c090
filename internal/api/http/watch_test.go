package http

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickup-backend/internal/domain"
)

func (s *testServer) dialWatch(t *testing.T, activityID, participantID int32) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	token, err := s.tokens.GenerateAccessToken(participantID, nil)
	require.NoError(t, err)
	url := fmt.Sprintf("ws%s/api/v1/activities/%d/watch?access_token=%s",
		strings.TrimPrefix(s.URL, "http"), activityID, token)
	return websocket.DefaultDialer.Dial(url, nil)
}

func readFrame(t *testing.T, conn *websocket.Conn) watchFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var fr watchFrame
	require.NoError(t, json.Unmarshal(data, &fr))
	return fr
}

func TestWatch_SnapshotThenUpdates(t *testing.T) {
	s := newTestServer(t, nil)
	a := s.createActivity(t, 1)

	conn, resp, err := s.dialWatch(t, a.ID, 7)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	first := readFrame(t, conn)
	require.Equal(t, frameSnapshot, first.Type)
	require.NotNil(t, first.Snapshot)
	assert.Equal(t, a.ID, first.Snapshot.Activity.ID)
	assert.Empty(t, first.Snapshot.Confirmed)

	status, _ := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/activities/%d/join", a.ID), 1, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/activities/%d/join", a.ID), 2, nil)
	require.Equal(t, http.StatusOK, status)

	joined := readFrame(t, conn)
	require.Equal(t, frameUpdate, joined.Type)
	require.NotNil(t, joined.Event)
	assert.Equal(t, domain.EventJoined, joined.Event.Kind)
	assert.Equal(t, int32(1), joined.Event.ParticipantID)
	assert.Equal(t, int32(1), joined.Event.ConfirmedCount)

	waitlisted := readFrame(t, conn)
	assert.Equal(t, domain.EventWaitlisted, waitlisted.Event.Kind)
	assert.Greater(t, waitlisted.Event.Version, joined.Event.Version)
}

func TestWatch_RejectedBeforeUpgrade(t *testing.T) {
	s := newTestServer(t, nil)

	_, resp, err := s.dialWatch(t, 404, 7)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	status, body := s.do(t, http.MethodGet, "/api/v1/activities/404/watch", 0, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "ACTIVITY_NOT_FOUND", decodeError(t, body).Reason)
}

func TestWatch_ClosedOnShutdown(t *testing.T) {
	s := newTestServer(t, nil)
	a := s.createActivity(t, 2)

	conn, _, err := s.dialWatch(t, a.ID, 7)
	require.NoError(t, err)
	defer conn.Close()
	readFrame(t, conn)

	s.hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
}
