package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ogonyok/internal/api"
	"ogonyok/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const (
	testAdminAddr = "127.0.0.1:18881"
	testAPIAddr   = "127.0.0.1:18880"
	testSecret    = "very-secure-test-secret"
)

func TestIntegration(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "integration_test.db")

	_ = os.Setenv("OGONYOK_DB", dbFile)
	_ = os.Setenv("ADMIN_ADDR", testAdminAddr)
	_ = os.Setenv("API_ADDR", testAPIAddr)
	_ = os.Setenv("BASE_URL", "http://"+testAPIAddr)
	_ = os.Setenv("UPLOADS_PATH", filepath.Join(t.TempDir(), "uploads"))
	_ = os.Setenv("AUTH_SECRET", testSecret)
	defer func() {
		for _, key := range []string{"OGONYOK_DB", "ADMIN_ADDR", "API_ADDR", "BASE_URL", "UPLOADS_PATH", "AUTH_SECRET"} {
			_ = os.Unsetenv(key)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := run(ctx, ""); err != nil && err != context.Canceled {
			t.Errorf("Server error: %v", err)
		}
	}()

	waitForServer(t, fmt.Sprintf("http://%s/admin/users", testAdminAddr), 20)

	// Step 1: provision users through the admin API.
	alice := addUser(t, "Alice")
	bob := addUser(t, "Bob")

	client := &http.Client{}

	// Step 2: the user directory excludes the caller.
	{
		req, err := http.NewRequest("GET", fmt.Sprintf("http://%s/api/users", testAPIAddr), nil)
		require.NoError(t, err)
		req.Header.Set("token", alice.Token)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var users []models.User
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
		require.Len(t, users, 1)
		require.Equal(t, bob.User.ID, users[0].ID)
	}

	// Step 3: connect both users over websocket. A bad token must be
	// rejected before the upgrade.
	{
		wsURL := fmt.Sprintf("ws://%s/api/chat?userId=%s&token=bogus", testAPIAddr, alice.User.ID)
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.Error(t, err)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	aliceWS := dialWS(t, alice)
	defer func() { _ = aliceWS.Close() }()

	// Alice sees herself online.
	event := waitForEvent(t, aliceWS, models.ServerEventTypeOnlineUsers)
	require.Equal(t, []string{alice.User.ID}, event.OnlineUserIDs)

	bobWS := dialWS(t, bob)
	defer func() { _ = bobWS.Close() }()

	// Both connections learn that bob came online.
	event = waitForEvent(t, aliceWS, models.ServerEventTypeOnlineUsers)
	require.Len(t, event.OnlineUserIDs, 2)
	event = waitForEvent(t, bobWS, models.ServerEventTypeOnlineUsers)
	require.Len(t, event.OnlineUserIDs, 2)

	// Step 4: direct message alice -> bob; bob gets the push, alice gets
	// the echo, both carry the sender's display name.
	require.NoError(t, aliceWS.WriteJSON(models.ClientEvent{
		Type:       models.ClientEventTypeSendDirect,
		ReceiverID: bob.User.ID,
		Text:       "hi bob",
	}))

	event = waitForEvent(t, bobWS, models.ServerEventTypeDirectMessage)
	require.Equal(t, "hi bob", event.Message.Text)
	require.Equal(t, "Alice", event.Message.SenderName)
	event = waitForEvent(t, aliceWS, models.ServerEventTypeDirectMessage)
	require.Equal(t, "hi bob", event.Message.Text)

	// Step 5: history over REST shows the same message, oldest first.
	{
		req, err := http.NewRequest("GET", fmt.Sprintf("http://%s/api/messages/direct/%s", testAPIAddr, alice.User.ID), nil)
		require.NoError(t, err)
		req.Header.Set("token", bob.Token)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var history []models.DisplayMessage
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
		require.Len(t, history, 1)
		require.Equal(t, "hi bob", history[0].Text)
	}

	// Step 6: alice creates a group; bob joins with the password.
	groupID := ""
	{
		body, _ := json.Marshal(api.CreateGroupRequest{Name: "fireside", Password: "pw"})
		req, err := http.NewRequest("POST", fmt.Sprintf("http://%s/api/groups", testAPIAddr), bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("token", alice.Token)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var g models.Group
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&g))
		require.NotEmpty(t, g.ID)
		require.Equal(t, alice.User.ID, g.AdminID)
		require.WithinDuration(t, time.Now().Add(2*time.Hour), g.ExpiresAt, time.Minute)
		groupID = g.ID
	}
	{
		body, _ := json.Marshal(api.JoinGroupRequest{GroupID: groupID, Password: "pw"})
		req, err := http.NewRequest("POST", fmt.Sprintf("http://%s/api/groups/join", testAPIAddr), bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("token", bob.Token)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	// Step 7: both enter the room and alice posts; bob receives live.
	require.NoError(t, aliceWS.WriteJSON(models.ClientEvent{Type: models.ClientEventTypeJoinRoom, GroupID: groupID}))
	require.NoError(t, bobWS.WriteJSON(models.ClientEvent{Type: models.ClientEventTypeJoinRoom, GroupID: groupID}))
	time.Sleep(100 * time.Millisecond) // let the joins land before posting

	require.NoError(t, aliceWS.WriteJSON(models.ClientEvent{
		Type:    models.ClientEventTypeSendGroup,
		GroupID: groupID,
		Text:    "welcome",
	}))
	event = waitForEvent(t, bobWS, models.ServerEventTypeGroupMessage)
	require.Equal(t, "welcome", event.Message.Text)
	require.Equal(t, groupID, event.Message.GroupID)

	// Step 8: only the admin can extend; the extension is 30 minutes.
	{
		req, err := http.NewRequest("PATCH", fmt.Sprintf("http://%s/api/groups/%s/extend", testAPIAddr, groupID), nil)
		require.NoError(t, err)
		req.Header.Set("token", bob.Token)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
	{
		req, err := http.NewRequest("PATCH", fmt.Sprintf("http://%s/api/groups/%s/extend", testAPIAddr, groupID), nil)
		require.NoError(t, err)
		req.Header.Set("token", alice.Token)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var extended struct {
			ExpiresAt time.Time `json:"expiresAt"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&extended))
		require.WithinDuration(t, time.Now().Add(2*time.Hour+30*time.Minute), extended.ExpiresAt, time.Minute)
	}

	// Step 9: a third user joins via an invite link, without the password.
	carol := addUser(t, "Carol")
	{
		req, err := http.NewRequest("POST", fmt.Sprintf("http://%s/api/groups/%s/invite", testAPIAddr, groupID), nil)
		require.NoError(t, err)
		req.Header.Set("token", alice.Token)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var invite struct {
			InviteLink string `json:"inviteLink"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&invite))
		u, err := url.Parse(invite.InviteLink)
		require.NoError(t, err)
		token := filepath.Base(u.Path)
		require.NotEmpty(t, token)

		reqJoin, err := http.NewRequest("POST", fmt.Sprintf("http://%s/api/groups/join/invite/%s", testAPIAddr, token), nil)
		require.NoError(t, err)
		reqJoin.Header.Set("token", carol.Token)
		respJoin, err := client.Do(reqJoin)
		require.NoError(t, err)
		defer func() { _ = respJoin.Body.Close() }()
		require.Equal(t, http.StatusOK, respJoin.StatusCode)

		var g models.Group
		require.NoError(t, json.NewDecoder(respJoin.Body).Decode(&g))
		require.Contains(t, g.MemberIDs, carol.User.ID)
	}

	// Step 10: image upload round-trips through the media endpoint.
	{
		pngBase64 := "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="
		png, err := base64.StdEncoding.DecodeString(pngBase64)
		require.NoError(t, err)

		req, err := http.NewRequest("POST", fmt.Sprintf("http://%s/api/upload/image", testAPIAddr), bytes.NewReader(png))
		require.NoError(t, err)
		req.Header.Set("token", alice.Token)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var uploaded struct {
			URL string `json:"url"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
		require.Contains(t, uploaded.URL, "/api/images/")

		respImg, err := client.Get(uploaded.URL)
		require.NoError(t, err)
		defer func() { _ = respImg.Body.Close() }()
		require.Equal(t, http.StatusOK, respImg.StatusCode)
		require.Equal(t, "image/png", respImg.Header.Get("Content-Type"))
	}

	// Step 11: the admin ends the group; history is gone with it.
	{
		req, err := http.NewRequest("DELETE", fmt.Sprintf("http://%s/api/groups/%s", testAPIAddr, groupID), nil)
		require.NoError(t, err)
		req.Header.Set("token", alice.Token)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		reqHist, err := http.NewRequest("GET", fmt.Sprintf("http://%s/api/messages/group/%s", testAPIAddr, groupID), nil)
		require.NoError(t, err)
		reqHist.Header.Set("token", bob.Token)
		respHist, err := client.Do(reqHist)
		require.NoError(t, err)
		defer func() { _ = respHist.Body.Close() }()
		require.Equal(t, http.StatusOK, respHist.StatusCode)

		var history []models.DisplayMessage
		require.NoError(t, json.NewDecoder(respHist.Body).Decode(&history))
		require.Empty(t, history)
	}

	// Step 12: disconnect bob; alice is told he went offline.
	require.NoError(t, bobWS.Close())
	event = waitForEvent(t, aliceWS, models.ServerEventTypeOnlineUsers)
	require.NotContains(t, event.OnlineUserIDs, bob.User.ID)
}

func addUser(t *testing.T, name string) api.AddUserResponse {
	t.Helper()
	body, _ := json.Marshal(api.AddUserRequest{DisplayName: name})
	req, err := http.NewRequest("POST", fmt.Sprintf("http://%s/admin/users", testAdminAddr), bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("admin", testSecret)

	resp, err := (&http.Client{}).Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created api.AddUserResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.User.ID)
	require.NotEmpty(t, created.Token)
	return created
}

func dialWS(t *testing.T, user api.AddUserResponse) *websocket.Conn {
	t.Helper()
	wsURL := fmt.Sprintf("ws://%s/api/chat?userId=%s&token=%s",
		testAPIAddr, user.User.ID, url.QueryEscape(user.Token))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

// waitForEvent reads from the socket until an event of the wanted type
// arrives, skipping interleaved presence updates.
func waitForEvent(t *testing.T, conn *websocket.Conn, want models.ServerEventType) models.ServerEvent {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for time.Now().Before(deadline) {
		var event models.ServerEvent
		require.NoError(t, conn.ReadJSON(&event))
		if event.Type == want {
			return event
		}
		if want != models.ServerEventTypeOnlineUsers && event.Type == models.ServerEventTypeOnlineUsers {
			continue
		}
		t.Fatalf("expected %s, got %s", want, event.Type)
	}
	t.Fatalf("timed out waiting for %s", want)
	return models.ServerEvent{}
}

func waitForServer(t *testing.T, urlStr string, retries int) {
	t.Helper()
	req, _ := http.NewRequest("GET", urlStr, nil)
	req.SetBasicAuth("admin", testSecret)
	client := &http.Client{Timeout: 500 * time.Millisecond}

	for i := 0; i < retries; i++ {
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("Server failed to start at %s after %d retries", urlStr, retries)
}
