package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/chatbot/internal/analysis/reply"
	"github.com/zhouzirui/chatbot/internal/model/chat"
	"github.com/zhouzirui/chatbot/internal/model/persona"
	chatservice "github.com/zhouzirui/chatbot/internal/service/chat"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*chatservice.Service, *httptest.Server) {
	t.Helper()
	chatSvc := chatservice.NewService(persona.NewMemoryStore(persona.Seed()), chatservice.Options{
		ReplyDelay: 20 * time.Millisecond,
	})

	r := chi.NewRouter()
	New(chatSvc, nil).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		chatSvc.Wait()
	})
	return chatSvc, srv
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebSocketSubmitReceivesUserAndBot(t *testing.T) {
	chatSvc, srv := setup(t)
	session, err := chatSvc.CreateSession(context.Background(), "")
	require.NoError(t, err)

	conn := dial(t, srv, session.ID)

	connected := readFrame(t, conn)
	require.Equal(t, TypeConnected, connected.Type)

	require.NoError(t, conn.WriteJSON(InboundMessage{
		Type: TypeSubmit,
		Data: json.RawMessage(`{"text":"Hello there"}`),
	}))

	var got []chat.Message
	for len(got) < 2 {
		f := readFrame(t, conn)
		require.Equal(t, TypeMessage, f.Type)
		var msg chat.Message
		require.NoError(t, json.Unmarshal(f.Data, &msg))
		got = append(got, msg)
	}

	assert.Equal(t, chat.SenderUser, got[0].Sender)
	assert.Equal(t, "Hello there", got[0].Text)
	assert.Equal(t, chat.SenderBot, got[1].Sender)
	assert.Equal(t, reply.Greeting, got[1].Text)
}

func TestWebSocketBlankSubmitIsSilent(t *testing.T) {
	chatSvc, srv := setup(t)
	session, err := chatSvc.CreateSession(context.Background(), "")
	require.NoError(t, err)

	conn := dial(t, srv, session.ID)
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: TypeSubmit, Data: json.RawMessage(`{"text":"  "}`)}))
	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "bogus"}))

	// The only reply is the error for the unsupported frame.
	f := readFrame(t, conn)
	assert.Equal(t, TypeError, f.Type)

	msgs, err := chatSvc.LoadTranscript(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestWebSocketUnknownSession(t *testing.T) {
	_, srv := setup(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketConnectedCarriesStateAndTranscript(t *testing.T) {
	chatSvc, srv := setup(t)
	session, err := chatSvc.CreateSession(context.Background(), "")
	require.NoError(t, err)

	conn := dial(t, srv, session.ID)

	f := readFrame(t, conn)
	require.Equal(t, TypeConnected, f.Type)

	var data struct {
		State    chat.State     `json:"state"`
		Messages []chat.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, chat.StateIdle, data.State)
	require.Len(t, data.Messages, 1)
	assert.Equal(t, chat.SenderBot, data.Messages[0].Sender)
}

func TestWebSocketSessionClosedEndsConnection(t *testing.T) {
	chatSvc, srv := setup(t)
	session, err := chatSvc.CreateSession(context.Background(), "")
	require.NoError(t, err)

	conn := dial(t, srv, session.ID)
	readFrame(t, conn)

	require.NoError(t, chatSvc.CloseSession(context.Background(), session.ID))

	f := readFrame(t, conn)
	require.Equal(t, TypeError, f.Type)
	assert.JSONEq(t, `{"message":"session closed"}`, string(f.Data))

	var next frame
	assert.Error(t, conn.ReadJSON(&next), "server must drop the socket after the session closes")
}
