package session

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/yui-companion/backend/internal/analysis/emotion"
	"github.com/zhouzirui/yui-companion/backend/internal/client"
	"github.com/zhouzirui/yui-companion/backend/internal/companion"
	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
	"github.com/zhouzirui/yui-companion/backend/internal/model/persona"
	"github.com/zhouzirui/yui-companion/backend/internal/model/speech"
	chatService "github.com/zhouzirui/yui-companion/backend/internal/service/chat"
	speechsvc "github.com/zhouzirui/yui-companion/backend/internal/service/speech"
)

// wavClip builds a 100ms 8kHz mono PCM WAV.
func wavClip() []byte {
	const dataLen = 1600
	le := binary.LittleEndian
	buf := append([]byte("RIFF"), 0, 0, 0, 0)
	le.PutUint32(buf[4:], 36+dataLen)
	buf = append(buf, "WAVEfmt "...)
	buf = le.AppendUint32(buf, 16)
	buf = le.AppendUint16(buf, 1)
	buf = le.AppendUint16(buf, 1)
	buf = le.AppendUint32(buf, 8000)
	buf = le.AppendUint32(buf, 16000)
	buf = le.AppendUint16(buf, 2)
	buf = le.AppendUint16(buf, 16)
	buf = append(buf, "data"...)
	buf = le.AppendUint32(buf, dataLen)
	return append(buf, make([]byte, dataLen)...)
}

type fakeReplier struct {
	reply chat.Message
	err   error
}

func (f *fakeReplier) Reply(ctx context.Context, history []chat.Message, username string) (chat.Message, error) {
	return f.reply, f.err
}

type fakeSpeech struct {
	mu    sync.Mutex
	texts []string
	fail  string
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text string) (*speech.TTSResponse, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if text == f.fail {
		return nil, errors.New("provider error")
	}
	return &speech.TTSResponse{AudioData: wavClip(), ContentType: "audio/wav"}, nil
}

func newTestServer(t *testing.T, ai Replier, sp SpeechService) (*httptest.Server, *chatService.Service) {
	t.Helper()
	sessions := chatService.NewService()
	personas := persona.NewMemoryStore(persona.Seed())
	h := New(ai, sp, sessions, personas, Options{DefaultPersona: "yui"}, zerolog.Nop())

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, sessions
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/session/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until a JSON frame of type want arrives, skipping
// avatar frames. Binary frames following a segment header are returned too.
func readUntil(t *testing.T, conn *websocket.Conn, want string) (outgoingMessage, []byte) {
	t.Helper()
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		kind, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if kind != websocket.TextMessage {
			continue
		}
		var msg outgoingMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type != want {
			continue
		}
		if want != "segment" {
			return msg, nil
		}
		kind, audio, err := conn.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, websocket.BinaryMessage, kind)
		return msg, audio
	}
}

func TestSessionRoundTrip(t *testing.T) {
	ai := &fakeReplier{reply: chat.AssistantMessage("Hello ototo-kun! How are you?", emotion.Happy)}
	sp := &fakeSpeech{}
	srv, sessions := newTestServer(t, ai, sp)
	conn := dial(t, srv, "?username=Kazuto")

	hello, _ := readUntil(t, conn, "session")
	require.NotEmpty(t, hello.SessionID)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "submit", "text": "Hi"}))

	user, _ := readUntil(t, conn, "message")
	assert.Equal(t, chat.RoleUser, user.Role)
	assert.Equal(t, "Hi", user.Content)

	reply, _ := readUntil(t, conn, "message")
	assert.Equal(t, chat.RoleAssistant, reply.Role)
	assert.Equal(t, emotion.Happy, reply.Emotion)

	first, audio := readUntil(t, conn, "segment")
	require.NotNil(t, first.Index)
	assert.Equal(t, 0, *first.Index)
	assert.Equal(t, "Hello ototo-kun!", first.Text)
	assert.Equal(t, "wav", first.Format)
	assert.Equal(t, len(wavClip()), len(audio))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ended", "index": 0}))

	second, _ := readUntil(t, conn, "segment")
	require.NotNil(t, second.Index)
	assert.Equal(t, 1, *second.Index)
	assert.Equal(t, "How are you?", second.Text)

	entries, err := sessions.LoadTranscript(context.Background(), hello.SessionID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Hi", entries[0].Message.Content)
	assert.Equal(t, emotion.Happy, entries[1].Message.Emotion)
}

func TestSessionTranscriptRoute(t *testing.T) {
	ai := &fakeReplier{reply: chat.AssistantMessage("", emotion.Sad)}
	srv, sessions := newTestServer(t, ai, &fakeSpeech{})
	conn := dial(t, srv, "")

	hello, _ := readUntil(t, conn, "session")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "submit", "text": "Hi"}))
	readUntil(t, conn, "message")
	readUntil(t, conn, "message")

	resp, err := http.Get(srv.URL + "/session/" + hello.SessionID + "/transcript")
	require.NoError(t, err)
	var body transcriptResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, hello.SessionID, body.Session.ID)
	assert.Equal(t, "yui", body.Session.PersonaID)
	require.Len(t, body.Entries, 2)
	assert.Equal(t, "Hi", body.Entries[0].Message.Content)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return sessions.ActiveCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	resp, err = http.Get(srv.URL + "/session/" + hello.SessionID + "/transcript")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionChatFailureSendsError(t *testing.T) {
	srv, _ := newTestServer(t, &fakeReplier{err: errors.New("model down")}, &fakeSpeech{})
	conn := dial(t, srv, "")
	readUntil(t, conn, "session")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "submit", "text": "Hi"}))

	alert, _ := readUntil(t, conn, "error")
	assert.Contains(t, alert.Error, "model down")
}

func TestSessionFocusAndUnknownType(t *testing.T) {
	srv, _ := newTestServer(t, &fakeReplier{}, &fakeSpeech{})
	conn := dial(t, srv, "")
	readUntil(t, conn, "session")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "focus", "x": 1280, "y": 0}))
	focus, _ := readUntil(t, conn, "focus")
	require.NotNil(t, focus.X)
	require.NotNil(t, focus.Y)
	assert.InDelta(t, 0.95, *focus.X, 1e-9)
	assert.InDelta(t, 0.95, *focus.Y, 1e-9)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "bogus"}))
	msg, _ := readUntil(t, conn, "error")
	assert.Contains(t, msg.Error, "bogus")
}

func TestSessionUnknownPersona(t *testing.T) {
	srv, _ := newTestServer(t, &fakeReplier{}, &fakeSpeech{})

	resp, err := http.Get(srv.URL + "/session/ws?persona=nobody")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionUnavailableWithoutServices(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	resp, err := http.Get(srv.URL + "/session/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestLocalSynthMapsErrors(t *testing.T) {
	synth := &localSynth{speech: &fakeSpeech{fail: "Bad."}, decoder: client.MP3Decoder{}}

	seg, err := synth.Synthesize(context.Background(), "Good.")
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, seg.Duration)

	_, err = synth.Synthesize(context.Background(), "Bad.")
	var serr *companion.SynthesisError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusBadGateway, serr.Status)

	empty := &localSynth{speech: errSpeech{speechsvc.ErrEmptyText}, decoder: client.MP3Decoder{}}
	_, err = empty.Synthesize(context.Background(), "")
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusBadRequest, serr.Status)
}

type errSpeech struct{ err error }

func (e errSpeech) Synthesize(context.Context, string) (*speech.TTSResponse, error) {
	return nil, e.err
}

func TestWSSourceTimesOut(t *testing.T) {
	src := newWSSource(1, 3, 10*time.Millisecond)
	select {
	case <-src.Done():
	case <-time.After(time.Second):
		t.Fatal("source did not time out")
	}
	src.Stop()
}

func TestWSSourceStopCancelsTimeout(t *testing.T) {
	src := newWSSource(1, 0, time.Hour)
	src.Stop()
	assert.False(t, src.timer.Stop(), "timer should already be stopped")
	select {
	case <-src.Done():
	default:
		t.Fatal("stopped source is not done")
	}
}

func TestWSOutputIgnoresStaleEnded(t *testing.T) {
	out := &wsOutput{}
	first := newWSSource(1, 0, time.Hour)
	second := newWSSource(2, 0, time.Hour)
	t.Cleanup(first.Stop)
	t.Cleanup(second.Stop)
	out.current = second

	out.Ended(1, 0)
	select {
	case <-second.Done():
		t.Fatal("ended for an earlier reply finished the current segment")
	default:
	}

	out.Ended(2, 0)
	select {
	case <-second.Done():
	case <-time.After(time.Second):
		t.Fatal("matching ended did not finish the segment")
	}
}

func TestSessionSegmentsCarrySequence(t *testing.T) {
	ai := &fakeReplier{reply: chat.AssistantMessage("One. Two.", emotion.Joy)}
	srv, _ := newTestServer(t, ai, &fakeSpeech{})
	conn := dial(t, srv, "")
	readUntil(t, conn, "session")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "submit", "text": "Count"}))
	first, _ := readUntil(t, conn, "segment")
	assert.Equal(t, uint64(1), first.Seq)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ended", "index": 0, "seq": first.Seq}))
	second, _ := readUntil(t, conn, "segment")
	assert.Equal(t, uint64(2), second.Seq)
	require.NotNil(t, second.Index)
	assert.Equal(t, 1, *second.Index)
}
