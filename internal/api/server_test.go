package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totalrecall/internal/aiconnectors"
	"github.com/totalrecall/internal/chat"
	"github.com/totalrecall/internal/conversations"
	"github.com/totalrecall/internal/metrics"
	"github.com/totalrecall/internal/settings"
	"github.com/totalrecall/internal/store"
	"github.com/totalrecall/pkg/models"
)

type stubSender struct {
	reply string
	err   error
	calls int
}

func (s *stubSender) Send(ctx context.Context, messages []models.Message, summary string) (models.Message, error) {
	s.calls++
	if s.err != nil {
		return models.Message{}, s.err
	}
	return models.Message{Role: models.RoleAssistant, Content: s.reply}, nil
}

func (s *stubSender) Summarize(ctx context.Context, messages []models.Message) (string, error) {
	return "context so far", nil
}

type stubQuotes struct {
	payload []byte
	err     error
}

func (q stubQuotes) Fetch(ctx context.Context) ([]byte, error) {
	return q.payload, q.err
}

type testServer struct {
	handler http.Handler
	sender  *stubSender
	repo    *conversations.Repository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo := conversations.NewRepository(store.NewMemoryTable())
	sender := &stubSender{reply: "Hi there, how can I help?"}
	gw := aiconnectors.NewGateway(nil)
	gw.Register(aiconnectors.ProviderOpenAI, sender)
	gw.Register(aiconnectors.ProviderAnthropic, sender)

	srv, err := NewServer(Options{AllowedOrigins: []string{"https://dreamcatcher.run", "*"}}, Dependencies{
		Conversations: repo,
		Chat:          chat.NewService(repo, gw),
		Settings:      settings.NewRepository(store.NewMemoryTable()),
		Quotes:        stubQuotes{payload: []byte(`[{"q":"Stay hungry.","a":"Unknown"}]`)},
		Metrics:       metrics.New(false),
	})
	require.NoError(t, err)
	return &testServer{handler: srv.Handler(), sender: sender, repo: repo}
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (ts *testServer) start(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/conversation", `{"prompt":"Hello","provider":"openai"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id, _ := decode(t, rec)["conversationId"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestConversationCreated(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/conversation", `{"prompt":"Hello","provider":"openai"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode(t, rec)
	assert.NotEmpty(t, body["conversationId"])
	assert.Equal(t, body["conversationId"], body["id"])
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, map[string]interface{}{"role": "user", "content": "Hello"}, messages[0])
	assert.Equal(t, "assistant", messages[1].(map[string]interface{})["role"])
	assert.Equal(t, []interface{}{}, body["tags"])
}

func TestConversationContinued(t *testing.T) {
	ts := newTestServer(t)
	id := ts.start(t)

	rec := ts.do(t, http.MethodPost, "/conversation", `{"prompt":"Tell me more","provider":"anthropic","conversationId":"`+id+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Len(t, body["messages"], 4)
	assert.Equal(t, "context so far", body["summary"])
}

func TestConversationUnknownID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/conversation", `{"prompt":"Hello","provider":"openai","conversationId":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Conversation not found", decode(t, rec)["message"])

	rec = ts.do(t, http.MethodGet, "/conversation?conversationId=missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Conversation not found", decode(t, rec)["message"])
}

func TestConversationInvalidProvider(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/conversation", `{"prompt":"Hello","provider":"gemini"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid provider", decode(t, rec)["message"])
	assert.Equal(t, 0, ts.sender.calls)

	list, err := ts.repo.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConversationValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/conversation", `{"prompt":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decode(t, rec)["message"])

	rec = ts.do(t, http.MethodPost, "/conversation", `{"provider":"openai"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/conversation", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "conversationId is required", decode(t, rec)["message"])
}

func TestConversationProviderFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.sender.err = errors.New("upstream returned 529 overloaded")

	rec := ts.do(t, http.MethodPost, "/conversation", `{"prompt":"Hello","provider":"openai"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to process conversation", decode(t, rec)["message"])
	assert.NotContains(t, rec.Body.String(), "overloaded")
}

func TestDeleteThenGet(t *testing.T) {
	ts := newTestServer(t)
	id := ts.start(t)

	rec := ts.do(t, http.MethodGet, "/conversation?conversationId="+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decode(t, rec)["conversationId"])

	rec = ts.do(t, http.MethodDelete, "/conversation", `{"conversationId":"`+id+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Conversation deleted successfully", decode(t, rec)["message"])

	rec = ts.do(t, http.MethodGet, "/conversation?conversationId="+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/conversation?conversationId="+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListConversations(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 3; i++ {
		ts.start(t)
	}

	rec := ts.do(t, http.MethodGet, "/conversations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["conversations"], 3)

	rec = ts.do(t, http.MethodGet, "/conversations?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["conversations"], 2)

	rec = ts.do(t, http.MethodGet, "/conversations?limit=lots", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func updatedTags(t *testing.T, rec *httptest.ResponseRecorder) []interface{} {
	t.Helper()
	conv, ok := decode(t, rec)["updatedConversation"].(map[string]interface{})
	require.True(t, ok, rec.Body.String())
	tags, _ := conv["tags"].([]interface{})
	return tags
}

func TestTagLifecycle(t *testing.T) {
	ts := newTestServer(t)
	id := ts.start(t)

	rec := ts.do(t, http.MethodPost, "/conversation/tag", `{"conversationId":"`+id+`","tag":"work"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Tag added successfully", decode(t, rec)["message"])

	rec = ts.do(t, http.MethodPost, "/tag", `{"conversationId":"`+id+`","tag":"work"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"work", "work"}, updatedTags(t, rec))

	rec = ts.do(t, http.MethodPut, "/conversation/tag", `{"conversationId":"`+id+`","oldTag":"work","newTag":"job"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Tag edited successfully", decode(t, rec)["message"])
	assert.Equal(t, []interface{}{"job", "job"}, updatedTags(t, rec))

	rec = ts.do(t, http.MethodPut, "/tag", `{"conversationId":"`+id+`","oldTag":"absent","newTag":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Tag not found", decode(t, rec)["message"])

	rec = ts.do(t, http.MethodDelete, "/conversation/tag", `{"conversationId":"`+id+`","tag":"job"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Tag deleted successfully", decode(t, rec)["message"])
	assert.Empty(t, updatedTags(t, rec))

	rec = ts.do(t, http.MethodPut, "/conversation/tags", `{"conversationId":"`+id+`","tags":["a","b"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Tags updated successfully", decode(t, rec)["message"])
	assert.Equal(t, []interface{}{"a", "b"}, updatedTags(t, rec))
}

func TestTagRequiresConversation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/conversation/tag", `{"conversationId":"missing","tag":"work"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/conversation/tag", `{"conversationId":"missing"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "tag is required", decode(t, rec)["message"])
}

func TestRename(t *testing.T) {
	ts := newTestServer(t)
	id := ts.start(t)

	rec := ts.do(t, http.MethodPut, "/conversation/name", `{"conversationId":"`+id+`","newName":"Trip planning"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Conversation name updated successfully", body["message"])
	assert.Equal(t, "Trip planning", body["updatedConversation"].(map[string]interface{})["name"])

	rec = ts.do(t, http.MethodPut, "/conversation/name", `{"conversationId":"`+id+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddMessage(t *testing.T) {
	ts := newTestServer(t)
	id := ts.start(t)

	rec := ts.do(t, http.MethodPost, "/conversation/message",
		`{"conversationId":"`+id+`","message":{"role":"user","content":[{"type":"text","text":"first"},{"type":"text","text":"second"}]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Message added successfully", body["message"])
	messages := body["updatedConversation"].(map[string]interface{})["messages"].([]interface{})
	require.Len(t, messages, 3)
	assert.Equal(t, "first\nsecond", messages[2].(map[string]interface{})["content"])
	assert.Equal(t, 1, ts.sender.calls, "appending a message does not call the provider")

	rec = ts.do(t, http.MethodPost, "/conversation/message", `{"conversationId":"`+id+`","message":{"role":"robot","content":"hi"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid message role", decode(t, rec)["message"])

	rec = ts.do(t, http.MethodPost, "/conversation/message", `{"conversationId":"`+id+`","message":{"role":"user","content":42}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendPrompt(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/sendPrompt", `{"prompt":"Interpret my dream","provider":"openai"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var text string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &text))
	assert.Equal(t, "Hi there, how can I help?", text)

	rec = ts.do(t, http.MethodPost, "/sendPrompt", `{"prompt":"x","provider":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchQuote(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/fetchQuote", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"q":"Stay hungry.","a":"Unknown"}]`, rec.Body.String())
}

func TestFetchQuoteFailure(t *testing.T) {
	repo := conversations.NewRepository(store.NewMemoryTable())
	srv, err := NewServer(Options{}, Dependencies{
		Conversations: repo,
		Chat:          chat.NewService(repo, aiconnectors.NewGateway(nil)),
		Settings:      settings.NewRepository(store.NewMemoryTable()),
		Quotes:        stubQuotes{err: errors.New("dial tcp: timeout")},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fetchQuote", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch quote", decode(t, rec)["message"])

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "metrics are only served when enabled")
}

func TestSettings(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/settings", `{"userId":"u1","settings":{"theme":"dark"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "User created", decode(t, rec)["message"])

	rec = ts.do(t, http.MethodPost, "/settings", `{"userId":"u1","settings":{"theme":"light"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "User settings updated", body["message"])
	assert.Equal(t, map[string]interface{}{"theme": "light"}, body["settings"])

	rec = ts.do(t, http.MethodPost, "/settings", `{"settings":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthMetricsAndOpenAPI(t *testing.T) {
	ts := newTestServer(t)
	ts.start(t)

	rec := ts.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	rec = ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `totalrecall_http_requests_total{code="201",method="POST",route="/conversation"} 1`)

	rec = ts.do(t, http.MethodGet, "/openapi.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode(t, rec)
	assert.Equal(t, "3.0.3", doc["openapi"])
	paths := doc["paths"].(map[string]interface{})
	for _, p := range []string{"/conversation", "/conversations", "/conversation/tag", "/conversation/tags", "/sendPrompt", "/settings"} {
		assert.Contains(t, paths, p)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/conversation", nil)
	req.Header.Set("Origin", "http://localhost:9000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
	assert.Contains(t, strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers")), "x-api-key")
}
