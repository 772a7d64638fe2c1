package handler

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/tidwall/gjson"

	"github.com/zulip/typingsync/pubsub"
	"github.com/zulip/typingsync/selectors"
	"github.com/zulip/typingsync/state"
	"github.com/zulip/typingsync/store"
)

const (
	johnEvent = `{"type":"realm_user","op":"add","person":{"user_id":1,"email":"john@example.com","full_name":"John Doe","avatar_url":"http://example.com/avatar1.png"}}`
	markEvent = `{"type":"realm_user","op":"add","person":{"user_id":2,"email":"mark@example.com","full_name":"Mark Dark","avatar_url":"http://example.com/avatar2.png"}}`
)

func newTypingServer(t *testing.T, st *store.Store) (*httptest.Server, *TypingHandler) {
	t.Helper()
	// disable colours in tests to make it display nicer in IDEs
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
		NoColor:    true,
	})
	ts := selectors.NewTypingSelector(time.Minute)
	h := NewTypingHandler(st, ts)
	srv := httptest.NewServer(hlog.NewHandler(log)(h.Router()))
	t.Cleanup(srv.Close)
	return srv, h
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, contentType string, body []byte) (int, []byte, http.Header) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to make request: %s", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", contentType)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %s", method, path, err)
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %s", err)
	}
	return res.StatusCode, resBody, res.Header
}

func mustDo(t *testing.T, srv *httptest.Server, method, path, body string) []byte {
	t.Helper()
	code, resBody, _ := doRequest(t, srv, method, path, "", []byte(body))
	if code != 200 {
		t.Fatalf("%s %s returned HTTP %d: %s", method, path, code, string(resBody))
	}
	return resBody
}

func typingEmails(t *testing.T, body []byte) ([]string, bool) {
	t.Helper()
	users := gjson.GetBytes(body, "users")
	if !users.Exists() {
		return nil, false
	}
	emails := []string{}
	for _, u := range users.Array() {
		emails = append(emails, u.Get("email").Str)
	}
	return emails, true
}

func setupGroupConversation(t *testing.T, srv *httptest.Server) {
	t.Helper()
	mustDo(t, srv, "PUT", "/account", `{"email":"me@example.com","realm":"https://chat.example.com"}`)
	mustDo(t, srv, "POST", "/events", "["+johnEvent+","+markEvent+"]")
	mustDo(t, srv, "PUT", "/narrow", `[{"operator":"pm-with","operand":"mark@example.com,john@example.com"}]`)
}

func TestTypingInGroupNarrow(t *testing.T) {
	srv, _ := newTypingServer(t, store.New(nil, nil))
	setupGroupConversation(t, srv)

	body := mustDo(t, srv, "GET", "/typing", "")
	if _, ok := typingEmails(t, body); ok {
		t.Fatalf("expected no users key before anyone types: %s", string(body))
	}

	mustDo(t, srv, "POST", "/events", `[
		{"type":"typing","op":"start","sender":{"user_id":2},"recipients":[{"email":"john@example.com"},{"email":"me@example.com"},{"email":"mark@example.com"}]},
		{"type":"typing","op":"start","sender":{"user_id":1},"recipients":[{"email":"john@example.com"},{"email":"me@example.com"},{"email":"mark@example.com"}]}
	]`)
	body = mustDo(t, srv, "GET", "/typing", "")
	emails, ok := typingEmails(t, body)
	if !ok || !reflect.DeepEqual(emails, []string{"mark@example.com", "john@example.com"}) {
		t.Fatalf("got typing %v (ok=%v) want [mark, john]: %s", emails, ok, string(body))
	}
	if got := gjson.GetBytes(body, "users.1.full_name").Str; got != "John Doe" {
		t.Errorf("got full_name %q want John Doe", got)
	}
	if got := gjson.GetBytes(body, "narrow.0.operator").Str; got != "pm-with" {
		t.Errorf("got narrow operator %q want pm-with", got)
	}

	mustDo(t, srv, "POST", "/events", `{"type":"typing","op":"stop","sender":{"user_id":2},"recipients":[{"email":"john@example.com"},{"email":"me@example.com"},{"email":"mark@example.com"}]}`)
	emails, ok = typingEmails(t, mustDo(t, srv, "GET", "/typing", ""))
	if !ok || !reflect.DeepEqual(emails, []string{"john@example.com"}) {
		t.Fatalf("got typing %v (ok=%v) want [john]", emails, ok)
	}
}

func TestTypingInHomeNarrow(t *testing.T) {
	srv, _ := newTypingServer(t, store.New(nil, nil))
	mustDo(t, srv, "PUT", "/account", `{"email":"me@example.com"}`)
	mustDo(t, srv, "POST", "/events", johnEvent)
	mustDo(t, srv, "POST", "/events", `{"type":"typing","op":"start","sender":{"user_id":1},"recipients":[{"email":"john@example.com"},{"email":"me@example.com"}]}`)
	body := mustDo(t, srv, "PUT", "/narrow", `[]`)
	if _, ok := typingEmails(t, body); ok {
		t.Fatalf("expected no users in home narrow: %s", string(body))
	}
	if got := gjson.GetBytes(body, "narrow").Raw; got != "[]" {
		t.Errorf("got narrow %s want []", got)
	}
	body = mustDo(t, srv, "PUT", "/narrow", `[{"operator":"pm-with","operand":"john@example.com"}]`)
	emails, ok := typingEmails(t, body)
	if !ok || !reflect.DeepEqual(emails, []string{"john@example.com"}) {
		t.Errorf("got typing %v (ok=%v) want [john]", emails, ok)
	}
}

func TestBadRequests(t *testing.T) {
	srv, _ := newTypingServer(t, store.New(nil, nil))
	testCases := []struct {
		method, path, body string
	}{
		{"PUT", "/narrow", `{"operator":"stream"}`},
		{"PUT", "/narrow", `[{"operator":"sender","operand":"a@x"}]`},
		{"POST", "/events", `{`},
		{"POST", "/events", `[{"type":"typing","op":"start"}]`},
		{"PUT", "/account", `{"realm":"https://chat.example.com"}`},
		{"PUT", "/snapshot", `not a snapshot`},
	}
	for _, tc := range testCases {
		code, body, _ := doRequest(t, srv, tc.method, tc.path, "", []byte(tc.body))
		if code != 400 {
			t.Errorf("%s %s %s: got HTTP %d want 400", tc.method, tc.path, tc.body, code)
			continue
		}
		if gjson.GetBytes(body, "error").Str == "" {
			t.Errorf("%s %s: missing error in %s", tc.method, tc.path, string(body))
		}
	}
}

func TestEventsIgnoresUnhandled(t *testing.T) {
	srv, h := newTypingServer(t, store.New(nil, nil))
	body := mustDo(t, srv, "POST", "/events", `[{"type":"message","message":{}},`+johnEvent+`]`)
	if gjson.GetBytes(body, "applied").Int() != 1 || gjson.GetBytes(body, "ignored").Int() != 1 {
		t.Errorf("got %s want 1 applied 1 ignored", string(body))
	}
	if _, ok := state.GetUserByID(h.Store.State(), 1); !ok {
		t.Errorf("realm_user add was not applied")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	for _, contentType := range []string{"application/cbor", "application/json"} {
		srv, _ := newTypingServer(t, store.New(nil, nil))
		setupGroupConversation(t, srv)
		mustDo(t, srv, "POST", "/events", `{"type":"typing","op":"start","sender":{"user_id":1},"recipients":[{"email":"john@example.com"},{"email":"mark@example.com"}]}`)
		code, snapshot, header := doRequest(t, srv, "GET", "/snapshot", contentType, nil)
		if code != 200 {
			t.Fatalf("%s: GET /snapshot returned HTTP %d", contentType, code)
		}
		if got := header.Get("Content-Type"); got != contentType {
			t.Errorf("got content type %s want %s", got, contentType)
		}

		restored, _ := newTypingServer(t, store.New(nil, nil))
		code, body, _ := doRequest(t, restored, "PUT", "/snapshot", contentType, snapshot)
		if code != 200 {
			t.Fatalf("%s: PUT /snapshot returned HTTP %d: %s", contentType, code, string(body))
		}
		emails, ok := typingEmails(t, mustDo(t, restored, "GET", "/typing", ""))
		if !ok || !reflect.DeepEqual(emails, []string{"john@example.com"}) {
			t.Errorf("%s: got typing %v (ok=%v) after restore want [john]", contentType, emails, ok)
		}
	}
}

func TestListenReportsTypingChanges(t *testing.T) {
	ps := pubsub.NewPubSub(10)
	st := store.New(nil, ps)
	srv, h := newTypingServer(t, st)

	var mu sync.Mutex
	var changes [][]state.User
	done := make(chan struct{}, 10)
	h.OnTypingChanged(func(users []state.User, ok bool) {
		mu.Lock()
		changes = append(changes, users)
		mu.Unlock()
		done <- struct{}{}
	})
	go h.Listen(ps)
	defer h.Teardown()

	mustDo(t, srv, "PUT", "/account", `{"email":"me@example.com"}`)
	mustDo(t, srv, "POST", "/events", johnEvent)
	mustDo(t, srv, "PUT", "/narrow", `[{"operator":"pm-with","operand":"john@example.com"}]`)
	mustDo(t, srv, "POST", "/events", `{"type":"typing","op":"start","sender":{"user_id":1},"recipients":[{"email":"john@example.com"},{"email":"me@example.com"}]}`)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for typing change")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 1 {
		t.Fatalf("got %d typing changes want 1: %v", len(changes), changes)
	}
	if len(changes[0]) != 1 || changes[0][0].Email != "john@example.com" {
		t.Errorf("got typing change %v want [john]", changes[0])
	}
}
