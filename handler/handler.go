// Package handler serves the typing state of the active narrow over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/exp/slices"

	"github.com/zulip/typingsync/internal"
	"github.com/zulip/typingsync/narrow"
	"github.com/zulip/typingsync/pubsub"
	"github.com/zulip/typingsync/selectors"
	"github.com/zulip/typingsync/state"
	"github.com/zulip/typingsync/store"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"

	maxBodyBytes = 1 << 20
)

// TypingHandler exposes a store over HTTP and re-runs the typing selector whenever the
// store changes.
type TypingHandler struct {
	Store  *store.Store
	Typing *selectors.TypingSelector

	mu        *sync.Mutex
	lastUsers []state.User
	lastOK    bool
	onTyping  func(users []state.User, ok bool)
	stateSub  *pubsub.StateSub
	callbacks *internal.WorkerPool
}

func NewTypingHandler(st *store.Store, ts *selectors.TypingSelector) *TypingHandler {
	return &TypingHandler{
		Store:     st,
		Typing:    ts,
		mu:        &sync.Mutex{},
		callbacks: internal.NewWorkerPool(1),
	}
}

// Listen re-runs the typing selector for every state change published on l. Blocks until
// Teardown is called.
func (h *TypingHandler) Listen(l pubsub.Listener) error {
	h.mu.Lock()
	h.stateSub = pubsub.NewStateSub(l, h)
	sub := h.stateSub
	h.mu.Unlock()
	h.callbacks.Start()
	err := sub.Listen()
	h.callbacks.Stop()
	return err
}

func (h *TypingHandler) Teardown() {
	h.mu.Lock()
	sub := h.stateSub
	h.mu.Unlock()
	if sub != nil {
		sub.Teardown()
	}
}

// OnTypingChanged sets a callback invoked whenever the typing users of the active narrow
// change. Callbacks run one at a time, in order, off the listener goroutine.
func (h *TypingHandler) OnTypingChanged(fn func(users []state.User, ok bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onTyping = fn
}

func (h *TypingHandler) OnStateChanged(p *pubsub.StateChanged) {
	users, ok := h.Typing.Select(context.Background(), p.Current)
	h.mu.Lock()
	changed := ok != h.lastOK || !slices.Equal(users, h.lastUsers)
	h.lastUsers = users
	h.lastOK = ok
	fn := h.onTyping
	h.mu.Unlock()
	if !changed {
		return
	}
	logger.Info().Str("action", p.Action).Bool("applicable", ok).Int("num_typing", len(users)).Msg("typing users changed")
	if fn != nil {
		h.callbacks.Queue(func() {
			fn(users, ok)
		})
	}
}

// Router returns the HTTP routes for this handler.
func (h *TypingHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/typing", serve(h.getTyping)).Methods(http.MethodGet)
	r.Handle("/narrow", serve(h.putNarrow)).Methods(http.MethodPut)
	r.Handle("/events", serve(h.postEvents)).Methods(http.MethodPost)
	r.Handle("/account", serve(h.putAccount)).Methods(http.MethodPut)
	r.Handle("/snapshot", serve(h.getSnapshot)).Methods(http.MethodGet)
	r.Handle("/snapshot", serve(h.putSnapshot)).Methods(http.MethodPut)
	return r
}

func serve(fn func(w http.ResponseWriter, req *http.Request) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		req = req.WithContext(internal.RequestContext(req.Context()))
		err := fn(w, req)
		if err == nil {
			return
		}
		var herr *internal.HandlerError
		if !errors.As(err, &herr) {
			herr = &internal.HandlerError{
				StatusCode: http.StatusInternalServerError,
				Err:        err,
			}
		}
		log := hlog.FromRequest(req)
		internal.DecorateLogger(req.Context(), log.Warn().Err(herr)).Msg("request failed")
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(herr.StatusCode)
		w.Write(herr.JSON())
	})
}

func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, internal.BadRequest("missing request body")
	}
	defer req.Body.Close()
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		return nil, internal.BadRequest("failed to read request body: %s", err)
	}
	return body, nil
}

// typingResponse is {"narrow":[...],"users":[...]}, with users omitted when typing does
// not apply to the narrow or nobody has a typing entry for it.
func typingResponse(s *state.State, users []state.User, ok bool) ([]byte, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "narrow", narrow.ToFilters(state.GetActiveNarrow(s)))
	if err != nil {
		return nil, err
	}
	if ok {
		body, err = sjson.SetBytes(body, "users", users)
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (h *TypingHandler) writeTyping(w http.ResponseWriter, req *http.Request, s *state.State) error {
	internal.SetRequestContextOwnEmail(req.Context(), state.GetOwnEmail(s))
	users, ok := h.Typing.Select(req.Context(), s)
	body, err := typingResponse(s, users, ok)
	if err != nil {
		return fmt.Errorf("failed to build typing response: %w", err)
	}
	internal.DecorateLogger(req.Context(), hlog.FromRequest(req).Trace()).Msg("typing")
	writeJSON(w, http.StatusOK, body)
	return nil
}

func writeJSON(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(code)
	w.Write(body)
}

func (h *TypingHandler) getTyping(w http.ResponseWriter, req *http.Request) error {
	return h.writeTyping(w, req, h.Store.State())
}

func (h *TypingHandler) putNarrow(w http.ResponseWriter, req *http.Request) error {
	body, err := readBody(req)
	if err != nil {
		return err
	}
	n, err := narrow.ParseFilters(body)
	if err != nil {
		return internal.BadRequest("invalid narrow: %s", err)
	}
	s, err := h.Store.Dispatch(req.Context(), state.SwitchNarrow{Narrow: n})
	if err != nil {
		return err
	}
	return h.writeTyping(w, req, s)
}

// postEvents accepts a single event object or an array of them. Every event is parsed before
// any is applied, so a malformed event rejects the whole batch.
func (h *TypingHandler) postEvents(w http.ResponseWriter, req *http.Request) error {
	body, err := readBody(req)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(body) {
		return internal.BadRequest("events body is not valid JSON")
	}
	parsed := gjson.ParseBytes(body)
	var raws []gjson.Result
	if parsed.IsArray() {
		raws = parsed.Array()
	} else {
		raws = []gjson.Result{parsed}
	}
	actions := make([]state.Action, 0, len(raws))
	ignored := 0
	for i, raw := range raws {
		action, err := state.ParseEvent([]byte(raw.Raw))
		if errors.Is(err, state.ErrUnhandledEvent) {
			ignored++
			continue
		}
		if err != nil {
			return internal.BadRequest("event %d: %s", i, err)
		}
		actions = append(actions, action)
	}
	internal.SetRequestContextNumEvents(req.Context(), len(actions))
	if _, err := h.Store.DispatchAll(req.Context(), actions); err != nil {
		return err
	}
	resp, _ := json.Marshal(struct {
		Applied int `json:"applied"`
		Ignored int `json:"ignored"`
	}{len(actions), ignored})
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (h *TypingHandler) putAccount(w http.ResponseWriter, req *http.Request) error {
	body, err := readBody(req)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(body) {
		return internal.BadRequest("account body is not valid JSON")
	}
	parsed := gjson.ParseBytes(body)
	acc := state.Account{
		Email:  parsed.Get("email").Str,
		Realm:  parsed.Get("realm").Str,
		APIKey: parsed.Get("api_key").Str,
	}
	if acc.Email == "" {
		return internal.BadRequest("account is missing an email")
	}
	s, err := h.Store.Dispatch(req.Context(), state.AccountSwitch{Account: acc})
	if err != nil {
		return err
	}
	return h.writeTyping(w, req, s)
}

func (h *TypingHandler) getSnapshot(w http.ResponseWriter, req *http.Request) error {
	s := h.Store.State()
	if strings.Contains(req.Header.Get("Accept"), contentTypeCBOR) {
		data, err := state.EncodeSnapshot(s)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", contentTypeCBOR)
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return nil
	}
	data, err := json.Marshal(state.ToSnapshot(s))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, data)
	return nil
}

func (h *TypingHandler) putSnapshot(w http.ResponseWriter, req *http.Request) error {
	body, err := readBody(req)
	if err != nil {
		return err
	}
	var s *state.State
	if strings.HasPrefix(req.Header.Get("Content-Type"), contentTypeCBOR) {
		s, err = state.DecodeSnapshot(body)
	} else {
		var snap state.Snapshot
		if err = json.Unmarshal(body, &snap); err == nil {
			s, err = state.FromSnapshot(snap)
		}
	}
	if err != nil {
		return internal.BadRequest("invalid snapshot: %s", err)
	}
	if err := h.Store.Replace(req.Context(), s); err != nil {
		return err
	}
	return h.writeTyping(w, req, h.Store.State())
}
