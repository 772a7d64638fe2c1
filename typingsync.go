package typingsync

import (
	"net/http"
	"os"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zulip/typingsync/handler"
	"github.com/zulip/typingsync/internal"
	"github.com/zulip/typingsync/pubsub"
	"github.com/zulip/typingsync/selectors"
	"github.com/zulip/typingsync/store"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

// Version is set at build time with -ldflags.
var Version string

type Opts struct {
	// How long memoised typing results are kept for.
	MemoTTL time.Duration
	// Size of the state change channel buffer.
	NotifyBufferSize int
	// Whether to publish Prometheus metrics.
	Prometheus bool
}

type server struct {
	chain []func(next http.Handler) http.Handler
	final http.Handler
}

func (s *server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h := s.final
	for i := range s.chain {
		h = s.chain[len(s.chain)-1-i](h)
	}
	h.ServeHTTP(w, req)
}

func allowCORS(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")
		if req.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		next.ServeHTTP(w, req)
	}
}

// Setup makes the store, selector and HTTP handler, and starts the goroutines which keep
// them up to date. Call the returned function to stop them.
func Setup(opts Opts) (*handler.TypingHandler, func()) {
	if opts.MemoTTL == 0 {
		opts.MemoTTL = time.Minute
	}
	if opts.NotifyBufferSize == 0 {
		opts.NotifyBufferSize = 100
	}
	ps := pubsub.NewPubSub(opts.NotifyBufferSize)
	var notifier pubsub.Notifier = ps
	ts := selectors.NewTypingSelector(opts.MemoTTL)
	if opts.Prometheus {
		notifier = pubsub.NewPromNotifier(ps, "store")
		ts.RegisterPrometheus()
	}
	st := store.New(nil, notifier)
	h := handler.NewTypingHandler(st, ts)

	go ts.Start()
	go func() {
		if err := h.Listen(ps); err != nil {
			logger.Err(err).Msg("state listener exited")
		}
	}()
	return h, func() {
		h.Teardown()
		notifier.Close()
		ts.Stop()
		if opts.Prometheus {
			ts.UnregisterPrometheus()
		}
	}
}

// RunTypingServer is the main entry point to the server
func RunTypingServer(h *handler.TypingHandler, bindAddr string) {
	r := mux.NewRouter()
	r.PathPrefix("/").Handler(allowCORS(h.Router()))

	sentryHandler := sentryhttp.New(sentryhttp.Options{
		Repanic: true,
	})

	srv := &server{
		chain: []func(next http.Handler) http.Handler{
			func(next http.Handler) http.Handler {
				return otelhttp.NewHandler(next, "typingd")
			},
			func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					next.ServeHTTP(w, req.WithContext(internal.RequestContext(req.Context())))
				})
			},
			hlog.NewHandler(logger),
			hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
				if r.Method == "OPTIONS" {
					return
				}
				entry := internal.DecorateLogger(r.Context(), hlog.FromRequest(r).Info())
				entry.Str("method", r.Method).
					Int("status", status).
					Int("size", size).
					Dur("duration", duration).
					Str("path", r.URL.Path).
					Msg("")
			}),
			hlog.RemoteAddrHandler("ip"),
			sentryHandler.Handle,
		},
		final: r,
	}

	// Block forever
	logger.Info().Msgf("listening on %s", bindAddr)
	if err := http.ListenAndServe(bindAddr, srv); err != nil {
		logger.Fatal().Err(err).Msg("failed to listen and serve")
	}
}
