package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zulip/typingsync"
	"github.com/zulip/typingsync/internal"
)

var GitCommit string

const version = "0.1.0"

const (
	// Optional fields
	EnvBindAddr  = "TYPINGD_BINDADDR"
	EnvLogLevel  = "TYPINGD_LOG_LEVEL"
	EnvProm      = "TYPINGD_PROM"
	EnvMemoTTL   = "TYPINGD_MEMO_TTL"
	EnvSentryDsn = "TYPINGD_SENTRY_DSN"
	EnvOTLP      = "TYPINGD_OTLP_URL"
	EnvOTLPUser  = "TYPINGD_OTLP_USERNAME"
	EnvOTLPPass  = "TYPINGD_OTLP_PASSWORD"
)

var helpMsg = fmt.Sprintf(`
Environment var
%s   Default: 0.0.0.0:8009. The interface and port to listen on.
%s  Default: info. The level of verbosity for messages logged. Available values are trace, debug, info, warn, error and fatal
%s       Default: unset. The bind addr for Prometheus metrics, which will be accessible at /metrics at this address.
%s   Default: 1m. How long memoised typing results are kept for, as a Go duration.
%s Default: unset. The Sentry DSN to report typing anomalies to.
%s   Default: unset. The OTLP HTTP URL to send spans to e.g https://localhost:4318 - if unset does not send OTLP traces.
%s Default: unset. The OTLP username for Basic auth. If unset, does not send an Authorization header.
%s Default: unset. The OTLP password for Basic auth. If unset, does not send an Authorization header.
`, EnvBindAddr, EnvLogLevel, EnvProm, EnvMemoTTL, EnvSentryDsn, EnvOTLP, EnvOTLPUser, EnvOTLPPass)

func defaulting(in, dft string) string {
	if in == "" {
		return dft
	}
	return in
}

func main() {
	fmt.Printf("Typing indicator service v%s (%s)\n", version, GitCommit)
	typingsync.Version = fmt.Sprintf("%s (%s)", version, GitCommit)
	args := map[string]string{
		EnvBindAddr:  defaulting(os.Getenv(EnvBindAddr), "0.0.0.0:8009"),
		EnvLogLevel:  defaulting(os.Getenv(EnvLogLevel), "info"),
		EnvProm:      os.Getenv(EnvProm),
		EnvMemoTTL:   defaulting(os.Getenv(EnvMemoTTL), "1m"),
		EnvSentryDsn: os.Getenv(EnvSentryDsn),
		EnvOTLP:      os.Getenv(EnvOTLP),
		EnvOTLPUser:  os.Getenv(EnvOTLPUser),
		EnvOTLPPass:  os.Getenv(EnvOTLPPass),
	}
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Print(helpMsg)
		os.Exit(0)
	}

	level, err := zerolog.ParseLevel(strings.ToLower(args[EnvLogLevel]))
	if err != nil {
		fmt.Printf("%s is not a valid log level: %s\n%s", EnvLogLevel, err, helpMsg)
		os.Exit(1)
	}
	zerolog.SetGlobalLevel(level)

	memoTTL, err := time.ParseDuration(args[EnvMemoTTL])
	if err != nil {
		fmt.Printf("%s is not a valid duration: %s\n%s", EnvMemoTTL, err, helpMsg)
		os.Exit(1)
	}

	if args[EnvOTLP] != "" {
		fmt.Printf("Configuring OTLP to %s\n", args[EnvOTLP])
		if err := internal.ConfigureOTLP(args[EnvOTLP], args[EnvOTLPUser], args[EnvOTLPPass], version); err != nil {
			panic(err)
		}
	}

	if args[EnvSentryDsn] != "" {
		fmt.Printf("Configuring Sentry reporter...\n")
		err := sentry.Init(sentry.ClientOptions{
			Dsn:     args[EnvSentryDsn],
			Release: version,
		})
		if err != nil {
			panic(err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if args[EnvProm] != "" {
		go func() {
			fmt.Printf("Starting prometheus listener on %s\n", args[EnvProm])
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(args[EnvProm], mux); err != nil {
				panic(err)
			}
		}()
	}

	h, stop := typingsync.Setup(typingsync.Opts{
		MemoTTL:    memoTTL,
		Prometheus: args[EnvProm] != "",
	})

	go typingsync.RunTypingServer(h, args[EnvBindAddr])

	fmt.Println("typingd ready")
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	fmt.Printf("Shutdown signal received...")
	stop()
	fmt.Println("exiting")
}
