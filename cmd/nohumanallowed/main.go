package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/facebookgo/flagenv"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sebest/xff"

	"github.com/chattyClaw/nohumanallowed"
	"github.com/chattyClaw/nohumanallowed/internal"
	"github.com/chattyClaw/nohumanallowed/lib"
)

var (
	bind                = flag.String("bind", ":8923", "network address to bind HTTP to")
	bindNetwork         = flag.String("bind-network", "tcp", "network family to bind HTTP to, e.g. unix, tcp")
	socketMode          = flag.String("socket-mode", "0770", "socket mode (permissions) for unix domain sockets")
	challengeDifficulty = flag.Int("difficulty", nohumanallowed.DefaultDifficulty, "difficulty of issued challenges (leading zero hex characters)")
	challengeExpiry     = flag.Duration("challenge-expiry", nohumanallowed.DefaultChallengeTTL, "how long an issued challenge stays solvable")
	secret              = flag.String("secret", "", "HMAC secret for signing challenges and session tokens, strongly recommended")
	requireSignature    = flag.Bool("require-signature", false, "reject challenge submissions that carry no signature")
	tokenMaxAge         = flag.Duration("token-max-age", nohumanallowed.DefaultTokenMaxAge, "how old a session token may be before it is rejected")
	cookieName          = flag.String("cookie-name", nohumanallowed.CookieName, "name of the session token cookie")
	cookieDomain        = flag.String("cookie-domain", "", "if set, the domain the session cookie is valid for")
	cookieSecure        = flag.Bool("cookie-secure", true, "if true, sets the secure flag on session cookies")
	basePrefix          = flag.String("base-prefix", "", "base prefix (root URL) the gate is served under e.g. /mygate")
	configFname         = flag.String("config-fname", "", "path to a YAML config file, overrides the tuning flags")
	target              = flag.String("target", "", "upstream to reverse proxy once the challenge is passed, empty disables proxying")
	metricsBind         = flag.String("metrics-bind", ":9090", "network address to bind metrics to")
	metricsBindNetwork  = flag.String("metrics-bind-network", "tcp", "network family for the metrics server to bind to")
	slogLevel           = flag.String("slog-level", "INFO", "logging level (see https://pkg.go.dev/log/slog#hdr-Levels)")
	useRemoteAddress    = flag.Bool("use-remote-address", false, "read the client's IP from the network request, for running without a load balancer")
	healthcheck         = flag.Bool("healthcheck", false, "run a health check against the metrics endpoint and exit")
	versionFlag         = flag.Bool("version", false, "print the version and exit")
)

func doHealthCheck() error {
	resp, err := http.Get("http://localhost" + *metricsBind + nohumanallowed.BasePrefix + "/metrics")
	if err != nil {
		return fmt.Errorf("failed to fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

func setupListener(network string, address string) (net.Listener, string) {
	formattedAddress := ""
	switch network {
	case "unix":
		formattedAddress = "unix:" + address
	case "tcp":
		formattedAddress = "http://localhost" + address
	default:
		formattedAddress = fmt.Sprintf(`(%s) %s`, network, address)
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		log.Fatalf("failed to bind to %s: %v", formattedAddress, err)
	}

	// if unix, set socket permissions
	if network == "unix" {
		mode, err := strconv.ParseUint(*socketMode, 8, 0)
		if err != nil {
			listener.Close()
			log.Fatalf("could not parse socket mode %s: %v", *socketMode, err)
		}

		err = os.Chmod(address, os.FileMode(mode))
		if err != nil {
			listener.Close()
			log.Fatalf("could not change socket mode: %v", err)
		}
	}

	return listener, formattedAddress
}

func makeReverseProxy(target string) (http.Handler, error) {
	targetURL, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("failed to parse target URL: %w", err)
	}

	rp := httputil.NewSingleHostReverseProxy(targetURL)
	rp.ErrorLog = internal.GetFilteredHTTPLogger()
	return rp, nil
}

func main() {
	flagenv.Parse()
	flag.Parse()

	if *versionFlag {
		fmt.Println("nohumanallowed", nohumanallowed.Version)
		return
	}

	internal.InitSlog(*slogLevel)

	if *healthcheck {
		log.Println("running healthcheck")
		if err := doHealthCheck(); err != nil {
			log.Fatal(err)
		}
		return
	}

	if *secret == "" {
		slog.Warn("no secret set, challenges and session tokens will be unsigned; set SECRET in production")
	}
	if *requireSignature && *secret == "" {
		log.Fatal("[misconfiguration] require-signature is set but no secret is given, every submission would be rejected")
	}

	cfg, err := lib.LoadConfigOrDefault(*configFname, *challengeDifficulty)
	if err != nil {
		log.Fatalf("can't load config: %v", err)
	}

	if *configFname == "" {
		cfg.ExpiresInSeconds = int(challengeExpiry.Seconds())
		cfg.MaxTokenAgeSeconds = int(tokenMaxAge.Seconds())
		cfg.RequireSignature = *requireSignature
	}

	var rp http.Handler
	if *target != "" {
		rp, err = makeReverseProxy(*target)
		if err != nil {
			log.Fatalf("can't make reverse proxy: %v", err)
		}
	}

	nohumanallowed.BasePrefix = *basePrefix
	nohumanallowed.CookieName = *cookieName

	s, err := lib.New(lib.Options{
		Next:         rp,
		Config:       cfg,
		Secret:       *secret,
		CookieName:   *cookieName,
		CookieDomain: *cookieDomain,
		CookieSecure: *cookieSecure,
		BasePrefix:   *basePrefix,
	})
	if err != nil {
		log.Fatalf("can't construct lib.Server: %v", err)
	}

	wg := new(sync.WaitGroup)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsBind != "" {
		wg.Add(1)
		go metricsServer(ctx, wg.Done)
	}

	var h http.Handler = s
	h = internal.XForwardedForToXRealIP(h)
	h = internal.RemoteXRealIP(*useRemoteAddress, *bindNetwork, h)

	xffmw, err := xff.Default()
	if err != nil {
		log.Fatalf("can't set up X-Forwarded-For handling: %v", err)
	}
	h = xffmw.Handler(h)

	// log a fingerprint instead of the secret so operators can tell
	// instances apart without leaking the key
	secretFingerprint := ""
	if *secret != "" {
		secretFingerprint = internal.FastHash(*secret)
	}

	srv := http.Server{Handler: h, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, listenerURL := setupListener(*bindNetwork, *bind)
	slog.Info(
		"listening",
		"url", listenerURL,
		"secret-fingerprint", secretFingerprint,
		"difficulty", cfg.Difficulty,
		"require-signature", cfg.RequireSignature,
		"challenge-expiry", cfg.ExpiresIn(),
		"token-max-age", cfg.MaxTokenAge(),
		"target", *target,
		"base-prefix", *basePrefix,
		"version", nohumanallowed.Version,
	)

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	wg.Wait()
}

func metricsServer(ctx context.Context, done func()) {
	defer done()

	mux := http.NewServeMux()
	mux.Handle(nohumanallowed.BasePrefix+"/metrics", promhttp.Handler())

	srv := http.Server{Handler: mux, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, metricsURL := setupListener(*metricsBindNetwork, *metricsBind)
	slog.Debug("listening for metrics", "url", metricsURL)

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down metrics server: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
