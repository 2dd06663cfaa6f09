package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sipstack/sipstack/auth"
	"github.com/sipstack/sipstack/sip"
	"github.com/sipstack/sipstack/ua"
)

// sipcli is a manual probing tool: REGISTER, OPTIONS, INVITE and MESSAGE
// against one remote host, in that order, printing each response and
// hanging up any call it established before exiting. Grounded on
// _examples/emiago-sipgo/cmd/proxysip/main.go's flag/logger setup, with
// the request sequence taken from original_source/sipx/demo.py.
func main() {
	host := flag.String("host", "127.0.0.1", "Remote SIP host")
	port := flag.Int("port", 5060, "Remote SIP port")
	remoteURI := flag.String("uri", "", "Override remote SIP URI (default sip:host:port)")
	username := flag.String("username", "", "Digest auth username")
	password := flag.String("password", "", "Digest auth password")
	realm := flag.String("realm", "", "Digest auth realm (default any realm challenged)")
	displayName := flag.String("display-name", "sipcli", "Local From display name")
	message := flag.String("message", "Hello from sipcli", "MESSAGE payload")
	registerExpires := flag.Uint("register-expires", 300, "REGISTER Expires value, seconds")
	skipRegister := flag.Bool("skip-register", false, "Skip the REGISTER step")
	skipOptions := flag.Bool("skip-options", false, "Skip the OPTIONS step")
	skipInvite := flag.Bool("skip-invite", false, "Skip the INVITE step")
	skipMessage := flag.Bool("skip-message", false, "Skip the MESSAGE step")
	wait := flag.Duration("wait", 2*time.Second, "How long to wait for the call before hanging up")
	metricsAddr := flag.String("metrics-addr", "", "If set, serve Prometheus metrics on this address")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05.000",
	}).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	if *debug {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	}

	if err := run(runOptions{
		host: *host, port: *port, remoteURI: *remoteURI,
		username: *username, password: *password, realm: *realm,
		displayName: *displayName, message: *message,
		registerExpires: uint32(*registerExpires),
		skipRegister:    *skipRegister, skipOptions: *skipOptions,
		skipInvite: *skipInvite, skipMessage: *skipMessage,
		wait: *wait, metricsAddr: *metricsAddr,
	}); err != nil {
		log.Error().Err(err).Msg("sipcli: failed")
		os.Exit(1)
	}
}

type runOptions struct {
	host            string
	port            int
	remoteURI       string
	username        string
	password        string
	realm           string
	displayName     string
	message         string
	registerExpires uint32
	skipRegister    bool
	skipOptions     bool
	skipInvite      bool
	skipMessage     bool
	wait            time.Duration
	metricsAddr     string
}

func run(opts runOptions) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	uriStr := opts.remoteURI
	if uriStr == "" {
		uriStr = fmt.Sprintf("sip:%s:%d", opts.host, opts.port)
	}
	var uri sip.Uri
	if err := sip.ParseUri(uriStr, &uri); err != nil {
		return fmt.Errorf("parse remote uri %q: %w", uriStr, err)
	}

	uac, err := ua.NewUserAgent("sipcli", ua.WithUserAgentLogger(log.Logger))
	if err != nil {
		return fmt.Errorf("new user agent: %w", err)
	}
	defer uac.Close()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}
	go func() {
		if err := uac.Transport().ServeUDP(conn); err != nil {
			log.Error().Err(err).Msg("sipcli: udp transport closed")
		}
	}()
	defer conn.Close()

	clientOpts := []ua.ClientOption{
		ua.WithClientLogger(log.Logger),
		ua.WithClientContactUser(opts.username),
	}
	if opts.username != "" && opts.password != "" {
		creds := auth.Credentials{Username: opts.username, Password: opts.password}
		if opts.realm != "" {
			clientOpts = append(clientOpts, ua.WithClientRealmCredentials(opts.realm, creds))
		} else {
			clientOpts = append(clientOpts, ua.WithClientDefaultCredentials(creds))
		}
	}
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics := ua.NewMetrics(reg)
		clientOpts = append(clientOpts, ua.WithClientMetrics(metrics))
		go serveMetrics(opts.metricsAddr, reg)
	}

	client, err := ua.NewClient(uac, clientOpts...)
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	defer client.Close()

	client.On(ua.EventOptionsResponse, func(event any) {
		e := event.(ua.OptionsResponse)
		log.Info().Str("response", e.Response.Short()).Msg("OPTIONS response")
	})
	client.On(ua.EventSDPNegotiated, func(event any) {
		log.Info().Msg("SDP negotiated")
	})
	client.On(ua.EventCallHangup, func(event any) {
		e := event.(ua.CallHangup)
		log.Info().Bool("by_remote", e.ByRemote).Msg("call hangup")
	})

	if !opts.skipRegister && opts.username != "" {
		aor := sip.Uri{Scheme: "sip", User: opts.username, Host: uri.Host, Port: uri.Port}
		res, err := client.Register(ctx, ua.RegisterOptions{Registrar: uri, AOR: aor, ExpiresSeconds: opts.registerExpires})
		if err != nil {
			log.Warn().Err(err).Msg("REGISTER failed")
		} else {
			log.Info().Str("response", res.Short()).Msg("REGISTER")
		}
	}

	if !opts.skipOptions {
		if _, err := client.Options(ctx, uri, ua.OptionsOptions{FromDisplay: opts.displayName}); err != nil {
			log.Warn().Err(err).Msg("OPTIONS failed")
		}
	}

	var call *ua.Call
	if !opts.skipInvite {
		call, err = client.Invite(ctx, uri, ua.InviteOptions{FromDisplay: opts.displayName})
		if err != nil {
			log.Warn().Err(err).Msg("INVITE failed")
		} else {
			log.Info().Str("state", call.State()).Msg("INVITE")
		}
	}

	if !opts.skipMessage {
		res, err := client.Message(ctx, []byte(opts.message), uri, ua.MessageOptions{FromDisplay: opts.displayName})
		if err != nil {
			log.Warn().Err(err).Msg("MESSAGE failed")
		} else {
			log.Info().Str("response", res.Short()).Msg("MESSAGE")
		}
	}

	if call != nil && call.State() == ua.CallStateConnected {
		select {
		case <-time.After(opts.wait):
		case <-ctx.Done():
		}
		log.Info().Msg("sending BYE")
		if _, err := call.Bye(ctx); err != nil {
			log.Warn().Err(err).Msg("BYE failed")
		}
	}

	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Info().Str("addr", addr).Msg("sipcli: serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("sipcli: metrics server failed")
	}
}
