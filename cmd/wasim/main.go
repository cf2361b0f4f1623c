package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wasim/internal/api"
	"wasim/internal/config"
	"wasim/internal/core"
	"wasim/internal/dispatch"
	"wasim/internal/identity"
	"wasim/internal/metrics"
	"wasim/internal/payload"
	"wasim/internal/progress"
	"wasim/internal/store"
)

const (
	ExitSuccess     = 0
	ExitUnitsFailed = 1
	ExitError       = 2
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	webhook := flag.String("webhook", "", "webhook URL to dispatch to (overrides config)")
	users := flag.Int("users", 0, "number of simulated users (overrides config)")
	messages := flag.Int("messages", 0, "messages per user (overrides config)")
	waveDelay := flag.Duration("wave-delay", 0, "pause between message waves (overrides config)")
	deadline := flag.Duration("deadline", 0, "max wait for replies after dispatch (overrides config)")
	concurrency := flag.Int("concurrency", 0, "parallel senders (overrides config)")
	rps := flag.Int("rps", 0, "dispatch rate cap, 0 = unlimited (overrides config)")
	output := flag.String("output", "text", "output format: text, json")
	quiet := flag.Bool("quiet", false, "suppress progress output during the run")
	verbose := flag.Bool("verbose", false, "enable debug output (request/response logging)")
	serve := flag.Bool("serve", false, "run the HTTP API instead of a one-shot stress run")
	send := flag.String("send", "", "send a single message and exit")
	sendType := flag.String("send-type", "text", "single-send payload type: text, audio, image")
	listen := flag.String("listen", "", "serve-mode listen address (overrides config)")
	storeBackend := flag.String("store", "", "store backend: memory, redis (overrides config)")
	redisAddr := flag.String("redis-addr", "", "redis address (overrides config)")
	flag.Parse()

	if *output != "text" && *output != "json" {
		fmt.Fprintf(os.Stderr, "error: --output must be 'text' or 'json', got %q\n", *output)
		os.Exit(ExitError)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(ExitError)
	}
	applyOverrides(cfg, *webhook, *users, *messages, *waveDelay, *deadline, *concurrency, *rps, *listen, *storeBackend, *redisAddr)

	st, cleanup, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(ExitError)
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	interrupted := false
	go func() {
		<-sigCh
		interrupted = true
		if !*quiet {
			fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down...")
		}
		cancel()
	}()

	if *serve {
		srv := api.New(*cfg, st)
		fmt.Fprintf(os.Stderr, "wasim API listening on %s\n", cfg.Server.Listen)
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(ExitError)
		}
		os.Exit(ExitSuccess)
	}

	if cfg.WebhookURL == "" {
		fmt.Fprintln(os.Stderr, "error: a webhook URL is required (--webhook or config)")
		flag.Usage()
		os.Exit(ExitError)
	}

	if *send != "" {
		if err := sendOne(ctx, cfg, st, *send, *sendType); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(ExitError)
		}
		os.Exit(ExitSuccess)
	}

	var debugLogger *dispatch.DebugLogger
	if *verbose {
		debugLogger = dispatch.NewDebugLogger(os.Stderr)
	}

	prog := progress.NewReporter(*quiet)

	runCfg := dispatch.RunConfig{
		WebhookURL:      cfg.WebhookURL,
		Users:           cfg.Run.Users,
		MessagesPerUser: cfg.Run.MessagesPerUser,
		WaveDelay:       cfg.Run.WaveDelay,
		Deadline:        cfg.Run.Deadline,
		Concurrency:     cfg.Run.Concurrency,
		RPS:             cfg.Run.RPS,
		SampleMessages:  cfg.SampleMessages,
	}

	sess := &dispatch.Session{
		Dispatcher: &dispatch.Dispatcher{
			Client: &http.Client{Timeout: 30 * time.Second},
			Store:  st,
			Clock:  core.RealClock{},
			Debug:  debugLogger,
		},
		Store:          st,
		Clock:          core.RealClock{},
		OnProgress:     prog.Update,
		OnDispatchDone: prog.MarkDispatchDone,
	}

	prog.Printf("wasim starting: %d users x %d messages -> %s (deadline %v)",
		runCfg.Users, runCfg.MessagesPerUser, runCfg.WebhookURL, runCfg.Deadline)
	prog.Start()

	report, err := sess.Execute(ctx, runCfg)
	prog.Stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(ExitError)
	}

	if *output == "json" {
		if err := metrics.FormatJSON(os.Stdout, report.Summary); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(ExitError)
		}
	} else {
		metrics.FormatText(os.Stdout, report.Summary)
	}

	if interrupted {
		os.Exit(ExitSuccess)
	}
	if report.Summary.ErrorCount > 0 || report.Summary.NoResponseCount > 0 {
		if *output == "text" {
			fmt.Fprintln(os.Stderr, "\nSome units did not complete successfully.")
		}
		os.Exit(ExitUnitsFailed)
	}
	os.Exit(ExitSuccess)
}

// sendOne posts a single synthetic message outside of any stress run.
func sendOne(ctx context.Context, cfg *config.Config, st core.Store, message, msgType string) error {
	var gen identity.Generator
	phone := gen.PhoneID()
	now := time.Now()

	in := payload.Input{
		PhoneID:     phone,
		DisplayName: identity.DisplayName(1),
		MessageID:   gen.MessageID(),
		Body:        message,
		Timestamp:   now,
	}

	var env payload.Envelope
	switch msgType {
	case "text":
		env = payload.TextMessage(in)
	case "audio":
		env = payload.AudioMessage(in)
	case "image":
		env = payload.ImageMessage(in)
	default:
		return fmt.Errorf("unknown --send-type %q", msgType)
	}

	buf, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sending to %s: %w", cfg.WebhookURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	rec := core.Record{
		Phone:     phone,
		Body:      message,
		Timestamp: now,
		Direction: core.DirectionOutbound,
		SentAtMs:  now.UnixMilli(),
	}
	if err := st.Append(ctx, rec); err != nil {
		fmt.Fprintf(os.Stderr, "warning: outbound record not persisted: %v\n", err)
	}

	fmt.Printf("sent %s message as %s (%s): %s\n", msgType, phone, in.MessageID, resp.Status)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func applyOverrides(cfg *config.Config, webhook string, users, messages int, waveDelay, deadline time.Duration, concurrency, rps int, listen, backend, redisAddr string) {
	if webhook != "" {
		cfg.WebhookURL = webhook
	}
	if users > 0 {
		cfg.Run.Users = users
	}
	if messages > 0 {
		cfg.Run.MessagesPerUser = messages
	}
	if waveDelay > 0 {
		cfg.Run.WaveDelay = waveDelay
	}
	if deadline > 0 {
		cfg.Run.Deadline = deadline
	}
	if concurrency > 0 {
		cfg.Run.Concurrency = concurrency
	}
	if rps > 0 {
		cfg.Run.RPS = rps
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if backend != "" {
		cfg.Store.Backend = backend
	}
	if redisAddr != "" {
		cfg.Store.Addr = redisAddr
	}
}

func openStore(cfg *config.Config) (core.Store, func(), error) {
	switch cfg.Store.Backend {
	case "", "memory":
		return store.NewMemory(), func() {}, nil
	case "redis":
		rs := store.NewRedis(cfg.Store.Addr, cfg.Store.Password, cfg.Store.DB, cfg.Store.KeyPrefix)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Store.Addr, err)
		}
		return rs, func() { rs.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
