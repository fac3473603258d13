package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/sync/errgroup"

	"github.com/Chative-core-poc-v1/docagent/internal/agent/graph"
	"github.com/Chative-core-poc-v1/docagent/internal/agent/model"
	"github.com/Chative-core-poc-v1/docagent/internal/agent/repo"
	"github.com/Chative-core-poc-v1/docagent/internal/core"
	errx "github.com/Chative-core-poc-v1/docagent/internal/core/error"
	logx "github.com/Chative-core-poc-v1/docagent/pkg/logger"
	"github.com/Chative-core-poc-v1/docagent/pkg/metrics"
	"github.com/Chative-core-poc-v1/docagent/pkg/pdf"
	pkgredis "github.com/Chative-core-poc-v1/docagent/pkg/redis"
	"github.com/Chative-core-poc-v1/docagent/pkg/sqldb"
)

// AppConfig defines all configurable parameters for the agent,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis      pkgredis.Config
	Checkpoint model.CheckpointConfig

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Response     model.ResponseModelConfig
	Document     model.DocumentModelConfig
	Prompt       model.PromptConfig
	Conversation model.ConversationConfig
	Search       model.SearchConfig

	PDFMaxPages int `envconfig:"PDF_MAX_PAGES" default:"50"`
}

// CLI is the command line of the agent. Without a message argument it reads
// one message per line from stdin.
type CLI struct {
	Thread      string   `short:"t" help:"Conversation thread id. A new one is generated when empty."`
	Attach      []string `short:"a" help:"File path or base64 data URL to attach to the first message. Repeatable."`
	MetricsAddr string   `name:"metrics-addr" help:"Serve Prometheus metrics on this address, e.g. :9090."`
	EnvFile     string   `name:"env-file" default:".env" help:"Dotenv file to load before reading the environment."`

	Message []string `arg:"" optional:"" help:"Message to send. Starts an interactive session when omitted."`
}

const (
	resetCommand  = "/reset"
	dataURLPrefix = "data:"
)

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("docagent"),
		kong.Description("Career assistant that reads PDF resumes and answers with a hosted model."),
		kong.UsageOnError(),
	)

	if err := godotenv.Load(cli.EnvFile); err != nil {
		log.Printf("Warning: Could not load %s file: %v", cli.EnvFile, err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}
	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(envCfg.Environment)})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cli, envCfg); err != nil {
		logx.Fatal().Err(err).Msg("Agent stopped")
	}
}

func run(ctx context.Context, cli CLI, envCfg AppConfig) error {
	store, closeStore, err := openCheckpointStore(ctx, envCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New()
	runner, err := graph.BuildRunner(ctx, graph.Config{
		APIKey:          envCfg.APIKey,
		BaseURL:         envCfg.BaseURL,
		ResponseModel:   envCfg.Response,
		DocumentModel:   envCfg.Document,
		Prompt:          envCfg.Prompt,
		Conversation:    envCfg.Conversation,
		Search:          envCfg.Search,
		CheckpointStore: store,
		Extractor:       pdf.NewExtractor(envCfg.PDFMaxPages),
		Metrics:         m,
	})
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}

	threadID := strings.TrimSpace(cli.Thread)
	if threadID == "" {
		threadID = uuid.NewString()
	}
	logx.Info().Str("thread_id", threadID).Str("checkpoint_backend", envCfg.Checkpoint.Backend).Msg("Agent ready")

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(loopCtx)

	if cli.MetricsAddr != "" {
		srv := &http.Server{Addr: cli.MetricsAddr, Handler: metricsMux(m), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logx.Info().Str("addr", cli.MetricsAddr).Msg("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		// The metrics server lives as long as the conversation.
		defer cancel()
		session := &session{runner: runner, threadID: threadID, attachments: cli.Attach, out: os.Stdout}
		if len(cli.Message) > 0 {
			return session.turn(gctx, strings.Join(cli.Message, " "))
		}
		return session.interactive(gctx, os.Stdin)
	})

	return g.Wait()
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

// openCheckpointStore selects the store named by CHECKPOINT_BACKEND. The
// returned func releases its connections.
func openCheckpointStore(ctx context.Context, envCfg AppConfig) (model.CheckpointRepository, func(), error) {
	backend := strings.ToLower(strings.TrimSpace(envCfg.Checkpoint.Backend))
	switch backend {
	case "", "memory":
		return repo.NewMemoryCheckpointRepository(), func() {}, nil

	case "redis":
		ttl, err := time.ParseDuration(envCfg.Conversation.TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid CONVERSATION_TTL '%s': %w", envCfg.Conversation.TTL, err)
		}
		rdb, err := envCfg.Redis.New(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialise Redis client: %w", err)
		}
		logx.Info().Msg("Connected to Redis successfully")
		return repo.NewRedisCheckpointRepository(rdb, ttl, envCfg.Redis.KeyPrefix), func() { _ = rdb.Close() }, nil

	default:
		dialect, err := sqldb.DialectFor(backend)
		if err != nil {
			return nil, nil, err
		}
		db, err := sqldb.Open(ctx, sqldb.Config{
			Dialect: dialect,
			DSN:     envCfg.Checkpoint.DBURL,
			MaxOpen: envCfg.Checkpoint.MaxOpen,
			MaxIdle: envCfg.Checkpoint.MaxIdle,
		})
		if err != nil {
			return nil, nil, err
		}
		store, err := repo.NewSQLCheckpointRepository(ctx, db, dialect)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() { _ = db.Close() }, nil
	}
}

// session runs turns of one thread and prints the assistant replies.
type session struct {
	runner      *graph.Runner
	threadID    string
	attachments []string
	out         io.Writer
}

// turn sends text, plus any pending attachments, as one user message.
func (s *session) turn(ctx context.Context, text string) error {
	msg, err := buildUserMessage(text, s.attachments)
	if err != nil {
		return err
	}
	s.attachments = nil

	state, err := s.runner.RunTurn(ctx, s.threadID, msg)
	if err != nil {
		return err
	}
	if last := state.LastAssistant(); last != nil {
		fmt.Fprintln(s.out, last.Content.PlainText())
	}
	return nil
}

// interactive reads one message per line until EOF or cancellation. Failed
// turns are reported and the session goes on.
func (s *session) interactive(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == resetCommand:
			if err := s.runner.ResetThread(ctx, s.threadID); err != nil {
				return err
			}
			fmt.Fprintln(s.out, "Conversation cleared.")
			continue
		}

		if err := s.turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logx.Error().Err(err).Str("thread_id", s.threadID).Int("status", errx.StatusOf(err)).Msg("Turn failed")
			fmt.Fprintln(s.out, errx.TurnFailedMessage)
		}
	}
	return scanner.Err()
}

// buildUserMessage returns plain text content without attachments, and a
// text part followed by one file part per attachment otherwise. An attachment
// is a file path or a "data:<mime>;base64,..." URL.
func buildUserMessage(text string, paths []string) (model.Message, error) {
	if len(paths) == 0 {
		return model.UserMessage(text), nil
	}

	parts := make([]model.Part, 0, len(paths)+1)
	if strings.TrimSpace(text) != "" {
		parts = append(parts, model.NewTextPart(text))
	}
	for i, p := range paths {
		if strings.HasPrefix(p, dataURLPrefix) {
			part, err := model.NewFilePartFromBase64("", p, fmt.Sprintf("attachment-%d", i+1))
			if err != nil {
				return model.Message{}, err
			}
			parts = append(parts, part)
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return model.Message{}, fmt.Errorf("read attachment: %w", err)
		}
		parts = append(parts, model.NewFilePart(detectMIMEType(p, data), data, filepath.Base(p)))
	}

	content, err := model.PartsContent(parts...)
	if err != nil {
		return model.Message{}, err
	}
	return model.Message{Role: model.RoleUser, Content: content}, nil
}

func detectMIMEType(path string, data []byte) string {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return model.MIMETypePDF
	}
	mt := http.DetectContentType(data)
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return mt
}
