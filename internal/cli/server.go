package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"treasure-quest-service/internal/app"
	"treasure-quest-service/internal/config"
	"treasure-quest-service/internal/domain"
	"treasure-quest-service/internal/infra/memory"
	pgloader "treasure-quest-service/internal/infra/postgres"
	redisinfra "treasure-quest-service/internal/infra/redis"
	transport "treasure-quest-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestions())
	if cfg.Questions.File != "" {
		loader = memory.NewFileQuestionLoader(cfg.Questions.File)
	}
	if pool != nil {
		loader = pgloader.NewQuestionLoader(pool)
	}

	questionTTL := config.Duration(cfg.Questions.TTL, 10*time.Minute)
	var bank app.QuestionBank
	if redisClient != nil {
		bank = redisinfra.NewQuestionBank(redisClient, loader, questionTTL)
	} else {
		bank = memory.NewQuestionBank(loader, questionTTL)
	}

	var subLobbies app.SubLobbyStore
	if redisClient != nil {
		subLobbies = redisinfra.NewSubLobbyStore(redisClient)
	} else {
		subLobbies = memory.NewSubLobbyStore()
	}

	var auth app.Authenticator = memory.NewStaticAuthenticator(sampleIdentities())
	if pool != nil {
		auth = pgloader.NewCredentialStore(pool)
	}

	hub := app.NewHub()
	lobby := app.NewLobbyTracker(hub, subLobbies)
	if err := lobby.Restore(ctx); err != nil {
		log.Printf("sub-lobby restore failed: %v", err)
	}
	game := app.NewGameService(lobby, bank, hub)

	grace := config.Duration(cfg.Game.Grace, 5*time.Second)
	registry := app.NewRegistry(auth, grace, game.HandleDeparture)

	wsHandler := transport.NewWSHandler(registry, lobby, game, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body><h2>Session server running on port %s</h2></body></html>", finalPort)
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting session server on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuestions provides a minimal chapter1/level1 chest catalog; swap in
// the file or database loader for real deployments.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "chest1", ChapterID: "chapter1", LevelID: "level1", Title: "Concave mirror", Description: "Where do parallel rays converge after reflecting off a concave mirror?", Answer: "focal point"},
		{ID: "chest2", ChapterID: "chapter1", LevelID: "level1", Title: "Plane mirror", Description: "What kind of image does a plane mirror form?", Answer: "virtual"},
		{ID: "chest3", ChapterID: "chapter1", LevelID: "level1", Title: "Law of reflection", Description: "The angle of incidence equals the angle of what?", Answer: "reflection"},
		{ID: "chest4", ChapterID: "chapter1", LevelID: "level1", Title: "Convex mirror", Description: "Are images in a convex mirror upright or inverted?", Answer: "upright"},
	}
}

// sampleIdentities provides dev credentials; production uses the postgres
// credential store.
func sampleIdentities() map[string]domain.Identity {
	return map[string]domain.Identity{
		"teacher-token": {ID: "t1", Name: "Teacher", Section: "A", Role: domain.RoleTeacher},
		"student-token": {ID: "s1", Name: "Student One", Section: "A", Role: domain.RoleStudent},
	}
}
