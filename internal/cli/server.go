package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course-progress-service/internal/app"
	"course-progress-service/internal/config"
	"course-progress-service/internal/domain"
	"course-progress-service/internal/infra/memory"
	"course-progress-service/internal/infra/postgres"
	infraredis "course-progress-service/internal/infra/redis"
	transport "course-progress-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the course progress server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// notificationChannel is what both notifier implementations provide.
type notificationChannel interface {
	app.Notifier
	transport.NotificationSource
}

// remoteStore is the persistence API backing progress, answers and submissions.
type remoteStore interface {
	app.ProgressStore
	app.AnswerStore
	app.SubmissionStore
}

// localStore keeps snapshots and quiz buffers.
type localStore interface {
	app.SnapshotStore
	app.BufferStore
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
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.CourseLoader = memory.NewStaticCourseLoader(sampleCourses())
	var remote remoteStore = memory.NewStore()
	if pool != nil {
		loader = postgres.NewCourseLoader(pool)
		remote = postgres.NewStore(pool)
	}

	courseTTL := config.TTLDuration(cfg.Course.TTL, 10*time.Minute)
	localTTL := config.TTLDuration(cfg.Local.TTL, 7*24*time.Hour)
	idle := config.TTLDuration(cfg.Local.Idle, 30*time.Minute)

	var courses app.CourseRepository
	var local localStore
	var notifications notificationChannel
	if redisClient != nil {
		courses = infraredis.NewCourseRepository(redisClient, loader, courseTTL)
		local = infraredis.NewLocalStore(redisClient, localTTL)
		notifications = infraredis.NewNotifier(redisClient)
	} else {
		courses = memory.NewCourseRepository(loader, courseTTL)
		local = memory.NewLocalStore()
		notifications = memory.NewNotificationHub()
	}

	var quizOpts []app.QuizOption
	if cfg.Quiz.MaxParallel > 0 {
		quizOpts = append(quizOpts, app.WithMaxParallel(cfg.Quiz.MaxParallel))
	}

	progress := app.NewProgressCache(remote, local)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go evictIdleLearners(sweepCtx, progress, idle)
	progression := app.NewProgressionService(courses, progress, remote)
	quizzes := app.NewQuizService(local, remote, remote, progression, quizOpts...)
	feedback := app.NewFeedbackService(remote, remote, notifications)

	router := transport.NewRouter(transport.RouterConfig{
		Learners:       transport.NewLearnerHandler(progression, quizzes, progress),
		Instructors:    transport.NewInstructorHandler(feedback),
		Notifications:  transport.NewWSHandler(notifications),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: websocket connections stay open
	}

	go func() {
		log.Printf("starting course progress service on :%s", finalPort)
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

// evictIdleLearners drops cached learners that went quiet, until ctx is done.
func evictIdleLearners(ctx context.Context, progress *app.ProgressCache, idle time.Duration) {
	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := progress.EvictIdle(idle); n > 0 {
				log.Printf("progress cache: evicted %d idle learners", n)
			}
		}
	}
}

// sampleCourses is the demo content served when no database is configured.
func sampleCourses() map[string]domain.Course {
	return map[string]domain.Course{
		"course-1": {
			ID:     "course-1",
			Title:  "First steps",
			Active: true,
			Chapters: []domain.Chapter{
				{
					ID:    "chapter-1",
					Title: "Getting started",
					Lessons: []domain.Lesson{
						{ID: "welcome", Title: "Welcome", Type: domain.LessonInstructional},
						{
							ID:    "warm-up",
							Title: "Warm-up",
							Type:  domain.LessonPractice,
							Questions: []domain.Question{
								{
									ID:      "q1",
									Variant: domain.VariantMultipleChoice,
									Prompt:  "What is 2 + 2?",
									MultipleChoice: &domain.MultipleChoice{
										Options: []string{"3", "4", "5"},
										Correct: "4",
									},
								},
								{
									ID:        "q2",
									Variant:   domain.VariantTrueFalse,
									Prompt:    "The sky is blue.",
									TrueFalse: &domain.TrueFalse{Correct: true},
								},
							},
						},
					},
				},
				{
					ID:    "chapter-2",
					Title: "Check yourself",
					Lessons: []domain.Lesson{
						{
							ID:    "checkpoint",
							Title: "Checkpoint quiz",
							Type:  domain.LessonQuiz,
							Questions: []domain.Question{
								{
									ID:      "q1",
									Variant: domain.VariantFillTyping,
									Prompt:  "Fill in the animals.",
									FillBlank: &domain.FillBlank{
										Text:   "The {1} chased the {2}.",
										Blanks: []domain.Blank{{ID: "1", Value: "cat"}, {ID: "2", Value: "mouse"}},
									},
								},
								{
									ID:      "q2",
									Variant: domain.VariantOpenEnded,
									Prompt:  "What did you learn today?",
								},
							},
						},
					},
				},
			},
		},
	}
}
