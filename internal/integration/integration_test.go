package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"course-progress-service/internal/app"
	"course-progress-service/internal/domain"
	"course-progress-service/internal/infra/postgres"
	pgmigrations "course-progress-service/internal/infra/postgres/migrations"
	infraredis "course-progress-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun/migrate"
)

func TestQuizSubmissionAndReviewEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateAndSeed(t, ctx, pgURL, sampleCourse())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	store := postgres.NewStore(pool)
	courses := infraredis.NewCourseRepository(redisClient, postgres.NewCourseLoader(pool), 5*time.Minute)
	local := infraredis.NewLocalStore(redisClient, time.Hour)
	notifier := infraredis.NewNotifier(redisClient)

	progress := app.NewProgressCache(store, local)
	progression := app.NewProgressionService(courses, progress, store)
	quizzes := app.NewQuizService(local, store, store, progression)
	feedback := app.NewFeedbackService(store, store, notifier)

	if err := progress.Seed(ctx, "u1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := progression.Enroll(ctx, "u1", "course-1"); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if _, err := progression.CompleteInstructional(ctx, "u1", "course-1", "intro"); err != nil {
		t.Fatalf("complete intro: %v", err)
	}
	for id, answer := range map[string]domain.Answer{
		"q1": {Choice: "4"},
		"q2": {Text: "Because it is."},
	} {
		if _, err := quizzes.BufferAnswer(ctx, "u1", "course-1", "final", id, answer); err != nil {
			t.Fatalf("buffer %s: %v", id, err)
		}
	}

	res, err := quizzes.SubmitQuiz(ctx, "u1", "course-1", "final")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Completion.CourseCompleted {
		t.Fatalf("expected course completed, got %+v", res.Completion)
	}

	remote, err := store.GetLessonState(ctx, "u1", "final")
	if err != nil || !remote.Completed {
		t.Fatalf("expected quiz completed in postgres, got %+v err=%v", remote, err)
	}

	updates, cancel, err := notifier.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	ungraded, err := feedback.ListUngraded(ctx)
	if err != nil || len(ungraded) != 1 {
		t.Fatalf("expected one ungraded submission, got %d err=%v", len(ungraded), err)
	}
	answers, err := feedback.SubmissionAnswers(ctx, ungraded[0].ID)
	if err != nil || len(answers) != 2 {
		t.Fatalf("expected 2 answers, got %d err=%v", len(answers), err)
	}
	text := "Nice reasoning"
	for _, a := range answers {
		if a.QuestionID != "q2" {
			continue
		}
		updated, err := feedback.AttachFeedback(ctx, a.ID, &text, nil)
		if err != nil || updated.TeacherFeedback != text {
			t.Fatalf("attach feedback: %+v err=%v", updated, err)
		}
	}

	for i := 0; i < 2; i++ {
		sub, err := feedback.MarkChecked(ctx, ungraded[0].ID)
		if err != nil || !sub.IsChecked {
			t.Fatalf("mark checked #%d: %+v err=%v", i, sub, err)
		}
	}

	stored, err := store.GetSubmission(ctx, ungraded[0].ID)
	if err != nil || stored.NotifiedAt == nil {
		t.Fatalf("expected notification recorded in postgres, got %+v err=%v", stored, err)
	}

	select {
	case n := <-updates:
		if n.SubmissionID != ungraded[0].ID {
			t.Fatalf("unexpected notification %+v", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for notification")
	}
	history, err := notifier.Recent(ctx, "u1", 10)
	if err != nil || len(history) != 1 {
		t.Fatalf("expected one notification in history, got %d err=%v", len(history), err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "course", "POSTGRES_PASSWORD": "coursepass", "POSTGRES_DB": "coursedb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://course:coursepass@%s:%s/coursedb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s", host, port.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func migrateAndSeed(t *testing.T, ctx context.Context, dsn string, course domain.Course) {
	t.Helper()
	db := postgres.OpenBun(dsn)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := postgres.SaveCourse(ctx, db, course); err != nil {
		t.Fatalf("save course: %v", err)
	}
}

func sampleCourse() domain.Course {
	return domain.Course{
		ID:     "course-1",
		Title:  "Arithmetic",
		Active: true,
		Chapters: []domain.Chapter{
			{
				ID: "ch1",
				Lessons: []domain.Lesson{
					{ID: "intro", Type: domain.LessonInstructional},
					{
						ID:   "final",
						Type: domain.LessonQuiz,
						Questions: []domain.Question{
							{ID: "q1", Variant: domain.VariantMultipleChoice, Prompt: "What is 2 + 2?", MultipleChoice: &domain.MultipleChoice{Options: []string{"3", "4", "5"}, Correct: "4"}},
							{ID: "q2", Variant: domain.VariantOpenEnded, Prompt: "Why?"},
						},
					},
				},
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
