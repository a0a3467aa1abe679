package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"course-progress-service/internal/config"
	"course-progress-service/internal/domain"
	"course-progress-service/internal/infra/postgres"
	infraredis "course-progress-service/internal/infra/redis"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewSeedCourseCmd loads a course document from a JSON file into Postgres.
func NewSeedCourseCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-course <course.json>",
		Short: "Validate a course JSON file and store it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeedCourse(cmd.Context(), *configPath, args[0])
		},
	}
}

func runSeedCourse(ctx context.Context, configPath, coursePath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	raw, err := os.ReadFile(coursePath)
	if err != nil {
		return err
	}
	var course domain.Course
	if err := json.Unmarshal(raw, &course); err != nil {
		return fmt.Errorf("parse %s: %w", coursePath, err)
	}

	db := postgres.OpenBun(cfg.Postgres.URL)
	defer db.Close()
	if err := postgres.SaveCourse(ctx, db, course); err != nil {
		return err
	}

	// drop the cached copy so running servers pick up the new structure
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer client.Close()
		if err := infraredis.NewCourseRepository(client, nil, 0).Invalidate(ctx, course.ID); err != nil {
			log.Printf("course cache invalidate for %s: %v", course.ID, err)
		}
	}
	log.Printf("course %s seeded", course.ID)
	return nil
}
