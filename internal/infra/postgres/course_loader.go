package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"course-progress-service/internal/domain"
	"course-progress-service/internal/evaluator"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// CourseLoader loads course JSONB from Postgres.
type CourseLoader struct {
	pool *pgxpool.Pool
}

func NewCourseLoader(pool *pgxpool.Pool) *CourseLoader {
	return &CourseLoader{pool: pool}
}

// LoadCourse reads and checks the course document; malformed content never reaches learners.
func (l *CourseLoader) LoadCourse(ctx context.Context, courseID string) (domain.Course, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM courses WHERE id=$1`, courseID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Course{}, domain.ErrCourseNotFound
	}
	if err != nil {
		return domain.Course{}, fmt.Errorf("load course: %w", err)
	}
	var course domain.Course
	if err := json.Unmarshal(raw, &course); err != nil {
		return domain.Course{}, fmt.Errorf("unmarshal course: %w", err)
	}
	if course.ID == "" {
		course.ID = courseID
	}
	if err := evaluator.ValidateCourse(course); err != nil {
		return domain.Course{}, err
	}
	return course, nil
}

// OpenBun opens a bun handle over the pgdriver connector; callers close it.
func OpenBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

type courseRow struct {
	bun.BaseModel `bun:"table:courses"`

	ID        string          `bun:"id,pk"`
	Data      json.RawMessage `bun:"data,type:jsonb"`
	UpdatedAt time.Time       `bun:"updated_at"`
}

// SaveCourse validates the course and inserts or replaces its document.
func SaveCourse(ctx context.Context, db bun.IDB, course domain.Course) error {
	if course.ID == "" {
		return fmt.Errorf("%w: course id is required", domain.ErrInvalidQuestion)
	}
	if err := evaluator.ValidateCourse(course); err != nil {
		return err
	}
	data, err := json.Marshal(course)
	if err != nil {
		return err
	}
	row := courseRow{ID: course.ID, Data: data, UpdatedAt: time.Now().UTC()}
	_, err = db.NewInsert().
		Model(&row).
		On("CONFLICT (id) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save course %s: %w", course.ID, err)
	}
	return nil
}
