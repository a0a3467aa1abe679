package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed sql/0004_add_submission_notified.sql
var addSubmissionNotifiedSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, addSubmissionNotifiedSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `ALTER TABLE quiz_submissions DROP COLUMN IF EXISTS notified_at`)
			return err
		},
	)
}
