// README: Applies the embedded goose migrations through the pgx database/sql driver.
package infra

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"tripshare/migrations"
)

func Migrate(ctx context.Context, dsn string, log logrus.FieldLogger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	for _, r := range results {
		log.WithFields(logrus.Fields{
			"version":     r.Source.Version,
			"duration_ms": r.Duration.Milliseconds(),
		}).Info("migration applied")
	}
	return nil
}
