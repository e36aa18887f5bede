package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"

	"github.com/banking/audit-risk-service/internal/config"
	"github.com/banking/audit-risk-service/internal/domain"
	"github.com/banking/audit-risk-service/internal/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DSN builds the connection URL for cfg. scheme is "postgres" for pgx and
// "pgx5" for the migration driver.
func DSN(cfg *config.DatabaseConfig, scheme string) string {
	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Database,
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Connect opens a connection pool and verifies it with a ping
func Connect(ctx context.Context, cfg *config.DatabaseConfig, log *logger.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(DSN(cfg, "postgres"))
	if err != nil {
		return nil, goerr.Wrap(err, "invalid database configuration")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, persistenceErr(err, "failed to create connection pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, persistenceErr(err, "database connection failed",
			goerr.V("host", cfg.Host), goerr.V("database", cfg.Database))
	}

	log.Info("Connected to PostgreSQL",
		logger.StringField("host", cfg.Host),
		logger.IntField("port", cfg.Port),
		logger.StringField("database", cfg.Database),
	)
	return pool, nil
}

// Migrate applies every pending schema migration
func Migrate(cfg *config.DatabaseConfig, log *logger.Logger) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return goerr.Wrap(err, "failed to open embedded migrations")
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, DSN(cfg, "pgx5"))
	if err != nil {
		return persistenceErr(err, "failed to create migrator")
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn("Failed to close migrator",
				logger.ErrorField(errors.Join(srcErr, dbErr)))
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("Database schema is up to date")
			return nil
		}
		return persistenceErr(err, "failed to apply migrations")
	}

	version, dirty, err := m.Version()
	if err != nil {
		return persistenceErr(err, "failed to read schema version")
	}
	log.Info("Database migrated",
		logger.IntField("version", int(version)),
		logger.StringField("dirty", fmt.Sprint(dirty)),
	)
	return nil
}

// persistenceErr tags err as a store failure while keeping the driver error reachable
func persistenceErr(err error, msg string, opts ...goerr.Option) error {
	return goerr.Wrap(errors.Join(domain.ErrPersistence, err), msg, opts...)
}
