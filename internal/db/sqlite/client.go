package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"

	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"

	"github.com/modguard/modguard/internal/db"
	"github.com/modguard/modguard/internal/infra"
	"github.com/modguard/modguard/resources"

	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteClient struct {
	db *sqlx.DB
}

func NewSQLiteClient(dbPath string) *sqliteClient {
	dbx, err := sqlx.Open("sqlite", filepath.Join(infra.GetWorkDir(), dbPath))
	if err != nil {
		log.WithError(err).Fatalln("cant open db")
	}
	dbx.SetMaxOpenConns(42)

	migrationsSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: resources.FS,
		Root:       "migrations",
	}
	n, err := migrate.Exec(dbx.DB, "sqlite3", migrationsSource, migrate.Up)
	if err != nil {
		log.WithError(err).Fatalln("migrate up failed")
	}
	if n > 0 {
		log.Infof("applied %d migrations!", n)
	}

	return &sqliteClient{db: dbx}
}

func (c *sqliteClient) GetPolicy(ctx context.Context, chatID int64) (*db.ChatPolicy, error) {
	res := &db.ChatPolicy{}
	err := c.db.GetContext(ctx, res, `
		SELECT chat_id, banned_words_enabled, link_filter_enabled, virustotal_enabled,
		       spam_filter_enabled, toxicity_enabled, warnings_enabled,
		       mute_duration_seconds, toxicity_threshold
		FROM chat_policies WHERE chat_id=?`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get policy")
	}
	return res, nil
}

func (c *sqliteClient) SetPolicy(ctx context.Context, policy *db.ChatPolicy) error {
	query := `
		INSERT INTO chat_policies (
			chat_id, banned_words_enabled, link_filter_enabled, virustotal_enabled,
			spam_filter_enabled, toxicity_enabled, warnings_enabled,
			mute_duration_seconds, toxicity_threshold
		)
		VALUES (
			:chat_id, :banned_words_enabled, :link_filter_enabled, :virustotal_enabled,
			:spam_filter_enabled, :toxicity_enabled, :warnings_enabled,
			:mute_duration_seconds, :toxicity_threshold
		)
		ON CONFLICT(chat_id) DO UPDATE SET
		banned_words_enabled=excluded.banned_words_enabled,
		link_filter_enabled=excluded.link_filter_enabled,
		virustotal_enabled=excluded.virustotal_enabled,
		spam_filter_enabled=excluded.spam_filter_enabled,
		toxicity_enabled=excluded.toxicity_enabled,
		warnings_enabled=excluded.warnings_enabled,
		mute_duration_seconds=excluded.mute_duration_seconds,
		toxicity_threshold=excluded.toxicity_threshold;
	`
	return tool.Err(c.db.NamedExecContext(ctx, query, policy))
}

func (c *sqliteClient) Close() error {
	return c.db.Close()
}
