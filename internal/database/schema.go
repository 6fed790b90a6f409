package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate creates every table the service reads or writes.  Statements use
// IF NOT EXISTS so it is safe to run on every start.  Catalog tables (shows,
// songs, setlists) are normally populated by the external sync jobs; they
// are declared here so a fresh database is usable on its own.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS shows (
		id             BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		artist_id      BIGINT UNSIGNED NOT NULL,
		venue_id       BIGINT UNSIGNED NOT NULL,
		title          VARCHAR(255)    NOT NULL,
		starts_at      DATETIME        NOT NULL,
		status         ENUM('SCHEDULED','ONGOING','COMPLETED','CANCELLED') NOT NULL DEFAULT 'SCHEDULED',
		view_count     BIGINT UNSIGNED NOT NULL DEFAULT 0,
		trending_score BIGINT          NOT NULL DEFAULT 0,
		created_at     DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at     DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		KEY idx_shows_status_starts (status, starts_at),
		KEY idx_shows_trending (trending_score)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS songs (
		id        BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		artist_id BIGINT UNSIGNED NOT NULL,
		title     VARCHAR(255)    NOT NULL,
		PRIMARY KEY (id),
		KEY idx_songs_artist (artist_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS setlists (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		show_id    BIGINT UNSIGNED NOT NULL,
		kind       ENUM('MAIN','ENCORE') NOT NULL DEFAULT 'MAIN',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_setlists_show_kind (show_id, kind),
		CONSTRAINT fk_setlists_show FOREIGN KEY (show_id) REFERENCES shows (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS setlist_songs (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		setlist_id BIGINT UNSIGNED NOT NULL,
		song_id    BIGINT UNSIGNED NOT NULL,
		position   INT UNSIGNED    NOT NULL DEFAULT 0,
		vote_count INT UNSIGNED    NOT NULL DEFAULT 0,
		created_at DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_setlist_songs_song (setlist_id, song_id),
		CONSTRAINT fk_setlist_songs_setlist FOREIGN KEY (setlist_id) REFERENCES setlists (id) ON DELETE CASCADE,
		CONSTRAINT fk_setlist_songs_song FOREIGN KEY (song_id) REFERENCES songs (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	// uq_votes_user_song is the storage-level guard against double votes.
	`CREATE TABLE IF NOT EXISTS votes (
		id              BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		user_id         VARCHAR(64)     NOT NULL,
		setlist_song_id BIGINT UNSIGNED NOT NULL,
		show_id         BIGINT UNSIGNED NOT NULL,
		created_at      DATETIME(3)     NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_votes_user_song (user_id, setlist_song_id),
		KEY idx_votes_user_show (user_id, show_id),
		KEY idx_votes_user_created (user_id, created_at),
		CONSTRAINT fk_votes_setlist_song FOREIGN KEY (setlist_song_id) REFERENCES setlist_songs (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS vote_analytics (
		user_id    VARCHAR(64)     NOT NULL,
		show_id    BIGINT UNSIGNED NOT NULL,
		vote_day   DATE            NOT NULL,
		votes      INT UNSIGNED    NOT NULL DEFAULT 0,
		updated_at DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, show_id, vote_day)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS vote_ledger_locks (
		user_id    VARCHAR(64) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		PRIMARY KEY (user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
