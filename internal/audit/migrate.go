package audit

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// schemaV1 takes the database-creation epoch as the lower bound on
// received_on.
const schemaV1 = `
CREATE TABLE request (
    -- id is just an integer primary key:
    id                 INTEGER NOT NULL PRIMARY KEY,

    -- UNIX time the request was received:
    received_on        INTEGER NOT NULL CHECK (received_on >= %d) DEFAULT (cast(strftime('%%s', 'now') as int)),

    -- The shortest URL imaginable is ftp://x: 3 for the scheme, 3 for
    -- the separator, 1 for the host.
    url                TEXT    NOT NULL CHECK (length(url) >= 7),

    -- The medium through which the request was received:
    medium             TEXT    NOT NULL CHECK (length(medium) > 0) COLLATE NOCASE,

    -- Schema version of identifier, tied to the medium:
    identifier_version INTEGER NOT NULL CHECK (identifier_version > 0),

    -- JSON object uniquely identifying the sender and the message within
    -- the medium, e.g. {"chat_id": 76868987, "message_id": 8754}:
    identifier         TEXT    NOT NULL CHECK (length(identifier) > 0)
);`

// migrate upgrades the database from whatever user_version it holds up to
// latestUserVersion, inside one transaction. Steps marked FROZEN must never
// be altered: change the schema by adding a new version, or start a fresh
// database and import.
func migrate(conn *sql.DB) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("audit migrate: %w", err)
	}
	defer tx.Rollback()

	userVersion := func() (int, error) {
		var v int
		err := tx.QueryRow("PRAGMA user_version;").Scan(&v)
		return v, err
	}

	for {
		v, err := userVersion()
		if err != nil {
			return fmt.Errorf("audit migrate: read user_version: %w", err)
		}
		if v >= latestUserVersion {
			break
		}

		switch v {
		// FROZEN
		case 0:
			slog.Info("initialising the audit database")
			if _, err := tx.Exec(fmt.Sprintf(schemaV1, time.Now().Unix())); err != nil {
				return fmt.Errorf("audit migrate v0->v1: %w", err)
			}
			if _, err := tx.Exec("CREATE INDEX received_on__idx ON request (received_on ASC);"); err != nil {
				return fmt.Errorf("audit migrate v0->v1: %w", err)
			}
			if _, err := tx.Exec("CREATE INDEX medium__identifier_version__idx ON request (medium, identifier_version);"); err != nil {
				return fmt.Errorf("audit migrate v0->v1: %w", err)
			}
			if _, err := tx.Exec("PRAGMA user_version = 1;"); err != nil {
				return fmt.Errorf("audit migrate v0->v1: %w", err)
			}

		default:
			return fmt.Errorf("audit migrate: no step from user_version %d", v)
		}
	}

	return tx.Commit()
}
