package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"galaxy/internal/models"
)

// Timestamp columns in preference order. Older databases stored post and
// comment times in "timestamp"; current ones use "created_at".
const (
	primaryTimestampColumn = "created_at"
	legacyTimestampColumn  = "timestamp"
)

type columnSpec struct {
	table      string
	name       string
	definition string
}

// requiredColumns lists every column a current table needs beyond what the
// oldest known revision of that table had. SQLite cannot add UNIQUE columns,
// so uniqueness is restored by the indexes in migrationIndexes.
var requiredColumns = []columnSpec{
	{"users", "real_name", "TEXT NOT NULL DEFAULT ''"},
	{"users", "username", "TEXT"},
	{"users", "profession", "TEXT NOT NULL DEFAULT ''"},
	{"users", "profession_group", "TEXT NOT NULL DEFAULT 'other'"},
	{"users", "star_color", "TEXT"},
	{"posts", "profession_group", "TEXT NOT NULL DEFAULT 'other'"},
	{"posts", "title", "TEXT NOT NULL DEFAULT '" + models.DefaultPostTitle + "'"},
	{"posts", primaryTimestampColumn, "TIMESTAMP"},
	{"comments", primaryTimestampColumn, "TIMESTAMP"},
	{"reactions", "type", "TEXT DEFAULT '" + models.DefaultReactionType + "'"},
	{"reactions", primaryTimestampColumn, "TIMESTAMP"},
	{"sessions", "username", "TEXT NOT NULL DEFAULT ''"},
}

var migrationIndexes = []struct {
	name   string
	create string
}{
	{"idx_users_username", "CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(username)"},
	{"idx_users_email", "CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email)"},
	{"idx_users_group", "CREATE INDEX IF NOT EXISTS idx_users_group ON users(profession_group)"},
	{"idx_posts_group_created", "CREATE INDEX IF NOT EXISTS idx_posts_group_created ON posts(profession_group, created_at)"},
	{"idx_comments_post_created", "CREATE INDEX IF NOT EXISTS idx_comments_post_created ON comments(post_id, created_at)"},
}

// MigrateSchema adds the columns newer revisions need to tables created by
// older ones and copies legacy "timestamp" values into "created_at". Running
// it again on a migrated database changes nothing.
func (s *Store) MigrateSchema(ctx context.Context) error {
	for _, col := range requiredColumns {
		if err := s.addColumnIfNotExists(ctx, col.table, col.name, col.definition); err != nil {
			return fmt.Errorf("error adding %s column to %s: %w", col.name, col.table, err)
		}
	}

	for _, table := range []string{"posts", "comments"} {
		if err := s.backfillCreatedAt(ctx, table); err != nil {
			return fmt.Errorf("error backfilling %s.created_at: %w", table, err)
		}
	}

	for _, idx := range migrationIndexes {
		if _, err := s.db.ExecContext(ctx, idx.create); err != nil {
			// Legacy rows may already violate a new unique index. The
			// application still checks for duplicates before inserting.
			s.log.Warn("could not create index", zap.String("index", idx.name), zap.Error(err))
		}
	}

	s.log.Info("migrations applied")
	return nil
}

// addColumnIfNotExists adds a column to a table unless it is already there.
func (s *Store) addColumnIfNotExists(ctx context.Context, table, column, definition string) error {
	cols, err := s.tableColumns(ctx, table)
	if err != nil {
		return err
	}
	if len(cols) == 0 || cols[column] {
		// No table yet: InitializeSchema creates it in its current form.
		return nil
	}

	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %q %s", table, column, definition)
	if _, err := s.db.ExecContext(ctx, alter); err != nil {
		return fmt.Errorf("error adding column: %w", err)
	}
	s.log.Info("added column", zap.String("table", table), zap.String("column", column))
	return nil
}

// backfillCreatedAt fills created_at from the legacy column, rewriting each
// value in the canonical layout so that ordering by text stays chronological.
// Values that cannot be parsed are copied unchanged.
func (s *Store) backfillCreatedAt(ctx context.Context, table string) error {
	cols, err := s.tableColumns(ctx, table)
	if err != nil {
		return err
	}
	if !cols[legacyTimestampColumn] || !cols[primaryTimestampColumn] {
		return nil
	}

	type legacyRow struct {
		id    int
		stamp sql.NullString
	}
	query := fmt.Sprintf(`SELECT id, CAST("timestamp" AS TEXT) FROM %s WHERE created_at IS NULL AND "timestamp" IS NOT NULL`, table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	var pending []legacyRow
	for rows.Next() {
		var lr legacyRow
		if err := rows.Scan(&lr.id, &lr.stamp); err != nil {
			rows.Close()
			return err
		}
		pending = append(pending, lr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	update := fmt.Sprintf("UPDATE %s SET created_at = ? WHERE id = ?", table)
	for _, lr := range pending {
		value := lr.stamp.String
		if t := parseTimestamp(lr.stamp); !t.IsZero() {
			value = formatTimestamp(t)
		} else {
			s.log.Warn("unparseable legacy timestamp", zap.String("table", table), zap.Int("id", lr.id), zap.String("value", value))
		}
		if _, err := s.db.ExecContext(ctx, update, value, lr.id); err != nil {
			return err
		}
	}
	if len(pending) > 0 {
		s.log.Info("backfilled created_at from legacy timestamp", zap.String("table", table), zap.Int("rows", len(pending)))
	}
	return nil
}

// tableColumns returns the set of column names of a table. A missing table
// yields an empty set.
func (s *Store) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("error reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("error scanning column of %s: %w", table, err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// timestampColumns returns the timestamp columns present in table, primary
// first.
func (s *Store) timestampColumns(ctx context.Context, table string) ([]string, error) {
	cols, err := s.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	var present []string
	for _, name := range []string{primaryTimestampColumn, legacyTimestampColumn} {
		if cols[name] {
			present = append(present, name)
		}
	}
	if len(present) == 0 {
		return nil, fmt.Errorf("table %s has no timestamp column", table)
	}
	return present, nil
}

// timestampExpr builds the read expression for a table alias: the primary
// column, falling back to the legacy one where the primary is NULL.
func timestampExpr(alias string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%s.%q", alias, c)
	}
	if len(quoted) == 1 {
		return quoted[0]
	}
	return "COALESCE(" + strings.Join(quoted, ", ") + ")"
}
