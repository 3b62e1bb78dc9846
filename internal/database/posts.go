package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"galaxy/internal/models"
)

// insertTimestamped inserts a row into table, writing ts into every timestamp
// column the on-disk table has. Databases from older revisions only carry the
// legacy column; partially migrated ones carry both.
func (s *Store) insertTimestamped(ctx context.Context, table string, columns []string, values []any, ts time.Time) (int, error) {
	tsCols, err := s.timestampColumns(ctx, table)
	if err != nil {
		return 0, err
	}
	stamp := formatTimestamp(ts)
	for _, c := range tsCols {
		columns = append(columns, fmt.Sprintf("%q", c))
		values = append(values, stamp)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders(len(values)))
	res, err := s.db.ExecContext(ctx, query, values...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return int(id), nil
}

// InsertPost stores a post in group. A blank title is replaced by
// models.DefaultPostTitle.
func (s *Store) InsertPost(ctx context.Context, userID int, group, title, content string, ts time.Time) (int, error) {
	if strings.TrimSpace(title) == "" {
		title = models.DefaultPostTitle
	}
	return s.insertTimestamped(ctx, "posts",
		[]string{"user_id", "profession_group", "title", "content"},
		[]any{userID, group, title, content}, ts)
}

// ListPosts returns the posts of a group, newest first.
func (s *Store) ListPosts(ctx context.Context, group string) ([]models.Post, error) {
	tsCols, err := s.timestampColumns(ctx, "posts")
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT p.id, p.user_id, p.profession_group, COALESCE(p.title, '%s'), p.content, %s AS ts, COALESCE(u.username, '')
		FROM posts p
		JOIN users u ON p.user_id = u.id
		WHERE p.profession_group = ?
		ORDER BY ts DESC, p.id DESC`, models.DefaultPostTitle, timestampExpr("p", tsCols))

	rows, err := s.db.QueryContext(ctx, query, group)
	if err != nil {
		return nil, fmt.Errorf("failed to load posts: %w", err)
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var p models.Post
		var ts sql.NullString
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProfessionGroup, &p.Title, &p.Content, &ts, &p.Author); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		p.CreatedAt = parseTimestamp(ts)
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// GetPostGroup returns the profession group a post was made in.
func (s *Store) GetPostGroup(ctx context.Context, postID int) (string, error) {
	var group string
	err := s.db.QueryRowContext(ctx, "SELECT profession_group FROM posts WHERE id = ?", postID).Scan(&group)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to load group of post %d: %w", postID, err)
	}
	return group, nil
}

func (s *Store) CountPosts(ctx context.Context, group string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts WHERE profession_group = ?", group).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

func (s *Store) InsertComment(ctx context.Context, postID, userID int, content string, ts time.Time) (int, error) {
	return s.insertTimestamped(ctx, "comments",
		[]string{"post_id", "user_id", "content"},
		[]any{postID, userID, content}, ts)
}

// ListComments returns the comments of a post, oldest first.
func (s *Store) ListComments(ctx context.Context, postID int) ([]models.Comment, error) {
	byPost, err := s.ListCommentsForPosts(ctx, []int{postID})
	if err != nil {
		return nil, err
	}
	return byPost[postID], nil
}

// ListCommentsForPosts loads the comments of several posts in one query,
// keyed by post id, each list oldest first.
func (s *Store) ListCommentsForPosts(ctx context.Context, postIDs []int) (map[int][]models.Comment, error) {
	result := make(map[int][]models.Comment, len(postIDs))
	if len(postIDs) == 0 {
		return result, nil
	}

	tsCols, err := s.timestampColumns(ctx, "comments")
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT c.id, c.post_id, c.user_id, c.content, %s AS ts, COALESCE(u.username, '')
		FROM comments c
		JOIN users u ON c.user_id = u.id
		WHERE c.post_id IN (%s)
		ORDER BY c.post_id, ts ASC, c.id ASC`, timestampExpr("c", tsCols), placeholders(len(postIDs)))

	args := make([]any, len(postIDs))
	for i, id := range postIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Comment
		var ts sql.NullString
		if err := rows.Scan(&c.ID, &c.PostID, &c.UserID, &c.Content, &ts, &c.Author); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.CreatedAt = parseTimestamp(ts)
		result[c.PostID] = append(result[c.PostID], c)
	}
	return result, rows.Err()
}

func (s *Store) CountComments(ctx context.Context, postID int) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM comments WHERE post_id = ?", postID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return n, nil
}
