package models

import "time"

// DefaultPostTitle is stored when a post is submitted without a title.
const DefaultPostTitle = "Untitled"

type Post struct {
	ID              int
	UserID          int
	ProfessionGroup string // group of the feed the post was made in
	Title           string
	Content         string
	CreatedAt       time.Time
	Author          string    // Username of the author
	Comments        []Comment // filled by feed views only
}
