package models

import "time"

type Session struct {
	ID       int
	UserID   int
	Username string
	UUID     string
	Expires  time.Time
}
