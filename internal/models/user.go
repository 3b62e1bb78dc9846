package models

// User is a registered member of a profession group.
type User struct {
	ID              int
	RealName        string
	Username        string
	Email           string
	Password        string // bcrypt hash; never rendered
	Profession      string
	ProfessionGroup string
	StarColor       string
}

// Profile holds the fields a user may change after registration.
type Profile struct {
	RealName        string
	Username        string
	Profession      string
	ProfessionGroup string
	StarColor       string
}
