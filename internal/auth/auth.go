package auth

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"galaxy/internal/database"
	"galaxy/internal/models"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrAlreadyRegistered  = errors.New("email or username already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError describes why submitted form data was rejected. It matches
// ErrInvalidInput with errors.Is; Msg is safe to show to the user.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return ErrInvalidInput.Error() + ": " + e.Msg }

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[\p{L}0-9_]{3,20}$`) // Unicode letters, numbers, underscore
	colorRegex    = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// starColorDigits keeps generated colors light enough for the dark galaxy
// background.
const starColorDigits = "89ABCDEF"

// UserStore is the part of the storage layer the service needs.
type UserStore interface {
	FindUserByCredentials(ctx context.Context, email, password string) (*models.User, error)
	EmailOrUsernameExists(ctx context.Context, email, username string) (bool, error)
	InsertUser(ctx context.Context, u *models.User) (int, error)
	UpdateUserProfile(ctx context.Context, id int, p models.Profile) error
}

// Registration is the data submitted on the registration form.
type Registration struct {
	RealName        string
	Username        string
	Email           string
	Password        string
	Profession      string
	ProfessionGroup string
}

// Service implements registration, login and profile updates.
type Service struct {
	store  UserStore
	groups []string
	log    *zap.Logger
}

func NewService(store UserStore, groups []string, log *zap.Logger) *Service {
	return &Service{store: store, groups: groups, log: log}
}

// Normalize trims every field and lower-cases the email.
func (r Registration) Normalize() Registration {
	return Registration{
		RealName:        strings.TrimSpace(r.RealName),
		Username:        strings.TrimSpace(r.Username),
		Email:           strings.ToLower(strings.TrimSpace(r.Email)),
		Password:        r.Password,
		Profession:      strings.TrimSpace(r.Profession),
		ProfessionGroup: strings.ToLower(strings.TrimSpace(r.ProfessionGroup)),
	}
}

// ValidateRegistration checks that every required field is present and well formed.
func ValidateRegistration(r Registration, groups []string) error {
	if r.RealName == "" || r.Username == "" || r.Email == "" || r.Password == "" || r.Profession == "" || r.ProfessionGroup == "" {
		return invalid("All fields are required.")
	}
	if !emailRegex.MatchString(r.Email) || len(r.Email) > 254 {
		return invalid("Invalid email address.")
	}
	if !usernameRegex.MatchString(r.Username) {
		return invalid("Username must be 3-20 letters, numbers or underscores.")
	}
	if !contains(groups, r.ProfessionGroup) {
		return invalid("Unknown profession group %q.", r.ProfessionGroup)
	}
	return nil
}

// Register validates r and creates the user with a fresh star color.
func (s *Service) Register(ctx context.Context, r Registration) (*models.User, error) {
	r = r.Normalize()
	if err := ValidateRegistration(r, s.groups); err != nil {
		return nil, err
	}

	exists, err := s.store.EmailOrUsernameExists(ctx, r.Email, r.Username)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	if exists {
		return nil, ErrAlreadyRegistered
	}

	hashedPassword, err := database.HashPassword(r.Password)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	user := &models.User{
		RealName:        r.RealName,
		Username:        r.Username,
		Email:           r.Email,
		Password:        hashedPassword,
		Profession:      r.Profession,
		ProfessionGroup: r.ProfessionGroup,
		StarColor:       NewStarColor(),
	}
	id, err := s.store.InsertUser(ctx, user)
	if err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, database.ErrUniqueConstraint) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("auth: %w", err)
	}
	user.ID = id
	s.log.Info("user registered", zap.Int("user_id", id), zap.String("group", user.ProfessionGroup))
	return user, nil
}

// Login checks an email and password pair.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	// Matched case-insensitively by the store; older rows kept the case
	// the user typed.
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.store.FindUserByCredentials(ctx, email, password)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: %w", err)
	}
	return user, nil
}

// UpdateProfile validates and stores new profile fields. An empty star color
// keeps current.StarColor.
func (s *Service) UpdateProfile(ctx context.Context, current *models.User, p models.Profile) (models.Profile, error) {
	p.RealName = strings.TrimSpace(p.RealName)
	p.Username = strings.TrimSpace(p.Username)
	p.Profession = strings.TrimSpace(p.Profession)
	p.ProfessionGroup = strings.ToLower(strings.TrimSpace(p.ProfessionGroup))
	p.StarColor = strings.ToUpper(strings.TrimSpace(p.StarColor))
	if p.StarColor == "" {
		p.StarColor = current.StarColor
	}

	if p.RealName == "" || p.Username == "" || p.Profession == "" {
		return p, invalid("Name, username and profession are required.")
	}
	if !usernameRegex.MatchString(p.Username) {
		return p, invalid("Username must be 3-20 letters, numbers or underscores.")
	}
	if !contains(s.groups, p.ProfessionGroup) {
		return p, invalid("Unknown profession group %q.", p.ProfessionGroup)
	}
	if p.StarColor != "" && !colorRegex.MatchString(p.StarColor) {
		return p, invalid("Star color must look like #A1B2C3.")
	}

	if err := s.store.UpdateUserProfile(ctx, current.ID, p); err != nil {
		if errors.Is(err, database.ErrUniqueConstraint) {
			return p, ErrUsernameTaken
		}
		return p, fmt.Errorf("auth: %w", err)
	}
	return p, nil
}

// NewStarColor returns a random light color such as "#A9F8C3".
func NewStarColor() string {
	var b strings.Builder
	b.WriteByte('#')
	for i := 0; i < 6; i++ {
		b.WriteByte(starColorDigits[rand.IntN(len(starColorDigits))])
	}
	return b.String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
