package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"galaxy/internal/auth"
)

// Index sends visitors to the login page.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusFound)
}

// RegisterForm displays the registration form.
func (h *Handler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "register.html", TemplateData{Title: "Register", Groups: h.cfg.Groups})
}

// Register processes the registration form.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.Render400(w, r, "Malformed form.")
		return
	}
	form := auth.Registration{
		RealName:        r.PostFormValue("real_name"),
		Username:        r.PostFormValue("username"),
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		Profession:      r.PostFormValue("profession"),
		ProfessionGroup: r.PostFormValue("profession_group"),
	}

	user, err := h.auth.Register(r.Context(), form)
	if err != nil {
		var errMsg string
		var verr *auth.ValidationError
		switch {
		case errors.Is(err, auth.ErrAlreadyRegistered):
			errMsg = "Email or username already registered."
		case errors.As(err, &verr):
			errMsg = verr.Msg
		default:
			h.Render500(w, r, err)
			return
		}
		h.log.Info("registration rejected", zap.Error(err))
		form.Password = ""
		h.render(w, http.StatusBadRequest, "register.html", TemplateData{
			Title:  "Register",
			Error:  errMsg,
			Form:   form.Normalize(),
			Groups: h.cfg.Groups,
		})
		return
	}

	h.render(w, http.StatusOK, "register_success.html", TemplateData{Title: "Welcome", Group: user.ProfessionGroup})
}

// LoginForm displays the login form.
func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "login.html", TemplateData{Title: "Log in"})
}

// Login processes the login form.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.Render400(w, r, "Malformed form.")
		return
	}
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	user, err := h.auth.Login(r.Context(), email, password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			h.Render500(w, r, err)
			return
		}
		h.log.Info("login failed", zap.String("email", email))
		h.render(w, http.StatusUnauthorized, "login.html", TemplateData{
			Title: "Log in",
			Error: "Invalid email or password.",
			Form:  auth.Registration{Email: email},
		})
		return
	}

	if _, err := h.sessions.Start(r.Context(), w, user.ID, user.Username); err != nil {
		h.Render500(w, r, err)
		return
	}
	h.log.Info("user logged in", zap.Int("user_id", user.ID))
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// Logout ends the session and returns to the login page.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(r.Context(), w, r); err != nil {
		h.log.Error("failed to delete session", zap.Error(err))
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

// Forget shows that self-service password reset is not available.
func (h *Handler) Forget(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "forget.html", TemplateData{Title: "Forgot password"})
}

// Contents describes the site and lists its galaxies.
func (h *Handler) Contents(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "contents.html", TemplateData{Title: "Contents", Groups: h.cfg.Groups})
}
