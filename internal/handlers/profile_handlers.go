package handlers

import (
	"errors"
	"net/http"

	"galaxy/internal/auth"
	"galaxy/internal/models"
)

// Dashboard shows the user's own star and the other members of their group.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	members, err := h.store.ListGroupMembers(r.Context(), user.ProfessionGroup, user.ID)
	if err != nil {
		h.Render500(w, r, err)
		return
	}
	posts, err := h.store.CountPosts(r.Context(), user.ProfessionGroup)
	if err != nil {
		h.Render500(w, r, err)
		return
	}
	h.render(w, http.StatusOK, "dashboard.html", TemplateData{
		Title:     "Dashboard",
		User:      user,
		Members:   members,
		PostCount: posts,
	})
}

// UserInfoForm displays the profile form.
func (h *Handler) UserInfoForm(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	h.render(w, http.StatusOK, "user_info.html", TemplateData{
		Title:   "Profile",
		User:    user,
		Profile: profileOf(user),
		Groups:  h.cfg.Groups,
	})
}

// UpdateUserInfo processes the profile form.
func (h *Handler) UpdateUserInfo(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.Render400(w, r, "Malformed form.")
		return
	}
	submitted := models.Profile{
		RealName:        r.PostFormValue("real_name"),
		Username:        r.PostFormValue("username"),
		Profession:      r.PostFormValue("profession"),
		ProfessionGroup: r.PostFormValue("profession_group"),
		StarColor:       r.PostFormValue("star_color"),
	}

	profile, err := h.auth.UpdateProfile(r.Context(), user, submitted)
	if err != nil {
		var errMsg string
		var verr *auth.ValidationError
		switch {
		case errors.Is(err, auth.ErrUsernameTaken):
			errMsg = "Username already taken."
		case errors.As(err, &verr):
			errMsg = verr.Msg
		default:
			h.Render500(w, r, err)
			return
		}
		h.render(w, http.StatusBadRequest, "user_info.html", TemplateData{
			Title:   "Profile",
			User:    user,
			Error:   errMsg,
			Profile: profile,
			Groups:  h.cfg.Groups,
		})
		return
	}

	if profile.Username != user.Username {
		if err := h.sessions.Rename(r.Context(), user.ID, profile.Username); err != nil {
			h.Render500(w, r, err)
			return
		}
	}

	user.RealName = profile.RealName
	user.Username = profile.Username
	user.Profession = profile.Profession
	user.ProfessionGroup = profile.ProfessionGroup
	user.StarColor = profile.StarColor
	h.render(w, http.StatusOK, "user_info.html", TemplateData{
		Title:   "Profile",
		User:    user,
		Success: "Profile updated.",
		Profile: profile,
		Groups:  h.cfg.Groups,
	})
}

func profileOf(u *models.User) models.Profile {
	return models.Profile{
		RealName:        u.RealName,
		Username:        u.Username,
		Profession:      u.Profession,
		ProfessionGroup: u.ProfessionGroup,
		StarColor:       u.StarColor,
	}
}
