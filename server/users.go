package server

import (
	"encoding/json"
	"net/http"
	"snapgram/authoring"
	"snapgram/errs"
	"snapgram/storage/models"
)

type createUserRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	ImageURL string `json:"image_url"`
}

type createUserResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.authoring.CreateUser(r.Context(), authoring.NewUser{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		sendFailure(w, err)
		return
	}
	token, err := s.sessions.Issue(user.ID)
	if err != nil {
		sendFailure(w, err)
		return
	}
	sendJson(w, http.StatusCreated, createUserResponse{User: user, Token: token})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := getLimit(r.URL.Query(), 0)
	if err != nil {
		sendFailure(w, err)
		return
	}
	users, err := s.facade.Users(r.Context(), identity(r), limit)
	if err != nil {
		sendFailure(w, err)
		return
	}
	sendJson(w, http.StatusOK, users)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.facade.Profile(r.Context(), r.PathValue("id"))
	if err != nil {
		sendFailure(w, err)
		return
	}
	sendJson(w, http.StatusOK, profile)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	file, err := parseUpload(r)
	if err != nil {
		sendFailure(w, err)
		return
	}
	if file != nil {
		defer file.Close()
	}

	user, err := s.authoring.UpdateUser(r.Context(), authoring.UserUpdate{
		UserID:      r.PathValue("id"),
		RequesterID: identity(r),
		Name:        r.FormValue("name"),
		Username:    r.FormValue("username"),
		Email:       r.FormValue("email"),
		Bio:         r.FormValue("bio"),
		File:        readerOrNil(file),
	})
	if err != nil {
		sendFailure(w, err)
		return
	}
	sendJson(w, http.StatusOK, user)
}

func (s *Server) toggleFollow(w http.ResponseWriter, r *http.Request) {
	result, err := s.graph.ToggleFollow(r.Context(), identity(r), r.PathValue("id"))
	if err != nil {
		sendFailure(w, err)
		return
	}
	sendJson(w, http.StatusOK, result)
}

func (s *Server) isFollowing(w http.ResponseWriter, r *http.Request) {
	following, err := s.graph.IsFollowing(r.Context(), identity(r), r.PathValue("id"))
	if err != nil {
		sendFailure(w, err)
		return
	}
	sendJson(w, http.StatusOK, map[string]bool{"following": following})
}

func (s *Server) getFollowers(w http.ResponseWriter, r *http.Request) {
	users, err := s.facade.Followers(r.Context(), r.PathValue("id"))
	if err != nil {
		sendFailure(w, err)
		return
	}
	sendJson(w, http.StatusOK, users)
}

func (s *Server) getFollowing(w http.ResponseWriter, r *http.Request) {
	users, err := s.facade.Following(r.Context(), r.PathValue("id"))
	if err != nil {
		sendFailure(w, err)
		return
	}
	sendJson(w, http.StatusOK, users)
}

func (s *Server) getSavedPosts(w http.ResponseWriter, r *http.Request) {
	saved, err := s.facade.SavedPosts(r.Context(), identity(r), r.PathValue("id"))
	if err != nil {
		sendFailure(w, err)
		return
	}
	sendJson(w, http.StatusOK, saved)
}

func (s *Server) deleteSavedRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.engagement.SavedRecord(r.Context(), r.PathValue("id"))
	if err != nil {
		sendFailure(w, err)
		return
	}
	// Foreign records look exactly like missing ones
	if record.UserID != identity(r) {
		sendFailure(w, errs.NotFound("saved record", record.ID))
		return
	}
	if _, err := s.engagement.DeleteSavedRecord(r.Context(), record.ID); err != nil {
		sendFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
