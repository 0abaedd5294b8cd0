package server

import (
	"net/http"
	"snapgram/authoring"
	"snapgram/feeds"
)

func (s *Server) getFeed(w http.ResponseWriter, r *http.Request) {
	queryParams := r.URL.Query()
	limit, err := getLimit(queryParams, 0)
	if err != nil {
		sendFailure(w, err)
		return
	}

	filter := feeds.Filter{
		CreatorID: *getQueryItem(queryParams, "creator"),
		LikedBy:   *getQueryItem(queryParams, "liked_by"),
		Search:    *getQueryItem(queryParams, "q"),
	}
	page, err := s.facade.Feed(r.Context(), filter, *getQueryItem(queryParams, "cursor"), limit)
	if err != nil {
		sendFailure(w, err)
		return
	}
	sendJson(w, http.StatusOK, page)
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	file, err := parseUpload(r)
	if err != nil {
		sendFailure(w, err)
		return
	}
	if file != nil {
		defer file.Close()
	}

	post, err := s.authoring.CreatePost(r.Context(), authoring.NewPost{
		CreatorID: identity(r),
		Caption:   r.FormValue("caption"),
		Location:  r.FormValue("location"),
		Tags:      r.FormValue("tags"),
		File:      readerOrNil(file),
	})
	if err != nil {
		sendFailure(w, err)
		return
	}
	sendJson(w, http.StatusCreated, post)
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.facade.Post(r.Context(), r.PathValue("id"))
	if err != nil {
		sendFailure(w, err)
		return
	}
	sendJson(w, http.StatusOK, post)
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request) {
	file, err := parseUpload(r)
	if err != nil {
		sendFailure(w, err)
		return
	}
	if file != nil {
		defer file.Close()
	}

	post, err := s.authoring.UpdatePost(r.Context(), authoring.PostUpdate{
		PostID:      r.PathValue("id"),
		RequesterID: identity(r),
		Caption:     r.FormValue("caption"),
		Location:    r.FormValue("location"),
		Tags:        r.FormValue("tags"),
		File:        readerOrNil(file),
	})
	if err != nil {
		sendFailure(w, err)
		return
	}
	sendJson(w, http.StatusOK, post)
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	if err := s.authoring.DeletePost(r.Context(), r.PathValue("id"), identity(r)); err != nil {
		sendFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) toggleLike(w http.ResponseWriter, r *http.Request) {
	result, err := s.engagement.ToggleLike(r.Context(), r.PathValue("id"), identity(r))
	if err != nil {
		sendFailure(w, err)
		return
	}
	sendJson(w, http.StatusOK, result)
}

func (s *Server) toggleSave(w http.ResponseWriter, r *http.Request) {
	result, err := s.engagement.ToggleSave(r.Context(), r.PathValue("id"), identity(r))
	if err != nil {
		sendFailure(w, err)
		return
	}
	sendJson(w, http.StatusOK, result)
}

func (s *Server) isSaved(w http.ResponseWriter, r *http.Request) {
	saved, err := s.engagement.IsSaved(r.Context(), r.PathValue("id"), identity(r))
	if err != nil {
		sendFailure(w, err)
		return
	}
	sendJson(w, http.StatusOK, map[string]bool{"saved": saved})
}
