package server

import (
	"errors"
	log "github.com/sirupsen/logrus"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"snapgram/errs"
	"snapgram/session"
	"snapgram/utils"
	"strconv"
)

func sendError(w http.ResponseWriter, errorCode int, message string) {
	log.Info(message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errorCode)
	resp := map[string]string{
		"error": message,
	}
	jsonResp := utils.ToJson(resp)
	w.Write(jsonResp)
}

// sendFailure maps a domain error onto its status code.
func sendFailure(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Errorf("Unexpected error serving request: %v", err)
	}
	sendError(w, status, err.Error())
}

func sendJson(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(utils.ToJson(value))
}

func getQueryItem(values url.Values, key string) *string {
	value := values[key]
	result := ""
	if len(value) == 1 {
		result = value[0]
	}
	return &result
}

// getLimit reads an optional positive integer query parameter.
func getLimit(values url.Values, defaultValue int) (int, error) {
	limitStr := *getQueryItem(values, "limit")
	if limitStr == "" {
		return defaultValue, nil
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return 0, errs.InvalidOperation("invalid limit param")
	}
	return limit, nil
}

func identity(r *http.Request) string {
	userID, _ := session.CurrentIdentity(r.Context())
	return userID
}

// parseUpload parses a multipart form and returns the optional "file" part.
// The caller closes the returned file when it is not nil.
func parseUpload(r *http.Request) (multipart.File, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, errs.InvalidOperation("invalid multipart form: %v", err)
	}
	file, _, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.InvalidOperation("invalid file: %v", err)
	}
	return file, nil
}

// readerOrNil keeps a missing upload a nil interface.
func readerOrNil(file multipart.File) io.Reader {
	if file == nil {
		return nil
	}
	return file
}
