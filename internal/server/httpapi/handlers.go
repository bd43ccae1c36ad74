package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/objidx/internal/common"
	"github.com/dmitrijs2005/objidx/internal/server/services"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	var body uploadRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, r, common.Validationf("bad json: %v", err))
		return
	}

	req, err := body.toService()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if user := userFromContext(r.Context()); user != "" {
		req.Uploader.User = user
	}

	res, err := s.ingest.Ingest(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newUploadResult(res))
}

func (s *HTTPServer) handleObjectComplete(w http.ResponseWriter, r *http.Request) {
	var body completeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		s.writeError(w, r, common.Validationf("bad json: %v", err))
		return
	}
	if !body.Completed {
		s.writeError(w, r, common.Validationf("only {\"completed\": true} is accepted"))
		return
	}

	obj, err := s.ingest.CompleteIngestion(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newObjectView(obj, nil))
}

func (s *HTTPServer) handleObjectGet(w http.ResponseWriter, r *http.Request) {
	obj, files, err := s.query.GetObject(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newObjectView(obj, files))
}

func (s *HTTPServer) handleObjectList(w http.ResponseWriter, r *http.Request) {
	objs, err := s.query.FindObjectsByChecksum(r.Context(), r.URL.Query().Get("checksum"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]*objectView, 0, len(objs))
	for _, o := range objs {
		out = append(out, newObjectView(o, nil))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *HTTPServer) handleFileGet(w http.ResponseWriter, r *http.Request) {
	file, obj, err := s.query.GetFile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFileView(file, obj))
}

// handleFileList accepts ?url=<u> or ?extra=<key>=<value>.
func (s *HTTPServer) handleFileList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := services.FileFilter{URL: q.Get("url")}
	if tag := q.Get("extra"); tag != "" {
		key, value, ok := strings.Cut(tag, "=")
		if !ok || key == "" {
			s.writeError(w, r, common.Validationf("extra filter must be key=value"))
			return
		}
		filter.TagKey, filter.TagValue = key, value
	}

	files, err := s.query.SearchFiles(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]fileView, 0, len(files))
	for _, f := range files {
		out = append(out, newFileView(f, nil))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDownload answers with the locator, or redirects to a presigned URL
// when redirect is set.
func (s *HTTPServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect := queryBool(q.Get("redirect"))
	presigned := redirect || queryBool(q.Get("presigned"))

	loc, err := s.resolver.ResolveDownload(r.Context(), mux.Vars(r)["id"], presigned)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if redirect {
		http.Redirect(w, r, loc.URL, http.StatusTemporaryRedirect)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.pinger.PingContext(ctx); err != nil {
		s.logger.Warn(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
