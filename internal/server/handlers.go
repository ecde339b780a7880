package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aerovision/detect-worker/internal/errors"
	"github.com/aerovision/detect-worker/internal/pipeline"
)

// uploadExts are the file extensions accepted by /web/predict: rasters plus
// their world-file sidecars.
var uploadExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".pgw":  true,
	".jgw":  true,
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePredict accepts a multipart upload of rasters and world files,
// registers a task and returns its id. A full queue maps to 503 so clients
// can back off and retry.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "failed to parse multipart form: "+err.Error())
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "no files uploaded")
		return
	}

	outputType := r.FormValue("output_type")
	if outputType == "" {
		outputType = "json"
	}
	if outputType != "json" && outputType != "txt" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST",
			fmt.Sprintf("output_type must be json or txt, got %q", outputType))
		return
	}

	taskID := uuid.New().String()
	inputDir := filepath.Join(s.cfg.UploadDir, taskID)
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "STORAGE_FAILED", "failed to create upload directory")
		return
	}

	for _, fh := range files {
		if err := saveUpload(fh, inputDir); err != nil {
			os.RemoveAll(inputDir)
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
	}

	job := pipeline.Job{
		TaskID:          taskID,
		InputDir:        inputDir,
		OutputDir:       filepath.Join(s.cfg.WorkDir, taskID),
		ScreenThreshold: s.cfg.ScreenThreshold,
		DetectThreshold: s.cfg.DetectThreshold,
		DedupeIoU:       s.cfg.DedupeIoU,
		OutputType:      outputType,
	}

	submitted, err := s.orch.Submit(job)
	if err != nil {
		os.RemoveAll(inputDir)
		if errors.IsQueueFull(err) {
			writeError(w, http.StatusServiceUnavailable, string(errors.ErrorQueueFull), err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id": submitted.ID,
		"status":  string(submitted.Status),
	})
}

// saveUpload stores one multipart file into dir, rejecting unsupported
// extensions and path-like names.
func saveUpload(fh *multipart.FileHeader, dir string) error {
	name := filepath.Base(fh.Filename)
	if name == "" || name == "." || strings.ContainsAny(fh.Filename, "/\\") {
		return fmt.Errorf("invalid file name %q", fh.Filename)
	}
	if !uploadExts[strings.ToLower(filepath.Ext(name))] {
		return fmt.Errorf("unsupported file type %q", name)
	}

	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("failed to read upload %s: %w", name, err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to store upload %s: %w", name, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to store upload %s: %w", name, err)
	}
	return nil
}

type statusResponse struct {
	TaskID        string `json:"task_id"`
	Status        string `json:"status"`
	Stage         string `json:"stage,omitempty"`
	Progress      int    `json:"progress"`
	Error         string `json:"error,omitempty"`
	DownloadToken string `json:"download_token,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	t, err := s.orch.Status(taskID)
	if err != nil {
		if errors.IsTaskNotFound(err) {
			writeError(w, http.StatusNotFound, string(errors.ErrorTaskNotFound), err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		TaskID:        t.ID,
		Status:        string(t.Status),
		Stage:         t.Stage,
		Progress:      t.Progress,
		Error:         t.Error,
		DownloadToken: t.DownloadToken,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	t, err := s.orch.Cancel(taskID)
	if err != nil {
		if errors.IsTaskNotFound(err) {
			writeError(w, http.StatusNotFound, string(errors.ErrorTaskNotFound), err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"task_id": t.ID,
		"status":  string(t.Status),
	})
}

// handleDownload serves a result archive for a valid signed token.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	tokenString := chi.URLParam(r, "token")

	_, archiveName, err := s.signer.Verify(tokenString)
	if err != nil {
		writeError(w, http.StatusUnauthorized, string(errors.ErrorTokenExpired),
			"download token is expired or invalid")
		return
	}

	path, err := s.archives.Path(archiveName)
	if err != nil {
		// Valid token but the archive aged out of retention.
		writeError(w, http.StatusNotFound, string(errors.ErrorTaskNotFound),
			"archive no longer available")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archiveName))
	http.ServeFile(w, r, path)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error_code": code,
		"message":    message,
	})
}
