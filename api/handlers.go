package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/TheoDgb/URLCustomDiscsAPI/admission"
	"github.com/TheoDgb/URLCustomDiscsAPI/metrics"
	"github.com/TheoDgb/URLCustomDiscsAPI/pipeline"
	"github.com/TheoDgb/URLCustomDiscsAPI/quota"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 64 << 10

// modelData accepts customModelData as a JSON number or a numeric string.
type modelData int

func (m *modelData) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*m = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("customModelData must be an integer, got %s", b)
	}
	*m = modelData(n)
	return nil
}

type registerBody struct {
	MCVersion string `json:"mcVersion"`
}

type createBody struct {
	URL             string    `json:"url"`
	DiscName        string    `json:"discName"`
	AudioType       string    `json:"audioType"`
	CustomModelData modelData `json:"customModelData"`
	Token           string    `json:"token"`
	MCVersion       string    `json:"mcVersion"`
}

type deleteBody struct {
	DiscName  string `json:"discName"`
	Token     string `json:"token"`
	MCVersion string `json:"mcVersion"`
}

type registerResponse struct {
	Success         bool     `json:"success"`
	Message         string   `json:"message"`
	Token           string   `json:"token"`
	DownloadPackURL string   `json:"downloadPackUrl"`
	Warnings        []string `json:"warnings,omitempty"`
}

type resultResponse struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Warnings []string `json:"warnings,omitempty"`
}

type statsResponse struct {
	Metrics   metrics.Snapshot `json:"metrics"`
	Admission *admission.Stats `json:"admission,omitempty"`
	Quota     *quota.Usage     `json:"quota,omitempty"`
}

// decode reads a JSON body into v. An empty body leaves v unchanged when
// allowEmpty is set.
func decode(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return fmt.Errorf("%w: invalid JSON body: %v", pipeline.ErrValidation, err)
	}
	return nil
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if code == pipeline.OutcomeInternal {
		h.logger.Error("unclassified failure", map[string]any{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
			"error":      err.Error(),
		})
	}
	writeError(w, status, code, msg)
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := decode(r, &body, true); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.cfg.Service.Register(r.Context(), pipeline.RegisterRequest{PlatformVersion: body.MCVersion})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{
		Success:         true,
		Message:         "Server registered successfully.",
		Token:           res.Token,
		DownloadPackURL: res.DownloadURL,
		Warnings:        res.Warnings,
	})
}

func (h *handler) createDisc(w http.ResponseWriter, r *http.Request) {
	var body createBody
	if err := decode(r, &body, false); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.cfg.Service.CreateDisc(r.Context(), pipeline.CreateDiscRequest{
		URL:             body.URL,
		DiscName:        body.DiscName,
		Mode:            body.AudioType,
		CustomModelData: int(body.CustomModelData),
		Token:           body.Token,
		PlatformVersion: body.MCVersion,
	})
	h.writeResult(w, r, res, err)
}

func (h *handler) deleteDisc(w http.ResponseWriter, r *http.Request) {
	var body deleteBody
	if err := decode(r, &body, false); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.cfg.Service.DeleteDisc(r.Context(), pipeline.DeleteDiscRequest{
		DiscName:        body.DiscName,
		Token:           body.Token,
		PlatformVersion: body.MCVersion,
	})
	h.writeResult(w, r, res, err)
}

// createDiscFromUpload streams the multipart body. The file part is saved
// under the upload dir and handed to the pipeline, which removes it.
func (h *handler) createDiscFromUpload(w http.ResponseWriter, r *http.Request) {
	limit := h.cfg.Service.Limits().MaxAudioBytes + UploadHeadroom
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	mr, err := r.MultipartReader()
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: expected a multipart/form-data body: %v", pipeline.ErrValidation, err))
		return
	}

	fields := map[string]string{}
	var audioPath string
	defer func() {
		// No-op once the pipeline has consumed the file.
		if audioPath != "" {
			_ = os.Remove(audioPath)
		}
	}()

	for {
		part, perr := mr.NextPart()
		if errors.Is(perr, io.EOF) {
			break
		}
		if perr != nil {
			h.failUpload(w, r, perr)
			return
		}
		name := part.FormName()
		if name == "file" {
			if audioPath != "" {
				_ = part.Close()
				h.fail(w, r, fmt.Errorf("%w: more than one file part", pipeline.ErrValidation))
				return
			}
			audioPath, perr = h.saveUpload(part)
			_ = part.Close()
			if perr != nil {
				h.failUpload(w, r, perr)
				return
			}
			continue
		}
		value, perr := io.ReadAll(io.LimitReader(part, 4<<10))
		_ = part.Close()
		if perr != nil {
			h.failUpload(w, r, perr)
			return
		}
		fields[name] = string(value)
	}

	var cmd modelData
	if err := cmd.UnmarshalJSON([]byte(fields["customModelData"])); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", pipeline.ErrValidation, err))
		return
	}
	res, err := h.cfg.Service.CreateDiscFromUpload(r.Context(), pipeline.UploadDiscRequest{
		AudioPath:       audioPath,
		DiscName:        fields["discName"],
		Mode:            fields["audioType"],
		CustomModelData: int(cmd),
		Token:           fields["token"],
		PlatformVersion: fields["mcVersion"],
	})
	h.writeResult(w, r, res, err)
}

func (h *handler) failUpload(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, pipeline.OutcomeValidation,
			fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		return
	}
	h.fail(w, r, fmt.Errorf("%w: read upload: %v", pipeline.ErrValidation, err))
}

func (h *handler) saveUpload(part *multipart.Part) (path string, err error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path = filepath.Join(h.uploadDir, uuid.NewString())
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
			path = ""
		}
	}()
	if _, err = io.Copy(f, part); err != nil {
		return "", err
	}
	return path, nil
}

func (h *handler) writeResult(w http.ResponseWriter, r *http.Request, res pipeline.Result, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Success: true, Message: res.Message, Warnings: res.Warnings})
}

func (h *handler) stats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{Metrics: h.cfg.Metrics.Snapshot()}
	if h.cfg.Admission != nil {
		st := h.cfg.Admission.Stats()
		resp.Admission = &st
	}
	if h.cfg.Quota != nil {
		if u, err := h.cfg.Quota.Usage(); err == nil {
			resp.Quota = &u
		} else {
			h.logger.Warn("quota usage unavailable", map[string]any{"error": err.Error()})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
