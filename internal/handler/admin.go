package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/olegsv/schoolquiz/internal/i18n"
	"github.com/olegsv/schoolquiz/internal/importer"
	"github.com/olegsv/schoolquiz/internal/model"
)

// handleSync rescans the tests directory and upserts a topic per file.
// Topics whose files were removed stay in place (attempts reference
// them); their missing file surfaces as "test unavailable" on access.
func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	files, err := h.files.Scan()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	synced := 0
	for _, f := range files {
		if err := h.store.UpsertTopic(f.Title, f.FileName, f.Mode); err != nil {
			continue
		}
		synced++
	}
	if err := h.store.RecordSync(time.Now()); err != nil {
		slog.Error("failed to record sync time", "error", err)
	}

	slog.Info("synced topics from files", "found", len(files), "synced", synced)
	respondJSON(w, http.StatusOK, map[string]any{
		"synced":  synced,
		"message": appI18n.Td(r.Context(), "SyncCompleted", map[string]any{"Count": synced}),
	})
}

func (h *Handler) handleToggleTopic(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "topicID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid topic ID")
		return
	}

	enabled, err := h.store.ToggleTopicEnabled(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": enabled})
}

func (h *Handler) handleSetAllTopics(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.store.SetAllTopicsEnabled(enabled); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
	}
}

// handleImportParse dry-runs an import blob: it reports the units and
// errors without touching the filesystem, so the admin can review
// before applying.
func (h *Handler) handleImportParse(w http.ResponseWriter, r *http.Request) {
	res := h.parseImportForm(w, r)
	if res == nil {
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handleImportApply parses the blob, writes the valid units under the
// tests root and resyncs topics. Bad blocks are reported alongside the
// created files; they never abort the batch.
func (h *Handler) handleImportApply(w http.ResponseWriter, r *http.Request) {
	res := h.parseImportForm(w, r)
	if res == nil {
		return
	}

	created, failed := h.imp.WriteAll(r.Context(), res.Units)

	if len(created) > 0 {
		files, err := h.files.Scan()
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, f := range files {
			_ = h.store.UpsertTopic(f.Title, f.FileName, f.Mode)
		}
		if err := h.store.RecordSync(time.Now()); err != nil {
			slog.Error("failed to record sync time", "error", err)
		}
	}

	slog.Info("applied test import", "created", len(created), "failed", len(failed), "parse_errors", len(res.Errors))
	respondJSON(w, http.StatusOK, map[string]any{
		"created":      created,
		"failed":       failed,
		"parse_errors": res.Errors,
	})
}

func (h *Handler) parseImportForm(w http.ResponseWriter, r *http.Request) *importer.Result {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form")
		return nil
	}
	text := r.FormValue("import_text")
	if text == "" {
		respondError(w, http.StatusBadRequest, appI18n.T(r.Context(), "NothingToImport"))
		return nil
	}
	res := importer.Parse(text)
	return &res
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		slog.Error("failed to list users", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type userView struct {
		ID          int64          `json:"id"`
		Username    string         `json:"username"`
		DisplayName string         `json:"display_name"`
		Role        model.UserRole `json:"role"`
		Active      bool           `json:"active"`
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, userView{
			ID:          u.ID,
			Username:    u.Username,
			DisplayName: u.DisplayName,
			Role:        u.Role,
			Active:      u.Active,
		})
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	displayName := r.FormValue("display_name")
	password := r.FormValue("password")
	role := r.FormValue("role")

	if username == "" || password == "" {
		respondError(w, http.StatusBadRequest, "username and password required")
		return
	}
	if role == "" {
		role = string(model.UserRoleStudent)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if displayName == "" {
		displayName = username
	}

	id, err := h.store.CreateUser(model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         model.UserRole(role),
		Active:       true,
	})
	if err != nil {
		slog.Error("failed to create user", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create user: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "username": username})
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	if err := h.store.ToggleUserActive(id); err != nil {
		slog.Error("failed to toggle user active", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id})
}
