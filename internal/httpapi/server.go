// Package httpapi exposes the administrative surface: user directory
// management and student/teacher pairing. Chat traffic never flows here.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edurelay/internal/db"
	"edurelay/internal/model"
)

type Store interface {
	UpsertUser(ctx context.Context, identity int64, displayName, handle string) (model.User, error)
	SetUserRole(ctx context.Context, identity int64, role model.Role) (model.User, error)
	GetUser(ctx context.Context, identity int64) (model.User, error)
	ListUsersByRole(ctx context.Context, role model.Role) ([]model.User, error)
	DeactivateUser(ctx context.Context, identity int64) error
	UpsertAssignment(ctx context.Context, studentID, teacherID int64, subject string) (model.Assignment, error)
}

type Server struct {
	store     Store
	jwtSecret string
	jwtIssuer string
}

func NewServer(store Store, jwtSecret, jwtIssuer string) *Server {
	return &Server{store: store, jwtSecret: jwtSecret, jwtIssuer: jwtIssuer}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/users", func(r chi.Router) {
		r.With(s.authMiddleware, s.requireAdmin).Get("/", s.handleListUsers)
		r.With(s.authMiddleware, s.requireAdmin).Post("/", s.handleCreateUser)
		r.With(s.authMiddleware, s.requireAdmin).Get("/{identity}", s.handleGetUser)
		r.With(s.authMiddleware, s.requireAdmin).Post("/{identity}/deactivate", s.handleDeactivateUser)
	})

	r.With(s.authMiddleware, s.requireAdmin).Post("/assignments", s.handleCreateAssignment)

	return r
}

type userSummary struct {
	Identity    int64  `json:"identity"`
	DisplayName string `json:"displayName"`
	Handle      string `json:"handle,omitempty"`
	Role        string `json:"role"`
	Active      bool   `json:"active"`
	CreatedOn   int64  `json:"createdOn"`
}

func mapUserSummary(u model.User) userSummary {
	return userSummary{
		Identity:    u.Identity,
		DisplayName: u.DisplayName,
		Handle:      u.Handle,
		Role:        string(u.Role),
		Active:      u.Active,
		CreatedOn:   u.CreatedAt.Unix(),
	}
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	role := model.Role(strings.TrimSpace(strings.ToLower(r.URL.Query().Get("role"))))
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}

	users, err := s.store.ListUsersByRole(r.Context(), role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := make([]userSummary, 0, len(users))
	for _, u := range users {
		resp = append(resp, mapUserSummary(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

type createUserRequest struct {
	Identity    int64  `json:"identity"`
	DisplayName string `json:"displayName"`
	Handle      string `json:"handle"`
	Role        string `json:"role"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Role = strings.TrimSpace(strings.ToLower(req.Role))
	if req.Identity == 0 || req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	role := model.Role(req.Role)
	if req.Role != "" && !role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}

	user, err := s.store.UpsertUser(r.Context(), req.Identity, req.DisplayName, strings.TrimSpace(req.Handle))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "user_create_failed")
		return
	}
	if role.Valid() {
		user, err = s.store.SetUserRole(r.Context(), req.Identity, role)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "role_set_failed")
			return
		}
	}

	writeJSON(w, http.StatusCreated, mapUserSummary(user))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	identity, err := identityParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_identity")
		return
	}

	user, err := s.store.GetUser(r.Context(), identity)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user_not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapUserSummary(user))
}

func (s *Server) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	identity, err := identityParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_identity")
		return
	}

	err = s.store.DeactivateUser(r.Context(), identity)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user_not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

type createAssignmentRequest struct {
	StudentID int64  `json:"studentId"`
	TeacherID int64  `json:"teacherId"`
	Subject   string `json:"subject"`
}

type assignmentResponse struct {
	ID        int64  `json:"id"`
	StudentID int64  `json:"studentId"`
	TeacherID int64  `json:"teacherId"`
	Subject   string `json:"subject,omitempty"`
	Active    bool   `json:"active"`
	CreatedOn int64  `json:"createdOn"`
}

func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req createAssignmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.StudentID == 0 || req.TeacherID == 0 {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	student, err := s.store.GetUser(r.Context(), req.StudentID)
	if err != nil || student.Role != model.RoleStudent {
		writeError(w, http.StatusBadRequest, "student_not_found")
		return
	}
	teacher, err := s.store.GetUser(r.Context(), req.TeacherID)
	if err != nil || teacher.Role == model.RoleStudent || teacher.Role == model.RoleNone {
		writeError(w, http.StatusBadRequest, "teacher_not_found")
		return
	}

	assignment, err := s.store.UpsertAssignment(r.Context(), req.StudentID, req.TeacherID, strings.TrimSpace(req.Subject))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "assignment_create_failed")
		return
	}

	writeJSON(w, http.StatusCreated, assignmentResponse{
		ID:        assignment.ID,
		StudentID: assignment.StudentID,
		TeacherID: assignment.TeacherID,
		Subject:   assignment.Subject,
		Active:    assignment.Active,
		CreatedOn: assignment.CreatedAt.Unix(),
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := ParseToken(s.jwtSecret, s.jwtIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || claims.Role != string(model.RoleAdmin) {
			writeError(w, http.StatusForbidden, "admin_only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*Claims)
	return claims
}

func identityParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "identity"), 10, 64)
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
