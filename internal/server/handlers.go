package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mwhitfield/courier/internal/auth"
	"github.com/mwhitfield/courier/internal/message"
	"github.com/mwhitfield/courier/internal/user"
)

type contextKey string

const userIDKey contextKey = "userID"

const minPasswordLength = 6

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  *user.User `json:"user"`
}

// rosterEntry is a directory user plus the caller's unread count from them.
type rosterEntry struct {
	*user.User
	UnreadCount int `json:"unread_count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		respondError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		respondError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.log.Error().Err(err).Msg("hash password")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	u, err := s.dir.Create(r.Context(), req.Email, hash)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			respondError(w, http.StatusConflict, "email already registered")
			return
		}
		s.log.Error().Err(err).Msg("create user")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := s.tokens.Mint(u.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("mint token")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusCreated, authResponse{Token: token, User: u})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Unknown email and wrong password answer identically.
	u, err := s.dir.ByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.log.Error().Err(err).Msg("lookup user")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.tokens.Mint(u.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("mint token")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: u})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	me := userIDFrom(r.Context())

	others, err := s.dir.ListOthers(r.Context(), me)
	if err != nil {
		s.log.Error().Err(err).Msg("list users")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	roster := make([]rosterEntry, 0, len(others))
	for _, u := range others {
		n, err := s.store.UnreadCount(r.Context(), u.ID, me)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", u.ID).Msg("unread count")
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		roster = append(roster, rosterEntry{User: u, UnreadCount: n})
	}
	respondJSON(w, http.StatusOK, roster)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.dir.ByID(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		s.log.Error().Err(err).Msg("lookup user")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	me := userIDFrom(r.Context())
	peerID := chi.URLParam(r, "peerID")

	msgs, err := s.store.History(r.Context(), me, peerID)
	if err != nil {
		s.log.Error().Err(err).Str("peer_id", peerID).Msg("load history")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if msgs == nil {
		msgs = []*message.Message{}
	}
	respondJSON(w, http.StatusOK, msgs)
}

// requireAuth resolves the bearer token and stores the subject in the
// request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, err := s.tokens.Verify(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
