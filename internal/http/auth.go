package httpserver

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/Clark-Hu/movie-ratings/internal/auth"
	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

type registerRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type authResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
	tokenResponse
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if req.Password1 != req.Password2 {
		s.respondServiceError(w, r, domain.NewValidationError("password", "Passwords don't match."), "register")
		return
	}

	user, err := s.credentials.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password1,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			err = domain.NewValidationError("email", "user with this email already exists")
		}
		s.respondServiceError(w, r, err, "register")
		return
	}

	pair, err := s.tokens.Issue(r.Context(), user.Identity())
	if err != nil {
		s.respondServiceError(w, r, err, "issue tokens")
		return
	}
	s.setAuthCookies(w, pair)
	s.respondJSON(w, http.StatusCreated, authResponse{
		Message:       "User registered successfully",
		User:          toUserResponse(user),
		tokenResponse: toTokenResponse(pair),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	user, pair, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	s.setAuthCookies(w, pair)
	s.respondJSON(w, http.StatusOK, authResponse{
		Message:       "Login successful",
		User:          toUserResponse(user),
		tokenResponse: toTokenResponse(pair),
	})
}

func (s *Server) handleObtainToken(w http.ResponseWriter, r *http.Request) {
	_, pair, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	s.setAuthCookies(w, pair)
	s.respondJSON(w, http.StatusOK, toTokenResponse(pair))
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (domain.User, auth.TokenPair, bool) {
	var req loginRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return domain.User{}, auth.TokenPair{}, false
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		fields := map[string]string{}
		if strings.TrimSpace(req.Email) == "" {
			fields["email"] = "this field is required"
		}
		if req.Password == "" {
			fields["password"] = "this field is required"
		}
		s.respondServiceError(w, r, &domain.ValidationError{Fields: fields}, "login")
		return domain.User{}, auth.TokenPair{}, false
	}

	user, err := s.credentials.Verify(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondServiceError(w, r, err, "login")
		return domain.User{}, auth.TokenPair{}, false
	}
	pair, err := s.tokens.Issue(r.Context(), user.Identity())
	if err != nil {
		s.respondServiceError(w, r, err, "issue tokens")
		return domain.User{}, auth.TokenPair{}, false
	}
	return user, pair, true
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refresh, ok := s.refreshToken(w, r)
	if !ok {
		return
	}
	if refresh == "" {
		s.respondServiceError(w, r, domain.NewValidationError("refresh", "this field is required"), "refresh token")
		return
	}

	pair, err := s.tokens.Rotate(r.Context(), refresh)
	if err != nil {
		s.respondServiceError(w, r, err, "refresh token")
		return
	}
	s.setAuthCookies(w, pair)
	s.respondJSON(w, http.StatusOK, toTokenResponse(pair))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	refresh, ok := s.refreshToken(w, r)
	if !ok {
		return
	}
	if refresh != "" {
		if err := s.tokens.Revoke(r.Context(), refresh); err != nil {
			if !domain.IsTokenError(err) {
				s.respondServiceError(w, r, err, "logout")
				return
			}
			hlog.FromRequest(r).Debug().Err(err).Msg("logout with unusable refresh token")
		}
	}
	s.clearAuthCookies(w)
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// refreshToken reads the refresh token from the JSON body, falling back to the
// refresh cookie. An empty body is allowed.
func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req refreshRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeJSONBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			s.respondDecodeError(w, err)
			return "", false
		}
	}
	if token := strings.TrimSpace(req.Refresh); token != "" {
		return token, true
	}
	if cookie, err := r.Cookie(refreshCookie); err == nil {
		return cookie.Value, true
	}
	return "", true
}

func (s *Server) setAuthCookies(w http.ResponseWriter, pair auth.TokenPair) {
	http.SetCookie(w, s.cookie(accessCookie, pair.Access, time.Until(pair.AccessExpiresAt)))
	http.SetCookie(w, s.cookie(refreshCookie, pair.Refresh, time.Until(pair.RefreshExpiresAt)))
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie(accessCookie, "", -1))
	http.SetCookie(w, s.cookie(refreshCookie, "", -1))
}

func (s *Server) cookie(name, value string, ttl time.Duration) *http.Cookie {
	maxAge := int(ttl / time.Second)
	if ttl < 0 {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.cfg.HTTP.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cfg.HTTP.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Username: u.Username}
}

func toTokenResponse(pair auth.TokenPair) tokenResponse {
	return tokenResponse{Access: pair.Access, Refresh: pair.Refresh}
}
