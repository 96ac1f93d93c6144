// Package fakebackend is an in-memory arena backend for tests and local development.
// It reproduces the queued login protocol: a login returns a session id right away,
// and the result shows up on the result endpoint once the login has been processed.
package fakebackend

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/codearena/arena/api"
	"github.com/codearena/arena/backend"
)

const (
	DefaultResultTTL = 5 * time.Minute
	DefaultTokenTTL  = 24 * time.Hour

	roleUser = "USER"
)

type Options struct {
	// ResultDelay is how long a queued login stays pending.
	ResultDelay time.Duration
	// ResultTTL is how long a login result can be fetched once available.
	ResultTTL time.Duration
	TokenTTL  time.Duration
	// Secret signs issued tokens. A random secret is used when empty.
	Secret []byte
	// Now overrides the clock.
	Now func() time.Time
}

// clientError messages are sent to clients verbatim.
type clientError string

func (e clientError) Error() string { return string(e) }

const (
	errMissingCredentials clientError = "Username and password are required."
	errUsernameTaken      clientError = "Username is already taken."
)

type account struct {
	id       int64
	username string
	email    string
	hash     []byte
	role     string
}

type queuedLogin struct {
	username string
	password string
	readyAt  time.Time
	result   map[string]string
}

type problemEntry struct {
	problem   api.Problem
	cases     []api.TestCase
	templates []api.CodeTemplate
	createdAt time.Time
}

// Server implements http.Handler.
type Server struct {
	opts   Options
	router *mux.Router

	mu       sync.Mutex
	accounts map[string]*account
	nextID   int64
	logins   map[string]*queuedLogin
	problems map[int64]*problemEntry
	polls    int
}

func New(opts Options) *Server {
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = DefaultResultTTL
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if len(opts.Secret) == 0 {
		opts.Secret = make([]byte, 32)
		rand.Read(opts.Secret)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		opts:     opts,
		accounts: make(map[string]*account),
		logins:   make(map[string]*queuedLogin),
		problems: make(map[int64]*problemEntry),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login/result/{sessionId}", s.handleLoginResult).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/problem", s.handleProblems).Methods(http.MethodGet)
	r.HandleFunc("/api/problem/{problemId:[0-9]+}", s.requireUser(s.handleProblem)).Methods(http.MethodGet)
	r.HandleFunc("/api/test/{problemId:[0-9]+}", s.handleTestCases).Methods(http.MethodGet)
	r.HandleFunc("/api/code-template/languages/{problemId:[0-9]+}", s.handleLanguages).Methods(http.MethodGet)
	r.HandleFunc("/api/code-template/{problemId:[0-9]+}", s.requireUser(s.handleTemplates)).Methods(http.MethodGet)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// AddUser registers an account and returns its id.
func (s *Server) AddUser(username, password, role string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, password, "", role)
}

func (s *Server) addUserLocked(username, password, email, role string) (int64, error) {
	if username == "" || password == "" {
		return 0, errMissingCredentials
	}
	if _, ok := s.accounts[username]; ok {
		return 0, errUsernameTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return 0, err
	}
	if role == "" {
		role = roleUser
	}
	s.nextID++
	s.accounts[username] = &account{id: s.nextID, username: username, email: email, hash: hash, role: role}
	return s.nextID, nil
}

// AddProblem stores a problem with its test cases and templates.
func (s *Server) AddProblem(p api.Problem, cases []api.TestCase, templates []api.CodeTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problems[p.ID] = &problemEntry{problem: p, cases: cases, templates: templates, createdAt: s.opts.Now()}
}

// Polls returns how many result requests have been served.
func (s *Server) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// Token issues a token for username the same way a successful login does.
func (s *Server) Token(username string) (string, error) {
	s.mu.Lock()
	acct, ok := s.accounts[username]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no account %q", username)
	}
	return s.issueToken(acct)
}

func (s *Server) issueToken(acct *account) (string, error) {
	now := s.opts.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  acct.username,
		"role": acct.role,
		"iat":  now.Unix(),
		"exp":  now.Add(s.opts.TokenTTL).Unix(),
	}).SignedString(s.opts.Secret)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeText(w, http.StatusBadRequest, "Malformed login request")
		return
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.logins[id] = &queuedLogin{
		username: req.Username,
		password: req.Password,
		readyAt:  s.opts.Now().Add(s.opts.ResultDelay),
	}
	s.mu.Unlock()
	slog.Debug("Queued login", "session", id, "username", req.Username)
	writeJSON(w, http.StatusOK, map[string]string{
		"sessionId": id,
		"message":   "Login request queued",
		"status":    api.StatusPending,
	})
}

func (s *Server) handleLoginResult(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]
	now := s.opts.Now()

	s.mu.Lock()
	s.polls++
	login, ok := s.logins[id]
	var result map[string]string
	if ok {
		switch {
		case now.Before(login.readyAt):
		case now.After(login.readyAt.Add(s.opts.ResultTTL)):
			delete(s.logins, id)
		default:
			if login.result == nil {
				login.result = s.processLoginLocked(login)
			}
			result = login.result
		}
	}
	s.mu.Unlock()

	if result == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": api.StatusPending, "message": "Processing..."})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// processLoginLocked checks the credentials of a queued login. Every field of the
// result is a string, as the real backend stores results in a string hash.
func (s *Server) processLoginLocked(login *queuedLogin) map[string]string {
	fail := func(msg string) map[string]string {
		return map[string]string{
			"status":   api.StatusFail,
			"username": login.username,
			"token":    "",
			"id":       "",
			"role":     "",
			"message":  msg,
		}
	}
	acct, ok := s.accounts[login.username]
	if !ok || bcrypt.CompareHashAndPassword(acct.hash, []byte(login.password)) != nil {
		return fail("Invalid username or password")
	}
	token, err := s.issueToken(acct)
	if err != nil {
		return fail(err.Error())
	}
	// Credentials are not kept once processed.
	login.password = ""
	return map[string]string{
		"status":   api.StatusSuccess,
		"username": acct.username,
		"token":    token,
		"id":       strconv.FormatInt(acct.id, 10),
		"role":     acct.role,
		"message":  "Login successful",
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeText(w, http.StatusBadRequest, "Malformed register request")
		return
	}
	s.mu.Lock()
	_, err := s.addUserLocked(req.Username, req.Password, req.Email, req.Role)
	s.mu.Unlock()
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	writeText(w, http.StatusOK, "User registered successfully")
}

func (s *Server) handleProblems(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	entries := make([]*problemEntry, 0, len(s.problems))
	for _, e := range s.problems {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	// Newest first, as the backend sorts by creation time.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].createdAt.Equal(entries[j].createdAt) {
			return entries[i].problem.ID > entries[j].problem.ID
		}
		return entries[i].createdAt.After(entries[j].createdAt)
	})
	problems := make([]api.Problem, len(entries))
	for i, e := range entries {
		problems[i] = e.problem
	}
	writeJSON(w, http.StatusOK, problems)
}

func (s *Server) handleProblem(w http.ResponseWriter, r *http.Request) {
	e, ok := s.problem(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"problem": e.problem})
}

func (s *Server) handleTestCases(w http.ResponseWriter, r *http.Request) {
	e, ok := s.problem(w, r)
	if !ok {
		return
	}
	var body any
	switch len(e.cases) {
	case 0:
		writeText(w, http.StatusNotFound, fmt.Sprintf("Error: no test case for problem %d", e.problem.ID))
		return
	case 1:
		body = e.cases[0]
	default:
		body = e.cases
	}
	writeJSON(w, http.StatusOK, map[string]any{"testcase": body})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	e, ok := s.problem(w, r)
	if !ok {
		return
	}
	templates := e.templates
	if templates == nil {
		templates = []api.CodeTemplate{}
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	e, ok := s.problem(w, r)
	if !ok {
		return
	}
	languages := []string{}
	for _, t := range e.templates {
		languages = append(languages, t.Language)
	}
	writeJSON(w, http.StatusOK, map[string]any{"problemId": e.problem.ID, "languages": languages})
}

// problem resolves the problemId route variable, answering 404 when it is unknown.
func (s *Server) problem(w http.ResponseWriter, r *http.Request) (*problemEntry, bool) {
	id, _ := strconv.ParseInt(mux.Vars(r)["problemId"], 10, 64)
	s.mu.Lock()
	e, ok := s.problems[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Problem not found with ID: %d", id)})
	}
	return e, ok
}

// requireUser only lets requests through that carry a valid token with the USER role.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := backend.BearerToken(r.Header)
		if !ok {
			writeText(w, http.StatusUnauthorized, "Missing or invalid Authorization header")
			return
		}
		var claims struct {
			Role string `json:"role"`
			jwt.RegisteredClaims
		}
		_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return s.opts.Secret, nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(s.opts.Now),
		)
		if err != nil {
			writeText(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		if !strings.EqualFold(claims.Role, roleUser) {
			writeText(w, http.StatusForbidden, "Access denied: Role must be USER")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(msg))
}
