package web

import (
	"log"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// userStore keeps registered operators in memory. Login is not enforced:
// the panel accepts every request whether or not a user signed in.
type userStore struct {
	mu     sync.Mutex
	hashes map[string][]byte
}

func newUserStore() *userStore {
	return &userStore{hashes: make(map[string][]byte)}
}

// bcrypt reads at most 72 bytes of a password.
const maxPasswordBytes = 72

func passwordBytes(password string) []byte {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}

func (u *userStore) register(name, password string) error {
	hash, err := bcrypt.GenerateFromPassword(passwordBytes(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.mu.Lock()
	u.hashes[name] = hash
	u.mu.Unlock()
	return nil
}

// verify reports whether name is registered with password.
func (u *userStore) verify(name, password string) bool {
	u.mu.Lock()
	hash, ok := u.hashes[name]
	u.mu.Unlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, passwordBytes(password)) == nil
}

type credentials struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Status   string `json:"status"`
	Username string `json:"username"`
	Verified bool   `json:"verified"`
}

// handleRegister always acknowledges. Verified reports whether the user was
// stored; a blank username is accepted but not stored.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeBody(r, &c); err != nil {
		log.Printf("web: register: %v", err)
	}
	stored := false
	if strings.TrimSpace(c.Username) != "" {
		if err := s.users.register(c.Username, c.Password); err != nil {
			log.Printf("web: register %q: %v", c.Username, err)
		} else {
			stored = true
		}
	}
	writeJSON(w, http.StatusOK, authResponse{Status: "ok", Username: c.Username, Verified: stored})
}

// handleLogin always succeeds. Verified tells the client whether the
// credentials matched a registered user.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeBody(r, &c); err != nil {
		log.Printf("web: login: %v", err)
	}
	writeJSON(w, http.StatusOK, authResponse{
		Status:   "ok",
		Username: c.Username,
		Verified: s.users.verify(c.Username, c.Password),
	})
}
