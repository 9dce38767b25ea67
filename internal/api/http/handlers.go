package apihttp

import (
	"context"
	"net/http"
	"time"

	"rssbox/internal/domain"
)

// AccountLister is the read-only slice of ports.AccountRepository the
// monitoring surface needs.
type AccountLister interface {
	List(ctx context.Context) ([]domain.Account, error)
}

// DownloadLister is the read-only slice of ports.DownloadRepository the
// monitoring surface needs.
type DownloadLister interface {
	List(ctx context.Context) ([]domain.Download, error)
}

type accountView struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	LockedBy      string    `json:"lockedBy,omitempty"`
	DownloadID    string    `json:"downloadId,omitempty"`
	AddedAt       time.Time `json:"addedAt,omitempty"`
	LastCheckedAt time.Time `json:"lastCheckedAt,omitempty"`
	Priority      int       `json:"priority"`
}

type downloadView struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Name         string `json:"name,omitempty"`
	Status       string `json:"status"`
	DownloadName string `json:"downloadName,omitempty"`
	LockedBy     string `json:"lockedBy,omitempty"`
	Retries      int    `json:"retries"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}
	if s.accounts == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "account listing not configured")
		return
	}

	accounts, err := s.accounts.List(r.Context())
	if err != nil {
		writeRepoError(w, err)
		return
	}

	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, accountView{
			ID:            string(a.ID),
			Status:        string(a.Status),
			LockedBy:      string(a.LockedBy),
			DownloadID:    string(a.DownloadID),
			AddedAt:       a.AddedAt,
			LastCheckedAt: a.LastCheckedAt,
			Priority:      a.Priority,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleDownloads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}
	if s.downloads == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "download listing not configured")
		return
	}

	downloads, err := s.downloads.List(r.Context())
	if err != nil {
		writeRepoError(w, err)
		return
	}

	views := make([]downloadView, 0, len(downloads))
	for _, d := range downloads {
		views = append(views, downloadView{
			ID:           string(d.ID),
			URL:          d.URL,
			Name:         d.Name,
			Status:       string(d.Status),
			DownloadName: d.DownloadName,
			LockedBy:     string(d.LockedBy),
			Retries:      d.Retries,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.wsHub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed")
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}
