package torrentcache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"rssbox/internal/domain"
	"rssbox/internal/domain/ports"
)

// Client is an HTTP adapter over the external torrent-cache service. It
// treats the remote side as an opaque RPC boundary: no BitTorrent protocol
// logic lives here, only add/list/fetch/delete calls against its REST API.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// New builds a Client rate-limited to requestsPerSecond outbound requests,
// protecting the shared pool of accounts from tripping the upstream
// service's own throttling.
func New(baseURL string, httpClient *http.Client, requestsPerSecond float64) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

func (c *Client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

type addTorrentResponse struct {
	Title string `json:"title"`
}

func (c *Client) AddTorrent(ctx context.Context, credentials domain.AccountID, torrentURL string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]string{"url": torrentURL})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/torrents", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+string(credentials))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("torrentcache: add torrent: unexpected status %d", resp.StatusCode)
	}

	var out addTorrentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Title, nil
}

type listContentsResponse struct {
	Entries []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Kind string `json:"kind"`
		Size int64  `json:"size"`
	} `json:"entries"`
}

func (c *Client) ListContents(ctx context.Context, credentials domain.AccountID, folderID string) ([]ports.CacheEntry, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/folders/"+url.PathEscape(folderID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+string(credentials))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("torrentcache: list contents: unexpected status %d", resp.StatusCode)
	}

	var out listContentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	entries := make([]ports.CacheEntry, 0, len(out.Entries))
	for _, e := range out.Entries {
		kind := ports.CacheEntryFile
		if e.Kind == "folder" {
			kind = ports.CacheEntryFolder
		}
		entries = append(entries, ports.CacheEntry{ID: e.ID, Name: e.Name, Kind: kind, Size: e.Size})
	}
	return entries, nil
}

type listTorrentsResponse struct {
	Torrents []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"torrents"`
}

// ListTorrents reports torrents still assembling in the account's workspace,
// independent of the folder listing which only reflects completed entries.
func (c *Client) ListTorrents(ctx context.Context, credentials domain.AccountID) ([]ports.TorrentEntry, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/torrents", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+string(credentials))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("torrentcache: list torrents: unexpected status %d", resp.StatusCode)
	}

	var out listTorrentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	entries := make([]ports.TorrentEntry, 0, len(out.Torrents))
	for _, t := range out.Torrents {
		entries = append(entries, ports.TorrentEntry{ID: t.ID, Name: t.Name})
	}
	return entries, nil
}

// Purge wipes an account's entire workspace, run defensively before
// submitting a new torrent since accounts are pooled across downloads and
// may still carry debris from a worker that died mid check_downloads.
func (c *Client) Purge(ctx context.Context, credentials domain.AccountID) error {
	return c.delete(ctx, credentials, "/workspace")
}

func (c *Client) FetchFile(ctx context.Context, credentials domain.AccountID, fileID string) (io.ReadCloser, int64, error) {
	if err := c.wait(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/"+url.PathEscape(fileID)+"/content", nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+string(credentials))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("torrentcache: fetch file: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

func (c *Client) DeleteFolder(ctx context.Context, credentials domain.AccountID, folderID string) error {
	return c.delete(ctx, credentials, "/folders/"+url.PathEscape(folderID))
}

func (c *Client) DeleteFile(ctx context.Context, credentials domain.AccountID, fileID string) error {
	return c.delete(ctx, credentials, "/files/"+url.PathEscape(fileID))
}

func (c *Client) DeleteTorrent(ctx context.Context, credentials domain.AccountID, torrentID string) error {
	return c.delete(ctx, credentials, "/torrents/"+url.PathEscape(torrentID))
}

func (c *Client) delete(ctx context.Context, credentials domain.AccountID, path string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+string(credentials))

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("torrentcache: delete %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}

