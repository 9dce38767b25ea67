package objectstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"log/slog"

	"rssbox/internal/domain"
)

// Client pushes finished files to the blob store over HTTP, keyed by the
// MD5 hash of the file name, and records an UploadedFile row so the file's
// download count can be tracked independently of the blob itself.
type Client struct {
	baseURL    string
	storeKey   string
	http       *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	collection *mongodriver.Collection
}

func New(baseURL, storeKey string, httpClient *http.Client, requestsPerSecond float64, logger *slog.Logger, files *mongodriver.Collection) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    baseURL,
		storeKey:   storeKey,
		http:       httpClient,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:     logger,
		collection: files,
	}
}

// driveKey content-addresses a file by the MD5 hash of its name, matching
// the original's choice of drive path so identically named re-uploads land
// on the same blob key.
func driveKey(name string) string {
	sum := md5.Sum([]byte(name))
	return hex.EncodeToString(sum[:])
}

func (c *Client) Put(ctx context.Context, name string, size int64, r io.Reader) (domain.UploadedFile, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.UploadedFile{}, err
	}

	key := driveKey(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/"+key, r)
	if err != nil {
		return domain.UploadedFile{}, err
	}
	req.Header.Set("X-Store-Key", c.storeKey)
	req.ContentLength = size

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.UploadedFile{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return domain.UploadedFile{}, fmt.Errorf("objectstore: put %s: unexpected status %d", name, resp.StatusCode)
	}

	file := domain.UploadedFile{
		Name:      name,
		Size:      size,
		Hash:      key,
		CreatedAt: time.Now().UTC(),
	}

	_, err = c.collection.UpdateOne(
		ctx,
		bson.M{"_id": name},
		bson.M{
			"$setOnInsert": bson.M{"created_at": file.CreatedAt, "downloads_count": 0},
			"$set":         bson.M{"size": size, "hash": key},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return domain.UploadedFile{}, err
	}

	c.logger.Info("objectstore: uploaded file",
		slog.String("name", name), slog.String("size", humanize.Bytes(uint64(size))))
	return file, nil
}
