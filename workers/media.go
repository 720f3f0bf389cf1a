package workers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"casaingest/models"
)

// ArchiveStore is the subset of the property store the media worker
// needs.
type ArchiveStore interface {
	GetPendingArchiveImages(ctx context.Context, limit int) ([]models.PropertyImage, error)
	UpdateImageArchiveURL(ctx context.Context, id, archiveURL string) error
}

// Archiver uploads one image and returns its public URL.
// *storage.ImageArchive satisfies it.
type Archiver interface {
	Store(ctx context.Context, key string, data io.Reader, contentType string) (string, error)
}

// MediaWorker mirrors listing photos into the archive bucket so saved
// properties keep their images after the source site drops the
// listing.
type MediaWorker struct {
	store      ArchiveStore
	archive    Archiver
	httpClient *http.Client
}

func NewMediaWorker(store ArchiveStore, archive Archiver) *MediaWorker {
	return &MediaWorker{
		store:   store,
		archive: archive,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Archive downloads one image and uploads it under a content-hash key,
// so re-runs of the same image dedupe naturally.
func (w *MediaWorker) Archive(ctx context.Context, img *models.PropertyImage) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", img.URL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("download status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 50*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	hash := sha256.Sum256(data)
	contentHash := hex.EncodeToString(hash[:])

	contentType := resp.Header.Get("Content-Type")
	ext := guessExtension(img.URL, contentType)
	key := fmt.Sprintf("images/%s/%s%s", contentHash[:2], contentHash, ext)

	if contentType == "" {
		contentType = "image/jpeg"
	}

	archiveURL, err := w.archive.Store(ctx, key, bytes.NewReader(data), contentType)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return archiveURL, nil
}

// Run starts the archive loop.
func (w *MediaWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Media worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *MediaWorker) processBatch(ctx context.Context, batchSize int) {
	images, err := w.store.GetPendingArchiveImages(ctx, batchSize)
	if err != nil {
		log.Printf("Media worker: query error: %v", err)
		return
	}
	if len(images) == 0 {
		return
	}

	log.Printf("Media worker: archiving %d images", len(images))

	var archived, failed int
	for i := range images {
		img := &images[i]

		archiveURL, err := w.Archive(ctx, img)
		if err != nil {
			log.Printf("Media worker: failed %s: %v", img.URL, err)
			failed++
			continue
		}

		if err := w.store.UpdateImageArchiveURL(ctx, img.ID, archiveURL); err != nil {
			log.Printf("Media worker: failed to update %s: %v", img.ID, err)
			failed++
			continue
		}
		archived++

		// Rate limit between downloads
		time.Sleep(200 * time.Millisecond)
	}

	if archived > 0 || failed > 0 {
		log.Printf("Media worker: archived %d, failed %d", archived, failed)
	}
}

// guessExtension determines file extension from URL or content-type.
func guessExtension(url, contentType string) string {
	ext := strings.ToLower(path.Ext(url))
	if idx := strings.IndexAny(ext, "?#"); idx >= 0 {
		ext = ext[:idx]
	}
	if isImageExt(ext) {
		return ext
	}

	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func isImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
		return true
	}
	return false
}
