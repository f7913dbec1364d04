// Package drive implements the sync.Remote interface on Google Drive.
//
// Each workspace owns a blob pair: the binary database snapshot and a JSON
// metadata file. Personal workspaces keep the pair in the hidden
// per-application appDataFolder space, invisible in the user's Drive UI.
// Shared workspaces keep it in an ordinary Drive folder that members have
// access to.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/FirstDataUnion/vaultsync/internal/schema"
	syncpkg "github.com/FirstDataUnion/vaultsync/internal/sync"
)

const (
	appDataSpace     = "appDataFolder"
	snapshotMimeType = "application/octet-stream"
	metadataMimeType = "application/json"
	maxMetadataBytes = 1 << 20 // metadata blobs are tiny; anything bigger is corrupt
	defaultPageSize  = 10
)

// Client talks to the Drive API for snapshot storage.
type Client struct {
	svc    *drive.Service
	logger *log.Logger
}

// NewClient creates a Drive client from an OAuth token source.
//
// If logger is nil, a default logger writing to stderr is used.
func NewClient(ctx context.Context, ts oauth2.TokenSource, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[drive] ", log.LstdFlags)
	}

	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &Client{svc: svc, logger: logger}, nil
}

// FetchMeta implements sync.Remote.
func (c *Client) FetchMeta(ctx context.Context, ws *schema.Workspace) (*schema.SnapshotMeta, error) {
	file, err := c.findFile(ctx, ws, ws.MetaName())
	if err != nil {
		return nil, err
	}

	body, err := c.openContent(ctx, file.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to download metadata %s: %w", ws.MetaName(), err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxMetadataBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata %s: %w", ws.MetaName(), err)
	}

	return schema.ParseSnapshotMeta(data)
}

// Download implements sync.Remote. The snapshot is written to destDir under
// its remote file name.
func (c *Client) Download(ctx context.Context, ws *schema.Workspace, destDir string) (string, error) {
	file, err := c.findFile(ctx, ws, ws.SnapshotName())
	if err != nil {
		return "", err
	}

	body, err := c.openContent(ctx, file.Id)
	if err != nil {
		return "", fmt.Errorf("failed to download snapshot %s: %w", ws.SnapshotName(), err)
	}
	defer body.Close()

	path := filepath.Join(destDir, ws.SnapshotName())
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot file: %w", err)
	}

	if _, err := io.Copy(out, body); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to close snapshot file: %w", err)
	}

	c.logger.Printf("Downloaded snapshot for workspace %s (%d bytes)", ws.ID, fileSize(path))
	return path, nil
}

// Upload implements sync.Remote. The metadata is replaced first, the
// snapshot second: a reader racing the replacement gates on the newest
// format version, and never downloads a snapshot newer than its metadata,
// so an incompatible snapshot can't slip past a stale version check.
func (c *Client) Upload(ctx context.Context, ws *schema.Workspace, snapshotPath string, meta *schema.SnapshotMeta) error {
	metaBytes, err := meta.Marshal()
	if err != nil {
		return err
	}
	if err := c.putFile(ctx, ws, ws.MetaName(), metadataMimeType, bytesReader(metaBytes)); err != nil {
		return fmt.Errorf("failed to upload metadata: %w", err)
	}

	snap, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot for upload: %w", err)
	}
	defer snap.Close()

	if err := c.putFile(ctx, ws, ws.SnapshotName(), snapshotMimeType, snap); err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}

	c.logger.Printf("Uploaded snapshot pair for workspace %s", ws.ID)
	return nil
}

// putFile creates or replaces a file by name in the workspace's storage
// location.
func (c *Client) putFile(ctx context.Context, ws *schema.Workspace, name, mimeType string, content io.Reader) error {
	existing, err := c.findFile(ctx, ws, name)
	if err != nil && !errors.Is(err, syncpkg.ErrNotFound) {
		return err
	}

	if existing != nil {
		_, err = c.svc.Files.Update(existing.Id, &drive.File{}).
			Media(content, googleapi.ContentType(mimeType)).
			Context(ctx).Do()
		return mapAPIError(err)
	}

	meta := &drive.File{Name: name, MimeType: mimeType}
	if ws.IsShared() {
		meta.Parents = []string{ws.FolderID}
	} else {
		meta.Parents = []string{appDataSpace}
	}

	_, err = c.svc.Files.Create(meta).
		Media(content, googleapi.ContentType(mimeType)).
		Context(ctx).Do()
	return mapAPIError(err)
}

// findFile locates a file by name in the workspace's storage location.
// Returns sync.ErrNotFound when absent.
func (c *Client) findFile(ctx context.Context, ws *schema.Workspace, name string) (*drive.File, error) {
	call := c.svc.Files.List().
		PageSize(defaultPageSize).
		Fields("files(id, name, modifiedTime, size)").
		Context(ctx)

	query := fmt.Sprintf("name = '%s' and trashed = false", name)
	if ws.IsShared() {
		query += fmt.Sprintf(" and '%s' in parents", ws.FolderID)
	} else {
		call = call.Spaces(appDataSpace)
	}

	list, err := call.Q(query).Do()
	if err != nil {
		return nil, mapAPIError(err)
	}
	if len(list.Files) == 0 {
		return nil, syncpkg.ErrNotFound
	}
	return list.Files[0], nil
}

// openContent streams a file's bytes.
func (c *Client) openContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := c.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, mapAPIError(err)
	}
	return resp.Body, nil
}

// mapAPIError translates Drive API failures into the engine's sentinels.
func mapAPIError(err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", syncpkg.ErrAuthExpired, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", syncpkg.ErrNotFound, err)
		}
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: %v", syncpkg.ErrAuthExpired, err)
	}

	return err
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
