// Package gdrive uploads interview reports to a Google Drive folder as
// Google Docs.
package gdrive

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const docMimeType = "application/vnd.google-apps.document"

type Uploader struct {
	service  *drive.Service
	folderID string

	mu      sync.Mutex
	fileIDs map[string]string
}

func NewUploader(ctx context.Context, credPath, folderID string) (*Uploader, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return newUploader(svc, folderID), nil
}

func newUploader(svc *drive.Service, folderID string) *Uploader {
	return &Uploader{service: svc, folderID: folderID, fileIDs: make(map[string]string)}
}

// Upload converts the markdown report at localPath into a Doc called name.
// Uploading the same name again replaces the existing Doc's content.
func (u *Uploader) Upload(ctx context.Context, localPath, name string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	if fileID, ok := u.fileIDs[name]; ok {
		_, err = u.service.Files.Update(fileID, &drive.File{}).Media(f).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	file := &drive.File{Name: name, MimeType: docMimeType}
	if u.folderID != "" {
		file.Parents = []string{u.folderID}
	}
	doc, err := u.service.Files.Create(file).Media(f).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	u.fileIDs[name] = doc.Id
	return nil
}
