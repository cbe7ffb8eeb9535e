package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/voice-annotation/internal/types"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DriveClient mirrors saved annotations to Google Drive
type DriveClient struct {
	service    *drive.Service
	folderName string
	folderID   string
}

// NewDriveClient creates a Drive client from an OAuth client credentials file
// and a previously authorised token file.
func NewDriveClient(ctx context.Context, credentialsFile, tokenFile, folderName string) (*DriveClient, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read token file %s (authorise once with %s): %w",
			tokenFile, config.AuthCodeURL("state-token", oauth2.AccessTypeOffline), err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}

	dc := &DriveClient{
		service:    srv,
		folderName: folderName,
	}

	rootID, err := dc.findOrCreateFolder(ctx, folderName, "")
	if err != nil {
		return nil, fmt.Errorf("unable to prepare folder %q: %w", folderName, err)
	}
	dc.folderID = rootID

	return dc, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("token file holds no token")
	}
	return tok, nil
}

// Export uploads the transcript and a metadata document into
// <folder>/<project>/<yyyy>/<mm>/<dd>/ and returns a link to the metadata file.
func (dc *DriveClient) Export(ctx context.Context, projectName string, a *types.Annotation) (string, error) {
	folderID, err := dc.ensureDateFolder(ctx, SanitizeName(projectName), a.CreatedAt)
	if err != nil {
		return "", err
	}

	baseFilename := strings.TrimSuffix(a.AudioFilename, ".wav")

	txtFile := &drive.File{
		Name:    baseFilename + ".txt",
		Parents: []string{folderID},
	}
	if _, err := dc.service.Files.Create(txtFile).Media(strings.NewReader(a.Transcript)).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to upload transcript: %w", err)
	}

	metadata := map[string]any{
		"annotation_id":       a.ID,
		"project_id":          a.ProjectID,
		"project_name":        projectName,
		"audio_filename":      a.AudioFilename,
		"recording_mode":      a.RecordingMode,
		"language":            a.Language,
		"duration_seconds":    a.Duration,
		"word_count":          len(strings.Fields(a.Transcript)),
		"original_transcript": a.OriginalTranscript,
		"created_at":          a.CreatedAt,
	}
	metaJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	metaFile := &drive.File{
		Name:    baseFilename + "_meta.json",
		Parents: []string{folderID},
	}
	created, err := dc.service.Files.Create(metaFile).Media(bytes.NewReader(metaJSON)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload metadata: %w", err)
	}

	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}

func (dc *DriveClient) ensureDateFolder(ctx context.Context, project string, t time.Time) (string, error) {
	parent := dc.folderID
	for _, name := range []string{
		project,
		fmt.Sprintf("%d", t.Year()),
		fmt.Sprintf("%02d", t.Month()),
		fmt.Sprintf("%02d", t.Day()),
	} {
		id, err := dc.findOrCreateFolder(ctx, name, parent)
		if err != nil {
			return "", err
		}
		parent = id
	}
	return parent, nil
}

// findOrCreateFolder finds or creates a folder, below parentID when set
func (dc *DriveClient) findOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false",
		strings.ReplaceAll(name, "'", "\\'"), folderMimeType)
	if parentID != "" {
		query += fmt.Sprintf(" and '%s' in parents", parentID)
	}

	r, err := dc.service.Files.List().Q(query).Spaces("drive").Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to search for folder: %w", err)
	}
	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
	}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}

	file, err := dc.service.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create folder: %w", err)
	}
	return file.Id, nil
}
