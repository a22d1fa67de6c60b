package extractor

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const googleDocMimeType = "application/vnd.google-apps.document"

// DriveConversion extracts text by round-tripping the file through Google
// Drive: upload, copy-convert to a Google Doc, export as plain text, then
// delete both Drive copies. Conversion quality is better than local parsing
// for scanned or complex layouts; the whole document comes back as one block.
type DriveConversion struct {
	svc *drive.Service
}

// NewDriveConversion builds the cloud conversion backend from a service
// account credentials file.
func NewDriveConversion(ctx context.Context, credentialsFile string) (*DriveConversion, error) {
	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveFileScope))
	if err != nil {
		return nil, fmt.Errorf("init drive service: %w", err)
	}
	return &DriveConversion{svc: svc}, nil
}

func (d *DriveConversion) Extract(ctx context.Context, path string) ([]Block, error) {
	text, err := d.convertToText(ctx, path)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	return []Block{{Page: 1, Text: text}}, nil
}

func (d *DriveConversion) convertToText(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open source file: %w", err)
	}
	defer f.Close()

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	uploaded, err := d.svc.Files.Create(&drive.File{Name: filepath.Base(path)}).
		Media(f, googleapi.ContentType(mimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("upload to drive: %w", err)
	}
	defer func() { _ = d.svc.Files.Delete(uploaded.Id).Context(ctx).Do() }()

	converted, err := d.svc.Files.Copy(uploaded.Id, &drive.File{MimeType: googleDocMimeType}).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("convert to google doc: %w", err)
	}
	defer func() { _ = d.svc.Files.Delete(converted.Id).Context(ctx).Do() }()

	resp, err := d.svc.Files.Export(converted.Id, "text/plain").Context(ctx).Download()
	if err != nil {
		return "", fmt.Errorf("export plain text: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read exported text: %w", err)
	}
	return string(data), nil
}

// DownloadFile fetches a file's bytes from Drive by id, for callers that
// ingest documents hosted in Drive rather than on local disk.
func (d *DriveConversion) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := d.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("download drive file: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read drive file: %w", err)
	}
	return data, nil
}
