package supabase

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	storage "github.com/supabase-community/storage-go"
)

// StorageClient stores merged scene images in a public bucket. It satisfies
// compose.Uploader.
type StorageClient struct {
	client  *storage.Client
	bucket  string
	baseURL string
	prefix  string
}

func NewStorageClient(supabaseURL, serviceRoleKey, bucket string) *StorageClient {
	baseURL := strings.TrimSuffix(supabaseURL, "/")
	client := storage.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil)

	return &StorageClient{
		client:  client,
		bucket:  bucket,
		baseURL: baseURL,
		prefix:  "merged",
	}
}

// UploadMergedImage uploads a PNG under merged/<uuid>.png and returns
// its public URL.
func (s *StorageClient) UploadMergedImage(ctx context.Context, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	storagePath := fmt.Sprintf("%s/%s.png", s.prefix, uuid.New().String())

	contentType := "image/png"
	upsert := false
	_, err := s.client.UploadFile(s.bucket, storagePath, bytes.NewReader(png), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return s.GetPublicURL(storagePath), nil
}

func (s *StorageClient) GetPublicURL(storagePath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s",
		s.baseURL, s.bucket, storagePath)
}
