// Package blob stores message bodies outside the metadata database.
package blob

import (
	"context"
	"fmt"

	"github.com/Hexploration-Inc/orai/internal/config"
)

// Store is a key/value body store. Get reports a missing key as
// types.ErrNotFound; Delete of a missing key succeeds.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key returns the deterministic body key for one provider message.
func Key(ownerID, providerMessageID string) string {
	return fmt.Sprintf("messages/%s/%s.html", ownerID, providerMessageID)
}

// Open returns the backend selected by cfg.BlobBackend.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.BlobBackend {
	case config.BlobBolt:
		return OpenBolt(cfg.BlobPath)
	case config.BlobR2:
		return NewS3(ctx, S3Config{
			Endpoint:        cfg.R2EndpointURL(),
			Bucket:          cfg.R2Bucket,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}
