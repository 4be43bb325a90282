// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package mirror ships a finished volume file off-host to S3, once
// the caller (cmd/spantar's sink builder) has closed it. This is "the regular output file"
// growing an optional offsite copy — a concern the teacher's
// cmd/nbackup-agent declares a dependency for (aws-sdk-go-v2/service/s3
// is in its go.mod) but never actually wires into any package; spantar
// gives that declared-but-unused dependency a real home.
package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nishisan-dev/spantar/internal/config"
)

// maxUploadAttempts and uploadBackoff mirror the teacher's
// backup.go resume-retry shape (internal/agent.maxResumeAttempts,
// internal/agent.resumeBackoff): bounded attempts, exponential backoff
// capped at 30s — the same posture for "a remote endpoint is
// transiently unavailable," just applied to an S3 PutObject instead of
// a resumable TCP session.
const (
	maxUploadAttempts = 5
	uploadBackoff     = 2 * time.Second
	maxUploadBackoff  = 30 * time.Second
)

// Uploader ships volume files to S3.
type Uploader struct {
	client *manager.Uploader
	bucket string
	prefix string
	logger *slog.Logger
}

// New builds an Uploader from MirrorInfo. Returns (nil, nil) if mirror
// is disabled — callers should treat a nil Uploader as "mirroring is
// off" rather than an error, the same optional-collaborator pattern
// archive.Options uses for Journal/Progress.
func New(ctx context.Context, cfg config.MirrorInfo, logger *slog.Logger) (*Uploader, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("mirror: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &Uploader{
		client: manager.NewUploader(client),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger.With("component", "mirror"),
	}, nil
}

// Key builds the S3 object key for one job's volume file, under the
// configured prefix.
func (u *Uploader) Key(jobName string, volumeIndex int) string {
	name := fmt.Sprintf("%s-volume-%04d.tar", jobName, volumeIndex)
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// UploadVolume uploads localPath (a volume file the caller has
// already closed) to the configured bucket, retrying transient
// failures with exponential backoff. Returns the object key on
// success.
func (u *Uploader) UploadVolume(ctx context.Context, localPath, jobName string, volumeIndex int) (string, error) {
	key := u.Key(jobName, volumeIndex)

	// Opening the local file is not retried: a missing or unreadable
	// volume file is a local bug (the caller closed it moments ago),
	// not a transient remote condition, so failing it fast avoids the
	// backoff loop's minutes-long worst case for an error retrying
	// could never fix.
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("mirror: opening %s: %w", localPath, err)
	}
	defer f.Close()

	var lastErr error
	for attempt := 0; attempt < maxUploadAttempts; attempt++ {
		if attempt > 0 {
			delay := uploadBackoff * time.Duration(1<<(attempt-1))
			if delay > maxUploadBackoff {
				delay = maxUploadBackoff
			}
			u.logger.Warn("retrying volume upload", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return "", fmt.Errorf("mirror: rewinding %s for retry: %w", localPath, err)
			}
		}

		if _, err := u.client.Upload(ctx, &s3.PutObjectInput{
			Bucket: &u.bucket,
			Key:    &key,
			Body:   f,
		}); err != nil {
			lastErr = err
			continue
		}

		u.logger.Info("volume uploaded", "bucket", u.bucket, "key", key)
		return key, nil
	}

	return "", fmt.Errorf("mirror: uploading %s after %d attempts: %w", localPath, maxUploadAttempts, lastErr)
}
