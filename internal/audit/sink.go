// Package audit implements the optional terminal-record archival sink
// (C11): it batches terminal InboundClientData records (LastData == true)
// from every stream into one shared batch, gzips the batch with
// klauspost/pgzip, and uploads the result to S3 as a newline-delimited JSON
// object. It is the concrete exerciser of this module's aws-sdk-go-v2
// dependency, which the teacher's own go.mod already carried (config,
// credentials, service/s3) without any file in that repo importing it, and
// of klauspost/pgzip, which the teacher declares for parallel backup
// compression and the netcap examples use for compressing their own writer
// output.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gzip "github.com/klauspost/pgzip"

	"github.com/nishisan-dev/streampool/internal/config"
	"github.com/nishisan-dev/streampool/internal/wire"
)

// PutObjectAPI is the subset of *s3.Client the sink calls, narrowed for
// testability with a fake uploader.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// record is one archived line in a batch's NDJSON object.
type record struct {
	StreamKey string    `json:"stream_key"`
	Component int       `json:"component"`
	Archived  time.Time `json:"archived_at"`
}

// S3Sink is a wire.InboundClientDataSink that archives terminal records. It
// is meant to sit beside the pool's primary dispatcher (see wire.FanoutSink) rather
// than replace it: the pool's dispatcher still drives application routing,
// while this sink only observes terminal markers for audit purposes.
type S3Sink struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *slog.Logger

	maxBatch      int
	flushInterval time.Duration

	mu      sync.Mutex
	batch   []record
	stop    chan struct{}
	stopped chan struct{}
}

// NewS3Sink builds an S3Sink from cfg, resolving AWS credentials via the
// default SDK chain unless static credentials are configured.
func NewS3Sink(ctx context.Context, cfg config.AuditConfig, logger *slog.Logger) (*S3Sink, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return NewS3SinkWithClient(s3.NewFromConfig(awsCfg), cfg, logger), nil
}

// NewS3SinkWithClient builds an S3Sink around an already-constructed client,
// letting tests substitute a fake PutObjectAPI.
func NewS3SinkWithClient(client PutObjectAPI, cfg config.AuditConfig, logger *slog.Logger) *S3Sink {
	return &S3Sink{
		client:        client,
		bucket:        cfg.Bucket,
		prefix:        cfg.Prefix,
		logger:        logger.With("component", "audit_sink"),
		maxBatch:      cfg.MaxBatchRecords,
		flushInterval: cfg.FlushInterval,
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

// Send implements wire.InboundClientDataSink. Only terminal records
// (LastData == true) are archived; all other traffic is ignored, since the
// sink's purpose is "a stream ended, here's its tail", not full replay.
func (s *S3Sink) Send(d wire.InboundClientData) {
	if !d.LastData {
		return
	}

	s.mu.Lock()
	s.batch = append(s.batch, record{
		StreamKey: d.SocketAddr.String(),
		Component: int(d.Component),
		Archived:  time.Now(),
	})
	full := s.maxBatch > 0 && len(s.batch) >= s.maxBatch
	s.mu.Unlock()

	if full {
		if err := s.flush(context.Background()); err != nil {
			s.logger.Error("audit flush failed", "error", err)
		}
	}
}

// Start begins the periodic flush loop. Call Stop to flush any remainder
// and terminate the loop.
func (s *S3Sink) Start() {
	go s.loop()
}

func (s *S3Sink) loop() {
	defer close(s.stopped)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			if err := s.flush(context.Background()); err != nil {
				s.logger.Error("final audit flush failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := s.flush(context.Background()); err != nil {
				s.logger.Error("audit flush failed", "error", err)
			}
		}
	}
}

// Stop halts the flush loop after a final flush.
func (s *S3Sink) Stop() {
	close(s.stop)
	<-s.stopped
}

func (s *S3Sink) flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.batch) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.batch
	s.batch = nil
	s.mu.Unlock()

	var ndjson bytes.Buffer
	enc := json.NewEncoder(&ndjson)
	for _, r := range batch {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding audit record: %w", err)
		}
	}

	// Parallel-gzip the batch before upload, the same gzip.Writer shape the
	// netcap writers in the pack use (gzip "github.com/klauspost/pgzip"),
	// trading a little CPU for a smaller S3 object on every flush.
	var compressed bytes.Buffer
	gw := gzip.NewWriter(&compressed)
	if _, err := gw.Write(ndjson.Bytes()); err != nil {
		return fmt.Errorf("compressing audit batch: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("closing audit batch compressor: %w", err)
	}

	key := fmt.Sprintf("%s%s.ndjson.gz", s.prefix, time.Now().UTC().Format("20060102T150405.000000000Z"))
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(compressed.Bytes()),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("uploading audit batch: %w", err)
	}

	s.logger.Info("audit batch uploaded", "records", len(batch), "key", key)
	return nil
}
