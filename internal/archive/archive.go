// Package archive exports committed instance logs to S3-compatible object
// storage as JSON Lines. Exports are backups: nothing reads them back at
// runtime.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/riftline/arcjournal/internal/store"
)

// Config holds explicit construction parameters. Endpoint and PathStyle
// enable S3-compatible backends such as MinIO.
type Config struct {
	Region    string
	Bucket    string
	Endpoint  string
	PathStyle bool
}

// objectPutter is the slice of the S3 client the exporter needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Exporter writes instance logs to object storage.
type Exporter struct {
	client objectPutter
	bucket string
	store  store.InstanceStore
}

// record is one JSONL line of an exported log.
type record struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Seq        uint64          `json:"seq"`
	OwnerID    string          `json:"owner_id"`
	LocalTime  time.Time       `json:"local_time"`
	ServerTime *time.Time      `json:"server_time"`
	Fields     json.RawMessage `json:"fields"`
}

// New builds an exporter using the default AWS credentials chain.
func New(ctx context.Context, cfg Config, st store.InstanceStore) (*Exporter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Exporter{client: client, bucket: cfg.Bucket, store: st}, nil
}

// NewWithClient builds an exporter over an existing client. Tests use it.
func NewWithClient(client objectPutter, bucket string, st store.InstanceStore) *Exporter {
	return &Exporter{client: client, bucket: bucket, store: st}
}

// ExportInstance writes the instance's committed log as one JSONL object
// under <owner>/<arc>/<instance>.jsonl and returns the object key and the
// number of exported transactions.
func (e *Exporter) ExportInstance(ctx context.Context, instanceID string) (string, int, error) {
	instance, err := e.store.Load(ctx, instanceID)
	if err != nil {
		return "", 0, err
	}
	committed := instance.Committed()

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, tx := range committed {
		fields, err := json.Marshal(tx.Payload.Fields())
		if err != nil {
			return "", 0, fmt.Errorf("encode payload for %s: %w", tx.ID, err)
		}
		line := record{
			ID:         tx.ID,
			Kind:       string(tx.Kind),
			Seq:        tx.Seq,
			OwnerID:    tx.OwnerID,
			LocalTime:  tx.LocalTime,
			ServerTime: tx.ServerTime,
			Fields:     fields,
		}
		if err := encoder.Encode(line); err != nil {
			return "", 0, fmt.Errorf("encode record for %s: %w", tx.ID, err)
		}
	}

	key := fmt.Sprintf("%s/%s/%s.jsonl", instance.OwnerID, instance.ArcRef, instance.ID)
	contentType := "application/x-ndjson"
	if _, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &e.bucket,
		Key:         &key,
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: &contentType,
	}); err != nil {
		return "", 0, fmt.Errorf("put archive object: %w", err)
	}
	return key, len(committed), nil
}
