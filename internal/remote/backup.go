package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/notenest/internal/notes"
	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BackupApp identifies NoteNest backup payloads.
const BackupApp = "NoteNest"

const defaultS3Region = "us-east-1"

// BackupDocument is the payload of backup files and of the secondary backup target.
// Files carry ExportedAt, the backup target carries BackupAt.
type BackupDocument struct {
	App        string            `json:"app"`
	ExportedAt string            `json:"exportedAt,omitempty"`
	BackupAt   string            `json:"backupAt,omitempty"`
	Notes      notes.NoteMap     `json:"notes"`
	Users      []notes.UserLogin `json:"users"`
}

// BackupTarget stores one administrator backup document outside the shared cloud document.
type BackupTarget interface {
	// Fetch returns the stored document as generic JSON values; callers sanitize it.
	Fetch(ctx context.Context) (any, error)
	Store(ctx context.Context, document BackupDocument) error
}

// HTTPBackupTarget keeps the backup in a JSON-blob endpoint with the same contract as the
// shared cloud document.
type HTTPBackupTarget struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPBackupTarget returns a target for endpoint.
func NewHTTPBackupTarget(endpoint string, httpClient *http.Client) *HTTPBackupTarget {
	return &HTTPBackupTarget{endpoint: endpoint, httpClient: defaultHTTPClient(httpClient)}
}

// Fetch downloads the backup document.
func (t *HTTPBackupTarget) Fetch(ctx context.Context) (any, error) {
	return getJSON(ctx, t.httpClient, t.endpoint, OpBackupLoad)
}

// Store replaces the backup document.
func (t *HTTPBackupTarget) Store(ctx context.Context, document BackupDocument) error {
	return putJSON(ctx, t.httpClient, t.endpoint, withCollections(document), OpBackupSave)
}

// S3TargetConfig locates the backup object. Empty credentials fall back to the default AWS chain.
type S3TargetConfig struct {
	Bucket          string
	Key             string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3BackupTarget keeps the backup as a single S3 object.
type S3BackupTarget struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3BackupTarget builds an S3 client for cfg. A custom Endpoint switches to path-style
// addressing so S3-compatible stores work.
func NewS3BackupTarget(ctx context.Context, cfg S3TargetConfig) (*S3BackupTarget, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	key := strings.TrimSpace(cfg.Key)
	if bucket == "" || key == "" {
		return nil, errors.New("remote: s3 bucket and key are required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultS3Region
	}

	options := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("remote: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &S3BackupTarget{client: client, bucket: bucket, key: key}, nil
}

// Fetch downloads and decodes the backup object.
func (t *S3BackupTarget) Fetch(ctx context.Context) (any, error) {
	output, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key),
	})
	if err != nil {
		return nil, newError(OpBackupLoad, statusCodeOf(err), err)
	}
	defer output.Body.Close()

	var decoded any
	if err := json.NewDecoder(io.LimitReader(output.Body, maxDocumentBytes)).Decode(&decoded); err != nil {
		return nil, newError(OpBackupLoad, 0, fmt.Errorf("decode object: %w", err))
	}
	return decoded, nil
}

// Store uploads the backup object, replacing any previous one.
func (t *S3BackupTarget) Store(ctx context.Context, document BackupDocument) error {
	encoded, err := json.Marshal(withCollections(document))
	if err != nil {
		return newError(OpBackupSave, 0, fmt.Errorf("encode object: %w", err))
	}
	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(t.key),
		Body:          bytes.NewReader(encoded),
		ContentLength: aws.Int64(int64(len(encoded))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return newError(OpBackupSave, statusCodeOf(err), err)
	}
	return nil
}

func statusCodeOf(err error) int {
	var responseErr *awshttp.ResponseError
	if errors.As(err, &responseErr) {
		return responseErr.HTTPStatusCode()
	}
	return 0
}

func withCollections(document BackupDocument) BackupDocument {
	if document.App == "" {
		document.App = BackupApp
	}
	if document.Notes == nil {
		document.Notes = notes.NoteMap{}
	}
	if document.Users == nil {
		document.Users = []notes.UserLogin{}
	}
	return document
}
