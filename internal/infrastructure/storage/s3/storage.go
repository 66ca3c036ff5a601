package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

const (
	codeRegionUnavailable = "REGION_UNAVAILABLE"
	codeCatastrophic      = "STORAGE_SERVICE_CATASTROPHIC_FAILURE"
	codeFileTooLarge      = "FILE_TOO_LARGE"
)

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type presignAPI interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Config struct {
	Bucket   string
	Regions  []string
	Endpoint string
}

// Storage writes objects to one bucket replicated across regions. The first
// region is primary; the others are failover targets.
type Storage struct {
	bucket    string
	regions   []string
	clients   map[string]objectAPI
	presigner presignAPI
}

func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if len(cfg.Regions) == 0 {
		cfg.Regions = []string{"eu-central-1"}
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Regions[0]))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	clients := make(map[string]objectAPI, len(cfg.Regions))
	var primary *s3.Client
	for i, region := range cfg.Regions {
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.Region = region
			if cfg.Endpoint != "" {
				o.BaseEndpoint = sdkaws.String(cfg.Endpoint)
				o.UsePathStyle = true
			}
		})
		clients[region] = client
		if i == 0 {
			primary = client
		}
	}
	return NewWithClients(cfg.Bucket, cfg.Regions, clients, s3.NewPresignClient(primary)), nil
}

func NewWithClients(bucket string, regions []string, clients map[string]objectAPI, presigner presignAPI) *Storage {
	return &Storage{
		bucket:    bucket,
		regions:   append([]string(nil), regions...),
		clients:   clients,
		presigner: presigner,
	}
}

func (s *Storage) Save(ctx context.Context, path string, data io.Reader) (string, error) {
	return s.SaveToRegion(ctx, s.regions[0], path, data)
}

func (s *Storage) SaveToRegion(ctx context.Context, region, path string, data io.Reader) (string, error) {
	client, ok := s.clients[region]
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "s3 put object", fmt.Errorf("unknown region %q", region))
	}
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: sdkaws.String(s.bucket),
		Key:    sdkaws.String(path),
		Body:   data,
	})
	if err != nil {
		return "", s.mapError("s3 put object", region, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, path), nil
}

func (s *Storage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	var lastErr error
	for _, region := range s.regions {
		out, err := s.clients[region].GetObject(ctx, &s3.GetObjectInput{
			Bucket: sdkaws.String(s.bucket),
			Key:    sdkaws.String(path),
		})
		if err == nil {
			return out.Body, nil
		}
		lastErr = s.mapError("s3 get object", region, err)
		if !isRegional(err) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (s *Storage) PresignUpload(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if s.presigner == nil {
		return "", errors.New("presigning is not configured")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: sdkaws.String(s.bucket),
		Key:    sdkaws.String(path),
	}, func(o *s3.PresignOptions) {
		o.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("presign put object: %w", err)
	}
	return req.URL, nil
}

func (s *Storage) mapError(op, region string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return domain.WrapError(domain.ErrAssetNotFound, op, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return domain.WrapError(domain.ErrUnauthorized, op, err)
		case "EntityTooLarge":
			ue := domain.NewUploadError(codeFileTooLarge, domain.StorageDetails{Region: region})
			ue.Message = err.Error()
			return ue
		case "NoSuchBucket":
			ue := domain.NewUploadError(codeCatastrophic, domain.StorageDetails{Region: region})
			ue.Message = err.Error()
			return ue
		case "SlowDown", "RequestTimeout":
			return domain.WrapError(domain.ErrTemporary, op, err)
		}
	}
	if isRegional(err) {
		if others := s.otherRegions(region); len(others) > 0 {
			ue := domain.NewUploadError(codeRegionUnavailable, domain.StorageDetails{Region: region, AvailableRegions: others})
			ue.Message = err.Error()
			return ue
		}
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Storage) otherRegions(failed string) []string {
	out := make([]string, 0, len(s.regions))
	for _, region := range s.regions {
		if region != failed {
			out = append(out, region)
		}
	}
	return out
}

// isRegional reports server side outages that another region may not share.
func isRegional(err error) bool {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return strings.EqualFold(apiErr.ErrorCode(), "ServiceUnavailable") || strings.EqualFold(apiErr.ErrorCode(), "InternalError")
	}
	return false
}
