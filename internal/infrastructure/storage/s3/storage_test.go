package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

type objectFake struct {
	putErr  error
	getErr  error
	puts    []string
	objects map[string]string
}

func (f *objectFake) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	raw, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string]string{}
	}
	f.objects[*in.Key] = string(raw)
	f.puts = append(f.puts, *in.Key)
	return &s3.PutObjectOutput{}, nil
}

func (f *objectFake) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.objects[*in.Key]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "missing"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

type presignFake struct {
	expires time.Duration
}

func (f *presignFake) PresignPutObject(_ context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://" + *in.Bucket + ".s3.example.com/" + *in.Key, Method: http.MethodPut}, nil
}

func serverError(status int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      errors.New("server error"),
		},
	}
}

func TestSaveToPrimaryRegion(t *testing.T) {
	primary, secondary := &objectFake{}, &objectFake{}
	s := NewWithClients("media", []string{"eu-central-1", "eu-west-1"}, map[string]objectAPI{
		"eu-central-1": primary,
		"eu-west-1":    secondary,
	}, nil)

	ref, err := s.Save(context.Background(), "organizations/o/media/a.png", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if ref != "s3://media/organizations/o/media/a.png" || len(primary.puts) != 1 || len(secondary.puts) != 0 {
		t.Fatalf("unexpected save: ref=%s primary=%v secondary=%v", ref, primary.puts, secondary.puts)
	}
}

func TestSaveReportsRegionOutage(t *testing.T) {
	primary, secondary := &objectFake{putErr: serverError(http.StatusServiceUnavailable)}, &objectFake{}
	s := NewWithClients("media", []string{"eu-central-1", "eu-west-1"}, map[string]objectAPI{
		"eu-central-1": primary,
		"eu-west-1":    secondary,
	}, nil)

	_, err := s.Save(context.Background(), "k", strings.NewReader("x"))
	var ue *domain.UploadError
	if !errors.As(err, &ue) || ue.Code != codeRegionUnavailable {
		t.Fatalf("expected region outage, got %v", err)
	}
	details := ue.Details.(domain.StorageDetails)
	if details.Region != "eu-central-1" || len(details.AvailableRegions) != 1 || details.AvailableRegions[0] != "eu-west-1" {
		t.Fatalf("unexpected details: %+v", details)
	}

	if _, err := s.SaveToRegion(context.Background(), "eu-west-1", "k", strings.NewReader("x")); err != nil {
		t.Fatalf("SaveToRegion() error = %v", err)
	}
	if secondary.objects["k"] != "x" {
		t.Fatalf("object not written to secondary")
	}
}

func TestSaveSingleRegionOutageIsTemporary(t *testing.T) {
	s := NewWithClients("media", []string{"eu-central-1"}, map[string]objectAPI{
		"eu-central-1": &objectFake{putErr: serverError(http.StatusBadGateway)},
	}, nil)
	if _, err := s.Save(context.Background(), "k", strings.NewReader("x")); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestMapAPIErrors(t *testing.T) {
	s := NewWithClients("media", []string{"eu-central-1"}, nil, nil)
	tests := []struct {
		code  string
		check func(error) bool
	}{
		{"AccessDenied", func(err error) bool { return domain.IsKind(err, domain.ErrUnauthorized) }},
		{"SlowDown", func(err error) bool { return domain.IsKind(err, domain.ErrTemporary) }},
		{"NoSuchKey", func(err error) bool { return domain.IsKind(err, domain.ErrAssetNotFound) }},
		{"NoSuchBucket", func(err error) bool {
			var ue *domain.UploadError
			return errors.As(err, &ue) && ue.Code == codeCatastrophic
		}},
		{"EntityTooLarge", func(err error) bool {
			var ue *domain.UploadError
			return errors.As(err, &ue) && ue.Key() == "storage.FILE_TOO_LARGE"
		}},
	}
	for _, tt := range tests {
		err := s.mapError("op", "eu-central-1", &smithy.GenericAPIError{Code: tt.code})
		if !tt.check(err) {
			t.Fatalf("unexpected mapping for %s: %v", tt.code, err)
		}
	}
}

func TestOpenFallsBackAcrossRegions(t *testing.T) {
	secondary := &objectFake{objects: map[string]string{"k": "body"}}
	s := NewWithClients("media", []string{"eu-central-1", "eu-west-1"}, map[string]objectAPI{
		"eu-central-1": &objectFake{getErr: serverError(http.StatusInternalServerError)},
		"eu-west-1":    secondary,
	}, nil)

	rc, err := s.Open(context.Background(), "k")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "body" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestPresignUpload(t *testing.T) {
	presigner := &presignFake{}
	s := NewWithClients("media", []string{"eu-central-1"}, nil, presigner)

	url, err := s.PresignUpload(context.Background(), "organizations/o/a.png", 0)
	if err != nil {
		t.Fatalf("PresignUpload() error = %v", err)
	}
	if url != "https://media.s3.example.com/organizations/o/a.png" || presigner.expires != 15*time.Minute {
		t.Fatalf("unexpected presign: %s %s", url, presigner.expires)
	}
}
