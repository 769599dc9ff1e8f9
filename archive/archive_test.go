package archive

import (
	"context"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestKeyLayout(t *testing.T) {
	s := New(nil, "brski-vouchers", "issued")
	got := s.key("00-D0-E5-F2-00-02", "voucher")
	want := "issued/00-D0-E5-F2-00-02/voucher"
	if got != want {
		t.Fatalf("got key %q, want %q", got, want)
	}
}

type staticEndpointResolver struct{ endpoint string }

func (r staticEndpointResolver) ResolveEndpoint(region string, options s3.EndpointResolverOptions) (aws.Endpoint, error) {
	return aws.Endpoint{URL: r.endpoint, SigningRegion: region, HostnameImmutable: true}, nil
}

// testClient points at a local S3-compatible endpoint (a minio
// container in dev/CI) rather than real AWS, mirroring the
// env-var-driven integration style used by sa/nonce's backing-store
// tests.
func testClient(t *testing.T) *s3.Client {
	t.Helper()
	endpoint := os.Getenv("BRSKI_TEST_S3_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	return s3.New(s3.Options{
		Region:           "us-east-1",
		UsePathStyle:     true,
		Credentials:      credentials.NewStaticCredentialsProvider("minioadmin", "minioadmin", ""),
		EndpointResolver: staticEndpointResolver{endpoint: endpoint},
	})
}

func TestPutThenGetRoundTrip(t *testing.T) {
	store := New(testClient(t), "brski-test", "status-reports")
	ctx := context.Background()
	body := []byte(`{"current-step":"voucher-issued"}`)

	if err := store.Put(ctx, "00-D0-E5-F2-00-05", "status", body); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(ctx, "00-D0-E5-F2-00-05", "status")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(body) {
		t.Fatalf("got %q, want %q", got, body)
	}
}
