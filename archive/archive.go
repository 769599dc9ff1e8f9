// Package archive provides durable storage, keyed by pledge serial
// number and artifact kind, of
// issued vouchers (at the MASA) and status reports (at the
// registrar), supplementing the protocol's own audit trail
// (Supplemented feature 6, SPEC_FULL.md). Grounded on the teacher's
// use of aws-sdk-go-v2's S3 client for out-of-band artifact storage.
package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/brski-prm/brski-prm-go/berrors"
)

// Store archives opaque signed artifacts under a bucket/prefix keyed
// by pledge serial number and kind.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// New constructs a Store from an already-configured S3 client.
func New(client *s3.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

// Put archives raw signed bytes (a voucher, RVR, or status report)
// under serial/kind, overwriting any previous object at that key —
// archival is best-effort record-keeping, not a append-only ledger.
func (s *Store) Put(ctx context.Context, serial, kind string, body []byte) error {
	key := s.key(serial, kind)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return berrors.TransportError("archive: put %s failed: %s", key, err)
	}
	return nil
}

// Get retrieves a previously archived artifact.
func (s *Store) Get(ctx context.Context, serial, kind string) ([]byte, error) {
	key := s.key(serial, kind)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, berrors.TransportError("archive: get %s failed: %s", key, err)
	}
	defer out.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, berrors.New(berrors.Internal, "archive: read %s failed: %s", key, err)
	}
	return buf.Bytes(), nil
}

func (s *Store) key(serial, kind string) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, serial, kind)
}
