package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = body
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StoragePrefixesKeys(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := NewS3StorageWithClient(client, "fees", "ledger")

	require.NoError(t, store.Put(ctx, "receipts/b1/r1.pdf", []byte("pdf"), "application/pdf"))
	assert.Contains(t, client.objects, "fees/ledger/receipts/b1/r1.pdf")
	assert.Equal(t, "application/pdf", client.types["fees/ledger/receipts/b1/r1.pdf"])

	rc, err := store.Get(ctx, "receipts/b1/r1.pdf")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "pdf", string(body))
}

func TestS3StorageMapsMissingKey(t *testing.T) {
	store := NewS3StorageWithClient(newFakeS3(), "fees", "")

	_, err := store.Get(context.Background(), "missing.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
