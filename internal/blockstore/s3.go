package blockstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ipfs/go-cid"

	"packsync-go/internal/dag"
	"packsync-go/internal/packsync"
)

// S3Client is the subset of the S3 API the store uses.
type S3Client interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options configure an S3Store.
type S3Options struct {
	Bucket string
	Prefix string

	// Region, Endpoint and static credentials are only used by NewS3StoreFromOptions.
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string

	CacheSize        int
	Compression      bool
	CompressionLevel int
}

// S3Store keeps blocks and pointers as objects in a bucket:
//
//	<prefix>/blocks/<cid>
//	<prefix>/pointers/<name>
type S3Store struct {
	client     S3Client
	uploader   *manager.Uploader
	bucket     string
	prefix     string
	compressor *compressor
	cache      *blockCache
}

var _ Store = (*S3Store)(nil)

// NewS3StoreFromOptions loads AWS configuration and creates an S3Store.
func NewS3StoreFromOptions(ctx context.Context, opts S3Options) (*S3Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Store(client, opts)
}

// NewS3Store creates a store over an existing client.
func NewS3Store(client S3Client, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 store requires a bucket")
	}
	comp, err := newCompressor(opts.CompressionLevel, opts.Compression)
	if err != nil {
		return nil, err
	}
	cache, err := newBlockCache(opts.CacheSize)
	if err != nil {
		comp.Close()
		return nil, err
	}

	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		bucket:     opts.Bucket,
		prefix:     strings.Trim(opts.Prefix, "/"),
		compressor: comp,
		cache:      cache,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, codec uint64, data []byte) (cid.Cid, error) {
	c, err := dag.Sum(codec, data)
	if err != nil {
		return cid.Undef, err
	}
	if err := s.putObject(ctx, s.blockKey(c), s.compressor.encode(data)); err != nil {
		return cid.Undef, fmt.Errorf("uploading block %s: %w", c, err)
	}
	s.cache.add(c, data)
	return c, nil
}

func (s *S3Store) FetchBlock(ctx context.Context, c cid.Cid) ([]byte, error) {
	if data, ok := s.cache.get(c); ok {
		return data, nil
	}

	stored, err := s.getObject(ctx, s.blockKey(c))
	if err != nil {
		if errors.Is(err, errNoSuchKey) {
			return nil, fmt.Errorf("%w: %s", packsync.ErrBlockNotFound, c)
		}
		return nil, fmt.Errorf("downloading block %s: %w", c, err)
	}

	data, err := s.compressor.decode(stored)
	if err != nil {
		return nil, fmt.Errorf("reading block %s: %w", c, err)
	}
	if err := dag.Verify(c, data); err != nil {
		return nil, fmt.Errorf("corrupt block %s: %w", c, err)
	}

	s.cache.add(c, data)
	return data, nil
}

func (s *S3Store) ResolveNode(ctx context.Context, c cid.Cid, v any) error {
	return resolveNode(ctx, s.FetchBlock, c, v)
}

func (s *S3Store) ResolvePointer(ctx context.Context, name string) (cid.Cid, error) {
	data, err := s.getObject(ctx, s.pointerKey(name))
	if err != nil {
		if errors.Is(err, errNoSuchKey) {
			return cid.Undef, fmt.Errorf("%w: %s", packsync.ErrPointerNotFound, name)
		}
		return cid.Undef, fmt.Errorf("downloading pointer %s: %w", name, err)
	}
	c, err := cid.Decode(strings.TrimSpace(string(data)))
	if err != nil {
		return cid.Undef, fmt.Errorf("parsing pointer %s: %w", name, err)
	}
	return c, nil
}

func (s *S3Store) SetPointer(ctx context.Context, name string, c cid.Cid) error {
	if err := s.putObject(ctx, s.pointerKey(name), []byte(c.String()+"\n")); err != nil {
		return fmt.Errorf("uploading pointer %s: %w", name, err)
	}
	return nil
}

func (s *S3Store) Close() error {
	s.compressor.Close()
	return nil
}

var errNoSuchKey = errors.New("no such key")

func (s *S3Store) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, errNoSuchKey
		}
		return nil, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object body: %w", err)
	}
	return data, nil
}

func (s *S3Store) putObject(ctx context.Context, key string, data []byte) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (s *S3Store) blockKey(c cid.Cid) string {
	return path.Join(s.prefix, "blocks", c.String())
}

func (s *S3Store) pointerKey(name string) string {
	return path.Join(s.prefix, "pointers", strings.TrimPrefix(name, "/"))
}
