package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/hupe1980/boxdb/blobstore"
	"github.com/hupe1980/boxdb/blobstore/minio"
	"github.com/hupe1980/boxdb/blobstore/s3"
)

type target struct {
	scheme   string
	host     string // minio endpoint
	bucket   string
	prefix   string
	path     string // local directory
	region   string
	endpoint string // s3 endpoint override
	ddbTable string
	tls      bool
}

// parseTarget understands
//
//	/some/dir, file:///some/dir
//	s3://bucket/prefix?region=eu-west-1&endpoint=http://localhost:4566&ddb=table
//	minio://host:9000/bucket/prefix?tls=true
func parseTarget(raw string) (target, error) {
	if !strings.Contains(raw, "://") {
		return target{scheme: "file", path: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return target{}, fmt.Errorf("target %q: %w", raw, err)
	}
	q := u.Query()
	t := target{scheme: u.Scheme}

	switch u.Scheme {
	case "file":
		t.path = u.Path
	case "s3":
		t.bucket = u.Host
		t.prefix = strings.TrimPrefix(u.Path, "/")
		t.region = q.Get("region")
		t.endpoint = q.Get("endpoint")
		t.ddbTable = q.Get("ddb")
	case "minio":
		t.host = u.Host
		t.bucket, t.prefix, _ = strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		t.region = q.Get("region")
		t.tls = q.Get("tls") == "true"
	default:
		return target{}, fmt.Errorf("target %q: unsupported scheme %q", raw, u.Scheme)
	}
	if t.scheme != "file" && t.bucket == "" {
		return target{}, fmt.Errorf("target %q: missing bucket", raw)
	}
	if t.scheme == "file" && t.path == "" {
		return target{}, fmt.Errorf("target %q: missing path", raw)
	}
	return t, nil
}

func openTarget(ctx context.Context, raw string) (blobstore.BlobStore, error) {
	t, err := parseTarget(raw)
	if err != nil {
		return nil, err
	}

	switch t.scheme {
	case "s3":
		var opts []s3.Option
		if t.prefix != "" {
			opts = append(opts, s3.WithPrefix(t.prefix))
		}
		if t.region != "" {
			opts = append(opts, s3.WithRegion(t.region))
		}
		if t.endpoint != "" {
			opts = append(opts, s3.WithEndpoint(t.endpoint))
		}
		store, err := s3.New(ctx, t.bucket, opts...)
		if err != nil {
			return nil, err
		}
		if t.ddbTable == "" {
			return store, nil
		}

		var loadOpts []func(*config.LoadOptions) error
		if t.region != "" {
			loadOpts = append(loadOpts, config.WithRegion(t.region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		uri := "s3://" + t.bucket + "/" + t.prefix
		return s3.NewDDBCommitStore(store, dynamodb.NewFromConfig(cfg), t.ddbTable, uri), nil

	case "minio":
		store, err := minio.Dial(t.host, t.bucket, t.prefix, minioOptions(t)...)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil

	default:
		if err := os.MkdirAll(t.path, 0o755); err != nil {
			return nil, err
		}
		return blobstore.NewLocalStore(t.path), nil
	}
}

// minioOptions reads credentials from MINIO_ACCESS_KEY and MINIO_SECRET_KEY.
func minioOptions(t target) []minio.DialOption {
	opts := []minio.DialOption{
		minio.WithCredentials(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY")),
	}
	if t.tls {
		opts = append(opts, minio.WithTLS())
	}
	if t.region != "" {
		opts = append(opts, minio.WithRegion(t.region))
	}
	return opts
}
