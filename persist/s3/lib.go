// Package s3 stores record pages as objects in an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/hashicorp/golang-lru/simplelru"
)

// S3Interface is the subset of the S3 API used by Persist.
type S3Interface interface {
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// Persist implements the layered.Persist interface for storing and loading
// pages from S3 objects.
type Persist struct {
	s3         S3Interface
	BucketName string
	Prefix     string
	lru        *simplelru.LRU
	l          sync.Mutex
}

// Load loads the bytes persisted in the named object.
func (p *Persist) Load(ctx context.Context, name string) ([]byte, error) {
	input := s3.GetObjectInput{
		Bucket: &p.BucketName,
		Key:    aws.String(p.Prefix + name),
	}
	output, err := p.s3.GetObjectWithContext(ctx, &input)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p.Prefix+name, err)
	}
	defer output.Body.Close()
	b, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.Prefix+name, err)
	}
	p.remember(name)
	return b, nil
}

// Store persists the given bytes in an object of the given name, unless
// this Persist has recently stored or loaded it.
func (p *Persist) Store(ctx context.Context, name string, b []byte) error {
	if p.seen(name) {
		return nil
	}
	input := s3.PutObjectInput{
		Bucket: &p.BucketName,
		Key:    aws.String(p.Prefix + name),
		Body:   bytes.NewReader(b),
	}
	_, err := p.s3.PutObjectWithContext(ctx, &input)
	if err != nil {
		return fmt.Errorf("put %s: %w", p.Prefix+name, err)
	}
	p.remember(name)
	return nil
}

func (p *Persist) seen(name string) bool {
	p.l.Lock()
	defer p.l.Unlock()
	_, present := p.lru.Get(name)
	return present
}

func (p *Persist) remember(name string) {
	p.l.Lock()
	p.lru.Add(name, nil)
	p.l.Unlock()
}

// NewPersist returns a Persist that loads and stores pages as
// objects with the given S3 client, bucket name, and key prefix.
func NewPersist(client S3Interface, bucketName, prefix string) *Persist {
	lru, err := simplelru.NewLRU(1000, nil)
	if err != nil {
		panic(err)
	}
	return &Persist{s3: client, BucketName: bucketName, Prefix: prefix, lru: lru}
}
