package services

import (
	"bytes"
	"context"
	"errors"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3MailDropSender writes each message as an .eml object instead of sending it.
// Staging environments point QA tooling at the bucket.
type S3MailDropSender struct {
	uploader objectUploader
	bucket   string
	prefix   string
	from     string
	now      func() time.Time
}

func NewS3MailDropSender(client *s3.Client, bucket, prefix, from string) *S3MailDropSender {
	return &S3MailDropSender{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		from:     from,
		now:      time.Now,
	}
}

func (s *S3MailDropSender) Send(ctx context.Context, email Email) error {
	if len(email.To) == 0 {
		return errors.New("no recipients specified")
	}

	var buf bytes.Buffer
	if err := writeMessage(&buf, s.from, email); err != nil {
		return err
	}

	key := path.Join(s.prefix, s.now().UTC().Format("2006/01/02"), uuid.NewString()+".eml")
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("message/rfc822"),
	})
	return err
}
