// Package archive writes closed matchmaking tickets to Cloudflare R2 before
// they are pruned from the database.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"

	"matchmaking-service/models"
)

// ObjectPutter is the slice of the S3 API the archive uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewR2Client returns an S3 client pointed at the account's R2 endpoint.
func NewR2Client(ctx context.Context, accountID, accessKeyID, accessKeySecret string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, eris.Wrap(err, "failed to load R2 config")
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID))
	}), nil
}

// Archive stores batches of tickets as JSON objects under Prefix.
type Archive struct {
	Client ObjectPutter
	Bucket string
	Prefix string
}

func New(client ObjectPutter, bucket, prefix string) *Archive {
	return &Archive{Client: client, Bucket: bucket, Prefix: prefix}
}

// Key is the object key for a batch written at "at" whose first ticket is
// firstID. Keys sort by day, then by write time.
func (a *Archive) Key(at time.Time, firstID uint64) string {
	at = at.UTC()
	return path.Join(a.Prefix, at.Format("2006/01/02"), fmt.Sprintf("%d-%d.json", at.UnixNano(), firstID))
}

// PutTickets uploads tickets as one JSON array and returns the object key.
func (a *Archive) PutTickets(ctx context.Context, tickets []models.Ticket, at time.Time) (string, error) {
	if len(tickets) == 0 {
		return "", eris.New("no tickets to archive")
	}
	body, err := json.Marshal(tickets)
	if err != nil {
		return "", eris.Wrap(err, "failed to encode tickets")
	}
	key := a.Key(at, tickets[0].ID)
	_, err = a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", eris.Wrapf(err, "failed to upload %s to R2", key)
	}
	return key, nil
}
