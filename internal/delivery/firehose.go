package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/firehose"
	"github.com/aws/aws-sdk-go-v2/service/firehose/types"

	dtypes "github.com/pilot-net/icmp-mon/pkg/types"
)

// FirehosePublisher implements Publisher against a managed delivery stream
// over HTTPS. An optional endpoint override lets it target a local test
// double for integration testing (§6 of the spec).
type FirehosePublisher struct {
	client *firehose.Client
}

// FirehoseConfig configures a FirehosePublisher.
type FirehoseConfig struct {
	Region      string
	EndpointURL string // optional override for a local test double
}

// NewFirehosePublisher builds a publisher backed by the AWS SDK's Firehose
// client, loading credentials from the default provider chain.
func NewFirehosePublisher(ctx context.Context, cfg FirehoseConfig) (*FirehosePublisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := firehose.NewFromConfig(awsCfg, func(o *firehose.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})

	return &FirehosePublisher{client: client}, nil
}

// PutRecordBatch submits records to the named delivery stream and reports
// which ones the stream rejected, per the record-level status codes the
// downstream returns.
func (p *FirehosePublisher) PutRecordBatch(ctx context.Context, streamName string, records []dtypes.EncodedRecord) ([]dtypes.EncodedRecord, error) {
	entries := make([]types.Record, len(records))
	for i, r := range records {
		entries[i] = types.Record{Data: []byte(r.Text)}
	}

	out, err := p.client.PutRecordBatch(ctx, &firehose.PutRecordBatchInput{
		DeliveryStreamName: aws.String(streamName),
		Records:            entries,
	})
	if err != nil {
		if isPermanentAWSError(err) {
			return nil, &PermanentError{Err: err}
		}
		return nil, err
	}

	var failed []dtypes.EncodedRecord
	for i, resp := range out.RequestResponses {
		if resp.ErrorCode != nil {
			failed = append(failed, records[i])
		}
	}

	return failed, nil
}

// isPermanentAWSError reports whether err represents a request the
// downstream will never accept no matter how many times it's resent
// (malformed request, missing/archived stream, auth failure).
func isPermanentAWSError(err error) bool {
	var rne interface {
		ErrorCode() string
	}
	if errors.As(err, &rne) {
		switch rne.ErrorCode() {
		case "ResourceNotFoundException", "InvalidArgumentException", "AccessDeniedException":
			return true
		}
	}
	return false
}
