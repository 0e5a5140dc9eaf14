package notification

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client used by SQSPublisher.
type SQSAPI interface {
	GetQueueUrl(ctx context.Context, in *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// NewSQSClient builds an SQS client from the default AWS config chain.
func NewSQSClient(ctx context.Context) (*sqs.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return sqs.New(sqs.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
	}), nil
}

// SQSPublisher sends notifications to one queue. The key travels as a
// message attribute.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
}

// NewSQSPublisher resolves the queue URL once up front.
func NewSQSPublisher(ctx context.Context, client SQSAPI, queueName string) (*SQSPublisher, error) {
	resp, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: &queueName})
	if err != nil {
		return nil, fmt.Errorf("get SQS queue URL for %s: %w", queueName, err)
	}
	return &SQSPublisher{client: client, queueURL: aws.ToString(resp.QueueUrl)}, nil
}

func (p *SQSPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	in := &sqs.SendMessageInput{
		QueueUrl:    &p.queueURL,
		MessageBody: aws.String(string(payload)),
	}
	if key != "" {
		in.MessageAttributes = map[string]types.MessageAttributeValue{
			"key": {DataType: aws.String("String"), StringValue: aws.String(key)},
		}
	}
	if _, err := p.client.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("sqs send to %s: %w", p.queueURL, err)
	}
	return nil
}
