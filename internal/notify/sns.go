package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/nhle/lms-monitor/internal/model"
)

type smsPublisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNS delivers messages as SMS through AWS SNS.
type SNS struct {
	client smsPublisher
	phone  string
}

func NewSNS(ctx context.Context, cfg model.SNSConfig) (*SNS, error) {
	if cfg.PhoneNumber == "" {
		return nil, errors.New("sns: phone_number is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sns: loading AWS config: %w", err)
	}

	var clientOpts []func(*sns.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &SNS{client: sns.NewFromConfig(awsCfg, clientOpts...), phone: cfg.PhoneNumber}, nil
}

func (s *SNS) Name() string { return "sns" }

func (s *SNS) Send(ctx context.Context, text string) error {
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(s.phone),
		Message:     aws.String(plainText(text)),
	})
	return err
}
