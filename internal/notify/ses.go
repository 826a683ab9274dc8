package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// sesClient is the subset of the SES v2 API used here.
type sesClient interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig configures the SES notifier.
type SESConfig struct {
	Region    string
	AccessKey string
	SecretKey string
	Sender    string
	Recipient string
}

// SESNotifier emails the site owner through AWS SES.
type SESNotifier struct {
	client    sesClient
	sender    string
	recipient string
}

// NewSESNotifier creates an SES notifier. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func NewSESNotifier(ctx context.Context, cfg SESConfig) (*SESNotifier, error) {
	if cfg.Sender == "" || cfg.Recipient == "" {
		return nil, errors.New("ses notifier requires sender and recipient")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSESNotifier(sesv2.NewFromConfig(awsCfg), cfg.Sender, cfg.Recipient), nil
}

func newSESNotifier(client sesClient, sender, recipient string) *SESNotifier {
	return &SESNotifier{client: client, sender: sender, recipient: recipient}
}

func (n *SESNotifier) Name() string { return "ses" }

// Notify sends one plain-text email. Replies go to the submitter.
func (n *SESNotifier) Notify(ctx context.Context, msg Message) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.sender),
		Destination:      &sestypes.Destination{ToAddresses: []string{n.recipient}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(msg.Subject()), Charset: aws.String("UTF-8")},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(msg.Text()), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []sestypes.MessageTag{
			{Name: aws.String("email_type"), Value: aws.String("admin_alert")},
		},
	}
	if msg.Email != "" {
		input.ReplyToAddresses = []string{msg.Email}
	}

	if _, err := n.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("ses send email: %w", err)
	}
	return nil
}
