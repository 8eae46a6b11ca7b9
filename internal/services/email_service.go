package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	pkglogger "github.com/dinarexchange/dinar-auth/pkg/logger"
)

// Notifier delivers a single HTML email
type Notifier interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SESNotifier sends email through AWS SES
type SESNotifier struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

func NewSESNotifier(region, fromAddress string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESNotifier{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

func (s *SESNotifier) Send(ctx context.Context, to, subject, htmlBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(htmlBody),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

const magicLinkSubject = "Your Dinar Exchange login link"

// magicLinkEmail renders the login email body
func magicLinkEmail(link string, ttl time.Duration) string {
	expiry := "This link can be used once."
	if ttl > 0 {
		expiry = fmt.Sprintf("This link can be used once and expires in %s.", humanDuration(ttl))
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; background-color: #1a7f37; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Sign in to Dinar Exchange</h1>
        <p>Click the button below to sign in. Once you do, this device will be remembered so you can sign in without an email next time.</p>
        <p><a href="%s" class="button">Sign in</a></p>
        <p>Or copy and paste this link in your browser:<br>
        <code>%s</code></p>
        <p>%s</p>
        <p><strong>Didn't request this?</strong><br>
        You can ignore this email. Nobody can sign in without the link.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, link, link, expiry)
}

func humanDuration(d time.Duration) string {
	switch {
	case d%(24*time.Hour) == 0:
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "24 hours"
		}
		return fmt.Sprintf("%d days", days)
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	default:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
}
