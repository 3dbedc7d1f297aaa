package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/icanedev/smartcane-api/internal/models"
	pkglogger "github.com/icanedev/smartcane-api/pkg/logger"
)

// AWSSESEmailService sends one-time passcode emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	senderName  string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress, senderName string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		senderName:  senderName,
		logger:      logger,
	}, nil
}

// SendOTPEmail delivers a passcode to the recipient. The subject and intro
// line follow the purpose so the recipient can tell an unexpected
// password-reset code from one they asked for.
func (s *AWSSESEmailService) SendOTPEmail(ctx context.Context, recipient, code, displayName string, purpose models.OTPPurpose, ttl time.Duration) error {
	subject, intro := purposeCopy(purpose)

	greeting := "Hello,"
	if displayName != "" {
		greeting = fmt.Sprintf("Hello %s,", displayName)
	}
	minutes := int(ttl.Minutes())

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; padding: 16px; background-color: #f1f3f5; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>%s</h1>
        </div>
        <p>%s</p>
        <p>%s</p>
        <div class="code">%s</div>
        <div class="warning">
            <strong>Security notice:</strong> This code expires in %d minutes. Never share it with anyone; our team will never ask for it.
        </div>
        <p><strong>Didn't request this code?</strong><br>
        You can safely ignore this email. Nothing changes on your account without the code.</p>
        <div class="footer">
            <p>This is an automated message from %s. Please do not reply.</p>
        </div>
    </div>
</body>
</html>
`, subject, greeting, intro, code, minutes, s.senderName)

	textBody := fmt.Sprintf(`%s

%s
%s

Your code: %s

Security notice: this code expires in %d minutes. Never share it with anyone; our team will never ask for it.

Didn't request this code? You can safely ignore this email. Nothing changes on your account without the code.

This is an automated message from %s. Please do not reply.
`, subject, greeting, intro, code, minutes, s.senderName)

	input := &ses.SendEmailInput{
		Source: aws.String(fmt.Sprintf("%s <%s>", s.senderName, s.fromAddress)),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send passcode email via SES",
			slog.String("email", pkglogger.SanitizedEmail(recipient)),
			slog.String("purpose", string(purpose)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("passcode email sent",
		slog.String("email", pkglogger.SanitizedEmail(recipient)),
		slog.String("purpose", string(purpose)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

func purposeCopy(purpose models.OTPPurpose) (subject, intro string) {
	switch purpose {
	case models.OTPPurposeRegistration:
		return "Confirm your registration",
			"Use the code below to finish setting up your caregiver account."
	case models.OTPPurposeEmailChange:
		return "Confirm your new email address",
			"Use the code below to confirm the email change on your caregiver account."
	case models.OTPPurposePasswordReset:
		return "Reset your password",
			"Use the code below to reset the password on your caregiver account."
	default:
		return "Your verification code",
			"Use the code below to continue."
	}
}
