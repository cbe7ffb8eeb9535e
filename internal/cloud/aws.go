// Package cloud builds AWS sessions shared by the S3 and DynamoDB backends.
package cloud

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/codebuildervaibhav/voice-annotation/internal/config"
)

// ErrNoCredentials is returned when no AWS credentials can be resolved.
var ErrNoCredentials = errors.New("aws credentials not found")

// NewAWSSession creates a session for region and verifies that credentials
// resolve. Unless UseDefaultChain is set only static, environment and shared
// file credentials are consulted, so a host without credentials fails fast
// instead of waiting on the instance metadata endpoint.
func NewAWSSession(cfg config.AWSConfig, region, endpoint string) (*session.Session, error) {
	awsCfg := aws.NewConfig().WithRegion(region)
	if endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}

	if !cfg.UseDefaultChain {
		awsCfg = awsCfg.WithCredentials(credentials.NewChainCredentials([]credentials.Provider{
			&credentials.StaticProvider{Value: credentials.Value{
				AccessKeyID:     cfg.AccessKeyID,
				SecretAccessKey: cfg.SecretAccessKey,
			}},
			&credentials.EnvProvider{},
			&credentials.SharedCredentialsProvider{},
		}))
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	if _, err := sess.Config.Credentials.Get(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}

	return sess, nil
}
