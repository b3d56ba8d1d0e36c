package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

const logRetentionDays = 30

type logsAPI interface {
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	PutRetentionPolicy(ctx context.Context, params *cloudwatchlogs.PutRetentionPolicyInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutRetentionPolicyOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// CloudWatchLogsClient is an io.Writer that ships each encoded log entry to
// a per-process CloudWatch Logs stream. It backs a zap core.
type CloudWatchLogsClient struct {
	api     logsAPI
	group   string
	stream  string
	enabled bool

	mu sync.Mutex
}

// NewCloudWatchLogsClient prepares the log group (30 day retention) and a
// stream named after the service and start time.
func NewCloudWatchLogsClient(ctx context.Context, cfg sdkaws.Config, logGroup, serviceName string, enabled bool) (*CloudWatchLogsClient, error) {
	return newCloudWatchLogsClient(ctx, cloudwatchlogs.NewFromConfig(cfg), logGroup, serviceName, enabled)
}

func newCloudWatchLogsClient(ctx context.Context, api logsAPI, logGroup, serviceName string, enabled bool) (*CloudWatchLogsClient, error) {
	if logGroup == "" {
		logGroup = "/queenbee/api"
	}
	c := &CloudWatchLogsClient{
		api:     api,
		group:   logGroup,
		stream:  fmt.Sprintf("%s-%d", serviceName, time.Now().Unix()),
		enabled: enabled,
	}
	if !enabled {
		return c, nil
	}

	if _, err := api.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{LogGroupName: sdkaws.String(c.group)}); err != nil && !alreadyExists(err) {
		return nil, fmt.Errorf("create log group %s: %w", c.group, err)
	}
	if _, err := api.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
		LogGroupName:    sdkaws.String(c.group),
		RetentionInDays: sdkaws.Int32(logRetentionDays),
	}); err != nil {
		return nil, fmt.Errorf("set retention on %s: %w", c.group, err)
	}
	if _, err := api.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  sdkaws.String(c.group),
		LogStreamName: sdkaws.String(c.stream),
	}); err != nil && !alreadyExists(err) {
		return nil, fmt.Errorf("create log stream %s: %w", c.stream, err)
	}
	return c, nil
}

func alreadyExists(err error) bool {
	var exists *types.ResourceAlreadyExistsException
	return errors.As(err, &exists)
}

func (c *CloudWatchLogsClient) IsEnabled() bool {
	return c.enabled
}

func (c *CloudWatchLogsClient) Stream() string {
	return c.stream
}

// Write never fails. Delivery errors are reported on stderr so the rest of
// the logger keeps working.
func (c *CloudWatchLogsClient) Write(p []byte) (int, error) {
	if !c.enabled {
		return len(p), nil
	}
	msg := bytes.TrimRight(p, "\n")
	if len(msg) == 0 {
		return len(p), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.mu.Lock()
	_, err := c.api.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  sdkaws.String(c.group),
		LogStreamName: sdkaws.String(c.stream),
		LogEvents: []types.InputLogEvent{{
			Message:   sdkaws.String(string(msg)),
			Timestamp: sdkaws.Int64(time.Now().UnixMilli()),
		}},
	})
	c.mu.Unlock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cloudwatch logs: %v\n", err)
	}
	return len(p), nil
}
