package issuance

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"certgen/internal/types"
)

// Metrics records issuance outcomes. Implementations must not fail the
// workflow; errors are logged and dropped.
type Metrics interface {
	RecordOutcome(ctx context.Context, mode types.DeliveryMode, state types.IssuanceState)
	RecordLatency(ctx context.Context, mode types.DeliveryMode, d time.Duration)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordOutcome(context.Context, types.DeliveryMode, types.IssuanceState) {}
func (NoopMetrics) RecordLatency(context.Context, types.DeliveryMode, time.Duration)        {}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics publishes one datum per call.
//
// Metrics emitted:
//   - CertificateIssuance: Dims {Mode, Outcome}, on every terminal state
//   - IssuanceLatency: Dims {Mode}, render plus dispatch time
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

var _ Metrics = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates CloudWatchMetrics. An empty namespace falls
// back to types.MetricNamespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchMetrics) RecordOutcome(ctx context.Context, mode types.DeliveryMode, state types.IssuanceState) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricIssuance),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(types.DimMode), Value: aws.String(string(mode))},
					{Name: aws.String(types.DimOutcome), Value: aws.String(string(state))},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record issuance metric",
			"error", err.Error(),
			"mode", string(mode),
			"outcome", string(state),
		)
	}
}

// RecordLatency is recorded in milliseconds for CloudWatch precision.
func (m *CloudWatchMetrics) RecordLatency(ctx context.Context, mode types.DeliveryMode, d time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricIssuanceLatency),
				Value:      aws.Float64(float64(d.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(types.DimMode), Value: aws.String(string(mode))},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record latency metric",
			"error", err.Error(),
			"mode", string(mode),
			"duration_ms", d.Milliseconds(),
		)
	}
}
