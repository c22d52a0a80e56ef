package dispatch

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"freshtrack/internal/types"
)

// MetricResult categorizes a delivery outcome for metrics reporting.
type MetricResult string

const (
	MetricSuccess   MetricResult = "success"
	MetricFailed    MetricResult = "failed"
	MetricExhausted MetricResult = "exhausted"
)

// Metrics abstracts CloudWatch operations for the dispatcher.
type Metrics interface {
	RecordDelivery(ctx context.Context, channel types.ChannelType, result MetricResult)
	RecordLatency(ctx context.Context, channel types.ChannelType, duration time.Duration)
}

// NopMetrics discards all metrics. Used in tests and in local development
// where no CloudWatch endpoint exists.
type NopMetrics struct{}

func (NopMetrics) RecordDelivery(context.Context, types.ChannelType, MetricResult)  {}
func (NopMetrics) RecordLatency(context.Context, types.ChannelType, time.Duration)  {}

// CloudWatchAPI abstracts the PutMetricData operation for testability.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics publishes dispatch metrics to CloudWatch. Failures are
// logged and swallowed; observability must never fail a delivery.
type CloudWatchMetrics struct {
	client    CloudWatchAPI
	namespace string
	logger    types.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publisher under the given
// namespace.
func NewCloudWatchMetrics(client CloudWatchAPI, namespace string, logger types.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordDelivery emits a NotificationDelivery count datum dimensioned by
// channel and result.
func (m *CloudWatchMetrics) RecordDelivery(ctx context.Context, channel types.ChannelType, result MetricResult) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String("NotificationDelivery"),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String("Channel"), Value: aws.String(string(channel))},
			{Name: aws.String("Result"), Value: aws.String(string(result))},
		},
	})
}

// RecordLatency emits a DeliveryLatency timing datum dimensioned by channel.
func (m *CloudWatchMetrics) RecordLatency(ctx context.Context, channel types.ChannelType, duration time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String("DeliveryLatency"),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String("Channel"), Value: aws.String(string(channel))},
		},
	})
}

func (m *CloudWatchMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		m.logger.Warn("failed to put metric data", "metric", aws.ToString(datum.MetricName), "error", err)
	}
}
