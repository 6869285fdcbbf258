package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricsRecorder publishes donation metrics to a CloudWatch namespace.
type MetricsRecorder struct {
	client    CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewMetricsRecorder binds a recorder to a namespace.
func NewMetricsRecorder(client CloudWatchAPI, namespace string) *MetricsRecorder {
	return &MetricsRecorder{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// Metric is a single datum with optional dimensions.
type Metric struct {
	Name       string
	Value      float64
	Unit       cwtypes.StandardUnit
	Dimensions map[string]string
}

// Record sends the metrics in one PutMetricData call.
func (m *MetricsRecorder) Record(ctx context.Context, metrics ...Metric) error {
	if m == nil || m.client == nil || len(metrics) == 0 {
		return nil
	}
	now := m.nowFunc()
	data := make([]cwtypes.MetricDatum, 0, len(metrics))
	for _, metric := range metrics {
		metric := metric
		unit := metric.Unit
		if unit == "" {
			unit = cwtypes.StandardUnitCount
		}
		datum := cwtypes.MetricDatum{
			MetricName: &metric.Name,
			Value:      &metric.Value,
			Unit:       unit,
			Timestamp:  &now,
		}
		for k, v := range metric.Dimensions {
			k, v := k, v
			datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{Name: &k, Value: &v})
		}
		data = append(data, datum)
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &m.namespace,
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
