package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricIssuance        = "CertificateIssuance"
	MetricIssuanceLatency = "IssuanceLatency"
	MetricBatchRecipients = "BatchRecipients"

	// Dimension Keys
	DimMode    = "Mode"
	DimOutcome = "Outcome"

	// Default namespace; overridden by METRIC_NAMESPACE.
	MetricNamespace = "Certgen"
)
