package keyword

var (
	TotalHttpRequestsMetricName    = "presentation_gate_http_requests_total"  // num of received requests
	TotalHttpResponsesMetricName   = "presentation_gate_http_responses_total" // num of responses by status
	HttpResponseTimeMsMetricName   = "presentation_gate_http_response_time_ms"
	DecisionsMetricName            = "presentation_gate_decisions_total" // guard decisions by outcome
	UpstreamMetricName             = "presentation_gate_upstream_total"  // upstream outcomes
	UpstreamResponseTimeMetricName = "presentation_gate_upstream_response_time_ms"
)
