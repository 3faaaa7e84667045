package constant

const (
	MatchingRequestQueueName  = "matching_request_queue"
	MatchingRequestQueueGroup = "matching_request_group"

	MatchingRequestStreamName       = "matching_request"
	MatchingRequestStreamSubjectAll = "matching_request.*"
	MatchingRequestStreamSubject    = "matching_request.submit"

	MatchingEventQueueName  = "matching_event_queue"
	MatchingEventQueueGroup = "matching_event_group"

	MatchingEventStreamName       = "matching_event"
	MatchingEventStreamSubjectAll = "matching_event.*"
	MatchingEventStreamSubject    = "matching_event.%s" // formatted with the ISIN
)

const (
	InstrumentLeaseKeyPrefix = "matching_engine:lease:"
	RequestIDKeyPrefix       = "matching_engine:request:"
)
