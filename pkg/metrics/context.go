package metrics

type contextKey string

// NewRelicContextKey is the context key under which the *newrelic.Application
// is stashed for RecordEvent, RecordCount and RecordDuration.
const NewRelicContextKey contextKey = "new-relic-application"

