package metricsvc

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pogilapp/server/core/activity"
)

const namespace = "pogil"

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Number of HTTP requests handled, by route and status code.",
	}, []string{"method", "route", "code"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency of HTTP requests, by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	heartbeats = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "activity",
		Name:      "heartbeats_total",
		Help:      "Number of student heartbeats recorded.",
	})

	groupsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "activity",
		Name:      "groups_created_total",
		Help:      "Number of activity groups created.",
	})

	worksheetsParsed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worksheet",
		Name:      "parsed_total",
		Help:      "Number of worksheets parsed, by source.",
	}, []string{"source"})

	worksheetBlocks = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "worksheet",
		Name:      "blocks",
		Help:      "Number of blocks produced per parsed worksheet.",
		Buckets:   prometheus.ExponentialBuckets(4, 2, 8),
	}, []string{"source"})

	worksheetWarnings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worksheet",
		Name:      "markup_warnings_total",
		Help:      "Number of malformed markup warnings raised while parsing worksheets.",
	}, []string{"source"})
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, heartbeats, groupsCreated, worksheetsParsed, worksheetBlocks, worksheetWarnings)
}

// Recorder feeds activity events to the prometheus collectors.
type Recorder struct{}

var _ activity.Recorder = Recorder{}

func (Recorder) HeartbeatRecorded() { heartbeats.Inc() }

func (Recorder) GroupsCreated(n int) { groupsCreated.Add(float64(n)) }

func (Recorder) WorksheetParsed(source string, blocks, warnings int) {
	worksheetsParsed.WithLabelValues(source).Inc()
	worksheetBlocks.WithLabelValues(source).Observe(float64(blocks))
	if warnings > 0 {
		worksheetWarnings.WithLabelValues(source).Add(float64(warnings))
	}
}

// RecordRequest updates the HTTP collectors.
func RecordRequest(method, route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Middleware records every request under its route pattern.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			if err := next(ctx); err != nil {
				// let the error handler write the response so its status is known
				ctx.Error(err)
			}

			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			RecordRequest(ctx.Request().Method, route, ctx.Response().Status, time.Since(start))
			return nil
		}
	}
}
