package fetch

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sriram-PR/supplier-sync/pkg/metrics"
)

const tracerName = "github.com/Sriram-PR/supplier-sync/pkg/fetch"

type reqCtxKeyType int

var reqCtxKey reqCtxKeyType

type reqCtx struct {
	id        uint64
	startTime time.Time
}

type instrumentResty struct {
	log       *logrus.Entry
	tracer    trace.Tracer
	idcounter *uint64
}

// InstrumentResty logs every request at debug level with an id and duration,
// records request metrics and wraps each request in a span from the global
// tracer provider.
func InstrumentResty(client *resty.Client, log *logrus.Entry) {
	var idcounter uint64
	i := instrumentResty{
		log:       log.WithField("component", "http"),
		tracer:    otel.Tracer(tracerName),
		idcounter: &idcounter,
	}

	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

func (i instrumentResty) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	id := atomic.AddUint64(i.idcounter, 1)

	ctx, _ := i.tracer.Start(req.Context(), "http "+req.Method)
	ctx = context.WithValue(ctx, reqCtxKey, reqCtx{id: id, startTime: time.Now()})
	i.log.WithFields(logrus.Fields{"req_id": id, "method": req.Method}).Debugf("-> %s", req.URL)

	req.SetContext(ctx)
	return nil
}

func (i instrumentResty) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	ctx := res.Request.Context()
	rc, _ := ctx.Value(reqCtxKey).(reqCtx)
	duration := time.Since(rc.startTime)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("http.method", res.Request.Method),
		attribute.String("http.url", res.Request.URL),
		attribute.Int("http.status_code", res.StatusCode()),
		attribute.Int("http.response_headers", len(res.Header())),
	)
	if res.StatusCode() >= 500 {
		span.SetStatus(codes.Error, res.Status())
	}
	span.End()

	metrics.SupplierRequests.WithLabelValues(res.Request.Method, strconv.Itoa(res.StatusCode())).Inc()
	metrics.SupplierRequestDuration.WithLabelValues(res.Request.Method).Observe(duration.Seconds())

	i.log.WithFields(logrus.Fields{
		"req_id":   rc.id,
		"status":   res.StatusCode(),
		"duration": duration.String(),
		"headers":  len(res.Header()),
	}).Debugf("<- %s", res.Request.URL)
	return nil
}

func (i instrumentResty) onError(req *resty.Request, err error) {
	ctx := req.Context()
	rc, ok := ctx.Value(reqCtxKey).(reqCtx)
	if !ok {
		// Failed before instrumentation ran (e.g. rate limiter wait cancelled).
		i.log.WithField("method", req.Method).Debugf("request to %s failed before sending: %v", req.URL, err)
		return
	}
	duration := time.Since(rc.startTime)

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()

	metrics.SupplierRequests.WithLabelValues(req.Method, "error").Inc()

	i.log.WithFields(logrus.Fields{
		"req_id":   rc.id,
		"duration": duration.String(),
	}).Debugf("request to %s failed: %v", req.URL, err)
}
