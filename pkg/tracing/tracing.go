package tracing

import (
	"context"
	"fmt"

	"signal_bot/pkg/logger"

	"github.com/opentracing/opentracing-go"
	jCfg "github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-lib/metrics"
)

var (
	serviceName = "default"
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

type Config struct {
	Enabled bool
	Host    string
	Port    int
	// доля семплируемых трейсов, 1 = всё
	SampleRate float64
}

// InitTracer ставит jaeger глобальным трейсером. При выключенном трейсинге
// остаётся noop-трейсер opentracing.
func InitTracer(conf Config) (opentracing.Tracer, func(), error) {
	if !conf.Enabled {
		return opentracing.GlobalTracer(), func() {}, nil
	}

	samplerType := "const"
	param := 1.0
	if conf.SampleRate > 0 && conf.SampleRate < 1 {
		samplerType = "probabilistic"
		param = conf.SampleRate
	}

	cfg := &jCfg.Configuration{
		ServiceName: serviceName,
		Sampler: &jCfg.SamplerConfig{
			Type:  samplerType,
			Param: param,
		},
		Reporter: &jCfg.ReporterConfig{
			LogSpans:           true,
			LocalAgentHostPort: fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		},
	}

	jMetricsFactory := metrics.NullFactory
	tracer, closer, err := cfg.NewTracer(
		jCfg.Metrics(jMetricsFactory),
	)
	if err != nil {
		return nil, nil, err
	}

	opentracing.SetGlobalTracer(tracer)
	return tracer, func() {
		if err := closer.Close(); err != nil {
			logger.Error("Error closing Jaeger tracer: %v", err)
		}
	}, nil
}

// StartSpan открывает span с тегами. Тэги передаются парами ключ-значение.
func StartSpan(ctx context.Context, operation string, tags ...any) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, operation)
	for i := 0; i+1 < len(tags); i += 2 {
		if k, ok := tags[i].(string); ok {
			span.SetTag(k, tags[i+1])
		}
	}
	return span, ctx
}

// Fail помечает span ошибочным.
func Fail(span opentracing.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.SetTag("error", true)
	span.LogKV("event", "error", "message", err.Error())
}
