package main

import (
	"context"
	"log"

	"fpvbridge/internal/config"
	"fpvbridge/internal/enrich"
	"fpvbridge/internal/gps"
	"fpvbridge/internal/metrics"
	"fpvbridge/internal/pubsub"
	"fpvbridge/internal/serialio"
	"fpvbridge/internal/sink"
	"fpvbridge/internal/stream"
	"fpvbridge/internal/web"
)

// runtime wires the pipeline: sensor stream -> enricher -> broadcast
// endpoint, plus the optional sinks and the status server.
type runtime struct {
	cfg config.Config

	source gps.Source
	pool   *pubsub.Pool
	server *pubsub.Server
	stream *stream.Stream

	events  *web.EventBroadcaster
	mqtt    *sink.MQTT
	udp     *sink.UDP
	debugOn bool
}

func run(ctx context.Context, cfg config.Config) error {
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.stream.Start(ctx, rt.handleRecord); err != nil {
		return err
	}

	if cfg.Web.Enable {
		status := rt.newStatus()
		go func() {
			if err := web.Serve(ctx, cfg.Web.Listen, web.Handler(status, rt.events)); err != nil {
				log.Printf("web server stopped: %v", err)
			}
		}()
	}

	log.Printf("fpvbridge running: sensor=%s baud=%d publish=:%d gps=%s stationary=%v",
		cfg.Serial.Device, cfg.Serial.Baud, cfg.Publish.Port, cfg.GPS.Source, cfg.GPS.Stationary)

	<-ctx.Done()
	log.Printf("interrupt received, shutting down")
	return nil
}

func newRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg, debugOn: cfg.Debug, events: web.NewEventBroadcaster()}

	rt.pool = pubsub.NewPool()
	go rt.pool.Run()

	// Binding the publish endpoint is the one fatal startup step:
	// without it the bridge has no reason to run.
	server, err := pubsub.Listen(cfg.Publish.Port, rt.pool)
	if err != nil {
		rt.pool.Stop()
		return nil, err
	}
	rt.server = server
	metrics.RegisterSubscriberGauge(rt.pool.ClientCount)
	metrics.RegisterDroppedCounter(func() uint64 { return rt.pool.Snapshot().Dropped })

	rt.source = openSource(ctx, cfg.GPS)

	if cfg.MQTT.Enable {
		m, err := sink.ConnectMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic)
		if err != nil {
			log.Printf("mqtt sink disabled: %v", err)
		} else {
			rt.mqtt = m
			log.Printf("mqtt sink connected: %s topic=%s", cfg.MQTT.Broker, cfg.MQTT.Topic)
		}
	}
	if cfg.Forward.UDPDest != "" {
		u, err := sink.DialUDP(cfg.Forward.UDPDest)
		if err != nil {
			log.Printf("udp forward disabled: %v", err)
		} else {
			rt.udp = u
			log.Printf("udp forward enabled: %s", cfg.Forward.UDPDest)
		}
	}

	st, err := stream.New(stream.Config{
		Name: "sensor",
		Open: func() (stream.LineSource, error) {
			r, err := serialio.Open(cfg.Serial.Device, cfg.Serial.Baud)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
		ReconnectDelay: cfg.Serial.ReconnectDelay,
		OnBackoff:      func(error) { metrics.Reconnects.Inc() },
	})
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.stream = st

	return rt, nil
}

// openSource builds the position source for the configured mode. Position
// failures are never fatal: the bridge degrades to default coordinates.
func openSource(ctx context.Context, cfg config.GPSConfig) gps.Source {
	if cfg.Stationary {
		var fix gps.Fix
		var err error
		switch cfg.Source {
		case "nmea":
			fix, err = gps.AcquireOnceNMEA(cfg.Device, cfg.Baud, cfg.AcquireWindow)
		default:
			fix, err = gps.AcquireOnce(ctx, cfg.GPSDAddr, cfg.AcquireWindow)
		}
		if err != nil {
			log.Printf("stationary fix acquisition failed, using defaults: %v", err)
			return gps.NewFixedSource(gps.Default)
		}
		log.Printf("stationary fix cached: lat=%v lon=%v", fix.Lat, fix.Lon)
		return gps.NewFixedSource(fix)
	}

	switch cfg.Source {
	case "nmea":
		src, err := gps.OpenNMEA(cfg.Device, cfg.Baud)
		if err != nil {
			log.Printf("gps receiver unreachable, using defaults: %v", err)
			return gps.NullSource{}
		}
		return src
	default:
		src, err := gps.DialGPSD(ctx, cfg.GPSDAddr)
		if err != nil {
			log.Printf("gpsd unreachable, using defaults: %v", err)
			return gps.NullSource{}
		}
		return src
	}
}

// handleRecord is the per-record pipeline pass. A bad record is logged and
// dropped; nothing here may stop the stream.
func (rt *runtime) handleRecord(line string) {
	metrics.LinesRead.Inc()
	rt.debugf("raw record: %s", line)

	ev, err := enrich.Enrich(line, rt.source)
	if err != nil {
		metrics.ParseFailures.Inc()
		log.Printf("dropping record: %v", err)
		return
	}

	rt.logKind(ev.Kind)

	payload, err := ev.Marshal()
	if err != nil {
		log.Printf("dropping record, marshal failed: %v", err)
		return
	}

	rt.pool.Publish(payload)
	metrics.EventsPublished.Inc()

	rt.events.Publish(payload)
	rt.mqtt.Publish(payload)
	rt.udp.Publish(payload)

	rt.debugf("published: %s", payload)
}

func (rt *runtime) logKind(kind enrich.Kind) {
	switch kind {
	case enrich.KindBoot:
		log.Printf("boot message received")
	case enrich.KindContactNew:
		log.Printf("new FPV contact lock")
		metrics.ContactLocks.WithLabelValues("new").Inc()
	case enrich.KindContactUpdate:
		log.Printf("FPV contact still in view")
		metrics.ContactLocks.WithLabelValues("update").Inc()
	case enrich.KindContactLost:
		log.Printf("FPV contact lock lost")
		metrics.ContactLocks.WithLabelValues("lost").Inc()
	}
}

func (rt *runtime) newStatus() *web.Status {
	status := web.NewStatus()
	status.GPSSource = rt.cfg.GPS.Source
	status.GPSMode = "continuous"
	if rt.cfg.GPS.Stationary {
		status.GPSMode = "stationary"
	}
	status.Stream = rt.stream.Snapshot
	status.Publish = rt.pool.Snapshot
	return status
}

// close performs the ordered shutdown: stop taking records, close the
// endpoint without lingering, then release the remaining handles.
func (rt *runtime) close() {
	if rt.stream != nil {
		rt.stream.Close()
	}
	if rt.server != nil {
		rt.server.Close()
	}
	rt.mqtt.Close()
	_ = rt.udp.Close()
	if rt.source != nil {
		_ = rt.source.Close()
	}
}

func (rt *runtime) debugf(format string, args ...any) {
	if rt.debugOn {
		log.Printf(format, args...)
	}
}
