// Command pledge runs a factory-default device's server side of the
// BRSKI-PRM exchange: GET /dif, GET /pi, and the onboarding POST
// endpoints the registrar-agent drives it through (spec.md §4.5, §6).
package main

import (
	"flag"
	"io"
	"net/http"
	"os"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brski-prm/brski-prm-go/artifact"
	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/config"
	"github.com/brski-prm/brski-prm-go/envelope"
	"github.com/brski-prm/brski-prm-go/identity"
	"github.com/brski-prm/brski-prm-go/log"
	"github.com/brski-prm/brski-prm-go/metrics"
	"github.com/brski-prm/brski-prm-go/orchestrator"
	"github.com/brski-prm/brski-prm-go/web"
)

const (
	exitOK           = 0
	exitConfigError  = 2
	exitTransportErr = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to pledge JSON config")
	flag.Parse()

	logger := log.Get()

	var cfg config.PledgeConfig
	if *configPath == "" {
		logger.AuditErr("pledge: -config is required")
		return exitConfigError
	}
	if err := config.Load(*configPath, &cfg); err != nil {
		logger.AuditErr("pledge: loading config: " + err.Error())
		return exitConfigError
	}

	idevidKey, idevidChain, err := identity.Load(cfg.IDevIDKey, cfg.IDevIDCert)
	if err != nil {
		logger.AuditErr(err.Error())
		return exitConfigError
	}

	ct := envelope.JWSGeneral
	if cfg.ContentType == "cose-sign1" {
		ct = envelope.COSESign1
	}

	p := orchestrator.NewPledge(orchestrator.PledgeIdentity{
		Key:         idevidKey,
		CertChain:   idevidChain,
		Serial:      idevidChain[0].Subject.SerialNumber,
		SubjectName: idevidChain[0].Subject,
	}, ct)

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/brski/dif", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(p.DIF()))
	})
	mux.HandleFunc("/.well-known/brski/pi", func(w http.ResponseWriter, r *http.Request) {
		body, err := artifact.Marshal(ct, p.PI())
		if err != nil {
			web.SendError(w, logger, err)
			return
		}
		web.WriteBody(w, ct, false, body)
	})
	mux.HandleFunc("/.well-known/brski/tpvr", bodyHandler(logger, ct, p.HandleTPVR))
	mux.HandleFunc("/.well-known/brski/tper", bodyHandler(logger, ct, p.HandleTPER))
	mux.HandleFunc("/.well-known/brski/svr", bodyHandler(logger, ct, p.HandleSVR))
	mux.HandleFunc("/.well-known/brski/ser", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			web.SendError(w, logger, berrors.MalformedError("pledge: reading ser body: %s", err))
			return
		}
		resp, err := p.HandleSER(body)
		if err != nil {
			web.SendError(w, logger, err)
			return
		}
		web.WriteBody(w, ct, false, resp)
	})
	mux.HandleFunc("/.well-known/brski/scac", func(w http.ResponseWriter, r *http.Request) {
		_, body, err := web.ReadBody(r)
		if err != nil {
			web.SendError(w, logger, err)
			return
		}
		if err := p.HandleSCAC(body); err != nil {
			web.SendError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/.well-known/brski/qps", func(w http.ResponseWriter, r *http.Request) {
		_, _, err := web.ReadBody(r)
		if err != nil {
			web.SendError(w, logger, err)
			return
		}
		resp, err := p.HandleQPS()
		if err != nil {
			web.SendError(w, logger, err)
			return
		}
		web.WriteBody(w, ct, false, resp)
	})

	mux.Handle("/metrics", promhttp.Handler())

	logger.Notice("pledge listening on " + cfg.ListenAddress)
	measured := metrics.NewMeasuredMux(mux, clock.New())
	if err := http.ListenAndServeTLS(cfg.ListenAddress, cfg.TLS.CertFile, cfg.TLS.KeyFile, measured); err != nil {
		logger.AuditErr(err.Error())
		return exitTransportErr
	}
	return exitOK
}

// bodyHandler wraps a Pledge handler method that takes a request body
// and returns a signed response body, reading/writing through the
// pledge's configured content type.
func bodyHandler(logger log.Logger, ct envelope.ContentType, handle func([]byte) ([]byte, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, body, err := web.ReadBody(r)
		if err != nil {
			web.SendError(w, logger, err)
			return
		}
		resp, err := handle(body)
		if err != nil {
			web.SendError(w, logger, err)
			return
		}
		web.WriteBody(w, ct, false, resp)
	}
}
