// Command registrar runs the BRSKI-PRM registrar: it answers the
// registrar-agent's requestvoucher/requestenroll/wrappedcacerts/
// voucher_status/enrollstatus endpoints (spec.md §6), forwarding
// voucher requests to the configured MASA and issuing certificates
// from its local CA. Bootstrap follows the teacher's cmd.AppShell
// convention of a single -config flag naming a JSON file, simplified
// since this profile has no AMQP/RPC backplane to start.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brski-prm/brski-prm-go/archive"
	"github.com/brski-prm/brski-prm-go/ca"
	"github.com/brski-prm/brski-prm-go/client"
	"github.com/brski-prm/brski-prm-go/config"
	"github.com/brski-prm/brski-prm-go/envelope"
	"github.com/brski-prm/brski-prm-go/header"
	"github.com/brski-prm/brski-prm-go/identity"
	"github.com/brski-prm/brski-prm-go/log"
	"github.com/brski-prm/brski-prm-go/metrics"
	"github.com/brski-prm/brski-prm-go/nonce"
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
	configPath := flag.String("config", "", "path to registrar JSON config")
	flag.Parse()

	logger := log.Get()

	var cfg config.RegistrarConfig
	if *configPath == "" {
		logger.AuditErr("registrar: -config is required")
		return exitConfigError
	}
	if err := config.Load(*configPath, &cfg); err != nil {
		logger.AuditErr("registrar: loading config: " + err.Error())
		return exitConfigError
	}

	issuingCA, err := ca.New(cfg.CA)
	if err != nil {
		logger.AuditErr(err.Error())
		return exitConfigError
	}

	signingKey, signingChain, err := identity.Load(cfg.SigningKey, cfg.SigningCert)
	if err != nil {
		logger.AuditErr(err.Error())
		return exitConfigError
	}
	agentEECertFile := cfg.AgentEECert
	if agentEECertFile == "" {
		agentEECertFile = cfg.SigningCert
	}
	agentEEChain, err := identity.LoadCertChain(agentEECertFile)
	if err != nil {
		logger.AuditErr(err.Error())
		return exitConfigError
	}

	ct := envelope.JWSGeneral
	if cfg.ContentType == "cose-sign1" {
		ct = envelope.COSESign1
	}

	var nonceSvc *nonce.Service
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: string(cfg.Redis.Password),
			DB:       cfg.Redis.DB,
		})
		nonceSvc = nonce.New(rdb, "registrar", nonce.DefaultTTL)
	}

	var archiveStore *archive.Store
	if cfg.Archive != nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Archive.Region))
		if err != nil {
			logger.AuditErr("registrar: loading aws config: " + err.Error())
			return exitConfigError
		}
		archiveStore = archive.New(s3.NewFromConfig(awsCfg), cfg.Archive.Bucket, cfg.Archive.Prefix)
	}

	reg := &orchestrator.Registrar{
		Self: orchestrator.RegistrarIdentity{
			Key:       signingKey,
			CertChain: signingChain,
			AgentEE:   agentEEChain,
		},
		MASAURL:    cfg.MASAURL,
		HTTP:       client.New(30*time.Second, nil),
		CA:         issuingCA,
		Acceptable: header.NewAcceptableCritica(),
		Logger:     logger,
		Nonce:      nonceSvc,
		Archive:    archiveStore,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/brski/requestvoucher", func(w http.ResponseWriter, r *http.Request) {
		reqCT, body, err := web.ReadBody(r)
		if err != nil {
			web.SendError(w, logger, err)
			return
		}
		voucher, err := reg.HandleRequestVoucher(r.Context(), reqCT, body)
		if err != nil {
			web.SendError(w, logger, err)
			return
		}
		web.WriteBody(w, reqCT, true, voucher)
	})
	mux.HandleFunc("/.well-known/brski/requestenroll", func(w http.ResponseWriter, r *http.Request) {
		reqCT, body, err := web.ReadBody(r)
		if err != nil {
			web.SendError(w, logger, err)
			return
		}
		cert, err := reg.HandleRequestEnroll(reqCT, body)
		if err != nil {
			web.SendError(w, logger, err)
			return
		}
		w.Header().Set("Content-Type", web.MediaTypePKCS7Mime)
		_, _ = w.Write(cert)
	})
	mux.HandleFunc("/.well-known/brski/wrappedcacerts", func(w http.ResponseWriter, r *http.Request) {
		body, err := reg.HandleWrappedCACerts(ct)
		if err != nil {
			web.SendError(w, logger, err)
			return
		}
		web.WriteBody(w, ct, false, body)
	})
	mux.HandleFunc("/.well-known/brski/voucher_status", func(w http.ResponseWriter, r *http.Request) {
		reqCT, body, err := web.ReadBody(r)
		if err != nil {
			web.SendError(w, logger, err)
			return
		}
		if err := reg.HandleVoucherStatus(r.Context(), reqCT, body); err != nil {
			web.SendError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/.well-known/brski/enrollstatus", func(w http.ResponseWriter, r *http.Request) {
		reqCT, body, err := web.ReadBody(r)
		if err != nil {
			web.SendError(w, logger, err)
			return
		}
		if err := reg.HandleEnrollStatus(r.Context(), reqCT, body); err != nil {
			web.SendError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.Handle("/metrics", promhttp.Handler())

	logger.Notice("registrar listening on " + cfg.ListenAddress)
	measured := metrics.NewMeasuredMux(mux, clock.New())
	if err := http.ListenAndServeTLS(cfg.ListenAddress, cfg.TLS.CertFile, cfg.TLS.KeyFile, measured); err != nil {
		logger.AuditErr(err.Error())
		return exitTransportErr
	}
	return exitOK
}
