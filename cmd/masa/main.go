// Command masa runs the manufacturer authorized signing authority: it
// answers the registrar's requestvoucher endpoint, minting vouchers
// pinned to the registrar's certificate (spec.md §4.5 step 6, §6).
package main

import (
	"context"
	"flag"
	"net/http"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brski-prm/brski-prm-go/archive"
	"github.com/brski-prm/brski-prm-go/config"
	"github.com/brski-prm/brski-prm-go/header"
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
	configPath := flag.String("config", "", "path to masa JSON config")
	flag.Parse()

	logger := log.Get()

	var cfg config.MasaConfig
	if *configPath == "" {
		logger.AuditErr("masa: -config is required")
		return exitConfigError
	}
	if err := config.Load(*configPath, &cfg); err != nil {
		logger.AuditErr("masa: loading config: " + err.Error())
		return exitConfigError
	}

	voucherKey, voucherChain, err := identity.Load(cfg.VoucherKey, cfg.VoucherCert)
	if err != nil {
		logger.AuditErr(err.Error())
		return exitConfigError
	}

	var archiveStore *archive.Store
	if cfg.Archive != nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Archive.Region))
		if err != nil {
			logger.AuditErr("masa: loading aws config: " + err.Error())
			return exitConfigError
		}
		archiveStore = archive.New(s3.NewFromConfig(awsCfg), cfg.Archive.Bucket, cfg.Archive.Prefix)
	}

	m := &orchestrator.MASA{
		Self:       orchestrator.MASAIdentity{Key: voucherKey, CertChain: voucherChain},
		Acceptable: header.NewAcceptableCritica(),
		Validity:   cfg.ValidityPeriod.Duration,
		Archive:    archiveStore,
		Logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/brski/requestvoucher", func(w http.ResponseWriter, r *http.Request) {
		ct, body, err := web.ReadBody(r)
		if err != nil {
			web.SendError(w, logger, err)
			return
		}
		voucher, err := m.HandleRequestVoucher(r.Context(), ct, body)
		if err != nil {
			web.SendError(w, logger, err)
			return
		}
		web.WriteBody(w, ct, true, voucher)
	})

	mux.Handle("/metrics", promhttp.Handler())

	addr := cfg.ListenAddress

	logger.Notice("masa listening on " + addr)
	measured := metrics.NewMeasuredMux(mux, clock.New())
	if err := http.ListenAndServeTLS(addr, cfg.TLS.CertFile, cfg.TLS.KeyFile, measured); err != nil {
		logger.AuditErr(err.Error())
		return exitTransportErr
	}
	return exitOK
}
