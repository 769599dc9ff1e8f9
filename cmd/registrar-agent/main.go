// Command registrar-agent drives the nine-message exchange from the
// proximity side: for each configured pledge it negotiates content
// type, ferries triggers and signed artifacts between the pledge and
// the registrar, and records progress in its session store
// (spec.md §4.5, component C5). Pledges are handled one after another:
// each session runs inside a worker pool sized from config, and the
// loop waits for that session to finish before starting the next, so
// at most one session is in flight at a time.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"

	_ "github.com/go-sql-driver/mysql"

	"github.com/brski-prm/brski-prm-go/client"
	"github.com/brski-prm/brski-prm-go/config"
	"github.com/brski-prm/brski-prm-go/header"
	"github.com/brski-prm/brski-prm-go/identity"
	"github.com/brski-prm/brski-prm-go/log"
	"github.com/brski-prm/brski-prm-go/orchestrator"
	"github.com/brski-prm/brski-prm-go/sa"
)

const (
	exitOK          = 0
	exitConfigError = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to registrar-agent JSON config")
	flag.Parse()

	logger := log.Get()

	var cfg config.RegistrarAgentConfig
	if *configPath == "" {
		logger.AuditErr("registrar-agent: -config is required")
		return exitConfigError
	}
	if err := config.Load(*configPath, &cfg); err != nil {
		logger.AuditErr("registrar-agent: loading config: " + err.Error())
		return exitConfigError
	}

	eeKey, eeChain, err := identity.Load(cfg.EESigningKey, cfg.EECert)
	if err != nil {
		logger.AuditErr(err.Error())
		return exitConfigError
	}
	skid := eeChain[0].SubjectKeyId
	if len(skid) == 0 {
		logger.AuditErr("registrar-agent: EE certificate carries no Subject-Key-Identifier")
		return exitConfigError
	}

	var sessions *sa.Store
	if cfg.MySQL.DBConnect != "" {
		db, err := sql.Open("mysql", string(cfg.MySQL.DBConnect))
		if err != nil {
			logger.AuditErr("registrar-agent: opening session database: " + err.Error())
			return exitConfigError
		}
		if cfg.MySQL.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		}
		sessions, err = sa.NewStore(db)
		if err != nil {
			logger.AuditErr(err.Error())
			return exitConfigError
		}
	}

	deps := &orchestrator.Deps{
		HTTP: client.New(cfg.PerPledgeTimeout.Duration, nil),
		Self: orchestrator.Identity{
			Key:       eeKey,
			Cert:      eeChain[0].Raw,
			CertChain: eeChain,
			SKID:      skid,
		},
		RegistrarURL: cfg.RegistrarURL,
		Sessions:     sessions,
		Logger:       logger,
		Acceptable:   header.NewAcceptableCritica(),
	}

	pool := orchestrator.NewPool(int64(maxConcurrent(cfg.MaxConcurrent)))
	ctx := context.Background()

	var lastErr error
	for _, pledgeURL := range cfg.PledgeURLs {
		pledgeURL := pledgeURL
		err := pool.Run(ctx, func(ctx context.Context) {
			session, err := orchestrator.NewSession(ctx, deps, pledgeURL)
			if err != nil {
				logger.AuditErr("registrar-agent: starting session for " + pledgeURL + ": " + err.Error())
				return
			}
			status, err := session.Run(ctx)
			if err != nil {
				logger.AuditErr("registrar-agent: session for " + pledgeURL + " failed: " + err.Error())
				return
			}
			logger.AuditObject("pledge-status", status)
		})
		if err != nil {
			lastErr = err
			logger.AuditErr("registrar-agent: pool run for " + pledgeURL + ": " + err.Error())
		}
	}
	if lastErr != nil {
		return exitConfigError
	}
	return exitOK
}

func maxConcurrent(n int) int {
	if n <= 0 {
		return 4
	}
	return n
}
