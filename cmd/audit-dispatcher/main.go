// audit-dispatcher drains the audit outbox: PENDING audit_logs rows are
// published to the Pub/Sub topic named by AUDIT_PUBSUB_TOPIC. Run one
// instance alongside the POS backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/workflow"
	"github.com/sirupsen/logrus"
)

const defaultIntervalSeconds = 15

func main() {
	logger := config.GetLogger()

	interval := defaultIntervalSeconds
	if v := os.Getenv("AUDIT_DISPATCH_INTERVAL_SECONDS"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			logger.WithField("value", v).Fatal("invalid AUDIT_DISPATCH_INTERVAL_SECONDS")
		}
		interval = parsed
	}

	config.ConnectDatabaseWithRetry()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	logger.WithFields(logrus.Fields{
		"interval_seconds": interval,
	}).Info("audit dispatcher starting")

	workflow.RunAuditDispatcher(sigCtx, time.Duration(interval)*time.Second)

	logger.Info("audit dispatcher stopped")
}
