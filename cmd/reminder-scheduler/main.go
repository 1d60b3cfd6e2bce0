// The reminder scheduler drives the cadence engine: every interval it either
// evaluates all shops inline or fans one tick message per shop out to
// Pub/Sub for the push endpoint to consume.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/config"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/notify"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/repository"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/sheets"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/workflow"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func main() {
	interval := flag.Duration("interval", time.Minute, "Tick interval")
	once := flag.Bool("once", false, "Run a single tick and exit")
	flag.Parse()

	logger := config.GetLogger()

	config.ConnectRedisWithRetry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := sheets.NewClient(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize sheets client: %v\n", err)
		os.Exit(1)
	}

	runsRepo := repository.NewRunsRepository(client)
	stepsRepo := repository.NewRunStepsRepository(client)
	shopsRepo := repository.NewShopsRepository(client)
	usersRepo := repository.NewUsersRepository(client)
	templatesRepo := repository.NewTemplatesRepository(client)
	attachmentsRepo := repository.NewAttachmentsRepository(client)

	notifier := notify.NewTelegramNotifier(config.GetTelegramBotToken())
	gate := workflow.NewGateService(templatesRepo, stepsRepo, attachmentsRepo, config.GetAlertSettings())
	engine := workflow.NewReminderEngine(runsRepo, shopsRepo, usersRepo, gate,
		workflow.NewRedisCadenceStore(), notifier,
		config.GetCadenceSettings(), config.GetNotificationSettings())
	deltaAlerts := workflow.NewDeltaAlertService(runsRepo, stepsRepo, notifier,
		config.GetAlertSettings(), config.GetNotificationSettings())

	tick := func() {
		tickCtx, cancel := context.WithTimeout(ctx, *interval)
		defer cancel()

		if config.ReminderFanoutViaPubSub() {
			if err := publishTicks(tickCtx, shopsRepo); err != nil {
				logger.WithFields(logrus.Fields{"field": "scheduler"}).Error("tick fan-out failed: " + err.Error())
			}
		} else if err := engine.EvaluateAll(tickCtx); err != nil {
			logger.WithFields(logrus.Fields{"field": "scheduler"}).Error("reminder tick failed: " + err.Error())
		}
		if err := deltaAlerts.CheckAllOpen(tickCtx); err != nil {
			logger.WithFields(logrus.Fields{"field": "scheduler"}).Error("delta check failed: " + err.Error())
		}
	}

	tick()
	if *once {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.WithFields(logrus.Fields{"field": "scheduler"}).Info("scheduler stopped")
			return
		case <-ticker.C:
			tick()
		}
	}
}

// publishTicks pushes one message per active shop so a fleet of workers can
// split the evaluation load.
func publishTicks(ctx context.Context, shops *repository.ShopsRepository) error {
	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		return err
	}
	topic := client.Topic(config.GetReminderTopicId())
	defer topic.Stop()

	active, err := shops.ListActive(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range active {
		payload, err := json.Marshal(config.ReminderTickMessage{
			ShopId:        active[i].ShopId,
			TickAt:        now,
			CorrelationId: uuid.NewString(),
		})
		if err != nil {
			return err
		}
		result := topic.Publish(ctx, &pubsub.Message{Data: payload})
		if _, err := result.Get(ctx); err != nil {
			return err
		}
	}
	return nil
}
