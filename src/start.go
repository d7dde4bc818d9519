package ringgate

import (
	"context"
	"time"

	"cirello.io/oversight"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ringgate/ringgate/src/application/component"
	"github.com/ringgate/ringgate/src/application/component/web"
	"github.com/ringgate/ringgate/src/application/service"
	"github.com/ringgate/ringgate/src/config"
)

type StartCmd struct {
	Components []string `arg:"positional,env:RINGGATE_COMPONENTS" help:"any of: web, tasks"`

	WebListen     string `arg:"--web-listen,env:RINGGATE_WEB_LISTEN" default:":8080"`
	TelemetryAddr string `arg:"--telemetry-addr,env:RINGGATE_TELEMETRY_ADDR" default:"http://127.0.0.1:9090"`

	TaskPollInterval time.Duration `arg:"--task-poll-interval" default:"1s"`

	LogDb bool `arg:"--log-db"`
}

func (cmd StartCmd) Run(logger *zerolog.Logger) error {
	instance, err := NewInstance(cmd, logger)
	if err != nil {
		return err
	}
	defer instance.Close()

	return instance.Run(context.Background())
}

type componentOpts struct {
	Web   bool
	Tasks bool
}

func (cmd StartCmd) getComponentOpts() componentOpts {
	start := componentOpts{}

	// If none are given then start all,
	// otherwise start only those that are given.
	for _, component := range cmd.Components {
		switch component {
		case "web":
			start.Web = true
		case "tasks":
			start.Tasks = true
		default:
			panic("Unknown component: " + component)
		}
	}
	if !start.Web && !start.Tasks {
		start.Web = true
		start.Tasks = true
	}

	return start
}

func NewInstance(cmd StartCmd, logger *zerolog.Logger) (Instance, error) {
	instance := Instance{logger: logger}

	if db, err := config.DBConnection(logger, cmd.LogDb); err != nil {
		logger.Fatal().Err(err).Send()
		return instance, err
	} else {
		instance.db = db
	}

	webConfig := config.NewWebConfig(cmd.WebListen, cmd.TelemetryAddr)
	metrics := config.NewMetrics()

	eventService := service.NewEventService(instance.db, metrics, logger)
	evidenceService := service.NewEvidenceService(instance.db, eventService, logger)
	riskService := service.NewRiskService(instance.db, evidenceService, eventService, logger)
	telemetryService := service.NewTelemetryService(webConfig, logger)
	policyService := service.NewPolicyService(instance.db, eventService, telemetryService, metrics, logger)
	approvalService := service.NewApprovalService(instance.db, eventService, logger)
	exceptionService := service.NewExceptionService(instance.db, eventService, logger)
	taskService := service.NewTaskService(instance.db, eventService, metrics, logger)

	start := cmd.getComponentOpts()

	if start.Tasks {
		instance.Tasks = &component.TaskRunner{
			Logger:       logger.With().Str("component", "TaskRunner").Logger(),
			TaskService:  taskService,
			RiskService:  riskService,
			PollInterval: cmd.TaskPollInterval,
		}
	}

	if start.Web {
		instance.Web = &web.Web{
			Config:           webConfig,
			Logger:           logger.With().Str("component", "Web").Logger(),
			EvidenceService:  evidenceService,
			RiskService:      riskService,
			PolicyService:    policyService,
			ApprovalService:  approvalService,
			ExceptionService: exceptionService,
			EventService:     eventService,
			TaskService:      taskService,
			Metrics:          metrics,
		}
	}

	return instance, nil
}

type Instance struct {
	Tasks *component.TaskRunner
	Web   *web.Web

	logger *zerolog.Logger
	db     *pgxpool.Pool
}

func (self Instance) Close() {
	self.db.Close()
}

func (self Instance) Run(ctx context.Context) error {
	self.logger.Info().Msg("Starting components")

	supervisor := oversight.New(
		oversight.WithLogger(&config.SupervisorLogger{Logger: self.logger}),
		oversight.WithSpecification(
			10,                    // number of restarts
			1*time.Minute,         // within this time period
			oversight.OneForOne(), // restart every task on its own
		),
	)

	if self.Tasks != nil {
		if err := supervisor.Add(self.Tasks.Start); err != nil {
			return err
		}
	}

	if self.Web != nil {
		if err := supervisor.Add(self.Web.Start); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := supervisor.Start(ctx); err != nil {
		return errors.WithMessage(err, "While starting supervisor")
	}

	<-ctx.Done()
	return nil
}
