package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/config"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/notify"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/repository"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/sheets"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/utils"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("shiftcheck-backend")

// PubSubMessage is the push envelope Cloud Pub/Sub wraps around our payload.
type PubSubMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// application bundles the wired services. It stays nil until the background
// init in main() finishes; the readiness gate returns 503 in the meantime.
type application struct {
	sheets      *sheets.Client
	runs        *workflow.RunService
	steps       *workflow.StepService
	gate        *workflow.GateService
	reminders   *workflow.ReminderEngine
	deltaAlerts *workflow.DeltaAlertService
	shops       *repository.ShopsRepository
	users       *repository.UsersRepository
	templates   *repository.TemplatesRepository
	stepsRepo   *repository.RunStepsRepository
	attachments *repository.AttachmentsRepository
	export      *repository.ExportRepository
	audit       *repository.AuditRepository
}

var app *application

func buildApplication(ctx context.Context) (*application, error) {
	client, err := sheets.NewClient(ctx)
	if err != nil {
		return nil, err
	}

	runsRepo := repository.NewRunsRepository(client)
	stepsRepo := repository.NewRunStepsRepository(client)
	shopsRepo := repository.NewShopsRepository(client)
	usersRepo := repository.NewUsersRepository(client)
	templatesRepo := repository.NewTemplatesRepository(client)
	auditRepo := repository.NewAuditRepository(client)
	attachmentsRepo := repository.NewAttachmentsRepository(client)
	exportRepo := repository.NewExportRepository(client)

	runSettings := config.GetRunSettings()
	locker := workflow.NewRedisLocker(config.GetRedisLock(), runSettings.LockWait)
	notifier := notify.NewTelegramNotifier(config.GetTelegramBotToken())

	gate := workflow.NewGateService(templatesRepo, stepsRepo, attachmentsRepo, config.GetAlertSettings())
	return &application{
		sheets:    client,
		runs:      workflow.NewRunService(runsRepo, auditRepo, locker, runSettings),
		steps:     workflow.NewStepService(runsRepo, stepsRepo, templatesRepo),
		gate:      gate,
		reminders: workflow.NewReminderEngine(runsRepo, shopsRepo, usersRepo, gate, workflow.NewRedisCadenceStore(), notifier, config.GetCadenceSettings(), config.GetNotificationSettings()),
		deltaAlerts: workflow.NewDeltaAlertService(runsRepo, stepsRepo, notifier,
			config.GetAlertSettings(), config.GetNotificationSettings()),
		shops:       shopsRepo,
		users:       usersRepo,
		templates:   templatesRepo,
		stepsRepo:   stepsRepo,
		attachments: attachmentsRepo,
		export:      exportRepo,
		audit:       auditRepo,
	}, nil
}

// sessionMiddleware decodes the bearer token when present and hangs the
// identity on the request context. Absence is fine; manager endpoints check
// the flag themselves.
func sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw == "" {
			raw = c.GetHeader("token")
		}
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
		if raw == "" {
			c.Next()
			return
		}
		token, err := utils.JwtValidate(raw)
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		claims, ok := token.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		ctx := utils.SetTokenInContext(c.Request.Context(), raw)
		ctx = utils.SetUserIdInContext(ctx, claims.ID)
		ctx = utils.SetIsManagerInContext(ctx, strings.EqualFold(claims.Role, "manager"))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func requireManager(c *gin.Context) bool {
	if !utils.IsManagerFromContext(c.Request.Context()) {
		c.JSON(http.StatusForbidden, gin.H{"error": "manager role required"})
		return false
	}
	return true
}

// writeWorkflowError maps the lifecycle error kinds onto HTTP statuses.
func writeWorkflowError(c *gin.Context, err error) {
	if taken, ok := utils.IsRoleAlreadyTaken(err); ok {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "role_already_taken",
			"role":   taken.Role,
			"holder": taken.Holder,
		})
		return
	}
	switch {
	case errors.Is(err, utils.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "run_not_found"})
	case errors.Is(err, utils.ErrRunAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "run_already_exists"})
	case errors.Is(err, utils.ErrLockTimeout):
		// Retryable: tell the client to come back rather than surface a 500.
		c.Header("Retry-After", "2")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "lock_timeout"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type authTokenRequest struct {
	TgId int64 `json:"tg_id" binding:"required"`
}

// authTokenHandler mints a JWT for a known staff member. Guarded by the
// shared API secret header so only the bot backend can call it.
func authTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader("X-Api-Key"); key == "" || key != os.Getenv("API_SECRET") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var req authTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		user, err := app.users.GetByTgId(c.Request.Context(), req.TgId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if user == nil || !user.IsActive {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		token, err := utils.JwtGenerate(user.TgId, user.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "role": user.Role})
	}
}

type assignRoleRequest struct {
	ShopId   string `json:"shop_id" binding:"required"`
	Role     string `json:"role" binding:"required,oneof=open close"`
	UserId   int64  `json:"user_id" binding:"required"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

func assignRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "assignRoleHandler")
		defer span.End()

		var req assignRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := app.runs.AssignRole(ctx, req.ShopId, req.Role, workflow.RunUser{
			UserId:   req.UserId,
			Username: req.Username,
			FullName: req.FullName,
		})
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"state":  result.State,
			"role":   result.Role,
			"run_id": result.Run.RunId,
			"status": result.Run.Status,
		})
	}
}

func handoverRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireManager(c) {
			return
		}
		var req assignRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		run, err := app.runs.HandoverRole(c.Request.Context(), req.ShopId, req.Role, workflow.RunUser{
			UserId:   req.UserId,
			Username: req.Username,
			FullName: req.FullName,
		})
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"run_id": run.RunId, "status": run.Status})
	}
}

type createRunRequest struct {
	ShopId string `json:"shop_id" binding:"required"`
	Date   string `json:"date" binding:"omitempty,datetime=2006-01-02"`
}

func createRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireManager(c) {
			return
		}
		var req createRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		run, err := app.runs.CreateRun(c.Request.Context(), req.ShopId, req.Date)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"run_id": run.RunId, "status": run.Status})
	}
}

type returnRunRequest struct {
	ShopId   string `json:"shop_id" binding:"required"`
	Date     string `json:"date" binding:"omitempty,datetime=2006-01-02"`
	Reason   string `json:"reason"`
	UserId   int64  `json:"user_id"`
	Username string `json:"username"`
}

func returnRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireManager(c) {
			return
		}
		var req returnRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		run, err := app.runs.ReturnRun(c.Request.Context(), req.ShopId, workflow.RunUser{
			UserId:   req.UserId,
			Username: req.Username,
		}, req.Reason, req.Date)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"run_id": run.RunId, "status": run.Status})
	}
}

type runIdRequest struct {
	RunId string `json:"run_id" binding:"required"`
}

// closeCheckHandler runs the gate and, when it passes, moves the run to
// ready_to_close. The violation list is returned either way so the bot can
// show what is still missing.
func closeCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var req runIdRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		run, err := fetchRun(ctx, req.RunId)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		violations, err := app.gate.CheckClose(ctx, run)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(violations) > 0 {
			c.JSON(http.StatusOK, gin.H{"ready": false, "violations": violations})
			return
		}
		run, err = app.runs.MarkReadyToClose(ctx, req.RunId)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ready": true, "status": run.Status})
	}
}

func finalizeRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "finalizeRunHandler")
		defer span.End()

		var req runIdRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		run, err := fetchRun(ctx, req.RunId)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		violations, err := app.gate.CheckClose(ctx, run)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(violations) > 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "gate_failed", "violations": violations})
			return
		}

		steps, err := app.stepsRepo.ListForRun(ctx, req.RunId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		run, err = app.runs.FinalizeRun(ctx, req.RunId, workflow.TotalDelta(steps))
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		appendExportRecord(ctx, *run, steps)
		c.JSON(http.StatusOK, gin.H{
			"run_id":      run.RunId,
			"status":      run.Status,
			"delta_total": run.DeltaTotal,
		})
	}
}

// appendExportRecord is best-effort: a reporting failure must not fail the
// close itself.
func appendExportRecord(ctx context.Context, run models.RunRecord, steps []models.RunStepRecord) {
	logger := config.GetLogger()
	shopName := run.ShopId
	if shop, err := app.shops.GetShop(ctx, run.ShopId); err == nil && shop != nil {
		shopName = shop.Name
	}
	attachments, err := app.attachments.ListForRun(ctx, run.RunId)
	if err != nil {
		config.LogError(logger, "server.go", "appendExportRecord", "ListForRun", run.RunId, err)
	}
	if err := app.export.Append(ctx, models.NewExportRecord(run, steps, attachments, shopName)); err != nil {
		config.LogError(logger, "server.go", "appendExportRecord", "Append", run.RunId, err)
	}
}

func runStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		shopId := c.Query("shop_id")
		if shopId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "shop_id is required"})
			return
		}
		run, err := app.runs.GetTodayRun(c.Request.Context(), shopId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if run == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "run_not_found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"run_id":          run.RunId,
			"date":            run.Date,
			"shop_id":         run.ShopId,
			"status":          run.Status,
			"opener_username": run.OpenerUsername,
			"closer_username": run.CloserUsername,
			"delta_total":     run.DeltaTotal,
		})
	}
}

type submitStepRequest struct {
	RunId          string `json:"run_id" binding:"required"`
	Phase          string `json:"phase" binding:"required"`
	StepCode       string `json:"step_code" binding:"required"`
	OwnerRole      string `json:"owner_role"`
	ValueKind      string `json:"value_kind" binding:"omitempty,oneof=number text check photo"`
	ValueNumber    string `json:"value_number"`
	ValueText      string `json:"value_text"`
	ValueCheck     bool   `json:"value_check"`
	ValuePhoto     string `json:"value_photo"`
	Comment        string `json:"comment"`
	Skip           bool   `json:"skip"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (r *submitStepRequest) stepValue() models.StepValue {
	switch models.StepValueKind(r.ValueKind) {
	case models.StepValueNumber:
		return models.StepValue{Kind: models.StepValueNumber, Number: r.ValueNumber}
	case models.StepValueText:
		return models.StepValue{Kind: models.StepValueText, Text: r.ValueText}
	case models.StepValueCheck:
		return models.StepValue{Kind: models.StepValueCheck, Check: r.ValueCheck}
	case models.StepValuePhoto:
		return models.StepValue{Kind: models.StepValuePhoto, Photo: r.ValuePhoto}
	}
	return models.StepValue{}
}

func submitStepHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "submitStepHandler")
		defer span.End()

		var req submitStepRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		performer := ""
		if id, ok := utils.GetUserIdFromContext(ctx); ok {
			performer = fmt.Sprintf("%d", id)
		}
		record, err := app.steps.Submit(ctx, workflow.StepSubmission{
			RunId:          req.RunId,
			Phase:          req.Phase,
			StepCode:       req.StepCode,
			OwnerRole:      req.OwnerRole,
			Value:          req.stepValue(),
			Comment:        req.Comment,
			PerformerId:    performer,
			Skip:           req.Skip,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"run_id":       record.RunId,
			"step_code":    record.StepCode,
			"status":       record.Status,
			"delta_number": record.DeltaNumber,
		})
	}
}

func listStepsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		runId := c.Query("run_id")
		if runId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "run_id is required"})
			return
		}
		steps, err := app.steps.ListForRun(c.Request.Context(), runId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"run_id": runId, "steps": steps})
	}
}

func refreshTemplatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireManager(c) {
			return
		}
		app.templates.Refresh()
		c.Status(http.StatusNoContent)
	}
}

func deltaCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireManager(c) {
			return
		}
		if err := app.deltaAlerts.CheckAllOpen(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// reminderTickHandler is the Pub/Sub push endpoint. Malformed messages are
// acked and dropped so a poisoned payload cannot loop forever; real
// processing failures return 500 so Pub/Sub retries.
func reminderTickHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		var msg PubSubMessage

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "server.go", "reminderTickHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}
		// byte slice unmarshalling handles base64 decoding.
		if err := json.Unmarshal(body, &msg); err != nil {
			config.LogError(logger, "server.go", "reminderTickHandler", "Unmarshal body", body, err)
			c.Status(http.StatusNoContent)
			return
		}
		var tick config.ReminderTickMessage
		if err := json.Unmarshal(msg.Message.Data, &tick); err != nil {
			config.LogError(logger, "server.go", "reminderTickHandler", "Unmarshal tick", msg.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}

		correlationID := tick.CorrelationId
		if correlationID == "" {
			correlationID = msg.Message.ID
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationID)

		if tick.ShopId == "" {
			if err := app.reminders.EvaluateAll(ctx); err != nil {
				logger.WithFields(logrus.Fields{
					"field":          "reminderTickHandler",
					"correlation_id": correlationID,
				}).Error("reminder tick failed: " + err.Error())
				c.Status(http.StatusInternalServerError)
				return
			}
			c.Status(http.StatusNoContent)
			return
		}

		shop, err := app.shops.GetShop(ctx, tick.ShopId)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		if shop == nil {
			// Unknown shop: ack/drop.
			c.Status(http.StatusNoContent)
			return
		}
		if err := app.reminders.EvaluateShop(ctx, *shop); err != nil {
			logger.WithFields(logrus.Fields{
				"field":          "reminderTickHandler",
				"shop_id":        tick.ShopId,
				"correlation_id": correlationID,
			}).Error("reminder tick failed: " + err.Error())
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func fetchRun(ctx context.Context, runId string) (*models.RunRecord, error) {
	runsRepo := repository.NewRunsRepository(app.sheets)
	run, err := runsRepo.GetRunById(ctx, runId)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runId, utils.ErrRunNotFound)
	}
	return run, nil
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// customErrorLogger logs only requests that collected gin errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"module":         "server",
			"path":           c.Request.URL.Path,
			"status":         c.Writer.Status(),
			"correlation_id": cid,
		}).Error(c.Errors.String())
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// registerClockValidation adds the "clock" tag for HH:MM fields.
func registerClockValidation() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			_, ok := utils.ParseClock(fl.Field().String())
			return ok
		})
	}
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	registerClockValidation()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until Redis and Sheets are ready, app endpoints return 503.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate everything else on dependency readiness.
		if app == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production require an explicit allowlist; allow all elsewhere.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(sessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/auth/token", authTokenHandler())
	r.POST("/run/assign", assignRoleHandler())
	r.POST("/run/handover", handoverRoleHandler())
	r.POST("/run/create", createRunHandler())
	r.POST("/run/return", returnRunHandler())
	r.POST("/run/close-check", closeCheckHandler())
	r.POST("/run/finalize", finalizeRunHandler())
	r.GET("/run/status", runStatusHandler())
	r.POST("/steps", submitStepHandler())
	r.GET("/steps", listStepsHandler())
	r.POST("/uploads/photo", uploadPhotoHandler())
	r.POST("/internal/templates/refresh", refreshTemplatesHandler())
	r.POST("/internal/ops/delta-check", deltaCheckHandler())
	r.POST("/pubsub/reminder-tick", reminderTickHandler())
	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectRedisWithRetry()

	for attempt := 1; ; attempt++ {
		built, err := buildApplication(context.Background())
		if err == nil {
			app = built
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "sheets",
			"attempt": attempt,
		}).Warn("failed to initialize sheets client; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
