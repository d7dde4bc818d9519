package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ringgate/ringgate/src/application/service"
	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
	"github.com/ringgate/ringgate/src/domain/repository"
)

type Web struct {
	Config config.WebConfig

	Logger           zerolog.Logger
	EvidenceService  service.EvidenceService
	RiskService      service.RiskService
	PolicyService    service.PolicyService
	ApprovalService  service.ApprovalService
	ExceptionService service.ExceptionService
	EventService     service.EventService
	TaskService      service.TaskService
	Metrics          *config.Metrics
}

var validate = validator.New()

func (self *Web) Start(ctx context.Context) error {
	self.Logger.Info().Str("listen", self.Config.Listen).Msg("Starting")

	server := &http.Server{
		Addr:    self.Config.Listen,
		Handler: self.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			self.Logger.Err(err).Msg("While shutting down web server")
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.WithMessage(err, "While serving web API")
	}
	return nil
}

func (self *Web) Router() *mux.Router {
	muxRouter := mux.NewRouter().StrictSlash(true).UseEncodedPath()
	muxRouter.NotFoundHandler = http.NotFoundHandler()

	// sorted alphabetically, please keep it this way
	muxRouter.HandleFunc("/api/cab/{id}/decision", self.ApiCabIdDecisionPost).Methods(http.MethodPost)
	muxRouter.HandleFunc("/api/cab/{id}/review", self.ApiCabIdReviewPost).Methods(http.MethodPost)
	muxRouter.HandleFunc("/api/cab/{id}", self.ApiCabIdGet).Methods(http.MethodGet)
	muxRouter.HandleFunc("/api/cab", self.ApiCabGet).Methods(http.MethodGet)
	muxRouter.HandleFunc("/api/cab", self.ApiCabPost).Methods(http.MethodPost)
	muxRouter.HandleFunc("/api/event/{correlation}", self.ApiEventCorrelationGet).Methods(http.MethodGet)
	muxRouter.HandleFunc("/api/evidence-pack/{id}/risk-assessment", self.ApiEvidencePackIdRiskAssessmentPost).Methods(http.MethodPost)
	muxRouter.HandleFunc("/api/evidence-pack/{id}", self.ApiEvidencePackIdGet).Methods(http.MethodGet)
	muxRouter.HandleFunc("/api/evidence-pack", self.ApiEvidencePackPost).Methods(http.MethodPost)
	muxRouter.HandleFunc("/api/exception/{id}", self.ApiExceptionIdDelete).Methods(http.MethodDelete)
	muxRouter.HandleFunc("/api/exception", self.ApiExceptionGet).Methods(http.MethodGet)
	muxRouter.HandleFunc("/api/exception", self.ApiExceptionPost).Methods(http.MethodPost)
	muxRouter.HandleFunc("/api/risk-assessment/{id}/policy", self.ApiRiskAssessmentIdPolicyPost).Methods(http.MethodPost)
	muxRouter.HandleFunc("/api/risk-assessment/{id}", self.ApiRiskAssessmentIdGet).Methods(http.MethodGet)
	muxRouter.HandleFunc("/api/task/{id}", self.ApiTaskIdGet).Methods(http.MethodGet)
	muxRouter.Handle("/metrics", promhttp.HandlerFor(self.Metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return muxRouter
}

type apiEvidencePackPostBody struct {
	CorrelationId  uuid.UUID                 `json:"correlation_id" validate:"required"`
	ArtifactDigest string                    `json:"artifact_digest" validate:"required"`
	Signature      *domain.SignatureMetadata `json:"signature"`
	Sbom           map[string]interface{}    `json:"sbom" validate:"required"`
	Scan           *domain.ScanResult        `json:"scan" validate:"required"`
	Rollback       *domain.RollbackPlan      `json:"rollback" validate:"required"`
	Tests          *domain.TestEvidence      `json:"tests" validate:"required"`
	Scope          *domain.ChangeScope       `json:"scope"`
}

func (self *Web) ApiEvidencePackPost(w http.ResponseWriter, req *http.Request) {
	var body apiEvidencePackPostBody
	if !self.decode(w, req, &body) {
		return
	}

	pack := domain.EvidencePack{
		CorrelationId:  body.CorrelationId,
		ArtifactDigest: body.ArtifactDigest,
		Signature:      body.Signature,
		Sbom:           body.Sbom,
		Scan:           body.Scan,
		Rollback:       body.Rollback,
		Tests:          body.Tests,
		Scope:          body.Scope,
	}

	if err := self.EvidenceService.Create(&pack); err != nil {
		self.ApiError(w, err)
		return
	}

	self.json(w, pack, http.StatusOK)
}

func (self *Web) ApiEvidencePackIdGet(w http.ResponseWriter, req *http.Request) {
	id, ok := self.pathId(w, req, "id")
	if !ok {
		return
	}

	pack, err := self.EvidenceService.GetById(id)
	if err != nil {
		self.ApiError(w, err)
		return
	}
	self.json(w, pack, http.StatusOK)
}

func (self *Web) ApiEvidencePackIdRiskAssessmentPost(w http.ResponseWriter, req *http.Request) {
	id, ok := self.pathId(w, req, "id")
	if !ok {
		return
	}

	pack, err := self.EvidenceService.GetById(id)
	if err != nil {
		self.ApiError(w, err)
		return
	}

	task, err := self.TaskService.Enqueue(domain.TaskKindRiskAssessment, pack.CorrelationId, pack.ID)
	if err != nil {
		self.ApiError(w, err)
		return
	}

	self.json(w, map[string]interface{}{
		"task_id":        task.ID,
		"correlation_id": task.CorrelationId,
	}, http.StatusAccepted)
}

func (self *Web) ApiTaskIdGet(w http.ResponseWriter, req *http.Request) {
	id, ok := self.pathId(w, req, "id")
	if !ok {
		return
	}

	task, err := self.TaskService.GetById(id)
	if err != nil {
		self.ApiError(w, err)
		return
	}
	self.json(w, task, http.StatusOK)
}

func (self *Web) ApiRiskAssessmentIdGet(w http.ResponseWriter, req *http.Request) {
	id, ok := self.pathId(w, req, "id")
	if !ok {
		return
	}

	assessment, err := self.RiskService.GetById(id)
	if err != nil {
		self.ApiError(w, err)
		return
	}
	self.json(w, assessment, http.StatusOK)
}

type apiPolicyPostBody struct {
	TargetRing           domain.Ring `json:"target_ring"`
	PriorRingSuccessRate *float64    `json:"prior_ring_success_rate"`
}

func (self *Web) ApiRiskAssessmentIdPolicyPost(w http.ResponseWriter, req *http.Request) {
	id, ok := self.pathId(w, req, "id")
	if !ok {
		return
	}

	var body apiPolicyPostBody
	if !self.decode(w, req, &body) {
		return
	}

	decision, err := self.PolicyService.Evaluate(req.Context(), id, domain.RingContext{
		TargetRing:           body.TargetRing,
		PriorRingSuccessRate: body.PriorRingSuccessRate,
	})
	if err != nil {
		self.ApiError(w, err)
		return
	}

	self.json(w, decision, http.StatusOK)
}

type apiCabPostBody struct {
	DeploymentIntentId uuid.UUID `json:"deployment_intent_id" validate:"required"`
	EvidencePackId     uuid.UUID `json:"evidence_pack_id" validate:"required"`
	RiskAssessmentId   uuid.UUID `json:"risk_assessment_id" validate:"required"`
}

func (self *Web) ApiCabPost(w http.ResponseWriter, req *http.Request) {
	var body apiCabPostBody
	if !self.decode(w, req, &body) {
		return
	}

	approval := domain.CABApproval{
		DeploymentIntentId: body.DeploymentIntentId,
		EvidencePackId:     body.EvidencePackId,
		RiskAssessmentId:   body.RiskAssessmentId,
	}

	if err := self.ApprovalService.Submit(&approval); err != nil {
		self.ApiError(w, err)
		return
	}

	self.json(w, approval, http.StatusOK)
}

func (self *Web) ApiCabGet(w http.ResponseWriter, req *http.Request) {
	page, ok := self.page(w, req)
	if !ok {
		return
	}

	approvals, err := self.ApprovalService.GetAll(page)
	if err != nil {
		self.ApiError(w, err)
		return
	}

	self.json(w, map[string]interface{}{
		"page":      page,
		"approvals": approvals,
	}, http.StatusOK)
}

func (self *Web) ApiCabIdGet(w http.ResponseWriter, req *http.Request) {
	id, ok := self.pathId(w, req, "id")
	if !ok {
		return
	}

	approval, err := self.ApprovalService.GetById(id)
	if err != nil {
		self.ApiError(w, err)
		return
	}
	self.json(w, approval, http.StatusOK)
}

type apiCabReviewPostBody struct {
	Approver string `json:"approver" validate:"required"`
}

func (self *Web) ApiCabIdReviewPost(w http.ResponseWriter, req *http.Request) {
	id, ok := self.pathId(w, req, "id")
	if !ok {
		return
	}

	var body apiCabReviewPostBody
	if !self.decode(w, req, &body) {
		return
	}

	approval, err := self.ApprovalService.BeginReview(id, body.Approver)
	if err != nil {
		self.ApiError(w, err)
		return
	}
	self.json(w, approval, http.StatusOK)
}

type apiCabDecisionPostBody struct {
	Status     domain.ApprovalStatus      `json:"status"`
	Approver   string                     `json:"approver" validate:"required"`
	Rationale  string                     `json:"rationale" validate:"required"`
	Conditions []domain.ApprovalCondition `json:"conditions"`
}

func (self *Web) ApiCabIdDecisionPost(w http.ResponseWriter, req *http.Request) {
	id, ok := self.pathId(w, req, "id")
	if !ok {
		return
	}

	var body apiCabDecisionPostBody
	if !self.decode(w, req, &body) {
		return
	}

	approval, err := self.ApprovalService.Decide(id, body.Status, body.Approver, body.Rationale, body.Conditions)
	if err != nil {
		self.ApiError(w, err)
		return
	}
	self.json(w, approval, http.StatusOK)
}

func (self *Web) ApiExceptionGet(w http.ResponseWriter, req *http.Request) {
	page, ok := self.page(w, req)
	if !ok {
		return
	}

	exceptions, err := self.ExceptionService.GetAll(page)
	if err != nil {
		self.ApiError(w, err)
		return
	}

	self.json(w, map[string]interface{}{
		"page":       page,
		"exceptions": exceptions,
	}, http.StatusOK)
}

type apiExceptionPostBody struct {
	CorrelationId        uuid.UUID `json:"correlation_id" validate:"required"`
	Violation            string    `json:"violation" validate:"required"`
	ExpiresAt            time.Time `json:"expires_at" validate:"required"`
	CompensatingControls []string  `json:"compensating_controls" validate:"required,min=1"`
	Requester            string    `json:"requester" validate:"required"`
	Reviewer             string    `json:"reviewer" validate:"required"`
}

func (self *Web) ApiExceptionPost(w http.ResponseWriter, req *http.Request) {
	var body apiExceptionPostBody
	if !self.decode(w, req, &body) {
		return
	}

	exception := domain.Exception{
		CorrelationId:        body.CorrelationId,
		Violation:            body.Violation,
		ExpiresAt:            body.ExpiresAt,
		CompensatingControls: body.CompensatingControls,
		Requester:            body.Requester,
		Reviewer:             body.Reviewer,
	}

	if err := self.ExceptionService.Grant(&exception); err != nil {
		self.ApiError(w, err)
		return
	}

	self.json(w, exception, http.StatusOK)
}

type apiExceptionDeleteBody struct {
	Reason string `json:"reason" validate:"required"`
}

func (self *Web) ApiExceptionIdDelete(w http.ResponseWriter, req *http.Request) {
	id, ok := self.pathId(w, req, "id")
	if !ok {
		return
	}

	var body apiExceptionDeleteBody
	if !self.decode(w, req, &body) {
		return
	}

	if err := self.ExceptionService.Revoke(id, body.Reason); err != nil {
		self.ApiError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (self *Web) ApiEventCorrelationGet(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	correlationId, err := uuid.Parse(vars["correlation"])
	if err != nil {
		self.ClientError(w, errors.WithMessage(err, "Could not parse correlation ID"))
		return
	}

	afterSeq := uint64(0)
	if after := req.URL.Query().Get("after"); after != "" {
		afterSeq, err = strconv.ParseUint(after, 10, 64)
		if err != nil {
			self.ClientError(w, errors.WithMessage(err, "Could not parse `after` parameter"))
			return
		}
	}

	if req.Header.Get("Upgrade") == "websocket" {
		self.eventsWS(w, req, correlationId, afterSeq)
		return
	}

	events := []domain.Event{}
	for {
		batch, err := self.EventService.GetByCorrelationId(correlationId, afterSeq, 100)
		if err != nil {
			self.ApiError(w, err)
			return
		}
		if len(batch) == 0 {
			break
		}
		events = append(events, batch...)
		afterSeq = batch[len(batch)-1].Seq
	}

	self.json(w, events, http.StatusOK)
}

var websocketUpgrader = websocket.Upgrader{}

// eventsWS streams ledger entries over a websocket, polling for entries
// appended after the stream caught up.
func (self *Web) eventsWS(w http.ResponseWriter, req *http.Request, correlationId uuid.UUID, afterSeq uint64) {
	conn, err := websocketUpgrader.Upgrade(w, req, nil)
	if err != nil {
		self.ClientError(w, err)
		return
	}

	go func() {
		defer func() {
			if err := conn.Close(); err != nil {
				self.Logger.Err(err).Msg("While closing websocket")
			}
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Disconnect when the client closes its side.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.NextReader(); err != nil {
					break
				}
			}
		}()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			events, err := self.EventService.GetByCorrelationId(correlationId, afterSeq, 100)
			if err != nil {
				self.Logger.Err(err).Msg("While reading events for websocket")
				return
			}

			for _, event := range events {
				buf, err := json.Marshal(event)
				if err != nil {
					self.Logger.Err(err).Msg("While marshaling event to JSON")
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, buf); err != nil {
					return
				}
				afterSeq = event.Seq
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (self *Web) page(w http.ResponseWriter, req *http.Request) (*repository.Page, bool) {
	page := repository.Page{Limit: 50}

	query := req.URL.Query()
	if limit := query.Get("limit"); limit != "" {
		if parsed, err := strconv.Atoi(limit); err != nil {
			self.ClientError(w, errors.WithMessage(err, "Could not parse `limit` parameter"))
			return nil, false
		} else {
			page.Limit = parsed
		}
	}
	if offset := query.Get("offset"); offset != "" {
		if parsed, err := strconv.Atoi(offset); err != nil {
			self.ClientError(w, errors.WithMessage(err, "Could not parse `offset` parameter"))
			return nil, false
		} else {
			page.Offset = parsed
		}
	}

	return &page, true
}

func (self *Web) pathId(w http.ResponseWriter, req *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(req)[name])
	if err != nil {
		self.ClientError(w, errors.WithMessagef(err, "Could not parse %s", name))
		return uuid.UUID{}, false
	}
	return id, true
}

func (self *Web) decode(w http.ResponseWriter, req *http.Request, body interface{}) bool {
	if err := json.NewDecoder(req.Body).Decode(body); err != nil {
		self.ClientError(w, errors.WithMessage(err, "Could not unmarshal JSON body"))
		return false
	}
	if err := validate.Struct(body); err != nil {
		self.ClientError(w, err)
		return false
	}
	return true
}

// ApiError maps the domain error taxonomy onto HTTP statuses: validation
// failures are the client's fault, transition conflicts are a race the
// caller lost, transient storage trouble invites a retry.
func (self *Web) ApiError(w http.ResponseWriter, err error) {
	var (
		incomplete    domain.IncompleteEvidenceError
		missingFactor domain.MissingFactorError
		invalidExpiry domain.InvalidExpiryError
		segregation   domain.SegregationOfDutyError
		notFound      domain.NotFoundError
		transition    domain.InvalidTransitionError
		unavailable   domain.StorageUnavailableError
		noModel       domain.NoActiveModelError
	)
	switch {
	case errors.As(err, &incomplete),
		errors.As(err, &missingFactor),
		errors.As(err, &invalidExpiry),
		errors.As(err, &segregation):
		self.ClientError(w, err)
	case errors.As(err, &notFound):
		self.NotFound(w, err)
	case errors.As(err, &transition):
		self.Error(w, HandlerError{err, http.StatusConflict})
	case errors.As(err, &unavailable):
		self.Error(w, HandlerError{err, http.StatusServiceUnavailable})
	case errors.As(err, &noModel):
		self.Error(w, HandlerError{err, http.StatusConflict})
	default:
		self.ServerError(w, err)
	}
}

type HandlerError struct {
	error
	StatusCode int
}

func (self HandlerError) HasError() bool {
	return self.error != nil
}

func (self *Web) ServerError(w http.ResponseWriter, err error) {
	self.Error(w, HandlerError{err, http.StatusInternalServerError})
}

func (self *Web) ClientError(w http.ResponseWriter, err error) {
	self.Error(w, HandlerError{err, http.StatusBadRequest})
}

func (self *Web) NotFound(w http.ResponseWriter, err error) {
	self.Error(w, HandlerError{err, http.StatusNotFound})
}

func (self *Web) Error(w http.ResponseWriter, err error) {
	status := 500

	if handlerErr, ok := err.(HandlerError); ok {
		status = handlerErr.StatusCode
		if !handlerErr.HasError() {
			err = nil
		}
	}

	var e *zerolog.Event
	if status >= 500 {
		e = self.Logger.Error()
	} else {
		e = self.Logger.Debug()
	}
	e.Err(err).Int("status", status).Msg("Handler error")

	var msg string
	if err != nil {
		msg = err.Error()
	}

	http.Error(w, msg, status)
}

func (self *Web) json(w http.ResponseWriter, obj any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		self.ServerError(w, err)
		return
	}
}
