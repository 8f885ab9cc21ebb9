package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tenderflow-backend/api/middleware"
	"github.com/angelmondragon/tenderflow-backend/internal/awards"
	"github.com/angelmondragon/tenderflow-backend/internal/reports"
	"github.com/angelmondragon/tenderflow-backend/internal/submissions"
	"github.com/angelmondragon/tenderflow-backend/internal/tenders"
	"github.com/angelmondragon/tenderflow-backend/pkg/config"
	"github.com/angelmondragon/tenderflow-backend/pkg/db"
	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

type testTendersService struct {
	createFn  func(ctx context.Context, input tenders.CreateInput) (*models.Tender, error)
	updateFn  func(ctx context.Context, input tenders.UpdateInput) (*models.Tender, error)
	publishFn func(ctx context.Context, tenderID uuid.UUID, actor tenders.Actor) (*models.Tender, error)
	cancelFn  func(ctx context.Context, input tenders.CancelInput) (*models.Tender, error)
	getFn     func(ctx context.Context, tenderID uuid.UUID, actor tenders.Actor) (*models.Tender, error)
	listFn    func(ctx context.Context, actor tenders.Actor, params tenders.ListParams) (*tenders.TenderList, error)
}

func (s *testTendersService) Create(ctx context.Context, input tenders.CreateInput) (*models.Tender, error) {
	return s.createFn(ctx, input)
}

func (s *testTendersService) Update(ctx context.Context, input tenders.UpdateInput) (*models.Tender, error) {
	return s.updateFn(ctx, input)
}

func (s *testTendersService) Publish(ctx context.Context, tenderID uuid.UUID, actor tenders.Actor) (*models.Tender, error) {
	return s.publishFn(ctx, tenderID, actor)
}

func (s *testTendersService) Cancel(ctx context.Context, input tenders.CancelInput) (*models.Tender, error) {
	return s.cancelFn(ctx, input)
}

func (s *testTendersService) Get(ctx context.Context, tenderID uuid.UUID, actor tenders.Actor) (*models.Tender, error) {
	return s.getFn(ctx, tenderID, actor)
}

func (s *testTendersService) List(ctx context.Context, actor tenders.Actor, params tenders.ListParams) (*tenders.TenderList, error) {
	return s.listFn(ctx, actor, params)
}

type testSubmissionsService struct {
	submitFn   func(ctx context.Context, input submissions.SubmitInput) (*models.Submission, error)
	withdrawFn func(ctx context.Context, input submissions.WithdrawInput) (*models.Submission, error)
	listFn     func(ctx context.Context, tenderID uuid.UUID, actor tenders.Actor) ([]models.Submission, error)
}

func (s *testSubmissionsService) Submit(ctx context.Context, input submissions.SubmitInput) (*models.Submission, error) {
	return s.submitFn(ctx, input)
}

func (s *testSubmissionsService) Withdraw(ctx context.Context, input submissions.WithdrawInput) (*models.Submission, error) {
	return s.withdrawFn(ctx, input)
}

func (s *testSubmissionsService) ListForTender(ctx context.Context, tenderID uuid.UUID, actor tenders.Actor) ([]models.Submission, error) {
	return s.listFn(ctx, tenderID, actor)
}

type testReportsService struct {
	view *reports.View
}

func (s *testReportsService) ForTender(context.Context, uuid.UUID, tenders.Actor) (*reports.View, error) {
	return s.view, nil
}

type testAwardService struct {
	awardFn func(ctx context.Context, input awards.Input) (*models.PurchaseOrder, error)
}

func (s *testAwardService) Award(ctx context.Context, input awards.Input) (*models.PurchaseOrder, error) {
	return s.awardFn(ctx, input)
}

func (s *testAwardService) PurchaseOrderForTender(context.Context, uuid.UUID, tenders.Actor) (*models.PurchaseOrder, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase order not found")
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

var (
	buyer    = tenders.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer}
	supplier = tenders.Actor{UserID: uuid.New(), Role: enums.ActorRoleSupplier}
)

func newRequest(method, target, body string, actor *tenders.Actor, params map[string]string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	ctx := req.Context()
	if actor != nil {
		ctx = middleware.WithActor(ctx, *actor)
	}
	routeCtx := chi.NewRouteContext()
	for k, v := range params {
		routeCtx.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
	return req.WithContext(ctx)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *types.APIError `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestCreateTenderPassesSanitizedInput(t *testing.T) {
	deadline := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var got tenders.CreateInput
	svc := &testTendersService{
		createFn: func(_ context.Context, input tenders.CreateInput) (*models.Tender, error) {
			got = input
			return &models.Tender{ID: uuid.New(), Number: "TND-2025-000001", Title: input.Title, Status: enums.TenderStatusDraft}, nil
		},
	}

	body := `{"title":"  Office chairs  ","currency":"usd","submission_deadline":"2025-03-01T12:00:00Z",
		"criteria":[{"name":"Price","weight":70},{"name":"Quality","weight":30}],
		"line_items":[{"code":"CHAIR","description":"Chair","quantity":"20","unit":"pcs"}]}`
	rec := httptest.NewRecorder()
	CreateTender(svc, logger.Nop())(rec, newRequest(http.MethodPost, "/api/v1/tenders", body, &buyer, nil))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, buyer, got.Actor)
	assert.Equal(t, "Office chairs", got.Title)
	assert.Equal(t, enums.CurrencyUSD, got.Currency)
	assert.True(t, got.SubmissionDeadline.Equal(deadline))
	require.Len(t, got.Criteria, 2)
	require.Len(t, got.LineItems, 1)
	assert.True(t, got.LineItems[0].Quantity.Equal(decimal.NewFromInt(20)))

	var resp tenderResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &resp))
	assert.Equal(t, "TND-2025-000001", resp.Number)
	assert.Equal(t, enums.TenderStatusDraft, resp.Status)
}

func TestCreateTenderValidationDetails(t *testing.T) {
	svc := &testTendersService{
		createFn: func(context.Context, tenders.CreateInput) (*models.Tender, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}
	body := `{"title":"Chairs","criteria":[{"name":"","weight":120}]}`
	rec := httptest.NewRecorder()
	CreateTender(svc, logger.Nop())(rec, newRequest(http.MethodPost, "/api/v1/tenders", body, &buyer, nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Error)
	details, ok := env.Error.Details.(map[string]any)
	require.True(t, ok, "expected details map, got %T", env.Error.Details)
	assert.Contains(t, details, "submission_deadline")
	assert.Contains(t, details, "criteria[0].name")
	assert.Contains(t, details, "criteria[0].weight")
}

func TestCreateTenderRequiresActor(t *testing.T) {
	rec := httptest.NewRecorder()
	CreateTender(&testTendersService{}, logger.Nop())(rec, newRequest(http.MethodPost, "/api/v1/tenders", `{}`, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListTendersParsesFilters(t *testing.T) {
	var got tenders.ListParams
	svc := &testTendersService{
		listFn: func(_ context.Context, _ tenders.Actor, params tenders.ListParams) (*tenders.TenderList, error) {
			got = params
			return &tenders.TenderList{Tenders: []models.Tender{{ID: uuid.New(), Number: "TND-2025-000002"}}, NextCursor: "next"}, nil
		},
	}
	rec := httptest.NewRecorder()
	ListTenders(svc, logger.Nop())(rec, newRequest(http.MethodGet, "/api/v1/tenders?status=Published&mine=true&limit=5", "", &buyer, nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, got.Status)
	assert.Equal(t, enums.TenderStatusPublished, *got.Status)
	assert.True(t, got.Mine)
	assert.Equal(t, 5, got.Limit)

	var resp tenderListResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &resp))
	assert.Len(t, resp.Tenders, 1)
	assert.Equal(t, "next", resp.NextCursor)

	rec = httptest.NewRecorder()
	ListTenders(svc, logger.Nop())(rec, newRequest(http.MethodGet, "/api/v1/tenders?status=open", "", &buyer, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTenderRejectsBadID(t *testing.T) {
	rec := httptest.NewRecorder()
	GetTender(&testTendersService{}, logger.Nop())(rec, newRequest(http.MethodGet, "/api/v1/tenders/nope", "", &buyer, map[string]string{"tenderId": "nope"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelTenderAcceptsEmptyBody(t *testing.T) {
	tenderID := uuid.New()
	var got tenders.CancelInput
	svc := &testTendersService{
		cancelFn: func(_ context.Context, input tenders.CancelInput) (*models.Tender, error) {
			got = input
			return &models.Tender{ID: input.TenderID, Status: enums.TenderStatusCancelled}, nil
		},
	}
	params := map[string]string{"tenderId": tenderID.String()}

	rec := httptest.NewRecorder()
	CancelTender(svc, logger.Nop())(rec, newRequest(http.MethodPost, "/api/v1/tenders/x/cancel", "", &buyer, params))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, tenderID, got.TenderID)
	assert.Nil(t, got.Reason)

	rec = httptest.NewRecorder()
	CancelTender(svc, logger.Nop())(rec, newRequest(http.MethodPost, "/api/v1/tenders/x/cancel", `{"reason":" budget cut "}`, &buyer, params))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got.Reason)
	assert.Equal(t, "budget cut", *got.Reason)
}

func TestPublishTenderSurfacesConflict(t *testing.T) {
	svc := &testTendersService{
		publishFn: func(context.Context, uuid.UUID, tenders.Actor) (*models.Tender, error) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "cannot publish a tender in status closed")
		},
	}
	rec := httptest.NewRecorder()
	PublishTender(svc, logger.Nop())(rec, newRequest(http.MethodPost, "/api/v1/tenders/x/publish", "", &buyer, map[string]string{"tenderId": uuid.NewString()}))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "cannot publish a tender in status closed", decode(t, rec).Error.Message)
}

func TestSubmitOffer(t *testing.T) {
	tenderID := uuid.New()
	var got submissions.SubmitInput
	svc := &testSubmissionsService{
		submitFn: func(_ context.Context, input submissions.SubmitInput) (*models.Submission, error) {
			got = input
			return &models.Submission{ID: uuid.New(), TenderID: input.TenderID, SupplierID: input.Actor.UserID, TotalAmount: input.TotalAmount, Status: enums.SubmissionStatusSubmitted}, nil
		},
	}
	body := `{"total_amount":"1000.50","line_prices":[{"item_code":"DESK","unit_price":"60"}],"criterion_scores":{"Technical":80}}`
	rec := httptest.NewRecorder()
	SubmitOffer(svc, logger.Nop())(rec, newRequest(http.MethodPost, "/x", body, &supplier, map[string]string{"tenderId": tenderID.String()}))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, tenderID, got.TenderID)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("1000.50")))
	assert.Equal(t, 80.0, got.CriterionScores["Technical"])

	rec = httptest.NewRecorder()
	SubmitOffer(svc, logger.Nop())(rec, newRequest(http.MethodPost, "/x", `{"total_amount":"1","compliance_score":140}`, &supplier, map[string]string{"tenderId": tenderID.String()}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSubmissionsMapsRows(t *testing.T) {
	svc := &testSubmissionsService{
		listFn: func(context.Context, uuid.UUID, tenders.Actor) ([]models.Submission, error) {
			return []models.Submission{{ID: uuid.New()}, {ID: uuid.New()}}, nil
		},
	}
	rec := httptest.NewRecorder()
	ListSubmissions(svc, logger.Nop())(rec, newRequest(http.MethodGet, "/x", "", &buyer, map[string]string{"tenderId": uuid.NewString()}))
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []submissionResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &rows))
	assert.Len(t, rows, 2)
}

func TestWithdrawOfferRequiresSubmissionID(t *testing.T) {
	rec := httptest.NewRecorder()
	WithdrawOffer(&testSubmissionsService{}, logger.Nop())(rec, newRequest(http.MethodPost, "/x", "", &supplier, map[string]string{"tenderId": uuid.NewString(), "submissionId": "bad"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpeningReportOmitsSnapshotWhileSealed(t *testing.T) {
	svc := &testReportsService{view: &reports.View{
		Report: &models.OpeningReport{ID: uuid.New(), ReceivedCount: 3, ValidCount: 2, InvalidCount: 1},
		Sealed: true,
	}}
	rec := httptest.NewRecorder()
	OpeningReport(svc, logger.Nop())(rec, newRequest(http.MethodGet, "/x", "", &buyer, map[string]string{"tenderId": uuid.NewString()}))
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &raw))
	assert.Equal(t, true, raw["sealed"])
	assert.EqualValues(t, 3, raw["received_count"])
	assert.NotContains(t, raw, "submissions")
}

func TestAwardTender(t *testing.T) {
	tenderID := uuid.New()
	submissionID := uuid.New()
	svc := &testAwardService{
		awardFn: func(_ context.Context, input awards.Input) (*models.PurchaseOrder, error) {
			if input.TenderID != tenderID || input.SubmissionID != submissionID || input.Actor != buyer {
				return nil, errors.New("unexpected input")
			}
			return &models.PurchaseOrder{ID: uuid.New(), Number: "PO-2025-000001", TenderID: tenderID, SubmissionID: submissionID, Status: enums.PurchaseOrderStatusPending}, nil
		},
	}
	params := map[string]string{"tenderId": tenderID.String()}

	rec := httptest.NewRecorder()
	AwardTender(svc, logger.Nop())(rec, newRequest(http.MethodPost, "/x", `{"submission_id":"`+submissionID.String()+`"}`, &buyer, params))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var po purchaseOrderResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &po))
	assert.Equal(t, "PO-2025-000001", po.Number)

	rec = httptest.NewRecorder()
	AwardTender(svc, logger.Nop())(rec, newRequest(http.MethodPost, "/x", `{"submission_id":"nope"}`, &buyer, params))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	GetPurchaseOrder(svc, logger.Nop())(rec, newRequest(http.MethodGet, "/x", "", &buyer, params))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	ok := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	HealthReady(cfg, logger.Nop(), map[string]db.Pinger{"db": ok})(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev", rec.Header().Get("X-TenderFlow-Env"))

	rec = httptest.NewRecorder()
	HealthReady(cfg, logger.Nop(), map[string]db.Pinger{"db": ok, "redis": down})(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	details, _ := decode(t, rec).Error.Details.(map[string]any)
	assert.Equal(t, "connection refused", details["redis"])
	assert.NotContains(t, details, "db")
}
