package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-booking/internal/common/config"
	"github.com/uma-arai/sbcntr-booking/internal/model"
	"github.com/uma-arai/sbcntr-booking/internal/service/booking"
)

// MockReservationRepository はテスト用のモックリポジトリです
type MockReservationRepository struct {
	mu           sync.Mutex
	reservations map[string]*model.Reservation
	queryError   error
	updateError  error
}

func newMockReservationRepository(reservations ...model.Reservation) *MockReservationRepository {
	m := &MockReservationRepository{reservations: make(map[string]*model.Reservation)}
	for i := range reservations {
		r := reservations[i]
		m.reservations[r.ID] = &r
	}
	return m
}

func (m *MockReservationRepository) TryInsert(ctx context.Context, res *model.Reservation, slot model.SlotKey, capacity int) error {
	return errors.New("not implemented")
}

func (m *MockReservationRepository) Get(ctx context.Context, id string) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (m *MockReservationRepository) Query(ctx context.Context, c model.Criteria) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryError != nil {
		return nil, m.queryError
	}
	var result []model.Reservation
	for _, r := range m.reservations {
		if c.Status != "" && r.Status != c.Status {
			continue
		}
		if c.StartsBefore != nil && !r.Time.On(r.Date, c.StartsBefore.Location()).Before(*c.StartsBefore) {
			continue
		}
		result = append(result, *r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockReservationRepository) UpdateStatus(ctx context.Context, id string, to model.Status, notes string) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateError != nil {
		return nil, m.updateError
	}
	r, ok := m.reservations[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if err := model.Transition(r.Status, to); err != nil {
		return nil, err
	}
	r.Status = to
	if notes != "" {
		r.AdminNotes = notes
	}
	copied := *r
	return &copied, nil
}

func (m *MockReservationRepository) Delete(ctx context.Context, id string) error {
	return errors.New("not implemented")
}

func (m *MockReservationRepository) Occupancy(ctx context.Context, slot model.SlotKey) (int, error) {
	return 0, nil
}

func (m *MockReservationRepository) Stats(ctx context.Context, day time.Time, recent int) (*model.DashboardStats, error) {
	return &model.DashboardStats{}, nil
}

// MockTaskNotifier はテスト用のStep Functionsクライアントです
type MockTaskNotifier struct {
	input *sfn.SendTaskSuccessInput
	err   error
}

func (m *MockTaskNotifier) SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error) {
	m.input = params
	return &sfn.SendTaskSuccessOutput{}, m.err
}

var ict = time.FixedZone("ICT", 7*60*60)

// newTestReservationBatchService はテスト用のReservationBatchServiceを作成します
func newTestReservationBatchService(repo *MockReservationRepository, notifier TaskNotifier, now time.Time) *ReservationBatchService {
	controller := booking.NewAdmissionController(
		repo,
		model.DefaultOperatingHours(),
		model.SlotPolicy{Capacity: 10},
		ict,
		booking.WithClock(func() time.Time { return now }),
	)
	cfg := &config.Config{}
	cfg.SFN.TaskToken = "test-token"
	return &ReservationBatchService{
		controller: controller,
		sfnClient:  notifier,
		cfg:        cfg,
	}
}

func reservation(id string, status model.Status, tod model.TimeOfDay) model.Reservation {
	return model.Reservation{
		ID:           id,
		CustomerName: fmt.Sprintf("customer %s", id),
		Email:        "customer@example.com",
		Phone:        "0900000000",
		Date:         time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		Time:         tod,
		PartySize:    2,
		Status:       status,
	}
}

func TestReservationBatchService_Sweep(t *testing.T) {
	// X-Rayのセグメントを設定
	ctx, seg := xray.BeginSegment(context.Background(), "TestReservationBatchService_Sweep")
	defer seg.Close(nil)

	// 2025-12-01 13:30 (ICT)
	now := time.Date(2025, 12, 1, 13, 30, 0, 0, ict)

	tests := []struct {
		name       string
		args       []model.Reservation
		wantStatus map[string]model.Status
		wantEvents int
	}{
		{
			name:       "空の予約リストを処理",
			args:       []model.Reservation{},
			wantStatus: map[string]model.Status{},
			wantEvents: 0,
		},
		{
			name: "開始時刻を過ぎた未確定の予約は取消",
			args: []model.Reservation{
				reservation("a", model.StatusPending, model.NewTimeOfDay(12, 0)),
				reservation("b", model.StatusPending, model.NewTimeOfDay(13, 30)),
				reservation("c", model.StatusPending, model.NewTimeOfDay(18, 0)),
			},
			wantStatus: map[string]model.Status{
				"a": model.StatusCancelled,
				"b": model.StatusPending,
				"c": model.StatusPending,
			},
			wantEvents: 1,
		},
		{
			name: "時間枠が終了した確定済みの予約は完了",
			args: []model.Reservation{
				reservation("a", model.StatusConfirmed, model.NewTimeOfDay(12, 45)),
				reservation("b", model.StatusConfirmed, model.NewTimeOfDay(13, 0)),
				reservation("c", model.StatusCancelled, model.NewTimeOfDay(11, 0)),
				reservation("d", model.StatusCompleted, model.NewTimeOfDay(10, 0)),
			},
			wantStatus: map[string]model.Status{
				"a": model.StatusCompleted,
				"b": model.StatusConfirmed,
				"c": model.StatusCancelled,
				"d": model.StatusCompleted,
			},
			wantEvents: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockReservationRepository(tt.args...)
			service := newTestReservationBatchService(repo, nil, now)

			events, err := service.Sweep(ctx)
			if err != nil {
				t.Fatalf("Sweep() error = %v", err)
			}
			if len(events) != tt.wantEvents {
				t.Errorf("Sweep() returned %d events, want %d", len(events), tt.wantEvents)
			}
			for id, want := range tt.wantStatus {
				got, _ := repo.Get(ctx, id)
				if got.Status != want {
					t.Errorf("reservation %s status = %v, want %v", id, got.Status, want)
				}
			}
		})
	}
}

func TestReservationBatchService_Sweep_Note(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestReservationBatchService_Sweep_Note")
	defer seg.Close(nil)

	repo := newMockReservationRepository(reservation("a", model.StatusPending, model.NewTimeOfDay(12, 0)))
	service := newTestReservationBatchService(repo, nil, time.Date(2025, 12, 1, 12, 1, 0, 0, ict))

	events, err := service.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if len(events) != 1 || events[0].From != model.StatusPending || events[0].To != model.StatusCancelled {
		t.Fatalf("Sweep() events = %+v", events)
	}
	got, _ := repo.Get(ctx, "a")
	if got.AdminNotes != unconfirmedNote {
		t.Errorf("AdminNotes = %q, want %q", got.AdminNotes, unconfirmedNote)
	}
}

func TestReservationBatchService_Run(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestReservationBatchService_Run")
	defer seg.Close(nil)

	now := time.Date(2025, 12, 1, 15, 0, 0, 0, ict)

	tests := []struct {
		name        string
		env         string
		queryError  error
		notifyError error
		wantErr     bool
		wantNotify  bool
	}{
		{name: "Step Functionsへ通知", wantNotify: true},
		{name: "LOCAL環境では通知しない", env: "LOCAL"},
		{name: "予約の取得に失敗", queryError: errors.New("connection refused"), wantErr: true},
		{name: "通知に失敗", notifyError: errors.New("throttled"), wantErr: true, wantNotify: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENV", tt.env)

			repo := newMockReservationRepository(
				reservation("a", model.StatusPending, model.NewTimeOfDay(12, 0)),
				reservation("b", model.StatusConfirmed, model.NewTimeOfDay(13, 0)),
			)
			repo.queryError = tt.queryError
			notifier := &MockTaskNotifier{err: tt.notifyError}
			service := newTestReservationBatchService(repo, notifier, now)

			err := service.Run(ctx)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if (notifier.input != nil) != tt.wantNotify {
				t.Fatalf("SendTaskSuccess called = %v, want %v", notifier.input != nil, tt.wantNotify)
			}
			if !tt.wantNotify {
				return
			}

			if aws.ToString(notifier.input.TaskToken) != "test-token" {
				t.Errorf("TaskToken = %q", aws.ToString(notifier.input.TaskToken))
			}
			var output struct {
				Events []model.ReservationEvent `json:"events"`
			}
			if err := json.Unmarshal([]byte(aws.ToString(notifier.input.Output)), &output); err != nil {
				t.Fatalf("output is not JSON: %v", err)
			}
			if len(output.Events) != 2 {
				t.Errorf("output has %d events, want 2", len(output.Events))
			}
		})
	}
}
