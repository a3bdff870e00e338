package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/uma-arai/sbcntr-booking/internal/common/utils"
	"github.com/uma-arai/sbcntr-booking/internal/metrics"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-booking/internal/common/config"
	"github.com/uma-arai/sbcntr-booking/internal/model"
	"github.com/uma-arai/sbcntr-booking/internal/service/booking"
)

// 開始時刻までに確定されなかった予約に付ける管理メモ
const unconfirmedNote = "not confirmed before start"

// TaskNotifier はStep Functionsへのタスク結果通知です（*sfn.Client が満たします）
type TaskNotifier interface {
	SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error)
}

// ReservationBatchService は予約のライフサイクルを進めるバッチ処理を担当します
//   - 開始時刻を過ぎても pending の予約は cancelled にする
//   - 時間枠が終了した confirmed の予約は completed にする
type ReservationBatchService struct {
	runtime    *booking.Runtime
	controller *booking.AdmissionController
	sfnClient  TaskNotifier
	cfg        *config.Config
}

// NewReservationBatchService は新しいReservationBatchServiceを作成します
func NewReservationBatchService(ctx context.Context, cfg *config.Config, sfnClient TaskNotifier) (*ReservationBatchService, error) {
	rt, err := booking.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &ReservationBatchService{
		runtime:    rt,
		controller: rt.Controller,
		sfnClient:  sfnClient,
		cfg:        cfg,
	}, nil
}

// Close は終了処理を行います
func (s *ReservationBatchService) Close() error {
	if s.runtime != nil {
		return s.runtime.Close()
	}
	return nil
}

// Run は予約バッチ処理を実行します
func (s *ReservationBatchService) Run(ctx context.Context) error {
	// X-Rayセグメントの作成
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationBatchService.Run")
	defer seg.Close(nil)

	startTime := time.Now()

	events, err := s.Sweep(ctx)
	if err != nil {
		metrics.IncSweep("failed")
		return utils.GetStackWithError(fmt.Errorf("failed to sweep reservations: %w", err))
	}

	// イベントを発行
	if err := s.sendTaskSuccess(ctx, events); err != nil {
		metrics.IncSweep("failed")
		return utils.GetStackWithError(fmt.Errorf("failed to send task success: %w", err))
	}
	metrics.IncSweep("succeeded")

	duration := time.Since(startTime)

	// セグメントにメタデータを追加
	if err := seg.AddMetadata("duration", duration.String()); err != nil {
		log.Printf("Failed to add duration metadata: %v", err)
	}
	if err := seg.AddMetadata("events", len(events)); err != nil {
		log.Printf("Failed to add events metadata: %v", err)
	}

	log.Printf("Reservation batch process completed successfully. Transitions: %d, Duration: %v", len(events), duration)
	return nil
}

// Sweep は期限を過ぎた予約のステータスを進め、適用した遷移をイベントとして返します
// 個々の予約の失敗はログに記録して処理を続けます
func (s *ReservationBatchService) Sweep(ctx context.Context) ([]model.ReservationEvent, error) {
	now := s.controller.Now()
	loc := s.controller.Location()

	var events []model.ReservationEvent

	// 開始時刻までに確定されなかった予約を取消
	pending, err := s.controller.Lookup(ctx, model.Criteria{Status: model.StatusPending, StartsBefore: &now, BySchedule: true})
	if err != nil {
		return nil, fmt.Errorf("failed to get pending reservations: %w", err)
	}
	log.Printf("Found %d pending reservations past their start", len(pending))

	for _, r := range pending {
		if ev, ok := s.advance(ctx, r, model.StatusCancelled, unconfirmedNote); ok {
			events = append(events, ev)
		}
	}

	// 時間枠が終了した確定済みの予約を完了
	confirmed, err := s.controller.Lookup(ctx, model.Criteria{Status: model.StatusConfirmed, StartsBefore: &now, BySchedule: true})
	if err != nil {
		return nil, fmt.Errorf("failed to get confirmed reservations: %w", err)
	}

	finished := 0
	for _, r := range confirmed {
		slotEnd := model.NewTimeOfDay(r.Time.Hour(), 0).On(r.Date, loc).Add(time.Hour)
		if slotEnd.After(now) {
			continue
		}
		finished++
		if ev, ok := s.advance(ctx, r, model.StatusCompleted, ""); ok {
			events = append(events, ev)
		}
	}
	log.Printf("Found %d confirmed reservations whose slot has ended", finished)

	return events, nil
}

func (s *ReservationBatchService) advance(ctx context.Context, r model.Reservation, to model.Status, notes string) (model.ReservationEvent, bool) {
	updated, err := s.controller.UpdateStatus(ctx, r.ID, to, notes)
	if err != nil {
		// 他の処理が先に遷移させた場合
		if errors.Is(err, model.ErrIllegalTransition) || errors.Is(err, model.ErrNotFound) {
			log.Printf("Skipped reservation %s: %v", r.ID, err)
			return model.ReservationEvent{}, false
		}
		log.Printf("Failed to update reservation %s to %s: %v", r.ID, to, err)
		return model.ReservationEvent{}, false
	}
	return model.NewReservationEvent(*updated, r.Status), true
}

// sendTaskSuccess は、Step Functionsのタスク成功を通知し、イベントを返却します
func (s *ReservationBatchService) sendTaskSuccess(ctx context.Context, events []model.ReservationEvent) error {
	// ローカルの場合はStep Functionsの処理をスキップ
	if os.Getenv("ENV") == "LOCAL" || s.sfnClient == nil {
		log.Printf("Local environment detected. Skipping Step Functions task success notification")
		return nil
	}

	if events == nil {
		events = []model.ReservationEvent{}
	}

	// イベントをJSONに変換
	output, err := json.Marshal(map[string]any{
		"events": events,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	// タスクトークンを設定から取得
	taskToken := s.cfg.SFN.TaskToken
	if taskToken == "" {
		return fmt.Errorf("SFN_TASK_TOKEN is not set in config")
	}

	// SendTaskSuccess APIを呼び出す
	input := &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(taskToken),
		Output:    aws.String(string(output)),
	}

	_, err = s.sfnClient.SendTaskSuccess(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send task success: %w", err)
	}

	log.Printf("Successfully sent task success with %d events", len(events))
	return nil
}
