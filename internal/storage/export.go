package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
)

// PlanItem is one line of an exported as-run plan.
type PlanItem struct {
	Sequence        int            `json:"sequence"`
	AirAt           time.Time      `json:"air_at"`
	AssetID         int            `json:"asset_id"`
	Title           string         `json:"title"`
	Category        model.Category `json:"category"`
	DurationSeconds int            `json:"duration_seconds"`
	Featured        bool           `json:"featured,omitempty"`
	PoolID          *int           `json:"pool_id,omitempty"`
}

// Plan is the exported form of a schedule, with absolute air times.
type Plan struct {
	ScheduleID   uuid.UUID            `json:"schedule_id"`
	Channel      string               `json:"channel"`
	StartAt      time.Time            `json:"start_at"`
	Status       model.ScheduleStatus `json:"status"`
	TotalSeconds int                  `json:"total_seconds"`
	Items        []PlanItem           `json:"items"`
}

type ScheduleReader interface {
	GetSchedule(ctx context.Context, id uuid.UUID) (model.Schedule, error)
	AssetsByIDs(ctx context.Context, ids []int) (map[int]model.Asset, error)
}

type Exporter struct {
	store   ScheduleReader
	storage Storage
}

func NewExporter(store ScheduleReader, storage Storage) *Exporter {
	return &Exporter{store: store, storage: storage}
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Key names the export object of a schedule.
func Key(sc model.Schedule) string {
	channel := unsafeKeyChars.ReplaceAllString(sc.Channel, "_")
	if channel == "" {
		channel = "channel"
	}
	return fmt.Sprintf("schedules/%s/%s_%s.json", channel, sc.StartAt.UTC().Format("20060102_150405"), sc.ID)
}

// BuildPlan resolves titles and absolute air times for a schedule.
func BuildPlan(sc model.Schedule, assets map[int]model.Asset) Plan {
	p := Plan{
		ScheduleID:   sc.ID,
		Channel:      sc.Channel,
		StartAt:      sc.StartAt,
		Status:       sc.Status,
		TotalSeconds: sc.TotalSeconds,
		Items:        make([]PlanItem, 0, len(sc.Items)),
	}
	for _, it := range sc.Items {
		p.Items = append(p.Items, PlanItem{
			Sequence:        it.Sequence,
			AirAt:           it.AirTime(sc.StartAt),
			AssetID:         it.AssetID,
			Title:           assets[it.AssetID].Title,
			Category:        it.Category,
			DurationSeconds: it.DurationSeconds,
			Featured:        it.Featured,
			PoolID:          it.PoolID,
		})
	}
	return p
}

// Export writes the schedule's plan to storage and returns its location.
func (e *Exporter) Export(ctx context.Context, id uuid.UUID) (string, error) {
	sc, err := e.store.GetSchedule(ctx, id)
	if err != nil {
		return "", err
	}
	ids := make([]int, 0, len(sc.Items))
	for _, it := range sc.Items {
		ids = append(ids, it.AssetID)
	}
	assets, err := e.store.AssetsByIDs(ctx, ids)
	if err != nil {
		return "", err
	}

	body, err := json.MarshalIndent(BuildPlan(sc, assets), "", "  ")
	if err != nil {
		return "", err
	}
	return e.storage.Save(ctx, Key(sc), "application/json", body)
}
