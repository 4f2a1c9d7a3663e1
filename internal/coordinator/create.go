package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/leelachesszero/sprt-server/internal/lifecycle"
	"github.com/leelachesszero/sprt-server/internal/models"
	"github.com/leelachesszero/sprt-server/internal/sprt"
)

var validate = validator.New()

type engineSpec struct {
	Name   string `validate:"required,max=64"`
	Source string `validate:"omitempty,url"`
	Sha    string `validate:"required,hexadecimal,min=7,max=64"`
	Bench  int64  `validate:"gte=0"`
}

// TestSpec is the configuration of a new test. Zero values of Alpha, Beta,
// WorkloadSize and Throughput are replaced by defaults.
type TestSpec struct {
	Author string `json:"author" validate:"required,max=64"`
	DevID  uint   `json:"dev_id" validate:"required"`
	BaseID uint   `json:"base_id" validate:"required"`

	DevOptions      string `json:"dev_options"`
	BaseOptions     string `json:"base_options"`
	DevTimeControl  string `json:"dev_time_control" validate:"required"`
	BaseTimeControl string `json:"base_time_control" validate:"required"`
	BookName        string `json:"book_name" validate:"required"`
	UploadPGNs      string `json:"upload_pgns" validate:"omitempty,oneof=FALSE COMPACT VERBOSE"`

	WinAdj    string `json:"win_adj"`
	DrawAdj   string `json:"draw_adj"`
	SyzygyWDL string `json:"syzygy_wdl" validate:"omitempty,oneof=OPTIONAL REQUIRED DISABLED"`
	SyzygyAdj string `json:"syzygy_adj" validate:"omitempty,oneof=OPTIONAL REQUIRED DISABLED"`

	ScaleMethod string `json:"scale_method" validate:"omitempty,oneof=BASE DEV BOTH"`
	ScaleNPS    int    `json:"scale_nps" validate:"gte=0"`

	TestMode sprt.Mode `json:"test_mode" validate:"required,oneof=SPRT GAMES SPSA"`
	Paired   bool      `json:"paired"`
	EloLower float64   `json:"elo_lower"`
	EloUpper float64   `json:"elo_upper"`
	Alpha    float64   `json:"alpha" validate:"gte=0,lt=1"`
	Beta     float64   `json:"beta" validate:"gte=0,lt=1"`
	MaxGames int       `json:"max_games" validate:"gte=0"`

	WorkloadSize int `json:"workload_size" validate:"gte=0,lte=4096"`
	Priority     int `json:"priority"`
	Throughput   int `json:"throughput" validate:"gte=0"`
}

func (s *TestSpec) setDefaults() {
	if s.Alpha == 0 {
		s.Alpha = 0.05
	}
	if s.Beta == 0 {
		s.Beta = 0.05
	}
	if s.WorkloadSize == 0 {
		s.WorkloadSize = 32
	}
	if s.Throughput == 0 {
		s.Throughput = 100
	}
	if s.UploadPGNs == "" {
		s.UploadPGNs = "FALSE"
	}
	if s.ScaleMethod == "" {
		s.ScaleMethod = "BASE"
	}
}

func (s *TestSpec) check() error {
	if err := validate.Struct(s); err != nil {
		return err
	}
	switch s.TestMode {
	case sprt.ModeSPRT:
		if s.EloUpper <= s.EloLower {
			return fmt.Errorf("elo_upper %.2f must exceed elo_lower %.2f", s.EloUpper, s.EloLower)
		}
		if s.Alpha+s.Beta >= 1 {
			return errors.New("alpha + beta must be below 1")
		}
	default:
		if s.MaxGames == 0 {
			return fmt.Errorf("%s tests need max_games", s.TestMode)
		}
	}
	if s.Paired {
		if s.WorkloadSize%2 != 0 {
			return errors.New("paired tests need an even workload_size")
		}
		if s.MaxGames%2 != 0 {
			return errors.New("paired tests need an even max_games")
		}
	}
	return nil
}

// CreateTest validates spec, resolves its engines and stores a new PENDING test.
func (p *Pool) CreateTest(ctx context.Context, spec TestSpec) (models.Test, error) {
	spec.setDefaults()
	if err := spec.check(); err != nil {
		return models.Test{}, &Error{Kind: KindValidation, Reason: ReasonInvalidRequest, Err: err}
	}
	dev, err := p.resolveEngine(ctx, spec.DevID)
	if err != nil {
		return models.Test{}, err
	}
	base, err := p.resolveEngine(ctx, spec.BaseID)
	if err != nil {
		return models.Test{}, err
	}

	t := models.Test{
		Author:          spec.Author,
		Dev:             dev,
		DevID:           dev.ID,
		Base:            base,
		BaseID:          base.ID,
		DevOptions:      spec.DevOptions,
		BaseOptions:     spec.BaseOptions,
		DevTimeControl:  spec.DevTimeControl,
		BaseTimeControl: spec.BaseTimeControl,
		BookName:        spec.BookName,
		UploadPGNs:      spec.UploadPGNs,
		WinAdj:          spec.WinAdj,
		DrawAdj:         spec.DrawAdj,
		SyzygyWDL:       spec.SyzygyWDL,
		SyzygyAdj:       spec.SyzygyAdj,
		ScaleMethod:     spec.ScaleMethod,
		ScaleNPS:        spec.ScaleNPS,
		TestMode:        spec.TestMode,
		Paired:          spec.Paired,
		EloLower:        spec.EloLower,
		EloUpper:        spec.EloUpper,
		Alpha:           spec.Alpha,
		Beta:            spec.Beta,
		MaxGames:        spec.MaxGames,
		WorkloadSize:    spec.WorkloadSize,
		Priority:        spec.Priority,
		Throughput:      spec.Throughput,
		Status:          lifecycle.Pending,
	}
	if t.TestMode == sprt.ModeSPRT {
		t.LowerLLR, t.UpperLLR = sprt.Bounds(t.Alpha, t.Beta)
	}
	now := p.opts.Now()
	t.CreatedAt, t.UpdatedAt = now, now

	if err := p.store.CreateTest(ctx, &t); err != nil {
		return models.Test{}, fmt.Errorf("create test: %w", err)
	}
	p.tests.Store(t.ID, newEntry(t))
	p.logger.Info("test created", "test", t.ID, "author", t.Author, "mode", t.TestMode, "paired", t.Paired)
	return t, nil
}

func (p *Pool) resolveEngine(ctx context.Context, id uint) (models.Engine, error) {
	e, err := p.store.Engine(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return models.Engine{}, reject(KindNotFound, ReasonUnknownEngine, "engine %d", id)
	}
	if err != nil {
		return models.Engine{}, fmt.Errorf("resolve engine %d: %w", id, err)
	}
	return e, nil
}
