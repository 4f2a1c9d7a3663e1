package models

import (
	"time"

	"github.com/leelachesszero/sprt-server/internal/lifecycle"
	"github.com/leelachesszero/sprt-server/internal/outcome"
	"github.com/leelachesszero/sprt-server/internal/sprt"
)

// Engine is one build of an engine. Registered once, shared by every test
// that references it, never mutated.
type Engine struct {
	ID        uint      `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Name   string `json:"name" gorm:"index"`
	Source string `json:"source"`
	Sha    string `json:"sha" gorm:"index"`
	// Node count of the reference bench, used to verify worker builds.
	Bench int64 `json:"bench"`
}

// Test is one dev-vs-base comparison.
type Test struct {
	ID        uint      `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Author string `json:"author"`

	// Engines under test
	Dev    Engine `json:"dev" gorm:"foreignKey:DevID"`
	DevID  uint   `json:"dev_id"`
	Base   Engine `json:"base" gorm:"foreignKey:BaseID"`
	BaseID uint   `json:"base_id"`

	DevOptions      string `json:"dev_options"`
	BaseOptions     string `json:"base_options"`
	DevTimeControl  string `json:"dev_time_control"`
	BaseTimeControl string `json:"base_time_control"`
	BookName        string `json:"book_name"`
	UploadPGNs      string `json:"upload_pgns" gorm:"column:upload_pgns"`

	// Adjudication
	WinAdj    string `json:"win_adj"`
	DrawAdj   string `json:"draw_adj"`
	SyzygyWDL string `json:"syzygy_wdl" gorm:"column:syzygy_wdl"`
	SyzygyAdj string `json:"syzygy_adj"`

	// Time control scaling, passed through to workers.
	ScaleMethod string `json:"scale_method"`
	ScaleNPS    int    `json:"scale_nps" gorm:"column:scale_nps"`

	TestMode sprt.Mode `json:"test_mode"`
	// Paired selects pentanomial accounting.
	Paired   bool    `json:"paired"`
	EloLower float64 `json:"elo_lower"`
	EloUpper float64 `json:"elo_upper"`
	Alpha    float64 `json:"alpha"`
	Beta     float64 `json:"beta"`
	LowerLLR float64 `json:"lower_llr" gorm:"column:lower_llr"`
	UpperLLR float64 `json:"upper_llr" gorm:"column:upper_llr"`
	MaxGames int     `json:"max_games"`

	// Scheduling
	WorkloadSize int `json:"workload_size"`
	Priority     int `json:"priority" gorm:"index"`
	Throughput   int `json:"throughput"`

	outcome.Counters `gorm:"embedded"`
	CurrentLLR       float64 `json:"current_llr" gorm:"column:current_llr"`

	Status      lifecycle.Status `json:"status" gorm:"index"`
	ErrorReason string           `json:"error_reason,omitempty"`
}

// Params returns the SPRT inputs of the test.
func (t *Test) Params(model sprt.Model, confidence float64) sprt.Params {
	return sprt.Params{
		Mode:       t.TestMode,
		Paired:     t.Paired,
		Model:      model,
		EloLower:   t.EloLower,
		EloUpper:   t.EloUpper,
		LowerLLR:   t.LowerLLR,
		UpperLLR:   t.UpperLLR,
		MaxGames:   t.MaxGames,
		Confidence: confidence,
	}
}
