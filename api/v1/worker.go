// Package v1 is the worker protocol: the WorkerService gRPC service and its
// messages.
package v1

import "time"

// LeaseRequest asks for work.
type LeaseRequest struct {
	WorkerId string `json:"worker_id"`
	// Games the worker plays concurrently.
	Concurrency int32    `json:"concurrency"`
	Engines     []string `json:"engines,omitempty"`
}

func (x *LeaseRequest) GetWorkerId() string {
	if x != nil {
		return x.WorkerId
	}
	return ""
}

// EngineSpec identifies an engine build.
type EngineSpec struct {
	Name   string `json:"name"`
	Source string `json:"source,omitempty"`
	Sha    string `json:"sha"`
	Bench  int64  `json:"bench"`
}

// TestConfig is what a worker needs to play games for a test.
type TestConfig struct {
	Dev             *EngineSpec `json:"dev"`
	Base            *EngineSpec `json:"base"`
	DevOptions      string      `json:"dev_options,omitempty"`
	BaseOptions     string      `json:"base_options,omitempty"`
	DevTimeControl  string      `json:"dev_time_control"`
	BaseTimeControl string      `json:"base_time_control"`
	BookName        string      `json:"book_name"`
	UploadPgns      string      `json:"upload_pgns"`
	WinAdj          string      `json:"win_adj,omitempty"`
	DrawAdj         string      `json:"draw_adj,omitempty"`
	SyzygyWdl       string      `json:"syzygy_wdl,omitempty"`
	SyzygyAdj       string      `json:"syzygy_adj,omitempty"`
	ScaleMethod     string      `json:"scale_method"`
	ScaleNps        int64       `json:"scale_nps,omitempty"`
	// Paired tests must be played as colour-swapped pairs.
	Paired bool `json:"paired"`
}

// WorkUnit is a leased block of games.
type WorkUnit struct {
	LeaseId  string      `json:"lease_id"`
	TestId   uint64      `json:"test_id"`
	Games    int32       `json:"games"`
	Deadline time.Time   `json:"deadline"`
	Config   *TestConfig `json:"config"`
}

// LeaseResponse carries a WorkUnit, or none when no test needs work.
type LeaseResponse struct {
	Available bool      `json:"available"`
	Unit      *WorkUnit `json:"unit,omitempty"`
}

func (x *LeaseResponse) GetUnit() *WorkUnit {
	if x != nil {
		return x.Unit
	}
	return nil
}

// Counters are game outcomes from the dev engine's perspective.
type Counters struct {
	Games  int32 `json:"games"`
	Wins   int32 `json:"wins"`
	Draws  int32 `json:"draws"`
	Losses int32 `json:"losses"`
	Ll     int32 `json:"ll,omitempty"`
	Ld     int32 `json:"ld,omitempty"`
	Dd     int32 `json:"dd,omitempty"`
	Dw     int32 `json:"dw,omitempty"`
	Ww     int32 `json:"ww,omitempty"`
}

// SubmitRequest reports the results of a lease.
type SubmitRequest struct {
	LeaseId  string    `json:"lease_id"`
	TestId   uint64    `json:"test_id"`
	Counters *Counters `json:"counters"`
}

func (x *SubmitRequest) GetCounters() *Counters {
	if x != nil {
		return x.Counters
	}
	return nil
}

type SubmitResponse_Status int32

const (
	SubmitResponse_ACCEPTED  SubmitResponse_Status = 0
	SubmitResponse_DUPLICATE SubmitResponse_Status = 1
	SubmitResponse_REJECTED  SubmitResponse_Status = 2
)

var SubmitResponse_Status_name = map[int32]string{
	0: "ACCEPTED",
	1: "DUPLICATE",
	2: "REJECTED",
}

func (x SubmitResponse_Status) String() string {
	return SubmitResponse_Status_name[int32(x)]
}

// SubmitResponse acknowledges a submit. Reason is set for rejections.
type SubmitResponse struct {
	Status     SubmitResponse_Status `json:"status"`
	Reason     string                `json:"reason,omitempty"`
	TestStatus string                `json:"test_status,omitempty"`
	Llr        float64               `json:"llr"`
	Games      int64                 `json:"games"`
}

// ReportErrorRequest reports a fatal engine or adjudication failure.
type ReportErrorRequest struct {
	LeaseId string `json:"lease_id"`
	Reason  string `json:"reason"`
}

// HeartbeatRequest keeps a lease alive.
type HeartbeatRequest struct {
	LeaseId string `json:"lease_id"`
}

type HeartbeatResponse_Status int32

const (
	HeartbeatResponse_ACTIVE    HeartbeatResponse_Status = 0
	HeartbeatResponse_CANCELLED HeartbeatResponse_Status = 1
)

func (x HeartbeatResponse_Status) String() string {
	if x == HeartbeatResponse_CANCELLED {
		return "CANCELLED"
	}
	return "ACTIVE"
}

// HeartbeatResponse tells the worker whether to keep playing.
type HeartbeatResponse struct {
	Status   HeartbeatResponse_Status `json:"status"`
	Deadline time.Time                `json:"deadline"`
}
