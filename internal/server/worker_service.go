package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	pb "github.com/leelachesszero/sprt-server/api/v1"

	"github.com/leelachesszero/sprt-server/internal/coordinator"
	"github.com/leelachesszero/sprt-server/internal/models"
	"github.com/leelachesszero/sprt-server/internal/outcome"

	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

// WorkerServiceImpl serves the worker protocol on top of the coordinator.
type WorkerServiceImpl struct {
	pb.UnimplementedWorkerServiceServer

	pool *coordinator.Pool
	dist *coordinator.Distributor
	agg  *coordinator.Aggregator

	// Lease polls are throttled per worker.
	limit    rate.Limit
	burst    int
	limiters sync.Map // worker id -> *rate.Limiter

	logger *slog.Logger
}

// NewWorkerService constructs the WorkerServiceImpl. pollRate is the number
// of Lease calls a single worker may make per second.
func NewWorkerService(pool *coordinator.Pool, dist *coordinator.Distributor, agg *coordinator.Aggregator, pollRate float64, pollBurst int, logger *slog.Logger) *WorkerServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerServiceImpl{
		pool:   pool,
		dist:   dist,
		agg:    agg,
		limit:  rate.Limit(pollRate),
		burst:  pollBurst,
		logger: logger.With("component", "worker_service"),
	}
}

func (s *WorkerServiceImpl) limiter(worker string) *rate.Limiter {
	if l, ok := s.limiters.Load(worker); ok {
		return l.(*rate.Limiter)
	}
	l, _ := s.limiters.LoadOrStore(worker, rate.NewLimiter(s.limit, s.burst))
	return l.(*rate.Limiter)
}

// Lease hands the worker its next block of games.
func (s *WorkerServiceImpl) Lease(ctx context.Context, req *pb.LeaseRequest) (*pb.LeaseResponse, error) {
	if req.GetWorkerId() == "" {
		return nil, status.Error(codes.InvalidArgument, "worker_id is required")
	}
	if !s.limiter(req.WorkerId).Allow() {
		return nil, status.Errorf(codes.ResourceExhausted, "worker %s is polling too often", req.WorkerId)
	}
	unit, ok, err := s.dist.Lease(ctx, coordinator.Capability{
		WorkerID:    req.WorkerId,
		Concurrency: int(req.Concurrency),
		Engines:     req.Engines,
	})
	if err != nil {
		if coordinator.KindOf(err) == 0 {
			s.logger.Error("lease failed", "worker", req.WorkerId, "error", err)
		}
		return nil, toStatus(err)
	}
	if !ok {
		return &pb.LeaseResponse{Available: false}, nil
	}
	return &pb.LeaseResponse{
		Available: true,
		Unit: &pb.WorkUnit{
			LeaseId:  unit.ID,
			TestId:   uint64(unit.TestID),
			Games:    int32(unit.Games),
			Deadline: unit.Deadline,
			Config:   testConfig(&unit.Test),
		},
	}, nil
}

// Submit merges the results of a lease. Rejections are part of the reply,
// not gRPC errors, so workers can tell them from transport failures.
func (s *WorkerServiceImpl) Submit(ctx context.Context, req *pb.SubmitRequest) (*pb.SubmitResponse, error) {
	c := req.GetCounters()
	if c == nil {
		return nil, status.Error(codes.InvalidArgument, "counters are required")
	}
	r, err := s.agg.Submit(ctx, coordinator.ResultBatch{
		LeaseID: req.LeaseId,
		TestID:  uint(req.TestId),
		Counters: outcome.Counters{
			Games: int(c.Games), Wins: int(c.Wins), Draws: int(c.Draws), Losses: int(c.Losses),
			LL: int(c.Ll), LD: int(c.Ld), DD: int(c.Dd), DW: int(c.Dw), WW: int(c.Ww),
		},
	})
	if err != nil {
		if coordinator.KindOf(err) != 0 {
			return &pb.SubmitResponse{
				Status: pb.SubmitResponse_REJECTED,
				Reason: string(coordinator.ReasonOf(err)),
			}, nil
		}
		return nil, toStatus(err)
	}
	resp := &pb.SubmitResponse{
		Status:     pb.SubmitResponse_ACCEPTED,
		TestStatus: string(r.Test.Status),
		Llr:        r.Test.CurrentLLR,
		Games:      int64(r.Test.Games),
	}
	if r.Outcome == coordinator.Duplicate {
		resp.Status = pb.SubmitResponse_DUPLICATE
	}
	return resp, nil
}

// ReportError freezes the test of a lease after a fatal engine failure.
func (s *WorkerServiceImpl) ReportError(ctx context.Context, req *pb.ReportErrorRequest) (*emptypb.Empty, error) {
	if req.LeaseId == "" || req.Reason == "" {
		return nil, status.Error(codes.InvalidArgument, "lease_id and reason are required")
	}
	if _, err := s.pool.ReportError(ctx, req.LeaseId, req.Reason); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Heartbeat extends a lease and tells the worker whether to keep playing.
func (s *WorkerServiceImpl) Heartbeat(ctx context.Context, req *pb.HeartbeatRequest) (*pb.HeartbeatResponse, error) {
	unit, active, err := s.dist.Heartbeat(ctx, req.LeaseId)
	if coordinator.ReasonOf(err) == coordinator.ReasonLeaseExpired {
		return &pb.HeartbeatResponse{Status: pb.HeartbeatResponse_CANCELLED}, nil
	}
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &pb.HeartbeatResponse{Status: pb.HeartbeatResponse_ACTIVE, Deadline: unit.Deadline}
	if !active {
		resp.Status = pb.HeartbeatResponse_CANCELLED
	}
	return resp, nil
}

func testConfig(t *models.Test) *pb.TestConfig {
	return &pb.TestConfig{
		Dev:             engineSpec(t.Dev),
		Base:            engineSpec(t.Base),
		DevOptions:      t.DevOptions,
		BaseOptions:     t.BaseOptions,
		DevTimeControl:  t.DevTimeControl,
		BaseTimeControl: t.BaseTimeControl,
		BookName:        t.BookName,
		UploadPgns:      t.UploadPGNs,
		WinAdj:          t.WinAdj,
		DrawAdj:         t.DrawAdj,
		SyzygyWdl:       t.SyzygyWDL,
		SyzygyAdj:       t.SyzygyAdj,
		ScaleMethod:     t.ScaleMethod,
		ScaleNps:        int64(t.ScaleNPS),
		Paired:          t.Paired,
	}
}

func engineSpec(e models.Engine) *pb.EngineSpec {
	return &pb.EngineSpec{Name: e.Name, Source: e.Source, Sha: e.Sha, Bench: e.Bench}
}

// toStatus maps coordinator errors to gRPC status errors.
func toStatus(err error) error {
	switch coordinator.KindOf(err) {
	case coordinator.KindValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case coordinator.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case coordinator.KindConflict:
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}
