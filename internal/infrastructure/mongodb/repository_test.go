package mongodb

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dubox-platform/production-service/internal/catalog"
	"github.com/dubox-platform/production-service/internal/checklist"
	"github.com/dubox-platform/production-service/internal/domain"
	pkgmongo "github.com/dubox-platform/production-service/pkg/mongodb"
	"github.com/dubox-platform/production-service/pkg/outbox"
	outboxmongo "github.com/dubox-platform/production-service/pkg/outbox/mongodb"
	sharedtesting "github.com/dubox-platform/production-service/pkg/testing"
)

var testTime = time.Date(2024, 11, 4, 8, 0, 0, 0, time.UTC)

type repos struct {
	boxes    *BoxRepository
	progress *ProgressRepository
	wirs     *WIRRepository
	outbox   *outboxmongo.OutboxRepository
	uow      *UnitOfWork
}

func setupRepos(t *testing.T) repos {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MongoDB integration test in short mode")
	}

	ctx := context.Background()
	container, err := sharedtesting.NewMongoDBContainer(ctx)
	if err != nil {
		t.Skipf("MongoDB container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Close(context.Background()) })

	cfg := pkgmongo.DefaultConfig()
	cfg.URI = container.URI
	cfg.Database = fmt.Sprintf("production_test_%d", time.Now().UnixNano())
	cfg.Direct = true

	client, err := pkgmongo.NewClient(ctx, cfg)
	require.NoError(t, err)
	instrumented := pkgmongo.NewInstrumentedClient(client, nil, nil)
	t.Cleanup(func() { _ = instrumented.Close(context.Background()) })

	r := repos{
		boxes:    NewBoxRepository(instrumented),
		progress: NewProgressRepository(instrumented),
		wirs:     NewWIRRepository(instrumented),
		outbox:   outboxmongo.NewOutboxRepository(instrumented),
		uow:      NewUnitOfWork(instrumented),
	}
	require.NoError(t, r.boxes.EnsureIndexes(ctx))
	require.NoError(t, r.wirs.EnsureIndexes(ctx))
	require.NoError(t, r.outbox.EnsureIndexes(ctx))
	return r
}

func sampleRecord(boxID string) *domain.ProgressRecord {
	return domain.NewProgressRecord(boxID, "2024.11.1", []catalog.Activity{
		{Code: "STAGE1-FAB", Name: "Fabrication", StageNumber: 1, OverallSequence: 1},
		{Code: "STAGE1-WIR", Name: "Inspection", StageNumber: 1, OverallSequence: 2, IsWIRCheckpoint: true, WIRCode: "WIR-1"},
		{Code: "STAGE2-ASM", Name: "Assembly", StageNumber: 2, OverallSequence: 3},
	}, testTime)
}

func TestMongoRepositories_BoxRoundTrip(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	box := domain.NewBox("BOX-1", "B-101", "Kitchen", "", "Bay 1", "2024.11.1", "pm-1", 3, testTime)
	require.NoError(t, r.boxes.Create(ctx, box))

	loaded, err := r.boxes.FindByID(ctx, "BOX-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "B-101", loaded.Tag)
	assert.True(t, testTime.Equal(loaded.CreatedAt))

	require.NoError(t, loaded.Relocate("Yard", "foreman-1", testTime))
	require.NoError(t, r.boxes.Update(ctx, loaded))

	moved, err := r.boxes.FindByID(ctx, "BOX-1")
	require.NoError(t, err)
	assert.Equal(t, "Yard", moved.Location)
	assert.Equal(t, domain.BoxActive, moved.CurrentStatus())

	require.NoError(t, moved.Hold("crack in slab", "qc-1", testTime))
	require.NoError(t, r.boxes.Update(ctx, moved))

	held, err := r.boxes.FindByID(ctx, "BOX-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BoxOnHold, held.Status)
	assert.Equal(t, "crack in slab", held.HoldReason)
	require.NotNil(t, held.HeldAt)
	assert.True(t, testTime.Equal(*held.HeldAt))

	missing, err := r.boxes.FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	ghost := domain.NewBox("BOX-9", "B-9", "Kitchen", "", "Bay 1", "v", "pm-1", 3, testTime)
	assert.True(t, errors.Is(r.boxes.Update(ctx, ghost), domain.ErrBoxNotFound))
}

func TestMongoRepositories_ProgressVersioning(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	rec := sampleRecord("BOX-1")
	require.NoError(t, r.progress.Save(ctx, rec))
	assert.Equal(t, int64(1), rec.Version)

	a, err := r.progress.FindByBoxID(ctx, "BOX-1")
	require.NoError(t, err)
	b, err := r.progress.FindByBoxID(ctx, "BOX-1")
	require.NoError(t, err)

	require.NoError(t, a.MarkCompleted("STAGE1-FAB", "foreman-1", testTime))
	require.NoError(t, r.progress.Save(ctx, a))

	require.NoError(t, b.MarkInProgress("STAGE1-FAB", "foreman-2", testTime))
	assert.True(t, errors.Is(r.progress.Save(ctx, b), domain.ErrConcurrentUpdate))

	stored, err := r.progress.FindByBoxID(ctx, "BOX-1")
	require.NoError(t, err)
	fab, _ := stored.Activity("STAGE1-FAB")
	assert.Equal(t, domain.ActivityCompleted, fab.Status)
	assert.Equal(t, int64(2), stored.Version)

	assert.True(t, errors.Is(r.progress.Save(ctx, sampleRecord("BOX-1")), domain.ErrConcurrentUpdate), "second insert")
}

func TestMongoRepositories_WIRHistory(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	h := domain.NewWIRHistory("BOX-1", "STAGE1-WIR", "WIR-1", "Material-Verification")
	_, err := h.Raise("engineer-1", testTime)
	require.NoError(t, err)
	require.NoError(t, h.Submit([]checklist.Response{{ItemID: "MV-01", Result: checklist.ResultPass}},
		checklist.Verdict{OK: true, Missing: []string{}, Invalid: []string{}}, "qc-1", testTime))
	require.NoError(t, r.wirs.Save(ctx, h))

	approved := domain.NewWIRHistory("BOX-2", "STAGE1-WIR", "WIR-1", "Material-Verification")
	_, err = approved.Raise("engineer-1", testTime)
	require.NoError(t, err)
	require.NoError(t, approved.Submit(nil, checklist.Verdict{OK: true}, "qc-1", testTime))
	require.NoError(t, approved.Approve(domain.Inspector{ID: "qc-1"}, nil, testTime))
	require.NoError(t, r.wirs.Save(ctx, approved))

	loaded, err := r.wirs.FindByBoxAndActivity(ctx, "BOX-1", "STAGE1-WIR")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Len(t, loaded.Attempts, 1)
	assert.Equal(t, domain.WIRSubmitted, loaded.Attempts[0].Status)
	assert.Equal(t, "MV-01", loaded.Attempts[0].Submission.Responses[0].ItemID)

	pending, err := r.wirs.FindPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "BOX-1", pending[0].BoxID)

	byBox, err := r.wirs.FindByBoxID(ctx, "BOX-2")
	require.NoError(t, err)
	assert.Len(t, byBox, 1)
}

func TestMongoRepositories_UnitOfWorkRollsBack(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := r.uow.Do(ctx, func(ctx context.Context) error {
		if err := r.progress.Save(ctx, sampleRecord("BOX-1")); err != nil {
			return err
		}
		if err := r.outbox.SaveAll(ctx, []*outbox.OutboxEvent{{ID: "evt-1", AggregateID: "BOX-1", MaxRetries: 3, CreatedAt: testTime}}); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	rec, err := r.progress.FindByBoxID(ctx, "BOX-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	events, err := r.outbox.FindByAggregateID(ctx, "BOX-1")
	require.NoError(t, err)
	assert.Empty(t, events)

	require.NoError(t, r.uow.Do(ctx, func(ctx context.Context) error {
		return r.progress.Save(ctx, sampleRecord("BOX-1"))
	}))
	rec, err = r.progress.FindByBoxID(ctx, "BOX-1")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}
