package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_preroll/internal/activation"
	"github.com/friendsincode/heimdall_preroll/internal/clock"
	"github.com/friendsincode/heimdall_preroll/internal/dispatch"
	"github.com/friendsincode/heimdall_preroll/internal/events"
	"github.com/friendsincode/heimdall_preroll/internal/models"
	"github.com/friendsincode/heimdall_preroll/internal/recurrence"
	"github.com/friendsincode/heimdall_preroll/internal/sequence"
)

type countingApplier struct {
	mu    sync.Mutex
	calls int
	block chan struct{} // non-nil blocks Apply until closed
}

func (c *countingApplier) Apply(_ context.Context, _ models.MediaServer, _ string, _ models.PlaybackMode) error {
	c.mu.Lock()
	c.calls++
	block := c.block
	c.mu.Unlock()
	if block != nil {
		<-block
	}
	return nil
}

func (c *countingApplier) Test(_ context.Context, _ models.MediaServer) error { return nil }

func (c *countingApplier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func setupService(t *testing.T, now time.Time, applier *countingApplier) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&models.Category{},
		&models.Preroll{},
		&models.Sequence{},
		&models.Schedule{},
		&models.MediaServer{},
		&models.PathMapping{},
		&models.ApplyState{},
	)
	if err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	logger := zerolog.Nop()
	cal, err := recurrence.DefaultCalendar()
	if err != nil {
		t.Fatalf("load calendar: %v", err)
	}
	rec := recurrence.NewResolver(cal, logger)
	engine := activation.New(rec, logger)
	seqResolver := sequence.New(sequence.NewGormIndex(db), logger)
	dispatcher := dispatch.New(db, seqResolver, applier, events.NewBus(), logger)

	svc := New(db, clock.Fixed{T: now}, rec, engine, dispatcher, nil, events.NewBus(), time.Minute, logger)
	return svc, db
}

func seedActiveWorld(t *testing.T, db *gorm.DB) {
	t.Helper()

	cat := models.Category{ID: "cat-1", Name: "general", PlaybackMode: models.PlaybackRandom}
	if err := db.Create(&cat).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}
	preroll := models.Preroll{ID: "p-1", Name: "intro", Path: "/data/prerolls/intro.mp4"}
	if err := db.Create(&preroll).Error; err != nil {
		t.Fatalf("create preroll: %v", err)
	}
	if err := db.Exec("INSERT INTO preroll_categories (preroll_id, category_id) VALUES (?, ?)", preroll.ID, cat.ID).Error; err != nil {
		t.Fatalf("link preroll: %v", err)
	}

	catID := cat.ID
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sched := models.Schedule{
		ID:         "sched-1",
		Name:       "always on",
		Type:       models.ScheduleCustom,
		StartDate:  &start,
		CategoryID: &catID,
		Enabled:    true,
	}
	if err := db.Create(&sched).Error; err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	server := models.MediaServer{ID: "srv-1", Name: "den", Kind: models.ServerPlex, Platform: models.PlatformPosix, Enabled: true}
	if err := db.Create(&server).Error; err != nil {
		t.Fatalf("create server: %v", err)
	}
}

func TestForceApplyDispatchesAndStampsSchedule(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	applier := &countingApplier{}
	svc, db := setupService(t, now, applier)
	seedActiveWorld(t, db)

	outcomes, err := svc.ForceApply(context.Background())
	if err != nil {
		t.Fatalf("force apply: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Status != dispatch.StatusApplied {
		t.Fatalf("outcomes = %+v, want one applied", outcomes)
	}
	if applier.count() != 1 {
		t.Fatalf("applier calls = %d, want 1", applier.count())
	}

	var sched models.Schedule
	if err := db.First(&sched, "id = ?", "sched-1").Error; err != nil {
		t.Fatalf("load schedule: %v", err)
	}
	if sched.LastRunAt == nil {
		t.Error("winning schedule not stamped with last_run_at")
	}
	if sched.LastSignature == "" {
		t.Error("winning schedule not stamped with last_signature")
	}

	state := svc.State()
	if state.InFlight {
		t.Error("in-flight flag stuck after cycle")
	}
	// One active non-exclusive schedule still resolves as a blend; single is
	// reserved for exclusive winners.
	if state.LastResolution.Kind != activation.KindBlend {
		t.Errorf("last resolution kind = %s, want blend", state.LastResolution.Kind)
	}
}

func TestRepeatedForceApplyBypassesSignature(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	applier := &countingApplier{}
	svc, db := setupService(t, now, applier)
	seedActiveWorld(t, db)

	if _, err := svc.ForceApply(context.Background()); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := svc.ForceApply(context.Background()); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if applier.count() != 2 {
		t.Fatalf("applier calls = %d, want 2 (force bypasses signature)", applier.count())
	}
}

func TestConcurrentForceAppliesSerialize(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	applier := &countingApplier{block: make(chan struct{})}
	svc, db := setupService(t, now, applier)
	seedActiveWorld(t, db)

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			_, _ = svc.ForceApply(context.Background())
		}()
	}

	// Let the first apply reach the blocking call, then release both.
	time.Sleep(50 * time.Millisecond)
	if got := applier.count(); got != 1 {
		t.Errorf("calls while first apply in flight = %d, want 1", got)
	}
	close(applier.block)
	wg.Wait()

	if applier.count() != 2 {
		t.Errorf("total calls = %d, want 2", applier.count())
	}
}

func TestCurrentResolutionDoesNotDispatch(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	applier := &countingApplier{}
	svc, db := setupService(t, now, applier)
	seedActiveWorld(t, db)

	res, err := svc.CurrentResolution(context.Background())
	if err != nil {
		t.Fatalf("current resolution: %v", err)
	}
	if res.Kind != activation.KindBlend {
		t.Errorf("kind = %s, want blend", res.Kind)
	}
	if applier.count() != 0 {
		t.Errorf("resolution preview must not dispatch, calls = %d", applier.count())
	}
}

func TestUpcomingTransitionsReportsBoundaries(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	applier := &countingApplier{}
	svc, db := setupService(t, now, applier)

	catID := "cat-x"
	start := time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 6, 25, 0, 0, 0, 0, time.UTC)
	sched := models.Schedule{
		ID:         "sched-window",
		Name:       "premiere week",
		Type:       models.ScheduleCustom,
		StartDate:  &start,
		EndDate:    &end,
		CategoryID: &catID,
		Enabled:    true,
	}
	if err := db.Create(&sched).Error; err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	upcoming, err := svc.UpcomingTransitions(context.Background(), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if len(upcoming) != 1 {
		t.Fatalf("upcoming entries = %d, want 1", len(upcoming))
	}
	if upcoming[0].Active {
		t.Error("schedule should not be active before its start date")
	}
	if !upcoming[0].TransitionAt.After(now) {
		t.Errorf("transition %v not after now %v", upcoming[0].TransitionAt, now)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	applier := &countingApplier{}
	svc, db := setupService(t, now, applier)
	seedActiveWorld(t, db)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	// The immediate first tick should have applied once.
	deadline := time.After(2 * time.Second)
	for applier.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("first tick never dispatched")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
