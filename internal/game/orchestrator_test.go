package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"battlebots/internal/events"
	"battlebots/internal/lock"
	"battlebots/internal/store"
	"battlebots/internal/upload"
	"battlebots/internal/worker"
	"battlebots/models"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB returns a migrated sqlite in-memory DB.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := store.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// fakeWorker answers like a healthy worker unless StartFunc or JoinFunc is set.
type fakeWorker struct {
	StartFunc func(ctx context.Context, g *models.GameResource) (*worker.Match, error)
	JoinFunc  func(ctx context.Context, gameID, playerID uint) error

	mu      sync.Mutex
	started []*models.GameResource
	deleted []uint
}

func (w *fakeWorker) StartMatch(ctx context.Context, g *models.GameResource) (*worker.Match, error) {
	w.mu.Lock()
	w.started = append(w.started, g)
	w.mu.Unlock()
	if w.StartFunc != nil {
		return w.StartFunc(ctx, g)
	}
	return &worker.Match{
		Token:  fmt.Sprintf("tok-%d", g.ID),
		Secret: "sec",
		Game:   json.RawMessage(fmt.Sprintf(`{"id":%d}`, g.ID)),
	}, nil
}

func (w *fakeWorker) JoinMatch(ctx context.Context, gameID, playerID uint) error {
	if w.JoinFunc != nil {
		return w.JoinFunc(ctx, gameID, playerID)
	}
	return nil
}

func (w *fakeWorker) DeleteMatch(ctx context.Context, gameID uint) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deleted = append(w.deleted, gameID)
	return errors.New("worker offline")
}

type recorder struct {
	mu  sync.Mutex
	got []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.got))
	for _, e := range r.got {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	db     *gorm.DB
	store  store.Store
	worker *fakeWorker
	bucket *blob.Bucket
	events *recorder
	orch   *Orchestrator
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{
		db:     db,
		store:  store.New(db),
		worker: &fakeWorker{},
		bucket: memblob.OpenBucket(nil),
		events: &recorder{},
		now:    time.UnixMilli(1_700_000_000_000),
	}
	t.Cleanup(func() { f.bucket.Close() })
	f.orch = f.build(f.store)
	return f
}

func (f *fixture) build(s store.Store) *Orchestrator {
	return New(Deps{
		Store:   s,
		Worker:  f.worker,
		Uploads: upload.NewCoordinator(upload.NewBlobSink(f.bucket, "streams", "https://cdn.test"), time.Second, zap.NewNop()),
		Locker:  lock.NewKeyedMutex(2 * time.Second),
		Events:  f.events,
		Logger:  zap.NewNop(),
		Now: func() time.Time {
			f.now = f.now.Add(time.Second)
			return f.now
		},
	})
}

func (f *fixture) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	if err := f.db.Unscoped().Model(model).Where(query, args...).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func (f *fixture) objects(t *testing.T) int {
	t.Helper()
	n := 0
	iter := f.bucket.List(nil)
	for {
		_, err := iter.Next(context.Background())
		if err == io.EOF {
			return n
		}
		if err != nil {
			t.Fatal(err)
		}
		n++
	}
}

func recording(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("recorded "+name), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func twoPlayers() []models.PlayerResource {
	return []models.PlayerResource{
		{Pseudo: "neo", Email: "neo@zion.io", BotSpecs: &models.BotResource{Name: "r1", Speed: 3, Armor: 2}},
		{Pseudo: "trinity", BotSpecs: &models.BotResource{Name: "r2", Damage: 5, FireRate: 1}},
	}
}

// createGame creates a game through the orchestrator and fails the test unless it answers 201.
func (f *fixture) createGame(t *testing.T, name string, players []models.PlayerResource) *models.GameResource {
	t.Helper()
	resp := f.orch.Create(context.Background(), &models.GameResource{Name: name, Players: players})
	if resp.HTTPCode != http.StatusCreated {
		t.Fatalf("create: %d %s", resp.HTTPCode, resp.Message)
	}
	return resp.Data
}

func withStreams(t *testing.T, players []models.PlayerResource) []models.PlayerResource {
	out := make([]models.PlayerResource, len(players))
	copy(out, players)
	for i := range out {
		out[i].Stream = recording(t, fmt.Sprintf("player%d.mp4", i))
		out[i].BotContext = &models.BotContext{Energy: 100 - i, Heat: i}
	}
	return out
}

func TestCreateEndDeleteScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created := f.orch.Create(ctx, &models.GameResource{Name: "Arena1", Players: twoPlayers()})
	if created.HTTPCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%s)", created.HTTPCode, created.Message)
	}
	g := created.Data
	if g.ID == 0 || g.Status != models.StatusCreated || g.Token == "" || g.CreatedAt == 0 {
		t.Fatalf("unexpected created game %+v", g)
	}
	if n := f.count(t, &models.GameUser{}, "game_id = ?", g.ID); n != 2 {
		t.Fatalf("expected 2 linked players, got %d", n)
	}
	if n := f.count(t, &models.GameRobot{}, "game_id = ?", g.ID); n != 2 {
		t.Fatalf("expected 2 linked robots, got %d", n)
	}
	stored, _ := f.store.GetGame(ctx, g.ID)
	if stored.Token != g.Token {
		t.Fatalf("token not persisted: %q", stored.Token)
	}

	ended := f.orch.End(ctx, &models.GameResource{ID: g.ID, Players: withStreams(t, g.Players)})
	if ended.HTTPCode != http.StatusOK {
		t.Fatalf("end: expected 200, got %d (%s)", ended.HTTPCode, ended.Message)
	}
	if ended.Data.Status != models.StatusEnded || ended.Data.StartedAt == 0 || ended.Data.EndedAt < ended.Data.StartedAt {
		t.Fatalf("unexpected ended game %+v", ended.Data)
	}
	if n := f.count(t, &models.Session{}, "game_id = ?", g.ID); n != 2 {
		t.Fatalf("expected 2 sessions, got %d", n)
	}
	if n := f.count(t, &models.Stream{}, "game_id = ?", g.ID); n != 2 {
		t.Fatalf("expected 2 streams, got %d", n)
	}
	if len(ended.Data.Streams) != 2 || ended.Data.Streams[0].Encoding != "ffmpeg" || !ended.Data.Streams[0].Private {
		t.Fatalf("unexpected streams %+v", ended.Data.Streams)
	}
	if f.objects(t) != 2 {
		t.Fatalf("expected 2 uploaded objects, got %d", f.objects(t))
	}

	detail := f.orch.FindOne(ctx, g.ID)
	if detail.HTTPCode != http.StatusOK || len(detail.Data.Players) != 2 || len(detail.Data.Streams) != 2 {
		t.Fatalf("unexpected detail %d %+v", detail.HTTPCode, detail.Data)
	}
	for _, p := range detail.Data.Players {
		if p.BotSpecs == nil || p.BotContext == nil {
			t.Fatalf("player %s missing robot or context: %+v", p.Pseudo, p)
		}
	}

	deleted := f.orch.DeleteOne(ctx, g.ID)
	if deleted.HTTPCode != http.StatusOK || !deleted.Data {
		t.Fatalf("delete: expected 200, got %d (%s)", deleted.HTTPCode, deleted.Message)
	}
	if got := f.orch.FindOne(ctx, g.ID); got.HTTPCode != http.StatusNotFound {
		t.Fatalf("find after delete: expected 404, got %d", got.HTTPCode)
	}
	if n := f.count(t, &models.Session{}, "game_id = ?", g.ID); n != 0 {
		t.Fatalf("sessions left after delete: %d", n)
	}
	if len(f.worker.deleted) != 1 || f.worker.deleted[0] != g.ID {
		t.Fatalf("worker not asked to delete match: %v", f.worker.deleted)
	}

	want := []string{events.GameCreated, events.GameEnded, events.GameDeleted}
	if got := f.events.types(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
}

func TestCreateCompensatesWorkerFailure(t *testing.T) {
	tests := []struct {
		name  string
		start func(ctx context.Context, g *models.GameResource) (*worker.Match, error)
	}{
		{"missing token", func(ctx context.Context, g *models.GameResource) (*worker.Match, error) {
			return &worker.Match{Secret: "s", Game: json.RawMessage(`{"id":1}`)}, nil
		}},
		{"missing handle", func(ctx context.Context, g *models.GameResource) (*worker.Match, error) {
			return &worker.Match{Token: "t", Secret: "s"}, nil
		}},
		{"missing secret", func(ctx context.Context, g *models.GameResource) (*worker.Match, error) {
			return &worker.Match{Token: "t", Game: json.RawMessage(`{"id":1}`)}, nil
		}},
		{"nil match", func(ctx context.Context, g *models.GameResource) (*worker.Match, error) {
			return nil, nil
		}},
		{"transport error", func(ctx context.Context, g *models.GameResource) (*worker.Match, error) {
			return nil, worker.ErrUnavailable
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.worker.StartFunc = tt.start

			resp := f.orch.Create(context.Background(), &models.GameResource{Name: "doomed", Players: twoPlayers()})
			if resp.HTTPCode != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d (%s)", resp.HTTPCode, resp.Message)
			}
			if n := f.count(t, &models.Game{}, "1 = 1"); n != 0 {
				t.Fatalf("expected zero games, got %d", n)
			}
			if n := f.count(t, &models.GameUser{}, "1 = 1"); n != 0 {
				t.Fatalf("expected zero game users, got %d", n)
			}
			if n := f.count(t, &models.GameRobot{}, "1 = 1"); n != 0 {
				t.Fatalf("expected zero game robots, got %d", n)
			}
		})
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if resp := f.orch.Create(ctx, &models.GameResource{}); resp.HTTPCode != http.StatusBadRequest {
		t.Fatalf("missing name: expected 400, got %d", resp.HTTPCode)
	}
	if resp := f.orch.Create(ctx, &models.GameResource{Name: "x", Status: models.StatusEnded}); resp.HTTPCode != http.StatusBadRequest {
		t.Fatalf("ended on create: expected 400, got %d", resp.HTTPCode)
	}
	if resp := f.orch.Create(ctx, &models.GameResource{Name: "x", Status: "PAUSED"}); resp.HTTPCode != http.StatusBadRequest {
		t.Fatalf("unknown status: expected 400, got %d", resp.HTTPCode)
	}
	if len(f.worker.started) != 0 {
		t.Fatal("worker must not be called for invalid input")
	}
}

func TestSaveDispatchesOnID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.orch.Save(ctx, &models.GameResource{Name: "first"})
	if created.HTTPCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", created.HTTPCode)
	}
	updated := f.orch.Save(ctx, &models.GameResource{ID: created.Data.ID, Name: "renamed"})
	if updated.HTTPCode != http.StatusOK || updated.Data.Name != "renamed" {
		t.Fatalf("expected 200 rename, got %d %+v", updated.HTTPCode, updated.Data)
	}
	if len(f.worker.started) != 1 {
		t.Fatalf("update must not resubmit to the worker, started %d times", len(f.worker.started))
	}
}

func TestLinkArenaTwiceKeepsOneLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.createGame(t, "g", nil)
	arena := &models.Arena{Name: "dome", Width: 10, Height: 10}
	if err := f.store.SaveArena(ctx, arena); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		resp := f.orch.LinkArenaToGame(ctx, arena.ID, g.ID)
		if resp.HTTPCode != http.StatusOK {
			t.Fatalf("link %d: %d %s", i, resp.HTTPCode, resp.Message)
		}
		if resp.Message != fmt.Sprintf("link arena %d to game %d", arena.ID, g.ID) {
			t.Fatalf("unexpected message %q", resp.Message)
		}
		if resp.Data.Arena == nil || resp.Data.Arena.Bots == nil {
			t.Fatalf("arena missing from result: %+v", resp.Data)
		}
	}
	if n := f.count(t, &models.Game{}, "arena_id = ?", arena.ID); n != 1 {
		t.Fatalf("expected exactly one arena link, got %d", n)
	}
	if resp := f.orch.LinkArenaToGame(ctx, 999, g.ID); resp.HTTPCode != http.StatusNotFound {
		t.Fatalf("missing arena: expected 404, got %d", resp.HTTPCode)
	}
	if resp := f.orch.LinkArenaToGame(ctx, arena.ID, 999); resp.HTTPCode != http.StatusNotFound {
		t.Fatalf("missing game: expected 404, got %d", resp.HTTPCode)
	}
}

func TestLinksConvergeInAnyOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.createGame(t, "g", nil)
	arena := &models.Arena{Name: "a"}
	robot := &models.Robot{Name: "r"}
	player := &models.Player{Pseudo: "p"}
	stream := &models.Stream{S3URL: "mem://s"}
	f.store.SaveArena(ctx, arena)
	f.store.SaveRobot(ctx, robot)
	f.store.SavePlayer(ctx, player)
	f.store.SaveStream(ctx, stream)

	links := []func() GameResponse{
		func() GameResponse { return f.orch.LinkUserToGame(ctx, player.ID, g.ID) },
		func() GameResponse { return f.orch.LinkStreamToGame(ctx, stream.ID, g.ID) },
		func() GameResponse { return f.orch.LinkBotToGame(ctx, robot.ID, g.ID) },
		func() GameResponse { return f.orch.LinkArenaToGame(ctx, arena.ID, g.ID) },
	}
	// forward, backward, then forward again
	for _, order := range [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {0, 1, 2, 3}} {
		for _, i := range order {
			if resp := links[i](); resp.HTTPCode != http.StatusOK {
				t.Fatalf("link %d: %d %s", i, resp.HTTPCode, resp.Message)
			}
		}
	}
	if n := f.count(t, &models.GameUser{}, "game_id = ?", g.ID); n != 1 {
		t.Fatalf("game users: %d", n)
	}
	if n := f.count(t, &models.GameRobot{}, "game_id = ?", g.ID); n != 1 {
		t.Fatalf("game robots: %d", n)
	}
	if n := f.count(t, &models.Stream{}, "game_id = ?", g.ID); n != 1 {
		t.Fatalf("streams: %d", n)
	}
	if resp := f.orch.LinkBotToGame(ctx, 4242, g.ID); resp.HTTPCode != http.StatusNotFound {
		t.Fatalf("missing bot: expected 404, got %d", resp.HTTPCode)
	}
}

func TestEndFailedUploadPersistsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.createGame(t, "g", twoPlayers())

	players := withStreams(t, g.Players)
	players[1].Stream = filepath.Join(t.TempDir(), "never-recorded.mp4")
	resp := f.orch.End(ctx, &models.GameResource{ID: g.ID, Players: players})
	if resp.HTTPCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d (%s)", resp.HTTPCode, resp.Message)
	}
	if n := f.count(t, &models.Stream{}, "1 = 1"); n != 0 {
		t.Fatalf("expected zero streams, got %d", n)
	}
	if n := f.count(t, &models.Session{}, "1 = 1"); n != 0 {
		t.Fatalf("expected zero sessions, got %d", n)
	}
	if f.objects(t) != 0 {
		t.Fatalf("failed batch left %d objects", f.objects(t))
	}
	stored, _ := f.store.GetGame(ctx, g.ID)
	if stored.Status != models.StatusCreated || stored.FinishTime != 0 {
		t.Fatalf("game must keep its prior status, got %+v", stored)
	}
}

func TestEndProducesOneStreamAndSessionPerPlayer(t *testing.T) {
	for _, n := range []int{0, 1, 3, 5} {
		t.Run(fmt.Sprintf("%d players", n), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			players := make([]models.PlayerResource, n)
			for i := range players {
				players[i] = models.PlayerResource{
					Pseudo:   fmt.Sprintf("p%d", i),
					BotSpecs: &models.BotResource{Name: fmt.Sprintf("bot%d", i)},
				}
			}
			g := f.createGame(t, "g", players)
			resp := f.orch.End(ctx, &models.GameResource{ID: g.ID, Players: withStreams(t, g.Players)})
			if resp.HTTPCode != http.StatusOK {
				t.Fatalf("end: %d %s", resp.HTTPCode, resp.Message)
			}
			if got := f.count(t, &models.Stream{}, "game_id = ?", g.ID); got != int64(n) {
				t.Fatalf("expected %d streams, got %d", n, got)
			}
			if got := f.count(t, &models.Session{}, "game_id = ?", g.ID); got != int64(n) {
				t.Fatalf("expected %d sessions, got %d", n, got)
			}
		})
	}
}

func TestEndRejectsEndedGameAndMissingStream(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.createGame(t, "g", twoPlayers())

	if resp := f.orch.End(ctx, &models.GameResource{ID: g.ID, Players: g.Players}); resp.HTTPCode != http.StatusBadRequest {
		t.Fatalf("players without stream: expected 400, got %d", resp.HTTPCode)
	}
	if resp := f.orch.End(ctx, &models.GameResource{ID: g.ID, Players: withStreams(t, g.Players)}); resp.HTTPCode != http.StatusOK {
		t.Fatalf("end: %d %s", resp.HTTPCode, resp.Message)
	}
	if resp := f.orch.End(ctx, &models.GameResource{ID: g.ID, Players: withStreams(t, g.Players)}); resp.HTTPCode != http.StatusBadRequest {
		t.Fatalf("second end: expected 400, got %d", resp.HTTPCode)
	}
	if resp := f.orch.End(ctx, &models.GameResource{ID: 999}); resp.HTTPCode != http.StatusNotFound {
		t.Fatalf("unknown game: expected 404, got %d", resp.HTTPCode)
	}
	if resp := f.orch.End(ctx, &models.GameResource{}); resp.HTTPCode != http.StatusBadRequest {
		t.Fatalf("missing id: expected 400, got %d", resp.HTTPCode)
	}
}

func TestEndRequiresEveryParticipant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.createGame(t, "g", twoPlayers())

	tests := []struct {
		name string
		end  func() GameResponse
	}{
		{"worker ends without players", func() GameResponse {
			return f.orch.UpdateByWorker(ctx, &models.GameResource{ID: g.ID, Status: models.StatusEnded})
		}},
		{"update ends with one player", func() GameResponse {
			return f.orch.Update(ctx, &models.GameResource{ID: g.ID, Status: models.StatusEnded, Players: withStreams(t, g.Players[:1])})
		}},
		{"end with one player", func() GameResponse {
			return f.orch.End(ctx, &models.GameResource{ID: g.ID, Players: withStreams(t, g.Players[1:])})
		}},
		{"end with an unknown newcomer", func() GameResponse {
			return f.orch.End(ctx, &models.GameResource{ID: g.ID, Players: withStreams(t, []models.PlayerResource{g.Players[0], {Pseudo: "smith"}})})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := tt.end(); resp.HTTPCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d (%s)", resp.HTTPCode, resp.Message)
			}
			stored, _ := f.store.GetGame(ctx, g.ID)
			if stored.Status != models.StatusCreated {
				t.Fatalf("game must not end, got %s", stored.Status)
			}
			if n := f.count(t, &models.Stream{}, "game_id = ?", g.ID); n != 0 {
				t.Fatalf("expected zero streams, got %d", n)
			}
			if f.objects(t) != 0 {
				t.Fatalf("rejected end uploaded %d objects", f.objects(t))
			}
		})
	}

	resp := f.orch.End(ctx, &models.GameResource{ID: g.ID, Players: withStreams(t, g.Players)})
	if resp.HTTPCode != http.StatusOK {
		t.Fatalf("end: %d %s", resp.HTTPCode, resp.Message)
	}
	users := f.count(t, &models.GameUser{}, "game_id = ?", g.ID)
	if streams := f.count(t, &models.Stream{}, "game_id = ?", g.ID); streams != users {
		t.Fatalf("%d participants but %d streams", users, streams)
	}
	if sessions := f.count(t, &models.Session{}, "game_id = ?", g.ID); sessions != users {
		t.Fatalf("%d participants but %d sessions", users, sessions)
	}
}

func TestEndedGameKeepsItsPlayers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.createGame(t, "g", twoPlayers())
	if resp := f.orch.End(ctx, &models.GameResource{ID: g.ID, Players: withStreams(t, g.Players)}); resp.HTTPCode != http.StatusOK {
		t.Fatalf("end: %d %s", resp.HTTPCode, resp.Message)
	}
	latecomer := &models.Player{Pseudo: "morpheus"}
	if err := f.store.SavePlayer(ctx, latecomer); err != nil {
		t.Fatal(err)
	}

	if resp := f.orch.Update(ctx, &models.GameResource{ID: g.ID, Players: []models.PlayerResource{{Pseudo: "smith"}}}); resp.HTTPCode != http.StatusBadRequest {
		t.Fatalf("update players: expected 400, got %d", resp.HTTPCode)
	}
	if resp := f.orch.LinkUserToGame(ctx, latecomer.ID, g.ID); resp.HTTPCode != http.StatusBadRequest {
		t.Fatalf("link latecomer: expected 400, got %d", resp.HTTPCode)
	}
	if resp := f.orch.LinkUserToGame(ctx, g.Players[0].ID, g.ID); resp.HTTPCode != http.StatusOK {
		t.Fatalf("relink participant: %d %s", resp.HTTPCode, resp.Message)
	}
	if resp := f.orch.Update(ctx, &models.GameResource{ID: g.ID, Name: "renamed"}); resp.HTTPCode != http.StatusOK {
		t.Fatalf("rename: %d %s", resp.HTTPCode, resp.Message)
	}
	if n := f.count(t, &models.GameUser{}, "game_id = ?", g.ID); n != 2 {
		t.Fatalf("expected 2 participants, got %d", n)
	}
}

func TestEndRecordsLiveURL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.createGame(t, "g", twoPlayers())
	o := New(Deps{
		Store:   f.store,
		Worker:  f.worker,
		Uploads: upload.NewCoordinator(upload.NewBlobSink(f.bucket, "streams", "https://cdn.test"), time.Second, zap.NewNop()),
		LiveURL: "rtmp://relay.test/live",
	})

	resp := o.End(ctx, &models.GameResource{ID: g.ID, Players: withStreams(t, g.Players)})
	if resp.HTTPCode != http.StatusOK {
		t.Fatalf("end: %d %s", resp.HTTPCode, resp.Message)
	}
	if n := f.count(t, &models.Stream{}, "game_id = ? AND kinesis_url = ?", g.ID, "rtmp://relay.test/live"); n != 2 {
		t.Fatalf("expected 2 streams with the live url, got %d", n)
	}

	other := f.createGame(t, "other", twoPlayers())
	if resp := f.orch.End(ctx, &models.GameResource{ID: other.ID, Players: withStreams(t, other.Players)}); resp.HTTPCode != http.StatusOK {
		t.Fatalf("end: %d %s", resp.HTTPCode, resp.Message)
	}
	if n := f.count(t, &models.Stream{}, "game_id = ? AND kinesis_url = ?", other.ID, ""); n != 2 {
		t.Fatalf("unset live url must stay empty, got %d matching streams", n)
	}
}

func TestConcurrentEndsOnSameGame(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.createGame(t, "g", twoPlayers())
	players := withStreams(t, g.Players)

	codes := make(chan int, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ps := make([]models.PlayerResource, len(players))
			copy(ps, players)
			codes <- f.orch.End(ctx, &models.GameResource{ID: g.ID, Players: ps}).HTTPCode
		}()
	}
	wg.Wait()
	close(codes)
	seen := map[int]int{}
	for c := range codes {
		seen[c]++
	}
	if seen[http.StatusOK] != 1 || seen[http.StatusBadRequest] != 1 {
		t.Fatalf("expected one 200 and one 400, got %v", seen)
	}
	if n := f.count(t, &models.Session{}, "game_id = ?", g.ID); n != 2 {
		t.Fatalf("expected 2 sessions, got %d", n)
	}
}

func TestUpdateStatusMovesForwardOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.createGame(t, "g", nil)

	started := f.orch.Update(ctx, &models.GameResource{ID: g.ID, Status: models.StatusStarted})
	if started.HTTPCode != http.StatusOK || started.Data.Status != models.StatusStarted || started.Data.StartedAt == 0 {
		t.Fatalf("start: %d %+v", started.HTTPCode, started.Data)
	}
	back := f.orch.Update(ctx, &models.GameResource{ID: g.ID, Status: models.StatusCreated})
	if back.HTTPCode != http.StatusBadRequest {
		t.Fatalf("regression: expected 400, got %d", back.HTTPCode)
	}
	stored, _ := f.store.GetGame(ctx, g.ID)
	if stored.Status != models.StatusStarted {
		t.Fatalf("stored status regressed to %s", stored.Status)
	}

	ended := f.orch.Update(ctx, &models.GameResource{ID: g.ID, Status: models.StatusEnded})
	if ended.HTTPCode != http.StatusOK || ended.Data.Status != models.StatusEnded {
		t.Fatalf("update to ENDED: %d %s", ended.HTTPCode, ended.Message)
	}
	if resp := f.orch.Update(ctx, &models.GameResource{ID: 999, Name: "x"}); resp.HTTPCode != http.StatusNotFound {
		t.Fatalf("unknown game: expected 404, got %d", resp.HTTPCode)
	}

	want := []string{events.GameCreated, events.GameStarted, events.GameEnded}
	if got := f.events.types(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
}

func TestUpdateByWorker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.createGame(t, "g", twoPlayers())

	if resp := f.orch.UpdateByWorker(ctx, &models.GameResource{Name: "no id"}); resp.HTTPCode != http.StatusBadRequest {
		t.Fatalf("missing id: expected 400, got %d", resp.HTTPCode)
	}
	resp := f.orch.UpdateByWorker(ctx, &models.GameResource{
		ID:      g.ID,
		Status:  models.StatusStarted,
		Players: []models.PlayerResource{{Pseudo: "intruder"}},
	})
	if resp.HTTPCode != http.StatusOK || resp.Data.Status != models.StatusStarted {
		t.Fatalf("worker start: %d %s", resp.HTTPCode, resp.Message)
	}
	if n := f.count(t, &models.GameUser{}, "game_id = ?", g.ID); n != 2 {
		t.Fatalf("worker callback must not change players, got %d", n)
	}

	resp = f.orch.UpdateByWorker(ctx, &models.GameResource{ID: g.ID, Status: models.StatusEnded, Players: withStreams(t, g.Players)})
	if resp.HTTPCode != http.StatusOK || resp.Data.Status != models.StatusEnded {
		t.Fatalf("worker end: %d %s", resp.HTTPCode, resp.Message)
	}
	if n := f.count(t, &models.Session{}, "game_id = ?", g.ID); n != 2 {
		t.Fatalf("expected 2 sessions, got %d", n)
	}
}

// failingStore breaks selected reads of the detail view.
type failingStore struct {
	store.Store
	failStreams bool
	failPlayer  uint
}

func (s *failingStore) HasStream(ctx context.Context, gameID uint) (bool, error) {
	if s.failStreams {
		return false, errors.New("streams table locked")
	}
	return s.Store.HasStream(ctx, gameID)
}

func (s *failingStore) SearchSessions(ctx context.Context, gameID, playerID uint) ([]models.Session, error) {
	if playerID == s.failPlayer {
		return nil, errors.New("session index corrupt")
	}
	return s.Store.SearchSessions(ctx, gameID, playerID)
}

func TestFindOneIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.createGame(t, "g", twoPlayers())
	if resp := f.orch.End(ctx, &models.GameResource{ID: g.ID, Players: withStreams(t, g.Players)}); resp.HTTPCode != http.StatusOK {
		t.Fatalf("end: %d %s", resp.HTTPCode, resp.Message)
	}
	// the first player's session is gone
	if err := f.db.Where("game_id = ? AND player_id = ?", g.ID, g.Players[0].ID).Delete(&models.Session{}).Error; err != nil {
		t.Fatal(err)
	}

	detail := f.orch.FindOne(ctx, g.ID)
	if detail.HTTPCode != http.StatusOK || len(detail.Data.Players) != 2 {
		t.Fatalf("detail: %d %+v", detail.HTTPCode, detail.Data)
	}
	byID := map[uint]models.PlayerResource{}
	for _, p := range detail.Data.Players {
		byID[p.ID] = p
	}
	if byID[g.Players[0].ID].BotContext != nil {
		t.Fatal("player without session must have no bot context")
	}
	if ctx1 := byID[g.Players[1].ID].BotContext; ctx1 == nil || ctx1.Energy != 99 {
		t.Fatalf("second player context missing: %+v", ctx1)
	}

	broken := f.build(&failingStore{Store: f.store, failStreams: true, failPlayer: g.Players[1].ID})
	detail = broken.FindOne(ctx, g.ID)
	if detail.HTTPCode != http.StatusOK {
		t.Fatalf("failing relations must not fail the read, got %d", detail.HTTPCode)
	}
	if detail.Data.Streams != nil {
		t.Fatalf("streams should be omitted, got %+v", detail.Data.Streams)
	}
	if len(detail.Data.Players) != 2 {
		t.Fatalf("players should still be listed, got %+v", detail.Data.Players)
	}
	for _, p := range detail.Data.Players {
		if p.BotSpecs == nil {
			t.Fatalf("player %d lost its robot", p.ID)
		}
	}
}

func TestFindOneArena(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.createGame(t, "g", nil)
	if got := f.orch.FindOne(ctx, g.ID); got.Data.Arena != nil {
		t.Fatal("no arena linked yet")
	}

	arena := &models.Arena{Name: "dome"}
	robot := &models.Robot{Name: "sentry"}
	f.store.SaveArena(ctx, arena)
	f.store.SaveRobot(ctx, robot)
	f.orch.LinkArenaToGame(ctx, arena.ID, g.ID)

	got := f.orch.FindOne(ctx, g.ID)
	if got.Data.Arena == nil || len(got.Data.Arena.Bots) != 0 {
		t.Fatalf("expected arena without bots, got %+v", got.Data.Arena)
	}
	if err := f.store.LinkBotToArena(ctx, robot.ID, arena.ID); err != nil {
		t.Fatal(err)
	}
	got = f.orch.FindOne(ctx, g.ID)
	if got.Data.Arena == nil || len(got.Data.Arena.Bots) != 1 || got.Data.Arena.Bots[0].Name != "sentry" {
		t.Fatalf("expected arena bot, got %+v", got.Data.Arena)
	}
}

func TestFindAll(t *testing.T) {
	f := newFixture(t)
	f.createGame(t, "a", nil)
	f.createGame(t, "b", nil)
	resp := f.orch.FindAll(context.Background())
	if resp.HTTPCode != http.StatusOK || len(resp.Data) != 2 || resp.Data[0].Name != "a" {
		t.Fatalf("unexpected list %d %+v", resp.HTTPCode, resp.Data)
	}
}

func TestStartAndStopLeaveStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.createGame(t, "g", nil)
	for _, resp := range []GameResponse{f.orch.Start(ctx, g.ID), f.orch.Stop(ctx, g.ID)} {
		if resp.HTTPCode != http.StatusOK || resp.Data.Status != models.StatusCreated {
			t.Fatalf("unexpected %d %+v", resp.HTTPCode, resp.Data)
		}
	}
	if resp := f.orch.Start(ctx, 999); resp.HTTPCode != http.StatusNotFound {
		t.Fatalf("start unknown: expected 404, got %d", resp.HTTPCode)
	}
	if resp := f.orch.Stop(ctx, 999); resp.HTTPCode != http.StatusNotFound {
		t.Fatalf("stop unknown: expected 404, got %d", resp.HTTPCode)
	}
}

func TestDeleteUnknownGame(t *testing.T) {
	f := newFixture(t)
	resp := f.orch.DeleteOne(context.Background(), 12)
	if resp.HTTPCode != http.StatusNotFound || resp.Data {
		t.Fatalf("expected 404, got %d", resp.HTTPCode)
	}
	if len(f.worker.deleted) != 0 {
		t.Fatal("worker must not be called for unknown games")
	}
}

func TestJoinGame(t *testing.T) {
	f := newFixture(t)
	var joined [2]uint
	f.worker.JoinFunc = func(ctx context.Context, gameID, playerID uint) error {
		joined = [2]uint{gameID, playerID}
		return nil
	}
	if resp := f.orch.JoinGame(context.Background(), 3, 8); resp.HTTPCode != http.StatusOK {
		t.Fatalf("join: %d", resp.HTTPCode)
	}
	if joined != [2]uint{3, 8} {
		t.Fatalf("worker got %v", joined)
	}
	f.worker.JoinFunc = func(context.Context, uint, uint) error { return worker.ErrUnavailable }
	if resp := f.orch.JoinGame(context.Background(), 3, 8); resp.HTTPCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.HTTPCode)
	}
}

func TestLockTimeoutAnswersConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.createGame(t, "g", nil)
	locker := lock.NewKeyedMutex(20 * time.Millisecond)
	o := New(Deps{Store: f.store, Worker: f.worker, Locker: locker})

	unlock, err := locker.Lock(ctx, lock.GameKey(g.ID))
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()
	if resp := o.Update(ctx, &models.GameResource{ID: g.ID, Name: "x"}); resp.HTTPCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.HTTPCode)
	}
}

func TestExpireStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	old := f.createGame(t, "old", nil)
	running := f.createGame(t, "running", nil)
	f.orch.Update(ctx, &models.GameResource{ID: running.ID, Status: models.StatusStarted})
	f.now = f.now.Add(48 * time.Hour)
	fresh := f.createGame(t, "fresh", nil)

	n, err := f.orch.ExpireStale(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected one expired game, got %d", n)
	}
	if resp := f.orch.FindOne(ctx, old.ID); resp.HTTPCode != http.StatusNotFound {
		t.Fatalf("old game should be gone, got %d", resp.HTTPCode)
	}
	for _, id := range []uint{fresh.ID, running.ID} {
		if resp := f.orch.FindOne(ctx, id); resp.HTTPCode != http.StatusOK {
			t.Fatalf("game %d should remain, got %d", id, resp.HTTPCode)
		}
	}
}
