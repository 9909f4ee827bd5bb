package game

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"battlebots/internal/events"
	"battlebots/internal/store"
	"battlebots/internal/upload"
	"battlebots/internal/worker"
	"battlebots/models"

	"go.uber.org/zap"
)

// Stream defaults recorded for every uploaded match video.
const (
	streamEncoding = "ffmpeg"
	streamDuration = 1
)

func failGame(err error) GameResponse {
	return fail[*models.GameResource](err)
}

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// Save dispatches to Create or Update depending on whether spec carries an id.
func (o *Orchestrator) Save(ctx context.Context, spec *models.GameResource) GameResponse {
	if spec.ID == 0 {
		return o.Create(ctx, spec)
	}
	return o.Update(ctx, spec)
}

// Create persists a new CREATED game with its players and robots, then hands
// it to the worker. A worker failure deletes the game again.
func (o *Orchestrator) Create(ctx context.Context, spec *models.GameResource) GameResponse {
	if spec.Name == "" {
		return failGame(badRequest("name is required"))
	}
	status, err := models.ParseStatus(string(spec.Status))
	if err != nil {
		return failGame(err)
	}
	if status != "" && status != models.StatusCreated {
		return failGame(&models.TransitionError{From: models.StatusCreated, To: status})
	}

	g := models.NewGame(spec.Name, o.now())
	playerIDs, robotIDs, err := o.persistPlayers(ctx, spec.Players)
	if err != nil {
		o.logger.Error("Failed to save players", zap.Error(err))
		return failGame(err)
	}
	if err := o.store.SaveGame(ctx, g); err != nil {
		o.logger.Error("Failed to save game", zap.Error(err))
		return failGame(err)
	}
	unlock, err := o.lockGame(ctx, g.ID)
	if err != nil {
		return failGame(err)
	}
	defer unlock()

	o.runIsolated(ctx, g.ID, o.linkSteps(g.ID, playerIDs, robotIDs)...)

	res := gameResource(g, spec.Players)
	match, err := o.worker.StartMatch(ctx, res)
	if err == nil && !match.Complete() {
		err = worker.ErrIncompleteResponse
	}
	if err != nil {
		o.logger.Error("Worker rejected game, deleting it", zap.Uint("game", g.ID), zap.Error(err))
		o.remove(ctx, g)
		return models.Response[*models.GameResource]{
			HTTPCode: http.StatusInternalServerError,
			Message:  fmt.Sprintf("worker failed to start game %d: %v", g.ID, err),
		}
	}

	g.Token, g.Secret = match.Token, match.Secret
	if err := o.store.SaveGame(ctx, g); err != nil {
		o.logger.Error("Failed to store worker token, deleting game", zap.Uint("game", g.ID), zap.Error(err))
		o.remove(ctx, g)
		return models.Response[*models.GameResource]{
			HTTPCode: http.StatusInternalServerError,
			Message:  err.Error(),
		}
	}
	res.Token, res.Secret = g.Token, g.Secret
	o.publish(ctx, events.GameCreated, g.ID, g.Status, res)
	return success(http.StatusCreated, "game created", res)
}

// Update changes name, status and players of an existing game. A request to
// reach ENDED goes through End.
func (o *Orchestrator) Update(ctx context.Context, spec *models.GameResource) GameResponse {
	if spec.ID == 0 {
		return failGame(badRequest("game id is required"))
	}
	return o.withGame(ctx, spec.ID, func(g *models.Game) GameResponse {
		return o.update(ctx, g, spec, true)
	})
}

// UpdateByWorker is the worker's lifecycle callback. It moves name and status
// forward and never touches the player list, except when ending the game.
func (o *Orchestrator) UpdateByWorker(ctx context.Context, spec *models.GameResource) GameResponse {
	if spec.ID == 0 {
		return failGame(badRequest("game id is required"))
	}
	return o.withGame(ctx, spec.ID, func(g *models.Game) GameResponse {
		return o.update(ctx, g, spec, false)
	})
}

// End uploads every player's stream and, once all uploads succeeded, stores
// the ENDED game with one stream and one session per player.
func (o *Orchestrator) End(ctx context.Context, spec *models.GameResource) GameResponse {
	if spec.ID == 0 {
		return failGame(badRequest("game id is required"))
	}
	return o.withGame(ctx, spec.ID, func(g *models.Game) GameResponse {
		return o.end(ctx, g, spec)
	})
}

// Start and Stop acknowledge administrative requests; the stored status is left alone.
func (o *Orchestrator) Start(ctx context.Context, id uint) GameResponse {
	return o.withGame(ctx, id, func(g *models.Game) GameResponse {
		return success(http.StatusOK, fmt.Sprintf("game %d start acknowledged", id), models.GameToResource(g))
	})
}

func (o *Orchestrator) Stop(ctx context.Context, id uint) GameResponse {
	return o.withGame(ctx, id, func(g *models.Game) GameResponse {
		return success(http.StatusOK, fmt.Sprintf("game %d stop acknowledged", id), models.GameToResource(g))
	})
}

// withGame runs fn holding the game's lock, with the game freshly loaded.
func (o *Orchestrator) withGame(ctx context.Context, id uint, fn func(g *models.Game) GameResponse) GameResponse {
	unlock, err := o.lockGame(ctx, id)
	if err != nil {
		return failGame(err)
	}
	defer unlock()

	g, err := o.store.GetGame(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Response[*models.GameResource]{HTTPCode: http.StatusNotFound, Message: "game not found"}
		}
		return failGame(err)
	}
	return fn(g)
}

func (o *Orchestrator) update(ctx context.Context, g *models.Game, spec *models.GameResource, withPlayers bool) GameResponse {
	status, err := models.ParseStatus(string(spec.Status))
	if err != nil {
		return failGame(err)
	}
	if status == models.StatusEnded {
		return o.end(ctx, g, spec)
	}

	started := false
	if status != "" && status != g.Status {
		if status.Before(g.Status) {
			return failGame(&models.TransitionError{From: g.Status, To: status})
		}
		if err := g.Advance(status, o.now()); err != nil {
			return failGame(err)
		}
		started = status == models.StatusStarted
	}
	if spec.Name != "" {
		g.Name = spec.Name
	}

	var players []models.PlayerResource
	var playerIDs, robotIDs []uint
	if withPlayers && len(spec.Players) > 0 && g.Status.Terminal() {
		return failGame(badRequest("game %d is %s, its players are final", g.ID, g.Status))
	}
	if withPlayers {
		players = spec.Players
		playerIDs, robotIDs, err = o.persistPlayers(ctx, players)
		if err != nil {
			o.logger.Error("Failed to save players", zap.Uint("game", g.ID), zap.Error(err))
			return failGame(err)
		}
	}
	if err := o.store.SaveGame(ctx, g); err != nil {
		o.logger.Error("Failed to update game", zap.Uint("game", g.ID), zap.Error(err))
		return failGame(err)
	}
	o.runIsolated(ctx, g.ID, o.linkSteps(g.ID, playerIDs, robotIDs)...)

	res := gameResource(g, players)
	if started {
		o.publish(ctx, events.GameStarted, g.ID, g.Status, res)
	} else {
		o.publish(ctx, events.GameUpdated, g.ID, g.Status, res)
	}
	return success(http.StatusOK, "game updated", res)
}

func (o *Orchestrator) end(ctx context.Context, g *models.Game, spec *models.GameResource) GameResponse {
	if g.Status.Terminal() {
		return failGame(&models.TransitionError{From: g.Status, To: models.StatusEnded})
	}
	for _, p := range spec.Players {
		if p.Stream == "" {
			return failGame(badRequest("player %q has no stream", p.Pseudo))
		}
	}
	if err := o.checkParticipants(ctx, g.ID, spec.Players); err != nil {
		return failGame(err)
	}

	// CREATED passes through STARTED so no state is skipped.
	now := o.now()
	ended := *g
	if ended.Status == models.StatusCreated {
		if err := ended.Advance(models.StatusStarted, now); err != nil {
			return failGame(err)
		}
	}
	if err := ended.Advance(models.StatusEnded, now); err != nil {
		return failGame(err)
	}
	if spec.Name != "" {
		ended.Name = spec.Name
	}

	playerIDs, robotIDs, err := o.persistPlayers(ctx, spec.Players)
	if err != nil {
		o.logger.Error("Failed to save players", zap.Uint("game", g.ID), zap.Error(err))
		return failGame(err)
	}

	tasks := make([]upload.Task, 0, len(spec.Players))
	byPlayer := make(map[uint]*models.PlayerResource, len(spec.Players))
	for i := range spec.Players {
		p := &spec.Players[i]
		if _, seen := byPlayer[p.ID]; !seen {
			byPlayer[p.ID] = p
		}
		tasks = append(tasks, upload.Task{PlayerID: p.ID, Path: p.Stream, Key: upload.NewKey(p.Stream)})
	}
	results, err := o.uploads.Run(ctx, tasks)
	if err != nil {
		o.logger.Error("Stream upload failed, game not ended", zap.Uint("game", g.ID), zap.Error(err))
		return failGame(err)
	}

	rows := make([]store.EndResult, 0, len(results))
	for _, r := range results {
		rows = append(rows, endResult(byPlayer[r.PlayerID], r.URL, o.liveURL))
	}
	if err := o.store.EndGame(ctx, &ended, rows); err != nil {
		o.logger.Error("Failed to store ended game", zap.Uint("game", g.ID), zap.Error(err))
		o.uploads.Discard(ctx, results)
		return failGame(err)
	}
	*g = ended

	o.runIsolated(ctx, g.ID, o.linkSteps(g.ID, playerIDs, robotIDs)...)

	res := gameResource(g, spec.Players)
	streams := make([]models.Stream, 0, len(rows))
	for _, row := range rows {
		streams = append(streams, row.Stream)
	}
	res.Streams = models.StreamsToResources(streams)
	o.publish(ctx, events.GameEnded, g.ID, g.Status, res)
	return success(http.StatusOK, "game ended", res)
}

// checkParticipants makes sure every player linked to the game brings a stream,
// so ending it yields one stream and one session per participant.
func (o *Orchestrator) checkParticipants(ctx context.Context, gameID uint, players []models.PlayerResource) error {
	linked, err := o.store.ListGameUsers(ctx, gameID)
	if err != nil {
		o.logger.Error("Failed to list game participants", zap.Uint("game", gameID), zap.Error(err))
		return err
	}
	reported := make(map[uint]bool, len(players))
	for _, p := range players {
		if p.ID != 0 {
			reported[p.ID] = true
		}
	}
	for _, u := range linked {
		if !reported[u.PlayerID] {
			return badRequest("player %d takes part in game %d but has no stream", u.PlayerID, gameID)
		}
	}
	return nil
}

// persistPlayers saves every player and the robot it brings, re-pointing the
// player's robot link. Assigned ids are written back into players.
func (o *Orchestrator) persistPlayers(ctx context.Context, players []models.PlayerResource) (playerIDs, robotIDs []uint, err error) {
	for i := range players {
		p := &players[i]
		player := models.ResourceToPlayer(p)
		if err := o.store.SavePlayer(ctx, player); err != nil {
			return nil, nil, fmt.Errorf("save player %q: %w", p.Pseudo, err)
		}
		p.ID = player.ID
		playerIDs = append(playerIDs, player.ID)
		if p.BotSpecs == nil {
			continue
		}

		robot := models.ResourceToRobot(p.BotSpecs)
		if err := o.store.SaveRobot(ctx, robot); err != nil {
			return nil, nil, fmt.Errorf("save robot %q: %w", p.BotSpecs.Name, err)
		}
		p.BotSpecs.ID = robot.ID
		if err := o.store.ReplacePlayerRobot(ctx, player.ID, robot.ID); err != nil {
			return nil, nil, fmt.Errorf("link robot %d to player %d: %w", robot.ID, player.ID, err)
		}
		robotIDs = append(robotIDs, robot.ID)
	}
	return playerIDs, robotIDs, nil
}

func (o *Orchestrator) linkSteps(gameID uint, playerIDs, robotIDs []uint) []step {
	return []step{
		{name: "bots", run: func(ctx context.Context) error {
			if len(robotIDs) == 0 {
				return nil
			}
			return o.store.AddBotsToGame(ctx, gameID, robotIDs)
		}},
		{name: "users", run: func(ctx context.Context) error {
			if len(playerIDs) == 0 {
				return nil
			}
			return o.store.AddUsersToGame(ctx, gameID, playerIDs)
		}},
	}
}

func endResult(p *models.PlayerResource, url, liveURL string) store.EndResult {
	var robotID uint
	if p.BotSpecs != nil {
		robotID = p.BotSpecs.ID
	}
	session := models.Session{PlayerID: p.ID, RobotID: robotID}
	if p.BotContext != nil {
		energy, heat := p.BotContext.Energy, p.BotContext.Heat
		session.BotEnergy, session.BotHeat = &energy, &heat
	}
	return store.EndResult{
		Stream: models.Stream{
			S3URL:      url,
			KinesisURL: liveURL,
			Encoding:   streamEncoding,
			Duration:   streamDuration,
			Running:    true,
			Private:    true,
			RobotID:    robotID,
		},
		Session: session,
	}
}

func gameResource(g *models.Game, players []models.PlayerResource) *models.GameResource {
	res := models.GameToResource(g)
	res.Players = players
	return res
}
