package models

import "gorm.io/gorm"

func GameToResource(g *Game) *GameResource {
	if g == nil {
		return nil
	}
	return &GameResource{
		ID:        g.ID,
		Name:      g.Name,
		Status:    g.Status,
		CreatedAt: g.CreationTime,
		StartedAt: g.StartTime,
		EndedAt:   g.FinishTime,
		Token:     g.Token,
		Secret:    g.Secret,
	}
}

func GamesToResources(games []Game) []GameResource {
	out := make([]GameResource, 0, len(games))
	for i := range games {
		out = append(out, *GameToResource(&games[i]))
	}
	return out
}

func RobotToResource(r *Robot) *BotResource {
	if r == nil {
		return nil
	}
	return &BotResource{
		ID:       r.ID,
		Name:     r.Name,
		BotIP:    r.BotIP,
		Running:  r.Running,
		Taken:    r.Taken,
		Speed:    r.Speed,
		Damage:   r.Damage,
		FireRate: r.FireRate,
		Armor:    r.Armor,
	}
}

func RobotsToResources(robots []Robot) []BotResource {
	out := make([]BotResource, 0, len(robots))
	for i := range robots {
		out = append(out, *RobotToResource(&robots[i]))
	}
	return out
}

func ResourceToRobot(b *BotResource) *Robot {
	if b == nil {
		return nil
	}
	return &Robot{
		Model:    gorm.Model{ID: b.ID},
		Name:     b.Name,
		BotIP:    b.BotIP,
		Running:  b.Running,
		Taken:    b.Taken,
		Speed:    b.Speed,
		Damage:   b.Damage,
		FireRate: b.FireRate,
		Armor:    b.Armor,
	}
}

func PlayerToResource(p *Player) PlayerResource {
	return PlayerResource{
		ID:        p.ID,
		Pseudo:    p.Pseudo,
		Firstname: p.Firstname,
		Lastname:  p.Lastname,
		Email:     p.Email,
	}
}

func PlayersToResources(players []Player) []PlayerResource {
	out := make([]PlayerResource, 0, len(players))
	for i := range players {
		out = append(out, PlayerToResource(&players[i]))
	}
	return out
}

func ResourceToPlayer(p *PlayerResource) *Player {
	return &Player{
		Model:     gorm.Model{ID: p.ID},
		Pseudo:    p.Pseudo,
		Firstname: p.Firstname,
		Lastname:  p.Lastname,
		Email:     p.Email,
	}
}

func StreamToResource(s *Stream) StreamResource {
	return StreamResource{
		ID:         s.ID,
		S3URL:      s.S3URL,
		KinesisURL: s.KinesisURL,
		Encoding:   s.Encoding,
		Duration:   s.Duration,
		Running:    s.Running,
		Private:    s.Private,
		BotID:      s.RobotID,
	}
}

func StreamsToResources(streams []Stream) []StreamResource {
	out := make([]StreamResource, 0, len(streams))
	for i := range streams {
		out = append(out, StreamToResource(&streams[i]))
	}
	return out
}

// ArenaToResource always returns a non-nil bot list so an arena without
// robots serialises as "bots": [].
func ArenaToResource(a *Arena, bots []Robot) *ArenaResource {
	if a == nil {
		return nil
	}
	return &ArenaResource{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		Width:       a.Width,
		Height:      a.Height,
		Bots:        RobotsToResources(bots),
	}
}

func ArenasToResources(arenas []Arena) []ArenaResource {
	out := make([]ArenaResource, 0, len(arenas))
	for i := range arenas {
		out = append(out, *ArenaToResource(&arenas[i], nil))
	}
	return out
}

// SessionToContext returns nil when the session recorded no telemetry.
func SessionToContext(s *Session) *BotContext {
	if s == nil || (s.BotEnergy == nil && s.BotHeat == nil) {
		return nil
	}
	ctx := &BotContext{}
	if s.BotEnergy != nil {
		ctx.Energy = *s.BotEnergy
	}
	if s.BotHeat != nil {
		ctx.Heat = *s.BotHeat
	}
	return ctx
}
