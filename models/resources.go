package models

// Response is the aggregate every game operation returns. The HTTP layer
// only copies HTTPCode onto the wire status.
type Response[T any] struct {
	HTTPCode int    `json:"httpCode"`
	Message  string `json:"message"`
	Data     T      `json:"data,omitempty"`
}

// GameResource is the API shape of a game and its participants.
type GameResource struct {
	ID        uint             `json:"id,omitempty"`
	Name      string           `json:"name"`
	Status    GameStatus       `json:"status,omitempty"`
	CreatedAt int64            `json:"createdAt,omitempty"`
	StartedAt int64            `json:"startedAt,omitempty"`
	EndedAt   int64            `json:"endedAt,omitempty"`
	Token     string           `json:"token,omitempty"`
	Secret    string           `json:"secret,omitempty"`
	Players   []PlayerResource `json:"players,omitempty"`
	Bots      []BotResource    `json:"bots,omitempty"`
	Streams   []StreamResource `json:"streams,omitempty"`
	Arena     *ArenaResource   `json:"arena,omitempty"`
}

type PlayerResource struct {
	ID        uint   `json:"id,omitempty"`
	Pseudo    string `json:"pseudo"`
	Firstname string `json:"firstname,omitempty"`
	Lastname  string `json:"lastname,omitempty"`
	Email     string `json:"email,omitempty"`
	// BotSpecs is the robot the player brings into the game.
	BotSpecs *BotResource `json:"botSpecs,omitempty"`
	// Stream is the local path of the player's recorded output, set when ending a game.
	Stream     string      `json:"stream,omitempty"`
	BotContext *BotContext `json:"botContext,omitempty"`
}

// BotContext is the last known robot state at game end.
type BotContext struct {
	Energy int `json:"energy"`
	Heat   int `json:"heat"`
}

type BotResource struct {
	ID       uint   `json:"id,omitempty"`
	Name     string `json:"name"`
	BotIP    string `json:"botIp,omitempty"`
	Running  bool   `json:"running"`
	Taken    bool   `json:"taken"`
	Speed    int    `json:"speed"`
	Damage   int    `json:"damage"`
	FireRate int    `json:"fireRate"`
	Armor    int    `json:"armor"`
}

type StreamResource struct {
	ID         uint   `json:"id"`
	S3URL      string `json:"s3Url"`
	KinesisURL string `json:"kinesisUrl,omitempty"`
	Encoding   string `json:"encoding"`
	Duration   int    `json:"duration"`
	Running    bool   `json:"running"`
	Private    bool   `json:"private"`
	BotID      uint   `json:"botId"`
}

type ArenaResource struct {
	ID          uint          `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Width       int           `json:"width,omitempty"`
	Height      int           `json:"height,omitempty"`
	Bots        []BotResource `json:"bots"`
}
