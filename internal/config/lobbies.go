package config

import "github.com/ssesports/scrims-bot/internal/registry"

// Lobby is one fixed daily time slot. Static configuration; the engine never
// mutates lobbies.
type Lobby struct {
	Key           string
	Label         string
	ChannelID     string // public registration channel
	RoomChannelID string // locked room-details channel for confirmed squads
	MatchHour     int
	MatchMinute   int
}

// Lobbies returns the five daily slots wired to their configured channels.
func (c *Config) Lobbies() []Lobby {
	return []Lobby{
		{Key: "12pm", Label: "12:00 PM", ChannelID: c.Lobby12PMChannel, RoomChannelID: c.Lobby12PMRoom, MatchHour: 12},
		{Key: "03pm", Label: "03:00 PM", ChannelID: c.Lobby3PMChannel, RoomChannelID: c.Lobby3PMRoom, MatchHour: 15},
		{Key: "06pm", Label: "06:00 PM", ChannelID: c.Lobby6PMChannel, RoomChannelID: c.Lobby6PMRoom, MatchHour: 18},
		{Key: "09pm", Label: "09:00 PM", ChannelID: c.Lobby9PMChannel, RoomChannelID: c.Lobby9PMRoom, MatchHour: 21},
		{Key: "12am", Label: "12:00 AM", ChannelID: c.Lobby12AMChannel, RoomChannelID: c.Lobby12AMRoom, MatchHour: 0},
	}
}

// MatchTypes returns the competition tiers and their entry fees.
func (c *Config) MatchTypes() []registry.MatchType {
	return []registry.MatchType{
		{Key: "special", Label: "Special Live B2B x6", Fees: []int{55}},
		{Key: "mini", Label: "Mini B2B x3", Fees: []int{25, 30}},
		{Key: "mega", Label: "Mega B2B x6", Fees: []int{35, 45}},
	}
}
