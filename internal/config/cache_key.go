package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// RoomQuestionsKey returns the cache key for a room's canonical question list
func (r *CacheKeyStruct) RoomQuestionsKey(roomID string) string {
	return fmt.Sprintf("room:%s:questions", roomID)
}

// RoomSettlingKey returns the lock key held while a room is being settled
func (r *CacheKeyStruct) RoomSettlingKey(roomCode string) string {
	return fmt.Sprintf("room:%s:settling", roomCode)
}

// LobbyChannel returns the Redis PubSub channel carrying global room updates
func (r *CacheKeyStruct) LobbyChannel() string {
	return "lobby:rooms"
}

var CacheKey = NewCacheKeyStruct()
