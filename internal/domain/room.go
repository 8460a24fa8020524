package domain

import "github.com/google/uuid"

const DefaultRoomCapacity = 2

type RoomID string

func NewRoomID() RoomID {
	return RoomID(uuid.NewString())
}
